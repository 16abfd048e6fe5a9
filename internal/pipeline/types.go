package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"

	"codeberg.org/docforge/server/internal/admission"
	"codeberg.org/docforge/server/internal/artifact"
	"codeberg.org/docforge/server/internal/config"
	"codeberg.org/docforge/server/internal/invoker"
	"codeberg.org/docforge/server/internal/ledger"
)

type Stage string

const (
	StageReceived   Stage = "received"
	StageAdmitted   Stage = "admitted"
	StageProcessing Stage = "processing"
	StagePackaged   Stage = "packaged"
	StageDelivered  Stage = "delivered"
	StageRejected   Stage = "rejected"
	StageFailed     Stage = "failed"
)

const (
	CodeUnknownOperation     = "UNKNOWN_OPERATION"
	CodeInvalidInput         = "INVALID_INPUT"
	CodeTransformationFailed = "TRANSFORMATION_FAILED"
)

// one upload asking for one operation
type Request struct {
	CallerID      string
	Tier          config.Tier
	Operation     string
	Filename      string
	Size          int64
	Body          io.Reader
	Params        map[string]string
	SourceAddress string
	UserAgent     string
	// receives process output for streaming operations; may be nil
	OnLine func(invoker.Line)
}

// a finished run. exactly one of File and Artifact is set
type Result struct {
	Stage     Stage
	Operation invoker.Operation
	Decision  admission.Decision
	File      *DirectFile
	Artifact  *artifact.Artifact
}

// a single output returned in the response body.
// Close removes the workspace that holds it
type DirectFile struct {
	Path         string
	DownloadName string
	Size         int64
	outcome      *invoker.Outcome
}

func (f *DirectFile) Open() (*os.File, error) {
	return os.Open(f.Path)
}

func (f *DirectFile) Close() error {
	return f.outcome.Cleanup()
}

// why a run stopped early. Decision is set for rejections
type Error struct {
	Stage    Stage
	Code     string
	Message  string
	Decision *admission.Decision
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Code, e.Stage, e.Err)
	}

	return fmt.Sprintf("%s (%s): %s", e.Code, e.Stage, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Admitter interface {
	Admit(ctx context.Context, callerID string, tier config.Tier, inputBytes int64, feature string) admission.Decision
}

type Recorder interface {
	Record(ctx context.Context, entry ledger.Entry)
}

type Runner interface {
	Invoke(ctx context.Context, op invoker.Operation, input invoker.Input, params map[string]string, onLine func(invoker.Line)) (*invoker.Outcome, error)
}

type Packager interface {
	Package(ctx context.Context, files []string, opts artifact.PackageOptions) (*artifact.Artifact, error)
}

type Operations interface {
	Get(name string) (invoker.Operation, bool)
}
