package invoker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

type Mode string

const (
	// run to completion, output only inspected at exit
	ModeSync Mode = "sync"
	// stdout/stderr lines are observed while the process runs
	ModeStreaming Mode = "streaming"
)

type Delivery string

const (
	// the single output file is returned in the response
	DeliveryDirect Delivery = "direct"
	// outputs are packaged into an artifact and fetched later by id
	DeliveryStaged Delivery = "staged"
)

// a caller-supplied value substituted into the argument vector
type Param struct {
	Name     string   `yaml:"name" json:"name"`
	Required bool     `yaml:"required" json:"required"`
	Default  string   `yaml:"default" json:"default,omitempty"`
	Allowed  []string `yaml:"allowed" json:"allowed,omitempty"`
	MaxLen   int      `yaml:"max_len" json:"max_len,omitempty"`
	// never logged or echoed back
	Secret bool `yaml:"secret" json:"secret,omitempty"`
}

// what a successful run must leave in the output directory.
// File names a single expected file, Pattern a glob; both may use placeholders
type OutputSpec struct {
	File         string `yaml:"file" json:"file,omitempty"`
	Pattern      string `yaml:"pattern" json:"pattern,omitempty"`
	DownloadName string `yaml:"download_name" json:"download_name,omitempty"`
}

func (o OutputSpec) Declared() bool {
	return o.File != "" || o.Pattern != ""
}

// a named external transformation
type Operation struct {
	Name        string        `yaml:"name" json:"name"`
	Description string        `yaml:"description" json:"description,omitempty"`
	Feature     string        `yaml:"feature" json:"feature"`
	Binary      string        `yaml:"binary" json:"-"`
	Args        []string      `yaml:"args" json:"-"`
	Params      []Param       `yaml:"params" json:"params,omitempty"`
	Output      OutputSpec    `yaml:"output" json:"output"`
	Mode        Mode          `yaml:"mode" json:"mode"`
	Delivery    Delivery      `yaml:"delivery" json:"delivery"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout,omitempty"`
	Extensions  []string      `yaml:"extensions" json:"extensions,omitempty"`
}

// the uploaded file handed to an operation
type Input struct {
	Filename string
	Body     io.Reader
}

// one line of process output
type Line struct {
	Stream string `json:"stream"` // "stdout" or "stderr"
	Text   string `json:"text"`
}

type FailureKind string

const (
	KindNonzeroExit      FailureKind = "NONZERO_EXIT"
	KindNoOutputProduced FailureKind = "NO_OUTPUT_PRODUCED"
	KindTimeout          FailureKind = "TIMEOUT"
	KindCanceled         FailureKind = "CANCELED"
)

// why an invocation did not succeed. Detail is for logs only
type Failure struct {
	Kind   FailureKind
	Detail string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

// matches any *Failure of the same kind
func (f *Failure) Is(target error) bool {
	var other *Failure
	if errors.As(target, &other) {
		return other.Kind == f.Kind
	}

	return false
}

var (
	ErrTimeout          = &Failure{Kind: KindTimeout}
	ErrNonzeroExit      = &Failure{Kind: KindNonzeroExit}
	ErrNoOutputProduced = &Failure{Kind: KindNoOutputProduced}
	ErrCanceled         = &Failure{Kind: KindCanceled}
)

// invalid or missing parameter or input
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return e.Message
	}

	return e.Field + ": " + e.Message
}

// result of one invocation. on success the workspace still holds Files
// and the caller owns cleanup through Cleanup
type Outcome struct {
	Operation  string
	ExitStatus int
	Files      []string
	Workspace  string
	Duration   time.Duration
	Err        *Failure
}

func (o *Outcome) Succeeded() bool {
	return o.Err == nil
}

// removes the request workspace and everything in it
func (o *Outcome) Cleanup() error {
	if o == nil || o.Workspace == "" {
		return nil
	}

	return os.RemoveAll(o.Workspace)
}
