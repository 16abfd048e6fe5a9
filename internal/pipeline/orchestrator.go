package pipeline

import (
	"context"
	"errors"
	"os"
	"strings"

	"codeberg.org/docforge/server/internal/admission"
	"codeberg.org/docforge/server/internal/artifact"
	"codeberg.org/docforge/server/internal/invoker"
	"codeberg.org/docforge/server/internal/ledger"
	"codeberg.org/docforge/server/internal/logger"
)

// drives one request through admission, transformation, packaging and accounting
type Orchestrator struct {
	operations Operations
	admitter   Admitter
	recorder   Recorder
	runner     Runner
	packager   Packager
}

func NewOrchestrator(operations Operations, admitter Admitter, recorder Recorder, runner Runner, packager Packager) *Orchestrator {
	return &Orchestrator{
		operations: operations,
		admitter:   admitter,
		recorder:   recorder,
		runner:     runner,
		packager:   packager,
	}
}

// runs the request to completion. the ledger is written exactly once for
// every admitted request and never for rejected or malformed ones
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	op, ok := o.operations.Get(req.Operation)
	if !ok {
		return nil, &Error{Stage: StageReceived, Code: CodeUnknownOperation, Message: "unknown operation " + req.Operation}
	}

	params, err := validate(op, req)
	if err != nil {
		return nil, &Error{Stage: StageReceived, Code: CodeInvalidInput, Message: err.Error(), Err: err}
	}

	decision := o.admitter.Admit(ctx, req.CallerID, req.Tier, req.Size, op.Feature)
	if !decision.Allowed {
		return nil, &Error{Stage: StageRejected, Code: string(decision.Reason), Decision: &decision}
	}

	log := logger.FromContext(ctx).With("operation", op.Name)

	success := false
	defer func() {
		o.recorder.Record(ctx, ledger.Entry{
			CallerID:      req.CallerID,
			OperationType: op.Name,
			InputBytes:    req.Size,
			Success:       success,
			SourceAddress: req.SourceAddress,
			UserAgent:     req.UserAgent,
		})
	}()

	outcome, err := o.runner.Invoke(ctx, op, invoker.Input{Filename: req.Filename, Body: req.Body}, params, req.OnLine)
	if err != nil {
		var inputErr *invoker.InputError
		if errors.As(err, &inputErr) {
			return nil, &Error{Stage: StageFailed, Code: CodeInvalidInput, Message: inputErr.Error(), Err: err, Decision: &decision}
		}

		return nil, failed(&decision, err)
	}

	if outcome.Err != nil {
		return nil, failed(&decision, outcome.Err)
	}

	result := &Result{Operation: op, Decision: decision}

	switch op.Delivery {
	case invoker.DeliveryDirect:
		file, err := directFile(op, outcome)
		if err != nil {
			outcome.Cleanup() //nolint:errcheck,gosec // best-effort cleanup
			return nil, failed(&decision, err)
		}

		result.File = file
	default:
		a, err := o.packager.Package(ctx, outcome.Files, artifact.PackageOptions{
			DownloadName: op.Output.DownloadName,
			Owner:        req.CallerID,
			Sources:      []string{outcome.Workspace},
		})
		if err != nil {
			if cleanupErr := outcome.Cleanup(); cleanupErr != nil {
				log.Warn("failed to remove workspace", "error", cleanupErr)
			}

			return nil, failed(&decision, err)
		}

		result.Artifact = a
	}

	result.Stage = StagePackaged
	success = true

	log.Info("operation completed",
		"delivery", op.Delivery,
		"input_bytes", req.Size,
		"files", len(outcome.Files),
	)

	return result, nil
}

// the cause stays on Err for the handler to log; clients only see the code
func failed(decision *admission.Decision, err error) *Error {
	return &Error{Stage: StageFailed, Code: CodeTransformationFailed, Err: err, Decision: decision}
}

func directFile(op invoker.Operation, outcome *invoker.Outcome) (*DirectFile, error) {
	if len(outcome.Files) == 0 {
		return nil, artifact.ErrEmptyResult
	}

	info, err := os.Stat(outcome.Files[0])
	if err != nil {
		return nil, err
	}

	name := op.Output.DownloadName
	if name == "" {
		name = info.Name()
	}

	return &DirectFile{
		Path:         outcome.Files[0],
		DownloadName: name,
		Size:         info.Size(),
		outcome:      outcome,
	}, nil
}

func validate(op invoker.Operation, req Request) (map[string]string, error) {
	if req.Body == nil || strings.TrimSpace(req.Filename) == "" {
		return nil, &invoker.InputError{Field: "file", Message: "is required"}
	}

	if req.Size <= 0 {
		return nil, &invoker.InputError{Field: "file", Message: "is empty"}
	}

	if !op.AcceptsFile(req.Filename) {
		return nil, &invoker.InputError{Field: "file", Message: "must be one of " + strings.Join(op.Extensions, ", ")}
	}

	return op.ResolveParams(req.Params)
}
