package invoker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"

	"codeberg.org/docforge/server/internal/logger"
	"codeberg.org/docforge/server/internal/metrics"
)

const (
	DefaultTimeout = 5 * time.Minute

	// how long Wait may block on inherited pipes after the process is killed
	waitDelay = 2 * time.Second

	inputDirName  = "in"
	outputDirName = "out"
)

// runs catalog operations as separate processes inside per-request workspaces
type Invoker struct {
	workDir        string
	scriptsDir     string
	defaultTimeout time.Duration
}

func New(workDir, scriptsDir string, defaultTimeout time.Duration) (*Invoker, error) {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}

	absWork, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve work dir: %w", err)
	}

	if err := os.MkdirAll(absWork, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}

	absScripts := scriptsDir
	if scriptsDir != "" {
		if absScripts, err = filepath.Abs(scriptsDir); err != nil {
			return nil, fmt.Errorf("failed to resolve scripts dir: %w", err)
		}
	}

	return &Invoker{
		workDir:        absWork,
		scriptsDir:     absScripts,
		defaultTimeout: defaultTimeout,
	}, nil
}

func (inv *Invoker) WorkDir() string {
	return inv.workDir
}

// runs op against input. params must already be resolved with ResolveParams.
// a nil error with a non-nil Outcome.Err means the process ran and failed;
// a non-nil error means the workspace could not be prepared.
// the input file is removed on every path, the whole workspace on failure
func (inv *Invoker) Invoke(ctx context.Context, op Operation, input Input, params map[string]string, onLine func(Line)) (*Outcome, error) {
	workspace := filepath.Join(inv.workDir, uuid.NewString())
	inDir := filepath.Join(workspace, inputDirName)
	outDir := filepath.Join(workspace, outputDirName)

	for _, dir := range []string{inDir, outDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			os.RemoveAll(workspace) //nolint:errcheck,gosec // best-effort cleanup
			return nil, fmt.Errorf("failed to create workspace: %w", err)
		}
	}

	inputPath := filepath.Join(inDir, "input"+extension(input.Filename))
	defer os.Remove(inputPath) //nolint:errcheck // may already be gone

	if err := writeInput(inputPath, input.Body); err != nil {
		os.RemoveAll(workspace) //nolint:errcheck,gosec // best-effort cleanup
		return nil, err
	}

	outcome := inv.run(ctx, op, placeholders{
		input:   inputPath,
		output:  filepath.Join(outDir, placeholders{params: params}.expand(op.Output.File)),
		outdir:  outDir,
		scripts: inv.scriptsDir,
		params:  params,
	}, onLine)
	outcome.Workspace = workspace

	if outcome.Err == nil {
		files, err := collectOutputs(op, outDir, params)
		if err != nil {
			outcome.Err = &Failure{Kind: KindNoOutputProduced, Detail: err.Error()}
		} else if len(files) == 0 && op.Output.Declared() {
			outcome.Err = &Failure{Kind: KindNoOutputProduced, Detail: "exit status 0 but no expected output"}
		}

		outcome.Files = files
	}

	result := "success"
	if outcome.Err != nil {
		result = string(outcome.Err.Kind)

		logger.Warn("transformation failed",
			"operation", op.Name,
			"kind", outcome.Err.Kind,
			"exit_status", outcome.ExitStatus,
			"detail", outcome.Err.Detail,
			"params", op.LoggableParams(params),
		)

		if err := outcome.Cleanup(); err != nil {
			logger.WarnErr(err, "failed to remove workspace", "workspace", workspace)
		}

		outcome.Files = nil
		outcome.Workspace = ""
	}

	metrics.Invocations.WithLabelValues(op.Name, result).Inc()
	metrics.InvocationDuration.WithLabelValues(op.Name).Observe(outcome.Duration.Seconds())

	return outcome, nil
}

func (inv *Invoker) run(ctx context.Context, op Operation, ph placeholders, onLine func(Line)) *Outcome {
	timeout := op.Timeout
	if timeout <= 0 {
		timeout = inv.defaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, ph.expand(op.Binary), ph.argv(op.Args)...) //nolint:gosec // G204: binary and args come from the operation catalog
	cmd.Dir = ph.outdir
	cmd.WaitDelay = waitDelay
	killProcessGroup(cmd)

	col := &collector{}
	if op.Mode == ModeStreaming {
		col.onLine = onLine
	}

	stdout, stderr := col.writer("stdout"), col.writer("stderr")
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	started := time.Now()
	err := cmd.Run()
	stdout.flush()
	stderr.flush()

	outcome := &Outcome{
		Operation: op.Name,
		Duration:  time.Since(started),
	}

	if cmd.ProcessState != nil {
		outcome.ExitStatus = cmd.ProcessState.ExitCode()
	} else {
		outcome.ExitStatus = -1
	}

	switch {
	case err == nil:
		return outcome
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		outcome.Err = &Failure{Kind: KindTimeout, Detail: fmt.Sprintf("killed after %s", timeout)}
	case ctx.Err() != nil:
		outcome.Err = &Failure{Kind: KindCanceled, Detail: ctx.Err().Error()}
	default:
		detail := col.stderrTail()
		if detail == "" {
			detail = err.Error()
		}

		outcome.Err = &Failure{Kind: KindNonzeroExit, Detail: detail}
	}

	return outcome
}

func writeInput(path string, body io.Reader) error {
	if body == nil {
		return &InputError{Field: "file", Message: "is required"}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600) //nolint:gosec // G304: path is inside a fresh workspace
	if err != nil {
		return fmt.Errorf("failed to create input file: %w", err)
	}

	if _, err := io.Copy(f, body); err != nil {
		f.Close() //nolint:errcheck,gosec // already failing
		return fmt.Errorf("failed to write input file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write input file: %w", err)
	}

	return nil
}

// lists the files the operation produced, in name order
func collectOutputs(op Operation, outDir string, params map[string]string) ([]string, error) {
	ph := placeholders{outdir: outDir, params: params}

	var files []string

	switch {
	case op.Output.File != "":
		path := filepath.Join(outDir, ph.expand(op.Output.File))
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			files = append(files, path)
		}
	case op.Output.Pattern != "":
		matches, err := filepath.Glob(filepath.Join(outDir, ph.expand(op.Output.Pattern)))
		if err != nil {
			return nil, fmt.Errorf("bad output pattern: %w", err)
		}

		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
				files = append(files, m)
			}
		}
	default:
		entries, err := os.ReadDir(outDir)
		if err != nil {
			return nil, fmt.Errorf("failed to read output dir: %w", err)
		}

		for _, e := range entries {
			if e.Type().IsRegular() {
				files = append(files, filepath.Join(outDir, e.Name()))
			}
		}
	}

	slices.Sort(files)

	return files, nil
}

// removes workspaces older than maxAge left behind by crashed requests
func (inv *Invoker) RemoveStale(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(inv.workDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read work dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		if _, err := uuid.Parse(e.Name()); err != nil {
			continue
		}

		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		if err := os.RemoveAll(filepath.Join(inv.workDir, e.Name())); err != nil {
			logger.WarnErr(err, "failed to remove stale workspace", "workspace", e.Name())
			continue
		}

		removed++
	}

	return removed, nil
}
