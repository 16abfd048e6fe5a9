package invoker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writes an executable shell script and returns its path
func fakeBinary(t *testing.T, body string) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake binaries are shell scripts")
	}

	path := filepath.Join(t.TempDir(), "fake.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o700)) //nolint:gosec // test binary must be executable

	return path
}

func newInvoker(t *testing.T) *Invoker {
	t.Helper()

	inv, err := New(t.TempDir(), "", time.Minute)
	require.NoError(t, err)

	return inv
}

func workspaces(t *testing.T, inv *Invoker) []os.DirEntry {
	t.Helper()

	entries, err := os.ReadDir(inv.WorkDir())
	require.NoError(t, err)

	return entries
}

func TestInvoke_SyncSuccess(t *testing.T) {
	inv := newInvoker(t)
	op := Operation{
		Name:     "copy",
		Binary:   fakeBinary(t, `cp "$1" "$2"`),
		Args:     []string{"{input}", "{output}"},
		Output:   OutputSpec{File: "result.pdf"},
		Mode:     ModeSync,
		Delivery: DeliveryDirect,
	}

	outcome, err := inv.Invoke(context.Background(), op, Input{Filename: "doc.pdf", Body: strings.NewReader("%PDF-1.7")}, nil, nil)
	require.NoError(t, err)
	require.True(t, outcome.Succeeded(), "failure: %v", outcome.Err)

	assert.Equal(t, 0, outcome.ExitStatus)
	require.Len(t, outcome.Files, 1)
	assert.Equal(t, "result.pdf", filepath.Base(outcome.Files[0]))

	content, err := os.ReadFile(outcome.Files[0])
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(content))

	_, err = os.Stat(filepath.Join(outcome.Workspace, inputDirName, "input.pdf"))
	assert.True(t, os.IsNotExist(err), "input must be removed after the run")

	require.NoError(t, outcome.Cleanup())
	assert.Empty(t, workspaces(t, inv))
}

func TestInvoke_NonzeroExit(t *testing.T) {
	inv := newInvoker(t)
	op := Operation{
		Name:     "broken",
		Binary:   fakeBinary(t, "echo 'invalid password' >&2\nexit 3"),
		Output:   OutputSpec{File: "out.pdf"},
		Mode:     ModeSync,
		Delivery: DeliveryDirect,
	}

	outcome, err := inv.Invoke(context.Background(), op, Input{Filename: "a.pdf", Body: strings.NewReader("x")}, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, outcome.Err)

	assert.Equal(t, KindNonzeroExit, outcome.Err.Kind)
	assert.True(t, errors.Is(outcome.Err, ErrNonzeroExit))
	assert.Equal(t, 3, outcome.ExitStatus)
	assert.Contains(t, outcome.Err.Detail, "invalid password")
	assert.Empty(t, workspaces(t, inv), "workspace removed on failure")
}

func TestInvoke_NoOutputProduced(t *testing.T) {
	inv := newInvoker(t)
	op := Operation{
		Name:     "silent",
		Binary:   fakeBinary(t, "exit 0"),
		Output:   OutputSpec{Pattern: "*.png"},
		Mode:     ModeStreaming,
		Delivery: DeliveryStaged,
	}

	outcome, err := inv.Invoke(context.Background(), op, Input{Filename: "a.pdf", Body: strings.NewReader("x")}, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, outcome.Err)

	assert.Equal(t, KindNoOutputProduced, outcome.Err.Kind)
	assert.Equal(t, 0, outcome.ExitStatus)
	assert.Empty(t, workspaces(t, inv))
}

func TestInvoke_UndeclaredOutputAcceptsEmpty(t *testing.T) {
	inv := newInvoker(t)
	op := Operation{
		Name:     "noop",
		Binary:   fakeBinary(t, "exit 0"),
		Mode:     ModeSync,
		Delivery: DeliveryStaged,
	}

	outcome, err := inv.Invoke(context.Background(), op, Input{Filename: "a.pdf", Body: strings.NewReader("x")}, nil, nil)
	require.NoError(t, err)

	assert.True(t, outcome.Succeeded())
	assert.Empty(t, outcome.Files)
	require.NoError(t, outcome.Cleanup())
}

func TestInvoke_Timeout(t *testing.T) {
	inv := newInvoker(t)
	op := Operation{
		Name:     "slow",
		Binary:   fakeBinary(t, "exec sleep 5"),
		Output:   OutputSpec{File: "out.pdf"},
		Mode:     ModeSync,
		Delivery: DeliveryDirect,
		Timeout:  200 * time.Millisecond,
	}

	started := time.Now()
	outcome, err := inv.Invoke(context.Background(), op, Input{Filename: "a.pdf", Body: strings.NewReader("x")}, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, outcome.Err)

	assert.Equal(t, KindTimeout, outcome.Err.Kind)
	assert.True(t, errors.Is(outcome.Err, ErrTimeout))
	assert.Less(t, time.Since(started), 4*time.Second)
	assert.Empty(t, workspaces(t, inv), "scratch removed after timeout")
}

func TestInvoke_CallerCancel(t *testing.T) {
	inv := newInvoker(t)
	op := Operation{
		Name:     "slow",
		Binary:   fakeBinary(t, "exec sleep 5"),
		Mode:     ModeSync,
		Delivery: DeliveryStaged,
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	outcome, err := inv.Invoke(ctx, op, Input{Filename: "a.pdf", Body: strings.NewReader("x")}, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, outcome.Err)
	assert.Equal(t, KindCanceled, outcome.Err.Kind)
	assert.Empty(t, workspaces(t, inv))
}

func TestInvoke_StreamingObservesLines(t *testing.T) {
	inv := newInvoker(t)
	op := Operation{
		Name:     "extract",
		Binary:   fakeBinary(t, "echo 'page 1'\necho 'warning: low res' >&2\nprintf 'page 2'\ntouch \"$2/img-000.png\" \"$2/img-001.png\" \"$2/notes.txt\""),
		Args:     []string{"{input}", "{outdir}"},
		Output:   OutputSpec{Pattern: "*.png"},
		Mode:     ModeStreaming,
		Delivery: DeliveryStaged,
	}

	var mu sync.Mutex
	var lines []Line

	outcome, err := inv.Invoke(context.Background(), op, Input{Filename: "a.pdf", Body: strings.NewReader("x")}, nil, func(l Line) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, l)
	})
	require.NoError(t, err)
	require.True(t, outcome.Succeeded(), "failure: %v", outcome.Err)
	t.Cleanup(func() { outcome.Cleanup() }) //nolint:errcheck,gosec // test cleanup

	require.Len(t, outcome.Files, 2)
	assert.Equal(t, "img-000.png", filepath.Base(outcome.Files[0]))
	assert.Equal(t, "img-001.png", filepath.Base(outcome.Files[1]))

	assert.Contains(t, lines, Line{Stream: "stdout", Text: "page 1"})
	assert.Contains(t, lines, Line{Stream: "stdout", Text: "page 2"})
	assert.Contains(t, lines, Line{Stream: "stderr", Text: "warning: low res"})
}

func TestInvoke_SyncModeDoesNotStream(t *testing.T) {
	inv := newInvoker(t)
	op := Operation{
		Name:     "quiet",
		Binary:   fakeBinary(t, "echo hello"),
		Mode:     ModeSync,
		Delivery: DeliveryStaged,
	}

	called := false
	outcome, err := inv.Invoke(context.Background(), op, Input{Filename: "a.pdf", Body: strings.NewReader("x")}, nil, func(Line) { called = true })
	require.NoError(t, err)
	require.NoError(t, outcome.Cleanup())

	assert.False(t, called)
}

func TestInvoke_ParamsStayOneArgument(t *testing.T) {
	inv := newInvoker(t)
	hostile := `secret"; rm -rf / ; echo "$(whoami)`
	op := Operation{
		Name:     "echo-arg",
		Binary:   fakeBinary(t, `printf '%s|%s' "$#" "$1" > "$2"`),
		Args:     []string{"{param:password}", "{output}"},
		Params:   []Param{{Name: "password", Required: true, Secret: true}},
		Output:   OutputSpec{File: "out.txt"},
		Mode:     ModeSync,
		Delivery: DeliveryDirect,
	}

	outcome, err := inv.Invoke(context.Background(), op, Input{Filename: "a.pdf", Body: strings.NewReader("x")}, map[string]string{"password": hostile}, nil)
	require.NoError(t, err)
	require.True(t, outcome.Succeeded(), "failure: %v", outcome.Err)
	t.Cleanup(func() { outcome.Cleanup() }) //nolint:errcheck,gosec // test cleanup

	content, err := os.ReadFile(outcome.Files[0])
	require.NoError(t, err)
	assert.Equal(t, "2|"+hostile, string(content))
}

func TestInvoke_MissingBinary(t *testing.T) {
	inv := newInvoker(t)
	op := Operation{
		Name:     "ghost",
		Binary:   filepath.Join(t.TempDir(), "does-not-exist"),
		Mode:     ModeSync,
		Delivery: DeliveryStaged,
	}

	outcome, err := inv.Invoke(context.Background(), op, Input{Filename: "a.pdf", Body: strings.NewReader("x")}, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, outcome.Err)
	assert.Equal(t, KindNonzeroExit, outcome.Err.Kind)
	assert.Empty(t, workspaces(t, inv))
}

func TestInvoke_NilBodyIsInputError(t *testing.T) {
	inv := newInvoker(t)

	_, err := inv.Invoke(context.Background(), Operation{Name: "x", Binary: "true", Mode: ModeSync}, Input{Filename: "a.pdf"}, nil, nil)

	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Empty(t, workspaces(t, inv))
}

func TestRemoveStale(t *testing.T) {
	inv := newInvoker(t)

	stale := filepath.Join(inv.WorkDir(), "0b6f1c52-6a57-4e4d-9d4a-1f1d2b8a7c11")
	fresh := filepath.Join(inv.WorkDir(), "6c1d2e3f-0a1b-4c5d-8e9f-a0b1c2d3e4f5")
	other := filepath.Join(inv.WorkDir(), "keep-me")

	for _, dir := range []string{stale, fresh, other} {
		require.NoError(t, os.MkdirAll(dir, 0o700))
	}

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(other, old, old))

	removed, err := inv.RemoveStale(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoDirExists(t, stale)
	assert.DirExists(t, fresh)
	assert.DirExists(t, other)
}
