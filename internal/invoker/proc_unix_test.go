//go:build unix

package invoker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reports whether pid is still running. zombies count as gone
func alive(pid int) bool {
	if err := syscall.Kill(pid, 0); errors.Is(err, syscall.ESRCH) {
		return false
	}

	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return !os.IsNotExist(err)
	}

	fields := strings.Fields(string(stat))
	return len(fields) < 3 || fields[2] != "Z"
}

func TestInvoke_TimeoutKillsHelperProcesses(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "helper.pid")

	inv := newInvoker(t)
	op := Operation{
		Name:     "spawner",
		Binary:   fakeBinary(t, fmt.Sprintf("sleep 31 &\necho $! > %q\nwait", pidFile)),
		Mode:     ModeSync,
		Delivery: DeliveryStaged,
		Timeout:  300 * time.Millisecond,
	}

	outcome, err := inv.Invoke(context.Background(), op, Input{Filename: "a.pdf", Body: strings.NewReader("x")}, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, outcome.Err)
	assert.Equal(t, KindTimeout, outcome.Err.Kind)

	raw, err := os.ReadFile(pidFile)
	require.NoError(t, err)

	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return !alive(pid) }, 2*time.Second, 20*time.Millisecond,
		"helper process %d survived the timeout", pid)

	if alive(pid) {
		syscall.Kill(pid, syscall.SIGKILL) //nolint:errcheck,gosec // test cleanup
	}
}
