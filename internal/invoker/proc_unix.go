//go:build unix

package invoker

import (
	"os/exec"
	"syscall"
)

// runs the tool in its own process group so a timeout kills every helper it started
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
