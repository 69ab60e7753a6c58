//go:build !windows

package supervise

import (
	"fmt"
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in its own process group so signals reach
// every process it spawns, not just the direct child.
func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// signalTerm sends SIGTERM to the child's process group.
func signalTerm(cmd *exec.Cmd) error {
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("send SIGTERM to process group: %w", err)
	}
	return nil
}

// signalKill sends SIGKILL to the child's process group.
func signalKill(cmd *exec.Cmd) error {
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("kill process group: %w", err)
	}
	return nil
}
