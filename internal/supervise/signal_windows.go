//go:build windows

package supervise

import (
	"fmt"
	"os/exec"
)

// setProcessGroup is a no-op on Windows; there are no Unix process groups.
func setProcessGroup(cmd *exec.Cmd) {}

// signalTerm has no graceful equivalent on Windows; kill outright.
func signalTerm(cmd *exec.Cmd) error {
	return signalKill(cmd)
}

func signalKill(cmd *exec.Cmd) error {
	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill process: %w", err)
	}
	return nil
}
