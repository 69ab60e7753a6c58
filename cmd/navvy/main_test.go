package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

// writeTestConfig lays down a minimal config whose state, workspaces, and
// lock all live under a temp dir.
func writeTestConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	body := `service:
  lock_path: ` + filepath.Join(dir, "navvy.lock") + `
state:
  path: ` + filepath.Join(dir, "navvy.db") + `
sessions:
  dir: ` + filepath.Join(dir, "workspaces") + `
`
	path := filepath.Join(dir, "navvy.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRunCLINoArgs(t *testing.T) {
	code, _, _ := captureOutputWithExitCode(t, func() int {
		return runCLI(nil)
	})
	if code != 1 {
		t.Errorf("runCLI() with no args = %d, want 1", code)
	}
}

func TestRunCLIUnknownCommand(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"bogus"})
	})
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Unknown command: bogus") {
		t.Errorf("stderr = %q, want unknown-command message", stderr)
	}
}

func TestRunCLIHelp(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"help"})
	})
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	for _, want := range []string{"system start", "session delete", "job trigger"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("usage output missing %q", want)
		}
	}
}

func TestRunVersion(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"version"})
	})
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if !strings.Contains(stdout, "navvy "+version) {
		t.Errorf("stdout = %q, want version line", stdout)
	}
}

func TestSystemStatusFreshState(t *testing.T) {
	cfg := writeTestConfig(t)
	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runSystemStatus([]string{"--config", cfg})
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	if !strings.Contains(stdout, "queue depth: 0") {
		t.Errorf("stdout = %q, want zero queue depth", stdout)
	}
	if !strings.Contains(stdout, "0 / 20") {
		t.Errorf("stdout = %q, want zero of default cap", stdout)
	}
}

func TestSessionStatsFreshState(t *testing.T) {
	cfg := writeTestConfig(t)
	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runSessionStats([]string{"--config", cfg})
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	if !strings.Contains(stdout, "soft cap:  20") {
		t.Errorf("stdout = %q, want default soft cap", stdout)
	}
	if !strings.Contains(stdout, "available: 20") {
		t.Errorf("stdout = %q, want full availability", stdout)
	}
}

func TestSessionListFreshState(t *testing.T) {
	cfg := writeTestConfig(t)
	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runSessionList([]string{"--config", cfg})
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	if !strings.Contains(stdout, "KEY") {
		t.Errorf("stdout = %q, want table header", stdout)
	}
}

func TestSessionDeleteRequiresKey(t *testing.T) {
	cfg := writeTestConfig(t)
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runSessionDelete([]string{"--config", cfg})
	})
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "--key") {
		t.Errorf("stderr = %q, want usage hint", stderr)
	}
}

func TestSessionDeleteAbsentKeyIsNoOp(t *testing.T) {
	cfg := writeTestConfig(t)
	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runSessionDelete([]string{"--config", cfg, "--key", "acme/widgets#7"})
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	if !strings.Contains(stdout, "deleted acme/widgets#7") {
		t.Errorf("stdout = %q, want deletion confirmation", stdout)
	}
}

func TestJobTriggerAndShow(t *testing.T) {
	cfg := writeTestConfig(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runJobTrigger([]string{
			"--config", cfg,
			"--kind", "github",
			"--repo", "acme/widgets",
			"--number", "7",
			"--body", "please fix the flaky test",
		})
	})
	if code != 0 {
		t.Fatalf("trigger exit code = %d, stderr = %q", code, stderr)
	}
	if !strings.Contains(stdout, "acme/widgets#7") {
		t.Fatalf("trigger stdout = %q, want ticket key", stdout)
	}

	// "enqueued <id> for <key>"
	fields := strings.Fields(stdout)
	if len(fields) < 2 {
		t.Fatalf("trigger stdout = %q, cannot find job id", stdout)
	}
	jobID := fields[1]

	code, stdout, stderr = captureOutputWithExitCode(t, func() int {
		return runJobShow([]string{"--config", cfg, jobID})
	})
	if code != 0 {
		t.Fatalf("show exit code = %d, stderr = %q", code, stderr)
	}
	if !strings.Contains(stdout, jobID) {
		t.Errorf("show stdout = %q, want job id %q", stdout, jobID)
	}
	if !strings.Contains(stdout, `"queued"`) {
		t.Errorf("show stdout = %q, want queued status", stdout)
	}
}

func TestJobTriggerRejectsInvalidTicket(t *testing.T) {
	cfg := writeTestConfig(t)
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runJobTrigger([]string{"--config", cfg, "--kind", "github", "--repo", "acme/widgets"})
	})
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Invalid ticket") {
		t.Errorf("stderr = %q, want validation error", stderr)
	}
}

func TestJobShowNotFound(t *testing.T) {
	cfg := writeTestConfig(t)
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runJobShow([]string{"--config", cfg, "no-such-job"})
	})
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Failed to get job") {
		t.Errorf("stderr = %q, want lookup failure", stderr)
	}
}
