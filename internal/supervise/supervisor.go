package supervise

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/navvy-dev/navvy/internal/log"
)

// maxOutputBytes caps the combined output retained in the Result.
const maxOutputBytes = 256 * 1024

// Spec describes one supervised invocation.
type Spec struct {
	Command string
	Args    []string
	Dir     string

	// Env is the complete environment for the child. Secrets travel here,
	// never in Args.
	Env []string

	Timeout time.Duration
	Grace   time.Duration

	// Output, when set, receives combined output as it is produced.
	Output io.Writer
}

// Result is the settled outcome of an invocation.
type Result struct {
	Success  bool
	Output   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// procState tracks where the termination sequence is.
type procState int

const (
	stateRunning procState = iota
	stateTerminateRequested
	stateKillRequested
	stateExited
)

func (s procState) String() string {
	switch s {
	case stateRunning:
		return "running"
	case stateTerminateRequested:
		return "terminate_requested"
	case stateKillRequested:
		return "kill_requested"
	case stateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Supervisor spawns and supervises assistant CLI invocations.
type Supervisor struct {
	logger *slog.Logger
}

// New creates a Supervisor.
func New() *Supervisor {
	return &Supervisor{logger: log.WithComponent("supervise")}
}

// Invoke runs the process described by spec and blocks until it settles.
// The returned error, when non-nil, is one of *SpawnError, *ExitError, or
// *TimeoutError; Result carries the captured output either way.
func (s *Supervisor) Invoke(spec Spec) (Result, error) {
	if spec.Command == "" {
		return Result{}, &SpawnError{Err: fmt.Errorf("command is empty")}
	}
	if spec.Timeout <= 0 {
		return Result{}, &SpawnError{Err: fmt.Errorf("timeout must be positive, got %v", spec.Timeout)}
	}
	if spec.Grace <= 0 {
		return Result{}, &SpawnError{Err: fmt.Errorf("grace must be positive, got %v", spec.Grace)}
	}

	out := &cappedTeeWriter{tee: spec.Output, limit: maxOutputBytes}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	// Same writer value for both streams: os/exec serializes the writes.
	cmd.Stdout = out
	cmd.Stderr = out

	// The child gets its own process group so termination reaches everything
	// it spawned, and Wait is bounded so a grandchild that inherited our
	// output pipes cannot hold settlement open after the child exits.
	setProcessGroup(cmd)
	cmd.WaitDelay = spec.Grace

	s.logger.Debug("spawning process", "command", spec.Command, "dir", spec.Dir, "timeout", spec.Timeout)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, &SpawnError{Err: err}
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	state := stateRunning
	timeout := time.NewTimer(spec.Timeout)
	defer timeout.Stop()

	// The grace timer exists only between TerminateRequested and
	// KillRequested; a nil channel never fires in the select.
	var grace *time.Timer
	var graceCh <-chan time.Time
	defer func() {
		if grace != nil {
			grace.Stop()
		}
	}()

	for {
		select {
		case waitErr := <-waitCh:
			requested := state == stateTerminateRequested || state == stateKillRequested
			state = stateExited

			if errors.Is(waitErr, exec.ErrWaitDelay) {
				// The child exited zero but something it spawned still holds
				// its output pipe. The child's own status is the outcome.
				waitErr = nil
			}

			res := Result{
				Output:   out.String(),
				Duration: time.Since(start),
			}

			// Termination we requested settles as a timeout only when it is
			// what ended the process. A clean exit that raced the timer, or
			// one Wait reported late because of a lingering pipe holder, is
			// still a success.
			if requested && waitErr != nil {
				res.TimedOut = true
				s.logger.Warn("process killed after timeout", "duration", res.Duration)
				return res, &TimeoutError{Timeout: spec.Timeout, Grace: spec.Grace}
			}
			if waitErr != nil {
				if exitErr, ok := waitErr.(*exec.ExitError); ok {
					res.ExitCode = exitErr.ExitCode()
					s.logger.Warn("process exited non-zero", "exit_code", res.ExitCode, "duration", res.Duration)
					return res, &ExitError{Code: res.ExitCode}
				}
				return res, &SpawnError{Err: waitErr}
			}

			res.Success = true
			s.logger.Debug("process exited cleanly", "duration", res.Duration)
			return res, nil

		case <-timeout.C:
			if state != stateRunning {
				continue
			}
			state = stateTerminateRequested
			s.logger.Warn("timeout exceeded, sending SIGTERM", "timeout", spec.Timeout)
			if err := signalTerm(cmd); err != nil {
				s.logger.Error("failed to send SIGTERM", "error", err)
			}
			grace = time.NewTimer(spec.Grace)
			graceCh = grace.C

		case <-graceCh:
			if state != stateTerminateRequested {
				continue
			}
			state = stateKillRequested
			graceCh = nil
			s.logger.Warn("grace period expired, sending SIGKILL", "grace", spec.Grace)
			if err := signalKill(cmd); err != nil {
				s.logger.Error("failed to send SIGKILL", "error", err)
			}
		}
	}
}

// cappedTeeWriter accumulates combined output up to a limit while forwarding
// every write to an optional live sink.
type cappedTeeWriter struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	tee   io.Writer
	limit int
}

func (w *cappedTeeWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	if w.buf.Len() < w.limit {
		keep := p
		if w.buf.Len()+len(keep) > w.limit {
			keep = keep[:w.limit-w.buf.Len()]
		}
		w.buf.Write(keep)
	}
	w.mu.Unlock()

	if w.tee != nil {
		if _, err := w.tee.Write(p); err != nil {
			// A broken live sink must not kill the invocation.
			return len(p), nil
		}
	}
	return len(p), nil
}

func (w *cappedTeeWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}
