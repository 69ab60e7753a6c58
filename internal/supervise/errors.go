package supervise

import (
	"fmt"
	"time"
)

// SpawnError means the process never started (or its pipes failed).
type SpawnError struct {
	Err error
}

func (e *SpawnError) Error() string { return fmt.Sprintf("spawn process: %v", e.Err) }

func (e *SpawnError) Unwrap() error { return e.Err }

// ExitError means the process started and exited non-zero on its own.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("process exited with status %d", e.Code) }

// TimeoutError means the process was killed for exceeding its timeout.
type TimeoutError struct {
	Timeout time.Duration
	Grace   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("process killed after exceeding %v timeout (%v grace)", e.Timeout, e.Grace)
}
