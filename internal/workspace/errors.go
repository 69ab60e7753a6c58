package workspace

import "fmt"

// IOError wraps a filesystem failure during create, remove, or size
// measurement so callers can distinguish workspace I/O trouble from the
// process-level error kinds.
type IOError struct {
	Op  string
	Key string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("workspace %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func ioErr(op, key string, err error) error {
	return &IOError{Op: op, Key: key, Err: err}
}
