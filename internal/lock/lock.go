// Package lock guards against concurrent service instances. Two instances
// sharing one SQLite state file and workspace tree would race the queue and
// the eviction loop, so startup takes an exclusive file lock and holds it
// for the life of the process.
package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// InstanceLock is a single-instance lock backed by flock(2). The lock lives
// as long as the handle; Release it on shutdown.
type InstanceLock struct {
	path string
	fl   *flock.Flock
}

// Acquire takes the exclusive lock at lockPath without blocking and records
// the holder's PID beside it for operators. A held lock is an error.
func Acquire(lockPath string) (*InstanceLock, error) {
	if lockPath == "" {
		return nil, fmt.Errorf("lock path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %q: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock %q is held by another instance", lockPath)
	}

	// Best-effort PID breadcrumb; the flock itself is authoritative.
	pidPath := lockPath + ".pid"
	if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
		_ = fl.Unlock()
		return nil, fmt.Errorf("write pid file: %w", err)
	}

	return &InstanceLock{path: lockPath, fl: fl}, nil
}

func (l *InstanceLock) Path() string { return l.path }

func (l *InstanceLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	_ = os.Remove(l.path + ".pid")
	err := l.fl.Unlock()
	l.fl = nil
	return err
}
