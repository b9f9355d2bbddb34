package shared

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// SessionLock is an advisory file lock that keeps two sync sessions from running at once.
type SessionLock struct {
	path string
	lock *flock.Flock
}

// NewSessionLock creates a lock backed by the file at path. Nothing is locked until [SessionLock.Acquire].
func NewSessionLock(path string) *SessionLock {
	return &SessionLock{path: path, lock: flock.New(path)}
}

// Path returns the lock file location.
func (l *SessionLock) Path() string { return l.path }

// Acquire takes the lock without blocking. It returns [ErrSessionLocked] when another
// process holds it.
func (l *SessionLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: lock held at %s", ErrSessionLocked, l.path)
	}
	return nil
}

// Release unlocks the file. It is safe to call when the lock is not held.
func (l *SessionLock) Release() error {
	if !l.lock.Locked() {
		return nil
	}
	return l.lock.Unlock()
}
