// Package runlock provides a cross-process advisory lock so two indexing
// runs against the same repository never race on its snapshot, checkpoint,
// or cache files. Grounded on Aman-CERP-amanmcp's internal/embed/lock.go
// FileLock (same gofrs/flock wrapper, same Lock/TryLock/Unlock shape),
// retargeted from guarding a shared model-download directory to guarding a
// single repository's state directory.
package runlock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Lock is an exclusive, cross-process file lock scoped to one repository's
// state directory.
type Lock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// New builds a Lock whose file lives at <stateDir>/run.lock.
func New(stateDir string) *Lock {
	path := filepath.Join(stateDir, "run.lock")
	return &Lock{path: path, flock: flock.New(path)}
}

// Lock blocks until the exclusive lock is acquired, creating the state
// directory and lock file if needed.
func (l *Lock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("runlock: create state dir: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("runlock: acquire lock: %w", err)
	}
	l.locked = true
	return nil
}

// TryLock attempts to acquire the lock without blocking. ok is false when
// another process already holds it.
func (l *Lock) TryLock() (ok bool, err error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("runlock: create state dir: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("runlock: acquire lock: %w", err)
	}
	l.locked = acquired
	return acquired, nil
}

// Unlock releases the lock. Safe to call on an unlocked Lock.
func (l *Lock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("runlock: release lock: %w", err)
	}
	l.locked = false
	return nil
}

// Path returns the lock file's path.
func (l *Lock) Path() string { return l.path }
