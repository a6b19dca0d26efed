package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// lockFileName is the lock file kept at the install root.
const lockFileName = ".packforge.lock"

// InstallLock is the exclusive lock scoped to the local installation root.
// At most one coordinator transaction runs against the root at a time;
// read-only queries do not take it.
type InstallLock struct {
	file *os.File
}

// AcquireLock takes the exclusive install-root lock without blocking. A held
// lock yields a transient InstallError with code LOCK_HELD so callers can
// retry the whole operation.
func AcquireLock(root string) (*InstallLock, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create install root: %w", err)
	}

	path := filepath.Join(root, lockFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			e := NewTransientError("another installation operation is in progress", err)
			e.Code = ErrCodeLockHeld
			return nil, e
		}
		return nil, fmt.Errorf("failed to lock install root: %w", err)
	}

	return &InstallLock{file: file}, nil
}

// Release drops the lock. Safe to call once per acquisition.
func (l *InstallLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("failed to unlock install root: %w", err)
	}
	return closeErr
}
