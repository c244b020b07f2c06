package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

const (
	lockFileSuffix = ".lock"
)

// FileLock manages a file-based lock guarding a shared resource such as the
// preference database or a camera device.
type FileLock struct {
	lock *flock.Flock
	path string
}

// NewFileLock creates a lock living next to the given resource path.
func NewFileLock(resourcePath string) (*FileLock, error) {
	absPath, err := filepath.Abs(resourcePath)
	if err != nil {
		return nil, fmt.Errorf("could not get absolute path: %w", err)
	}
	lockPath := absPath + lockFileSuffix
	return &FileLock{
		lock: flock.New(lockPath),
		path: lockPath,
	}, nil
}

// CaptureLockPath returns the lock path used to keep a single capture handle
// open across gatepass processes on this machine.
func CaptureLockPath() string {
	return filepath.Join(os.TempDir(), "gatepass-capture")
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// TryLock attempts to acquire the lock without waiting.
func (l *FileLock) TryLock() (bool, error) {
	locked, err := l.lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}
	return locked, nil
}

// Lock acquires the lock, waiting if necessary.
// It will print a message if it has to wait.
func (l *FileLock) Lock() error {
	locked, err := l.TryLock()
	if err != nil {
		return err
	}

	if !locked {
		fmt.Fprintf(os.Stderr, "Another gatepass process is writing to %s, waiting for it to finish...\n", l.path)
		if err := l.lock.Lock(); err != nil {
			return fmt.Errorf("failed to acquire lock on %s after waiting: %w", l.path, err)
		}
	}
	return nil
}

// Unlock releases the lock.
func (l *FileLock) Unlock() error {
	if err := l.lock.Unlock(); err != nil {
		// Suppress error if the lock file doesn't exist, as it means we don't hold the lock.
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}
