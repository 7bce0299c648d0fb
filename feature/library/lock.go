package library

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// LockName is the lock file created at the mirror root.
const LockName = ".itch-archiver.lock"

// lockRetry is the polling interval while waiting for the lock.
const lockRetry = 500 * time.Millisecond

// AcquireLock takes the exclusive mirror lock under root, waiting up to
// timeout. The returned func releases it.
func AcquireLock(ctx context.Context, root string, timeout time.Duration) (func() error, error) {
	fileLock := flock.New(filepath.Join(root, LockName))

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(lockCtx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("failed to lock mirror %s: %w", root, err)
	}
	if !locked {
		return nil, fmt.Errorf("mirror %s is locked by another process", root)
	}
	return fileLock.Unlock, nil
}
