package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// lockTimeout bounds how long a store waits for another process to
	// release a namespace lock.
	lockTimeout = 5 * time.Second
	lockRetry   = 25 * time.Millisecond
)

// errLockBusy is returned by tryLock while another holder owns the lock.
var errLockBusy = errors.New("lock held by another process")

// acquireLock takes an exclusive advisory lock on path, creating the file if
// needed, and retries until lockTimeout elapses or ctx is done. The returned
// release unlocks and closes the file. The lock file itself stays on disk so
// every process keeps contending on the same inode.
func acquireLock(ctx context.Context, path string) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(lockTimeout)
	for {
		err := tryLock(f)
		if err == nil {
			return func() error {
				return errors.Join(unlock(f), f.Close())
			}, nil
		}
		if !errors.Is(err, errLockBusy) || time.Now().After(deadline) {
			f.Close()
			return nil, fmt.Errorf("lock %s: %w", filepath.Base(path), err)
		}

		select {
		case <-ctx.Done():
			f.Close()
			return nil, ctx.Err()
		case <-time.After(lockRetry):
		}
	}
}
