package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/starford/vaultlens/internal/apperr"
)

// LockFile is the name of the per-vault lock inside the metadata directory.
const LockFile = "scan.lock"

const lockRetry = 50 * time.Millisecond

// vaultLock serializes scans of one vault across goroutines and processes.
type vaultLock struct {
	fl *flock.Flock
}

// acquire blocks until the lock is held or ctx ends, in which case the
// vault is reported as locked.
func acquire(ctx context.Context, dir string) (*vaultLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("scanner: create metadata dir: %w", err)
	}
	fl := flock.New(filepath.Join(dir, LockFile))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("scanner: lock %s: %w", fl.Path(), err)
	}
	if !ok {
		ok, err = fl.TryLockContext(ctx, lockRetry)
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("scanner: lock %s: %w", fl.Path(), err)
		}
		if !ok {
			return nil, fmt.Errorf("scanner: %s: %w", dir, apperr.ErrVaultLocked)
		}
	}
	return &vaultLock{fl: fl}, nil
}

func (l *vaultLock) release() error {
	return l.fl.Unlock()
}
