package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// IndexLock is the advisory single-writer lock over the index directory.
// Every mutating command acquires it before touching the artifacts;
// queries read without it, relying on the atomic rename in Save. Two
// concurrent writers would corrupt the position-range invariant, so the
// lock is mandatory for writes.
type IndexLock struct {
	fl *flock.Flock
}

// NewIndexLock creates a lock handle for the given index directory.
func NewIndexLock(dir string) (*IndexLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}
	return &IndexLock{fl: flock.New(filepath.Join(dir, lockFile))}, nil
}

// Acquire blocks until the writer lock is held or the context ends.
func (l *IndexLock) Acquire(ctx context.Context) error {
	ok, err := l.fl.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquire index lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

// TryAcquire attempts the lock without blocking.
// Returns ErrLocked when another process holds it.
func (l *IndexLock) TryAcquire() error {
	ok, err := l.fl.TryLock()
	if err != nil {
		return fmt.Errorf("acquire index lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

// Release drops the lock.
func (l *IndexLock) Release() error {
	return l.fl.Unlock()
}

// Path returns the lock file path.
func (l *IndexLock) Path() string {
	return l.fl.Path()
}
