package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexLock_AcquireAndRelease(t *testing.T) {
	lock, err := NewIndexLock(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, lock.TryAcquire())
	require.NoError(t, lock.Release())

	// Reacquirable after release
	require.NoError(t, lock.TryAcquire())
	require.NoError(t, lock.Release())
}

func TestIndexLock_SecondHolderRejected(t *testing.T) {
	dir := t.TempDir()

	first, err := NewIndexLock(dir)
	require.NoError(t, err)
	require.NoError(t, first.TryAcquire())
	defer first.Release()

	second, err := NewIndexLock(dir)
	require.NoError(t, err)
	assert.ErrorIs(t, second.TryAcquire(), ErrLocked)
}

func TestIndexLock_AcquireHonorsContext(t *testing.T) {
	dir := t.TempDir()

	holder, err := NewIndexLock(dir)
	require.NoError(t, err)
	require.NoError(t, holder.TryAcquire())
	defer holder.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	waiter, err := NewIndexLock(dir)
	require.NoError(t, err)
	err = waiter.Acquire(ctx)
	assert.Error(t, err)
}

func TestIndexLock_AcquireSucceedsWhenFree(t *testing.T) {
	lock, err := NewIndexLock(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, lock.Acquire(ctx))
	require.NoError(t, lock.Release())
}
