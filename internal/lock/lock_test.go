package lock

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLocker(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	locker := &FileLocker{Dir: dir}

	held, err := locker.Held(ctx, "sample-1")
	require.NoError(t, err)
	assert.False(t, held)

	require.NoError(t, locker.Acquire(ctx, "sample-1"))

	held, err = locker.Held(ctx, "sample-1")
	require.NoError(t, err)
	assert.True(t, held)

	// The marker is a zero-byte sentinel file.
	info, err := os.Stat(filepath.Join(dir, "sample-1.lock"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	err = locker.Acquire(ctx, "sample-1")
	assert.ErrorIs(t, err, ErrHeld)

	require.NoError(t, locker.Release(ctx, "sample-1"))
	held, err = locker.Held(ctx, "sample-1")
	require.NoError(t, err)
	assert.False(t, held)
}

func TestFileLocker_ReleaseIdempotent(t *testing.T) {
	locker := &FileLocker{Dir: t.TempDir()}
	assert.NoError(t, locker.Release(context.Background(), "never-locked"))
}

func TestRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	ctx := context.Background()
	locker := NewRedisLocker(&redis.Options{Addr: mr.Addr()})
	defer locker.Close()

	held, err := locker.Held(ctx, "sample-1")
	require.NoError(t, err)
	assert.False(t, held)

	require.NoError(t, locker.Acquire(ctx, "sample-1"))

	// SETNX makes the second acquire lose atomically.
	err = locker.Acquire(ctx, "sample-1")
	assert.ErrorIs(t, err, ErrHeld)

	held, err = locker.Held(ctx, "sample-1")
	require.NoError(t, err)
	assert.True(t, held)

	// Independent samples do not contend.
	require.NoError(t, locker.Acquire(ctx, "sample-2"))

	require.NoError(t, locker.Release(ctx, "sample-1"))
	held, err = locker.Held(ctx, "sample-1")
	require.NoError(t, err)
	assert.False(t, held)
}
