package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, "test:lock:"), srv
}

func TestRedisLocker_Exclusive(t *testing.T) {
	ctx := context.Background()
	locker, srv := newRedisLocker(t)

	h, err := locker.Acquire(ctx, "reddit", time.Minute)
	require.NoError(t, err)
	assert.True(t, srv.Exists("test:lock:reddit"))

	_, err = locker.Acquire(ctx, "reddit", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	other, err := locker.Acquire(ctx, "rss", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, h.Release(ctx))
	assert.False(t, srv.Exists("test:lock:reddit"))

	again, err := locker.Acquire(ctx, "reddit", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestRedisLocker_ExpiredLockIsNotReleasedByOldHolder(t *testing.T) {
	ctx := context.Background()
	locker, srv := newRedisLocker(t)

	stale, err := locker.Acquire(ctx, "reddit", time.Second)
	require.NoError(t, err)

	srv.FastForward(2 * time.Second)

	fresh, err := locker.Acquire(ctx, "reddit", time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, stale.Release(ctx), ErrNotHeld)
	assert.True(t, srv.Exists("test:lock:reddit"))
	require.NoError(t, fresh.Release(ctx))
}

func TestRedisLocker_ConnectionError(t *testing.T) {
	locker, srv := newRedisLocker(t)
	srv.Close()

	_, err := locker.Acquire(context.Background(), "reddit", time.Minute)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotAcquired)
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker()
	now := time.Now()
	locker.now = func() time.Time { return now }

	h, err := locker.Acquire(ctx, "reddit", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "reddit", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	now = now.Add(2 * time.Minute)
	takeover, err := locker.Acquire(ctx, "reddit", time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, h.Release(ctx), ErrNotHeld)
	require.NoError(t, takeover.Release(ctx))
	assert.ErrorIs(t, takeover.Release(ctx), ErrNotHeld)
}
