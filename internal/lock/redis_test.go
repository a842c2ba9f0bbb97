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

func newRedisLocker(t *testing.T, lease time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLocker(rdb, lease), mr
}

func TestRedisLocker_AcquireReleaseExpire(t *testing.T) {
	l, mr := newRedisLocker(t, 30*time.Second)
	ctx := context.Background()

	lease, err := l.Acquire(ctx, PhoneKey("+601"))
	require.NoError(t, err)
	assert.True(t, mr.Exists("intake:lock:phone:+601"))

	_, err = l.Acquire(ctx, PhoneKey("+601"))
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists("intake:lock:phone:+601"))

	_, err = l.Acquire(ctx, PhoneKey("+601"))
	require.NoError(t, err)
	mr.FastForward(31 * time.Second)
	_, err = l.Acquire(ctx, PhoneKey("+601"))
	assert.NoError(t, err)
}

func TestRedisLocker_RenewAndForeignRelease(t *testing.T) {
	l, mr := newRedisLocker(t, 30*time.Second)
	ctx := context.Background()

	lease, err := l.Acquire(ctx, "k")
	require.NoError(t, err)

	mr.FastForward(20 * time.Second)
	require.NoError(t, lease.Renew(ctx))
	assert.Equal(t, 30*time.Second, mr.TTL("intake:lock:k"))

	mr.FastForward(31 * time.Second)
	assert.ErrorIs(t, lease.Renew(ctx), ErrLeaseLost)

	other, err := l.Acquire(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
	assert.True(t, mr.Exists("intake:lock:k"), "stale lease must not release the new holder")
	require.NoError(t, other.Release(ctx))
	assert.False(t, mr.Exists("intake:lock:k"))
}
