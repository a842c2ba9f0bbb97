package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var renewScript = redis.NewScript(`
-- KEYS[1] = lock key
-- ARGV[1] = token
-- ARGV[2] = ttl ms
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
-- KEYS[1] = lock key
-- ARGV[1] = token
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX and token-checked Lua scripts
// for renewal and release.
type RedisLocker struct {
	rdb    redis.UniversalClient
	lease  time.Duration
	prefix string
}

func NewRedisLocker(rdb redis.UniversalClient, lease time.Duration) *RedisLocker {
	if lease <= 0 {
		lease = DefaultLease
	}
	return &RedisLocker{rdb: rdb, lease: lease, prefix: "intake:lock:"}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string) (*Lease, error) {
	full := r.prefix + key
	token := uuid.NewString()
	ok, err := r.rdb.SetNX(ctx, full, token, r.lease).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lease{key: full, token: token, ttl: r.lease, backend: r}, nil
}

func (r *RedisLocker) renew(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	n, err := renewScript.Run(ctx, r.rdb, []string{key}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RedisLocker) release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, r.rdb, []string{key}, token).Err()
}
