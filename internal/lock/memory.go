package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLocker is a single-process Locker with the same lease semantics as RedisLocker.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]memLease
	lease time.Duration
	clock func() time.Time
}

type memLease struct {
	token   string
	expires time.Time
}

func NewMemoryLocker(lease time.Duration) *MemoryLocker {
	if lease <= 0 {
		lease = DefaultLease
	}
	return &MemoryLocker{held: map[string]memLease{}, lease: lease, clock: time.Now}
}

// WithClock replaces the time source used for expiry.
func (m *MemoryLocker) WithClock(now func() time.Time) *MemoryLocker {
	m.clock = now
	return m
}

func (m *MemoryLocker) Acquire(ctx context.Context, key string) (*Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()
	if cur, ok := m.held[key]; ok && now.Before(cur.expires) {
		return nil, ErrLockHeld
	}
	token := uuid.NewString()
	m.held[key] = memLease{token: token, expires: now.Add(m.lease)}
	return &Lease{key: key, token: token, ttl: m.lease, backend: m}, nil
}

// Held reports whether key is currently leased.
func (m *MemoryLocker) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.held[key]
	return ok && m.clock().Before(cur.expires)
}

func (m *MemoryLocker) renew(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.held[key]
	now := m.clock()
	if !ok || cur.token != token || !now.Before(cur.expires) {
		return false, nil
	}
	m.held[key] = memLease{token: token, expires: now.Add(ttl)}
	return true, nil
}

func (m *MemoryLocker) release(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.held[key]; ok && cur.token == token {
		delete(m.held, key)
	}
	return nil
}
