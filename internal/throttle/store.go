package throttle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Record is the ThrottleRecord of one (property, phone) pair.
type Record struct {
	Count        int
	FirstSeenAt  time.Time
	BlockedUntil time.Time
	Greetings    int
}

type Store interface {
	Get(ctx context.Context, propertyID, phone string) (Record, bool, error)
	Put(ctx context.Context, propertyID, phone string, rec Record, ttl time.Duration) error
}

// RedisStore keeps one hash per (property, phone) that expires once neither
// the window nor a block can still apply.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "intake:throttle:"}
}

func (s *RedisStore) key(propertyID, phone string) string {
	return s.prefix + propertyID + ":" + phone
}

func (s *RedisStore) Get(ctx context.Context, propertyID, phone string) (Record, bool, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key(propertyID, phone)).Result()
	if err != nil {
		return Record{}, false, err
	}
	if len(vals) == 0 {
		return Record{}, false, nil
	}
	var rec Record
	var first, blocked int64
	if rec.Count, err = strconv.Atoi(vals["count"]); err != nil {
		return Record{}, false, fmt.Errorf("throttle: decode count: %w", err)
	}
	if first, err = strconv.ParseInt(vals["first_seen_at"], 10, 64); err != nil {
		return Record{}, false, fmt.Errorf("throttle: decode first_seen_at: %w", err)
	}
	rec.FirstSeenAt = time.UnixMilli(first).UTC()
	if v := vals["blocked_until"]; v != "" && v != "0" {
		if blocked, err = strconv.ParseInt(v, 10, 64); err != nil {
			return Record{}, false, fmt.Errorf("throttle: decode blocked_until: %w", err)
		}
		rec.BlockedUntil = time.UnixMilli(blocked).UTC()
	}
	if v := vals["greetings"]; v != "" {
		rec.Greetings, _ = strconv.Atoi(v)
	}
	return rec, true, nil
}

func (s *RedisStore) Put(ctx context.Context, propertyID, phone string, rec Record, ttl time.Duration) error {
	var blocked int64
	if !rec.BlockedUntil.IsZero() {
		blocked = rec.BlockedUntil.UnixMilli()
	}
	key := s.key(propertyID, phone)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			"count", rec.Count,
			"first_seen_at", rec.FirstSeenAt.UnixMilli(),
			"blocked_until", blocked,
			"greetings", rec.Greetings,
		)
		p.PExpire(ctx, key, ttl)
		return nil
	})
	return err
}

// MemoryStore is an in-process Store for tests and single-node development.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	readErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]Record{}}
}

var errUnavailable = errors.New("throttle: store unavailable")

// FailReads makes Get fail until called with false.
func (s *MemoryStore) FailReads(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fail {
		s.readErr = errUnavailable
		return
	}
	s.readErr = nil
}

func (s *MemoryStore) Get(ctx context.Context, propertyID, phone string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return Record{}, false, s.readErr
	}
	rec, ok := s.records[propertyID+"|"+phone]
	return rec, ok, nil
}

func (s *MemoryStore) Put(ctx context.Context, propertyID, phone string, rec Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[propertyID+"|"+phone] = rec
	return nil
}
