package throttle

import (
	"context"
	"log/slog"
	"time"

	"resident-intake/pkg/logger"
)

// Guard is the per-(property, phone) abuse counter that gates every inbound message.
//
// Rules, evaluated in order:
// - Window elapsed since FirstSeenAt: counter restarts at 1 and any block is cleared.
// - BlockedUntil in the future: blocked, counter untouched.
// - Count above HardLimit: block for BlockFor.
// - Count above SoftLimit: allowed, but the caller must verify the message is meaningful.
//
// A failing store read fails open. Log lines go to the logger in ctx, which
// the caller scopes to the phone.
type Guard struct {
	store Store
	cfg   Config
	clock func() time.Time
}

type Config struct {
	Window    time.Duration
	SoftLimit int
	HardLimit int
	BlockFor  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = 60 * time.Second
	}
	if c.HardLimit <= 0 {
		c.HardLimit = 8
	}
	if c.SoftLimit <= 0 || c.SoftLimit >= c.HardLimit {
		c.SoftLimit = c.HardLimit - 3
		if c.SoftLimit < 1 {
			c.SoftLimit = 1
		}
	}
	if c.BlockFor <= 0 {
		c.BlockFor = 5 * time.Minute
	}
	return c
}

// ttl keeps a record alive for as long as either the window or a block can matter.
func (c Config) ttl() time.Duration {
	if c.BlockFor > c.Window {
		return c.BlockFor
	}
	return c.Window
}

func NewGuard(store Store, cfg Config) *Guard {
	return &Guard{store: store, cfg: cfg.withDefaults(), clock: time.Now}
}

// WithClock replaces the time source.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.clock = now
	return g
}

type Level string

const (
	LevelOK      Level = "ok"
	LevelSoft    Level = "soft"
	LevelBlocked Level = "blocked"
)

type Result struct {
	Allowed bool  `json:"allowed"`
	Level   Level `json:"level"`
	Count   int   `json:"count"`

	// NewlyBlocked is set only on the message that crossed the hard limit.
	NewlyBlocked bool `json:"newly_blocked,omitempty"`
}

func (g *Guard) Check(ctx context.Context, propertyID, phone string) Result {
	log := logger.From(ctx)
	now := g.clock().UTC()

	rec, found, err := g.store.Get(ctx, propertyID, phone)
	if err != nil {
		log.Warn("throttle read failed, allowing", slog.Any("err", err))
		return Result{Allowed: true, Level: LevelOK}
	}

	if !found || now.Sub(rec.FirstSeenAt) > g.cfg.Window {
		rec = Record{Count: 1, FirstSeenAt: now}
		g.save(ctx, log, propertyID, phone, rec)
		return Result{Allowed: true, Level: LevelOK, Count: 1}
	}

	if !rec.BlockedUntil.IsZero() && now.Before(rec.BlockedUntil) {
		return Result{Allowed: false, Level: LevelBlocked, Count: rec.Count}
	}

	rec.Count++
	res := Result{Allowed: true, Level: LevelOK, Count: rec.Count}
	switch {
	case rec.Count > g.cfg.HardLimit:
		rec.BlockedUntil = now.Add(g.cfg.BlockFor)
		res = Result{Allowed: false, Level: LevelBlocked, Count: rec.Count, NewlyBlocked: true}
		log.Info("phone blocked", slog.Int("count", rec.Count), slog.Time("blocked_until", rec.BlockedUntil))
	case rec.Count > g.cfg.SoftLimit:
		res.Level = LevelSoft
	}
	g.save(ctx, log, propertyID, phone, rec)
	return res
}

// NoteGreeting records a greeting within the current window and returns its
// occurrence number (1 for the first greeting). Store failures count as a first greeting.
func (g *Guard) NoteGreeting(ctx context.Context, propertyID, phone string) int {
	log := logger.From(ctx)
	now := g.clock().UTC()

	rec, found, err := g.store.Get(ctx, propertyID, phone)
	if err != nil {
		log.Warn("throttle read failed", slog.Any("err", err))
		return 1
	}
	if !found || now.Sub(rec.FirstSeenAt) > g.cfg.Window {
		rec = Record{Count: 1, FirstSeenAt: now}
	}
	rec.Greetings++
	g.save(ctx, log, propertyID, phone, rec)
	return rec.Greetings
}

func (g *Guard) save(ctx context.Context, log *slog.Logger, propertyID, phone string, rec Record) {
	if err := g.store.Put(ctx, propertyID, phone, rec, g.cfg.ttl()); err != nil {
		log.Warn("throttle write failed", slog.Any("err", err))
	}
}
