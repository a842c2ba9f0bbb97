package lock

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"resident-intake/pkg/logger"
)

var (
	// ErrLockHeld means another worker owns the key. It is a retry-later signal, not a failure.
	ErrLockHeld = errors.New("lock: held by another worker")
	// ErrLeaseLost means the lease expired or was taken over while work was running.
	ErrLeaseLost = errors.New("lock: lease lost")
)

const DefaultLease = 30 * time.Second

// Locker hands out exclusive, expiring leases on named keys.
type Locker interface {
	Acquire(ctx context.Context, key string) (*Lease, error)
}

type backend interface {
	renew(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	release(ctx context.Context, key, token string) error
}

// Lease is one successful acquisition. Only the holder's token can renew or release it.
type Lease struct {
	key     string
	token   string
	ttl     time.Duration
	backend backend
}

func (l *Lease) Key() string        { return l.key }
func (l *Lease) TTL() time.Duration { return l.ttl }

// Renew extends the lease by its TTL. It returns ErrLeaseLost when the key no
// longer belongs to this lease.
func (l *Lease) Renew(ctx context.Context) error {
	ok, err := l.backend.renew(ctx, l.key, l.token, l.ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLeaseLost
	}
	return nil
}

// Release gives the key up. Releasing an expired or foreign lease is a no-op.
func (l *Lease) Release(ctx context.Context) error {
	return l.backend.release(ctx, l.key, l.token)
}

// PhoneKey names the lock that serializes one resident's conversation.
func PhoneKey(phone string) string { return "phone:" + phone }

// WithLock runs fn while holding key. The lease is renewed every third of its
// TTL and released when fn returns, whatever the outcome. If renewal finds the
// lease lost, the context passed to fn is cancelled with ErrLeaseLost.
func WithLock(ctx context.Context, locker Locker, key string, fn func(ctx context.Context) error) error {
	lease, err := locker.Acquire(ctx, key)
	if err != nil {
		return err
	}
	// Keys embed phone numbers, so only the tail is logged.
	log := logger.From(ctx).With(slog.String("lock_key", logger.MaskPhone(key)))

	runCtx, cancelRun := context.WithCancelCause(ctx)
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		heartbeat(runCtx, lease, cancelRun, log)
	}()

	defer func() {
		cancelRun(nil)
		<-hbDone
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			log.Warn("lock release failed", slog.Any("err", err))
		}
	}()

	return fn(runCtx)
}

func heartbeat(ctx context.Context, lease *Lease, cancel context.CancelCauseFunc, log *slog.Logger) {
	interval := lease.ttl / 3
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			err := lease.Renew(ctx)
			switch {
			case err == nil:
			case errors.Is(err, ErrLeaseLost):
				log.Warn("lock lease lost")
				cancel(ErrLeaseLost)
				return
			case ctx.Err() != nil:
				return
			default:
				// Transient; the next tick retries before the lease runs out.
				log.Warn("lock renew failed", slog.Any("err", err))
			}
		}
	}
}
