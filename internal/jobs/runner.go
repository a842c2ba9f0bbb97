package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"resident-intake/internal/conversation"
	"resident-intake/internal/lock"
	"resident-intake/pkg/logger"
)

// Handler runs conversation work. conversation.Engine implements it.
type Handler interface {
	Handle(ctx context.Context, in conversation.Inbound) (conversation.Outcome, error)
	Close(ctx context.Context, propertyID, phone string) (conversation.Outcome, error)
}

// Sender delivers replies. It must not fail the job; see degrade.Sender.
type Sender interface {
	Send(ctx context.Context, phone, text string)
}

// Runner drains the queue one phone at a time.
//
// Contract:
// - The phone lock is held while a job is claimed, handled and marked.
// - A held lock skips the phone; its jobs stay pending for the next pass.
// - Handler errors mark the job failed with the error text. Nothing is retried here.
// - Replies are sent after the job is marked and never affect its status.
type Runner struct {
	repo    Repository
	locker  lock.Locker
	handler Handler
	sender  Sender
	batch   int
}

func NewRunner(repo Repository, locker lock.Locker, handler Handler, sender Sender, batch int) *Runner {
	if batch <= 0 {
		batch = 50
	}
	return &Runner{repo: repo, locker: locker, handler: handler, sender: sender, batch: batch}
}

// RunOnce makes one pass over the pending jobs and returns how many it handled.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	pending, err := r.repo.ListPending(ctx, r.batch)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}
	handled := 0
	for _, j := range pending {
		if ctx.Err() != nil {
			return handled, ctx.Err()
		}
		ok, err := r.ProcessNext(ctx, j.PropertyID, j.Phone)
		if err != nil {
			logger.From(ctx).Warn("job pass failed",
				slog.String("job_id", j.ID),
				slog.String("phone", logger.MaskPhone(j.Phone)),
				slog.Any("err", err),
			)
			continue
		}
		if ok {
			handled++
		}
	}
	return handled, nil
}

// ProcessNext handles the oldest pending job of one phone under its lock.
// It reports false when the lock is held elsewhere or no job is pending.
func (r *Runner) ProcessNext(ctx context.Context, propertyID, phone string) (bool, error) {
	log := logger.From(ctx).With(
		slog.String("property_id", propertyID),
		slog.String("phone", logger.MaskPhone(phone)),
	)
	ctx = logger.With(ctx, log)

	var (
		claimed bool
		job     Job
		out     conversation.Outcome
	)
	err := lock.WithLock(ctx, r.locker, lock.PhoneKey(phone), func(ctx context.Context) error {
		var ok bool
		var err error
		job, ok, err = r.repo.ClaimNextForPhone(ctx, propertyID, phone)
		if err != nil || !ok {
			return err
		}
		claimed = true

		var herr error
		out, herr = r.dispatch(ctx, job)
		if herr != nil {
			log.Warn("job failed", slog.String("job_id", job.ID), slog.String("kind", string(job.Kind)), slog.Any("err", herr))
			return r.repo.MarkFailed(ctx, job.ID, herr.Error())
		}
		return r.repo.MarkDone(ctx, job.ID)
	})
	if errors.Is(err, lock.ErrLockHeld) {
		log.Debug("phone busy, deferring")
		return false, nil
	}
	if err != nil {
		return claimed, err
	}
	if !claimed {
		return false, nil
	}

	if out.Reply != "" && !out.Ignored && r.sender != nil {
		r.sender.Send(ctx, job.Phone, out.Reply)
	}
	log.Info("job processed", slog.String("job_id", job.ID), slog.String("kind", string(job.Kind)), slog.Int("attempts", job.Attempts))
	return true, nil
}

func (r *Runner) dispatch(ctx context.Context, j Job) (conversation.Outcome, error) {
	switch j.Kind {
	case KindMessage:
		var p MessagePayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return conversation.Outcome{}, fmt.Errorf("decode payload: %w", err)
		}
		return r.handler.Handle(ctx, conversation.Inbound{
			PropertyID: j.PropertyID,
			Phone:      j.Phone,
			Text:       p.Text,
			VoiceRef:   p.VoiceRef,
			PhotoRef:   p.PhotoRef,
		})
	case KindClose:
		return r.handler.Close(ctx, j.PropertyID, j.Phone)
	}
	return conversation.Outcome{}, fmt.Errorf("unknown job kind %q", j.Kind)
}
