package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"resident-intake/pkg/logger"
)

// Pool runs several runner loops until the context is cancelled.
type Pool struct {
	runner     *Runner
	repo       Repository
	workers    int
	interval   time.Duration
	staleAfter time.Duration
	clock      func() time.Time
}

func NewPool(runner *Runner, repo Repository, workers int, interval, staleAfter time.Duration) *Pool {
	if workers < 1 {
		workers = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	return &Pool{runner: runner, repo: repo, workers: workers, interval: interval, staleAfter: staleAfter, clock: time.Now}
}

// Run blocks until ctx is done. Worker 1 also returns stale processing jobs
// to the queue; they are left behind by a worker that died mid-job.
func (p *Pool) Run(ctx context.Context) error {
	log := logger.From(ctx).With(slog.String("component", "job_pool"))
	log.Info("starting job worker pool", slog.Int("workers", p.workers))

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		workerID := i + 1
		g.Go(func() error {
			p.loop(ctx, log.With(slog.Int("worker_id", workerID)), workerID == 1)
			return nil
		})
	}
	err := g.Wait()
	log.Info("job worker pool stopped")
	return err
}

func (p *Pool) loop(ctx context.Context, log *slog.Logger, janitor bool) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	ctx = logger.With(ctx, log)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if janitor {
				p.resetStale(ctx, log)
			}
			p.tick(ctx, log)
		}
	}
}

func (p *Pool) tick(ctx context.Context, log *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("job runner panic", slog.String("panic", fmt.Sprint(r)))
		}
	}()
	if _, err := p.runner.RunOnce(ctx); err != nil && ctx.Err() == nil {
		log.Warn("job pass failed", slog.Any("err", err))
	}
}

func (p *Pool) resetStale(ctx context.Context, log *slog.Logger) {
	n, err := p.repo.ResetStale(ctx, p.clock().Add(-p.staleAfter))
	if err != nil {
		log.Warn("reset stale jobs failed", slog.Any("err", err))
		return
	}
	if n > 0 {
		log.Warn("stale jobs returned to queue", slog.Int64("count", n))
	}
}
