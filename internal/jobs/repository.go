package jobs

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("jobs: not found")
	// ErrNotFailed is returned when requeueing a job that has not failed.
	ErrNotFailed = errors.New("jobs: job is not failed")
)

// Repository persists jobs.
//
// Contract:
// - ListPending returns pending jobs oldest first.
// - ClaimNextForPhone moves the oldest pending job of one phone to processing and
//   returns it; ok is false when there is none.
// - MarkDone and MarkFailed only apply to processing jobs.
type Repository interface {
	Enqueue(ctx context.Context, j Job) error
	ListPending(ctx context.Context, limit int) ([]Job, error)
	ClaimNextForPhone(ctx context.Context, propertyID, phone string) (Job, bool, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, message string) error

	// Requeue moves a failed job back to pending.
	Requeue(ctx context.Context, propertyID, id string) error
	// ResetStale moves processing jobs untouched since before back to pending.
	ResetStale(ctx context.Context, before time.Time) (int64, error)

	ListByStatus(ctx context.Context, propertyID string, status Status, limit int) ([]Job, error)
	Get(ctx context.Context, propertyID, id string) (Job, error)
}
