package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidJob = errors.New("jobs: invalid job")

// Queue creates jobs with ids and timestamps and exposes the operator views.
type Queue struct {
	repo  Repository
	clock func() time.Time
	newID func() string
}

func NewQueue(repo Repository) *Queue {
	return &Queue{repo: repo, clock: time.Now, newID: uuid.NewString}
}

// EnqueueMessage queues one inbound message. At least one of the payload
// fields must be set.
func (q *Queue) EnqueueMessage(ctx context.Context, propertyID, phone string, p MessagePayload) (Job, error) {
	if strings.TrimSpace(p.Text) == "" && strings.TrimSpace(p.VoiceRef) == "" && strings.TrimSpace(p.PhotoRef) == "" {
		return Job{}, ErrInvalidJob
	}
	b, err := json.Marshal(p)
	if err != nil {
		return Job{}, err
	}
	return q.enqueue(ctx, propertyID, phone, KindMessage, b)
}

// EnqueueClose queues the operator close command for a conversation.
func (q *Queue) EnqueueClose(ctx context.Context, propertyID, phone string) (Job, error) {
	return q.enqueue(ctx, propertyID, phone, KindClose, json.RawMessage(`{}`))
}

func (q *Queue) enqueue(ctx context.Context, propertyID, phone string, kind Kind, payload json.RawMessage) (Job, error) {
	if strings.TrimSpace(propertyID) == "" || strings.TrimSpace(phone) == "" {
		return Job{}, ErrInvalidJob
	}
	now := q.clock().UTC()
	j := Job{
		ID:         q.newID(),
		PropertyID: propertyID,
		Phone:      phone,
		Kind:       kind,
		Payload:    payload,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := q.repo.Enqueue(ctx, j); err != nil {
		return Job{}, err
	}
	return j, nil
}

func (q *Queue) List(ctx context.Context, propertyID string, status Status, limit int) ([]Job, error) {
	if propertyID == "" {
		return nil, ErrInvalidJob
	}
	return q.repo.ListByStatus(ctx, propertyID, status, limit)
}

// Requeue is the operator retry for a failed job. Failed jobs are never
// retried automatically.
func (q *Queue) Requeue(ctx context.Context, propertyID, id string) error {
	if propertyID == "" || id == "" {
		return ErrInvalidJob
	}
	return q.repo.Requeue(ctx, propertyID, id)
}

func (q *Queue) Get(ctx context.Context, propertyID, id string) (Job, error) {
	return q.repo.Get(ctx, propertyID, id)
}
