package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, e Event) error
	ListByPhone(ctx context.Context, propertyID, phone string, limit int) ([]Event, error)
}

// Service records conversation transitions and staff actions.
//
// Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.PropertyID == "" || e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogAdminAction records a staff action such as a job requeue or a session close.
func (s *Service) LogAdminAction(ctx context.Context, propertyID, actorUserID, actorRole, phone, message string) error {
	return s.Append(ctx, Event{
		PropertyID:  propertyID,
		Type:        EventTypeAdminAction,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		Phone:       phone,
		Message:     message,
	})
}

// History returns the most recent events for one resident, newest first.
func (s *Service) History(ctx context.Context, propertyID, phone string, limit int) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	if propertyID == "" || phone == "" {
		return nil, ErrInvalidEvent
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListByPhone(ctx, propertyID, phone, limit)
}
