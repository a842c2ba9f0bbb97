package pricing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"resident-intake/pkg/logger"
)

// DefaultDiagnosisFee applies when a property has no schedule of its own.
const DefaultDiagnosisFee int64 = 30

// Service resolves the diagnosis fee of a property.
//
// Contract:
// - The most recent active schedule effective at the lookup time wins.
// - No schedule, or a failing repository, yields the default fee.
// - Callers charge the fee only for tickets that belong to a unit.
type Service struct {
	repo       FeeRepository
	defaultFee int64
	clock      func() time.Time
}

func NewService(repo FeeRepository, defaultFee int64) *Service {
	if defaultFee <= 0 {
		defaultFee = DefaultDiagnosisFee
	}
	return &Service{repo: repo, defaultFee: defaultFee, clock: time.Now}
}

var (
	ErrFeeNotFound  = errors.New("pricing: fee schedule not found")
	ErrInvalidQuery = errors.New("pricing: invalid query")
)

// Schedule returns the schedule in effect for a property at the given time.
// A zero time means now.
func (s *Service) Schedule(ctx context.Context, propertyID string, at time.Time) (FeeSchedule, error) {
	if propertyID == "" {
		return FeeSchedule{}, ErrInvalidQuery
	}
	if at.IsZero() {
		at = s.clock().UTC()
	}
	if s.repo == nil {
		return FeeSchedule{}, ErrFeeNotFound
	}
	fs, ok, err := s.repo.FindFeeSchedule(ctx, propertyID, at)
	if err != nil {
		return FeeSchedule{}, err
	}
	if !ok {
		return FeeSchedule{}, ErrFeeNotFound
	}
	return fs, nil
}

// DiagnosisFee never fails: lookups that do not produce a schedule fall back to the default.
func (s *Service) DiagnosisFee(ctx context.Context, propertyID string) int64 {
	fs, err := s.Schedule(ctx, propertyID, time.Time{})
	if err != nil {
		if !errors.Is(err, ErrFeeNotFound) {
			logger.From(ctx).Warn("fee lookup failed, using default",
				slog.String("property_id", propertyID),
				slog.Any("err", err),
			)
		}
		return s.defaultFee
	}
	return fs.DiagnosisFee
}

// FeeRepository abstracts fee persistence.
type FeeRepository interface {
	FindFeeSchedule(ctx context.Context, propertyID string, at time.Time) (FeeSchedule, bool, error)
}
