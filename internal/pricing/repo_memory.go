package pricing

import (
	"context"
	"time"
)

// MemoryRepo is a simple in-memory repository useful for tests and local development.
//
// NOTE: This is not intended for production; use PostgresRepo.
type MemoryRepo struct {
	Schedules []FeeSchedule
	Err       error
}

func (r *MemoryRepo) FindFeeSchedule(ctx context.Context, propertyID string, at time.Time) (FeeSchedule, bool, error) {
	if r.Err != nil {
		return FeeSchedule{}, false, r.Err
	}

	// Prefer the most recent effective schedule.
	var best FeeSchedule
	found := false
	for _, f := range r.Schedules {
		if f.PropertyID != propertyID || !f.activeAt(at) {
			continue
		}
		if !found || f.EffectiveFrom.After(best.EffectiveFrom) {
			best = f
			found = true
		}
	}
	return best, found, nil
}
