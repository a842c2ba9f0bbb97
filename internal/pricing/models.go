package pricing

import "time"

// Fees are property-scoped and expressed in whole currency units using int64.

// FeeSchedule is the diagnosis fee charged for private-unit tickets of one property.
type FeeSchedule struct {
	ID         string `json:"id" db:"id"`
	PropertyID string `json:"property_id" db:"property_id"`

	DiagnosisFee int64  `json:"diagnosis_fee" db:"diagnosis_fee"`
	Currency     string `json:"currency" db:"currency"`

	Status FeeStatus `json:"status" db:"status"`

	// Effective window for the schedule.
	EffectiveFrom time.Time  `json:"effective_from" db:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty" db:"effective_to"`
}

// activeAt reports whether the schedule applies at t.
func (f FeeSchedule) activeAt(t time.Time) bool {
	if f.Status != FeeStatusActive {
		return false
	}
	if t.Before(f.EffectiveFrom) {
		return false
	}
	return f.EffectiveTo == nil || t.Before(*f.EffectiveTo)
}

type FeeStatus string

const (
	FeeStatusActive   FeeStatus = "active"
	FeeStatusInactive FeeStatus = "inactive"
)
