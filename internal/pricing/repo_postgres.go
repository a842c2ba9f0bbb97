package pricing

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepo reads schedules from property_fees.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) FindFeeSchedule(ctx context.Context, propertyID string, at time.Time) (FeeSchedule, bool, error) {
	const q = `
SELECT id, property_id, diagnosis_fee, currency, status, effective_from, effective_to
FROM property_fees
WHERE property_id = $1
  AND status = 'active'
  AND effective_from <= $2
  AND (effective_to IS NULL OR effective_to > $2)
ORDER BY effective_from DESC
LIMIT 1
`
	var f FeeSchedule
	var to sql.NullTime
	err := r.db.QueryRowContext(ctx, q, propertyID, at).Scan(
		&f.ID,
		&f.PropertyID,
		&f.DiagnosisFee,
		&f.Currency,
		&f.Status,
		&f.EffectiveFrom,
		&to,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FeeSchedule{}, false, nil
		}
		return FeeSchedule{}, false, err
	}
	if to.Valid {
		t := to.Time
		f.EffectiveTo = &t
	}
	return f, true, nil
}
