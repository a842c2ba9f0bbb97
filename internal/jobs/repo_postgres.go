package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"resident-intake/pkg/utils"
)

// PostgresRepo stores jobs in intake_jobs.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const jobCols = `id, property_id, phone_number, kind, payload, status, error_message, attempts, created_at, updated_at`

func scanJob(row interface{ Scan(dest ...any) error }) (Job, error) {
	var j Job
	var payload []byte
	if err := row.Scan(
		&j.ID,
		&j.PropertyID,
		&j.Phone,
		&j.Kind,
		&payload,
		&j.Status,
		&j.ErrorMessage,
		&j.Attempts,
		&j.CreatedAt,
		&j.UpdatedAt,
	); err != nil {
		return Job{}, err
	}
	j.Payload = payload
	return j, nil
}

func (r *PostgresRepo) Enqueue(ctx context.Context, j Job) error {
	const q = `
INSERT INTO intake_jobs (` + jobCols + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`
	payload := string(j.Payload)
	if payload == "" {
		payload = "{}"
	}
	_, err := r.db.ExecContext(ctx, q,
		j.ID, j.PropertyID, j.Phone, j.Kind, payload, j.Status, j.ErrorMessage, j.Attempts, j.CreatedAt, j.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) ListPending(ctx context.Context, limit int) ([]Job, error) {
	const q = `
SELECT ` + jobCols + `
FROM intake_jobs
WHERE status = 'pending'
ORDER BY created_at, id
LIMIT $1
`
	return r.list(ctx, q, limitOrDefault(limit))
}

func (r *PostgresRepo) ClaimNextForPhone(ctx context.Context, propertyID, phone string) (Job, bool, error) {
	// SKIP LOCKED keeps two claimers from blocking on the same row.
	const q = `
UPDATE intake_jobs
SET status = 'processing', attempts = attempts + 1, updated_at = now()
WHERE id = (
  SELECT id FROM intake_jobs
  WHERE property_id = $1 AND phone_number = $2 AND status = 'pending'
  ORDER BY created_at, id
  LIMIT 1
  FOR UPDATE SKIP LOCKED
)
RETURNING ` + jobCols

	j, err := scanJob(r.db.QueryRowContext(ctx, q, propertyID, phone))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, false, nil
		}
		return Job{}, false, err
	}
	return j, true, nil
}

func (r *PostgresRepo) MarkDone(ctx context.Context, id string) error {
	return r.finish(ctx, id, StatusDone, "")
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, id, message string) error {
	return r.finish(ctx, id, StatusFailed, message)
}

func (r *PostgresRepo) finish(ctx context.Context, id string, to Status, message string) error {
	const q = `
UPDATE intake_jobs
SET status = $2, error_message = $3, updated_at = now()
WHERE id = $1 AND status = 'processing'
`
	n, err := utils.RowsAffected(r.db.ExecContext(ctx, q, id, to, message))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) Requeue(ctx context.Context, propertyID, id string) error {
	const q = `
UPDATE intake_jobs
SET status = 'pending', error_message = '', updated_at = now()
WHERE property_id = $1 AND id = $2 AND status = 'failed'
`
	n, err := utils.RowsAffected(r.db.ExecContext(ctx, q, propertyID, id))
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := r.Get(ctx, propertyID, id); err != nil {
		return err
	}
	return ErrNotFailed
}

func (r *PostgresRepo) ResetStale(ctx context.Context, before time.Time) (int64, error) {
	const q = `
UPDATE intake_jobs
SET status = 'pending', updated_at = now()
WHERE status = 'processing' AND updated_at < $1
`
	return utils.RowsAffected(r.db.ExecContext(ctx, q, before))
}

func (r *PostgresRepo) ListByStatus(ctx context.Context, propertyID string, status Status, limit int) ([]Job, error) {
	const q = `
SELECT ` + jobCols + `
FROM intake_jobs
WHERE property_id = $1 AND status = $2
ORDER BY created_at DESC
LIMIT $3
`
	return r.list(ctx, q, propertyID, status, limitOrDefault(limit))
}

func (r *PostgresRepo) Get(ctx context.Context, propertyID, id string) (Job, error) {
	const q = `
SELECT ` + jobCols + `
FROM intake_jobs
WHERE property_id = $1 AND id = $2
`
	j, err := scanJob(r.db.QueryRowContext(ctx, q, propertyID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, err
	}
	return j, nil
}

func (r *PostgresRepo) list(ctx context.Context, q string, args ...any) ([]Job, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func limitOrDefault(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
