package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo stores events in audit_events.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, property_id, type, phone_number, ticket_id, from_state, to_state, message,
  actor_user_id, actor_role, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.PropertyID,
		e.Type,
		e.Phone,
		e.TicketID,
		e.FromState,
		e.ToState,
		e.Message,
		e.ActorUserID,
		e.ActorRole,
		e.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) ListByPhone(ctx context.Context, propertyID, phone string, limit int) ([]Event, error) {
	const q = `
SELECT id, property_id, type, phone_number, ticket_id, from_state, to_state, message,
       actor_user_id, actor_role, created_at
FROM audit_events
WHERE property_id = $1 AND phone_number = $2
ORDER BY created_at DESC
LIMIT $3
`
	rows, err := r.db.QueryContext(ctx, q, propertyID, phone, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var e Event
		if err := rows.Scan(
			&e.ID,
			&e.PropertyID,
			&e.Type,
			&e.Phone,
			&e.TicketID,
			&e.FromState,
			&e.ToState,
			&e.Message,
			&e.ActorUserID,
			&e.ActorRole,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
