package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"resident-intake/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres implements Store on database/sql with the pgx driver.
//
// Assumes the tables in schema.sql, notably:
// - conversation_sessions UNIQUE (property_id, phone_number)
// - tickets with embedding and images stored as JSONB
type Postgres struct {
	db *sql.DB
	q  utils.Querier
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, q: db}
}

func (p *Postgres) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if _, ok := p.q.(*sql.Tx); ok {
		return fn(ctx, p)
	}
	return utils.WithTx(ctx, p.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &Postgres{db: p.db, q: tx})
	})
}

const sessionColumns = `id, property_id, phone_number, state, current_ticket_id, previous_ticket_id,
       pending_report, language, last_message, created_at, updated_at`

func (p *Postgres) GetSession(ctx context.Context, propertyID, phone string) (Session, error) {
	q := `SELECT ` + sessionColumns + `
FROM conversation_sessions
WHERE property_id = $1 AND phone_number = $2
`
	var s Session
	var current, previous sql.NullString
	err := p.q.QueryRowContext(ctx, q, propertyID, phone).Scan(
		&s.ID,
		&s.PropertyID,
		&s.Phone,
		&s.State,
		&current,
		&previous,
		&s.PendingReport,
		&s.Language,
		&s.LastMessage,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	s.CurrentTicketID = nullToPtr(current)
	s.PreviousTicketID = nullToPtr(previous)
	return s, nil
}

func (p *Postgres) SaveSession(ctx context.Context, s Session) error {
	if s.PropertyID == "" || s.Phone == "" || s.ID == "" {
		return ErrInvalidInput
	}
	const q = `
INSERT INTO conversation_sessions (
  id, property_id, phone_number, state, current_ticket_id, previous_ticket_id,
  pending_report, language, last_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (property_id, phone_number)
DO UPDATE SET state = EXCLUDED.state,
              current_ticket_id = EXCLUDED.current_ticket_id,
              previous_ticket_id = EXCLUDED.previous_ticket_id,
              pending_report = EXCLUDED.pending_report,
              language = EXCLUDED.language,
              last_message = EXCLUDED.last_message,
              updated_at = EXCLUDED.updated_at
`
	_, err := p.q.ExecContext(ctx, q,
		s.ID,
		s.PropertyID,
		s.Phone,
		s.State,
		s.CurrentTicketID,
		s.PreviousTicketID,
		s.PendingReport,
		s.Language,
		s.LastMessage,
		s.CreatedAt,
		s.UpdatedAt,
	)
	return err
}

const ticketColumns = `id, property_id, phone_number, description_raw, description_clean, is_common_area,
       unit_id, intent_category, intent_source, intent_confidence, embedding, is_duplicate,
       duplicate_of, related_to, status, diagnosis_fee, images, language, awaiting_user_reply,
       created_at, updated_at`

func (p *Postgres) GetTicket(ctx context.Context, propertyID, ticketID string) (Ticket, error) {
	q := `SELECT ` + ticketColumns + `
FROM tickets
WHERE property_id = $1 AND id = $2
`
	t, err := scanTicket(p.q.QueryRowContext(ctx, q, propertyID, ticketID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Ticket{}, ErrNotFound
		}
		return Ticket{}, err
	}
	return t, nil
}

func (p *Postgres) CreateTicket(ctx context.Context, t Ticket) error {
	if t.ID == "" || t.PropertyID == "" {
		return ErrInvalidInput
	}
	emb, images, err := encodeTicketJSON(t)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO tickets (
  id, property_id, phone_number, description_raw, description_clean, is_common_area,
  unit_id, intent_category, intent_source, intent_confidence, embedding, is_duplicate,
  duplicate_of, related_to, status, diagnosis_fee, images, language, awaiting_user_reply,
  created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11::jsonb,$12,$13,$14,$15,$16,$17::jsonb,$18,$19,$20,$21
)
`
	_, err = p.q.ExecContext(ctx, q,
		t.ID,
		t.PropertyID,
		t.Phone,
		t.DescriptionRaw,
		t.DescriptionClean,
		t.IsCommonArea,
		t.UnitID,
		t.IntentCategory,
		t.IntentSource,
		t.IntentConfidence,
		emb,
		t.IsDuplicate,
		t.DuplicateOf,
		t.RelatedTo,
		t.Status,
		t.DiagnosisFee,
		images,
		t.Language,
		t.AwaitingUserReply,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: ticket %s", ErrConflict, t.ID)
	}
	return err
}

// UpdateTicket writes the fields the conversation owns. Status is only moved
// forward from new or open so collaborators' transitions (paid, assigned) are
// never overwritten.
func (p *Postgres) UpdateTicket(ctx context.Context, t Ticket) error {
	emb, images, err := encodeTicketJSON(t)
	if err != nil {
		return err
	}
	const q = `
UPDATE tickets
SET description_raw = $3,
    description_clean = $4,
    is_common_area = $5,
    unit_id = $6,
    intent_category = $7,
    intent_source = $8,
    intent_confidence = $9,
    embedding = $10::jsonb,
    is_duplicate = $11,
    duplicate_of = $12,
    related_to = $13,
    status = CASE WHEN status IN ('new', 'open') THEN $14 ELSE status END,
    diagnosis_fee = $15,
    images = $16::jsonb,
    awaiting_user_reply = $17,
    updated_at = $18
WHERE property_id = $1 AND id = $2
`
	n, err := utils.RowsAffected(p.q.ExecContext(ctx, q,
		t.PropertyID,
		t.ID,
		t.DescriptionRaw,
		t.DescriptionClean,
		t.IsCommonArea,
		t.UnitID,
		t.IntentCategory,
		t.IntentSource,
		t.IntentConfidence,
		emb,
		t.IsDuplicate,
		t.DuplicateOf,
		t.RelatedTo,
		t.Status,
		t.DiagnosisFee,
		images,
		t.AwaitingUserReply,
		t.UpdatedAt,
	))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListOpenTickets(ctx context.Context, propertyID, excludeID string) ([]Ticket, error) {
	q := `SELECT ` + ticketColumns + `
FROM tickets
WHERE property_id = $1
  AND id <> $2
  AND embedding IS NOT NULL
  AND status NOT IN ('completed', 'cancelled')
ORDER BY created_at ASC
`
	rows, err := p.q.QueryContext(ctx, q, propertyID, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) LookupResident(ctx context.Context, propertyID, phone string) (Resident, error) {
	const q = `
SELECT property_id, phone_number, unit_id, approved
FROM residents
WHERE property_id = $1 AND phone_number = $2
`
	var r Resident
	if err := p.q.QueryRowContext(ctx, q, propertyID, phone).Scan(
		&r.PropertyID,
		&r.Phone,
		&r.UnitID,
		&r.Approved,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Resident{}, ErrNotFound
		}
		return Resident{}, err
	}
	return r, nil
}

func (p *Postgres) ResolveProperty(ctx context.Context, channelNumber string) (string, error) {
	const q = `
SELECT id
FROM properties
WHERE channel_number = $1
`
	var id string
	if err := p.q.QueryRowContext(ctx, q, channelNumber).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return id, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (Ticket, error) {
	var t Ticket
	var unit, dup, rel sql.NullString
	var emb, images []byte
	if err := row.Scan(
		&t.ID,
		&t.PropertyID,
		&t.Phone,
		&t.DescriptionRaw,
		&t.DescriptionClean,
		&t.IsCommonArea,
		&unit,
		&t.IntentCategory,
		&t.IntentSource,
		&t.IntentConfidence,
		&emb,
		&t.IsDuplicate,
		&dup,
		&rel,
		&t.Status,
		&t.DiagnosisFee,
		&images,
		&t.Language,
		&t.AwaitingUserReply,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return Ticket{}, err
	}
	t.UnitID = nullToPtr(unit)
	t.DuplicateOf = nullToPtr(dup)
	t.RelatedTo = nullToPtr(rel)
	if len(emb) > 0 {
		if err := json.Unmarshal(emb, &t.Embedding); err != nil {
			return Ticket{}, fmt.Errorf("decode embedding: %w", err)
		}
	}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &t.Images); err != nil {
			return Ticket{}, fmt.Errorf("decode images: %w", err)
		}
	}
	return t, nil
}

// encodeTicketJSON returns the JSONB parameters; a missing embedding is stored as NULL.
func encodeTicketJSON(t Ticket) (any, string, error) {
	var emb any
	if len(t.Embedding) > 0 {
		b, err := json.Marshal(t.Embedding)
		if err != nil {
			return nil, "", err
		}
		emb = string(b)
	}
	images := t.Images
	if images == nil {
		images = []string{}
	}
	b, err := json.Marshal(images)
	if err != nil {
		return nil, "", err
	}
	return emb, string(b), nil
}

func nullToPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

// isUniqueViolation reports a Postgres unique_violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
