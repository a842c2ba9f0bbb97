package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ticketCols = []string{
	"id", "property_id", "phone_number", "description_raw", "description_clean", "is_common_area",
	"unit_id", "intent_category", "intent_source", "intent_confidence", "embedding", "is_duplicate",
	"duplicate_of", "related_to", "status", "diagnosis_fee", "images", "language", "awaiting_user_reply",
	"created_at", "updated_at",
}

func setupMockDB(t *testing.T) (*Postgres, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewPostgres(db), mock, func() { _ = db.Close() }
}

func TestPostgres_GetSession_NotFound(t *testing.T) {
	p, mock, done := setupMockDB(t)
	defer done()

	mock.ExpectQuery(`FROM conversation_sessions`).
		WithArgs("p1", "+601").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := p.GetSession(context.Background(), "p1", "+601")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetSession_MapsNullableTickets(t *testing.T) {
	p, mock, done := setupMockDB(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "property_id", "phone_number", "state", "current_ticket_id", "previous_ticket_id",
		"pending_report", "language", "last_message", "created_at", "updated_at",
	}).AddRow("s1", "p1", "+601", "preview", "t1", nil, "", "en", "pipe leaking", now, now)

	mock.ExpectQuery(`FROM conversation_sessions`).
		WithArgs("p1", "+601").
		WillReturnRows(rows)

	s, err := p.GetSession(context.Background(), "p1", "+601")
	require.NoError(t, err)
	require.NotNil(t, s.CurrentTicketID)
	assert.Equal(t, "t1", *s.CurrentTicketID)
	assert.Nil(t, s.PreviousTicketID)
	assert.Equal(t, "preview", s.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListOpenTickets_DecodesEmbeddings(t *testing.T) {
	p, mock, done := setupMockDB(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(ticketCols).
		AddRow("t1", "p1", "+601", "pipe leak", "Pipe leak", false,
			"A-1", "unit", "keyword", 1.0, []byte(`[0.5,0.25]`), false,
			nil, nil, "open", int64(30), []byte(`["https://img/1.jpg"]`), "en", false,
			now, now)

	mock.ExpectQuery(`FROM tickets`).
		WithArgs("p1", "t9").
		WillReturnRows(rows)

	got, err := p.ListOpenTickets(context.Background(), "p1", "t9")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []float32{0.5, 0.25}, got[0].Embedding)
	assert.Equal(t, []string{"https://img/1.jpg"}, got[0].Images)
	require.NotNil(t, got[0].UnitID)
	assert.Equal(t, "A-1", *got[0].UnitID)
	assert.Nil(t, got[0].DuplicateOf)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateTicket_NotFound(t *testing.T) {
	p, mock, done := setupMockDB(t)
	defer done()

	mock.ExpectExec(`UPDATE tickets`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := p.UpdateTicket(context.Background(), Ticket{ID: "t1", PropertyID: "p1", Status: TicketStatusOpen})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InTx_CommitsSessionAndTicket(t *testing.T) {
	p, mock, done := setupMockDB(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO tickets`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO conversation_sessions`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	now := time.Now().UTC()
	err := p.InTx(context.Background(), func(ctx context.Context, tx Store) error {
		if err := tx.CreateTicket(ctx, Ticket{ID: "t1", PropertyID: "p1", Status: TicketStatusNew, CreatedAt: now, UpdatedAt: now}); err != nil {
			return err
		}
		return tx.SaveSession(ctx, Session{ID: "s1", PropertyID: "p1", Phone: "+601", State: "preview", CurrentTicketID: StrPtr("t1"), CreatedAt: now, UpdatedAt: now})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LookupResident(t *testing.T) {
	p, mock, done := setupMockDB(t)
	defer done()

	mock.ExpectQuery(`FROM residents`).
		WithArgs("p1", "+601").
		WillReturnRows(sqlmock.NewRows([]string{"property_id", "phone_number", "unit_id", "approved"}).
			AddRow("p1", "+601", "A-1", true))

	r, err := p.LookupResident(context.Background(), "p1", "+601")
	require.NoError(t, err)
	assert.True(t, r.Approved)
	assert.Equal(t, "A-1", r.UnitID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateTicket_UniqueViolation(t *testing.T) {
	p, mock, done := setupMockDB(t)
	defer done()

	mock.ExpectExec(`INSERT INTO tickets`).WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key"})

	err := p.CreateTicket(context.Background(), Ticket{ID: "t1", PropertyID: "p1", Status: TicketStatusNew})
	assert.True(t, errors.Is(err, ErrConflict), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
