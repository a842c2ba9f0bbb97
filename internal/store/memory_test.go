package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemory_InTxRollsBackOnError(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	boom := errors.New("boom")

	err := m.InTx(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.CreateTicket(ctx, Ticket{ID: "t1", PropertyID: "p1", Status: TicketStatusNew}); err != nil {
			return err
		}
		if err := tx.SaveSession(ctx, Session{ID: "s1", PropertyID: "p1", Phone: "+601", State: "preview"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := m.GetTicket(ctx, "p1", "t1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ticket rolled back, got %v", err)
	}
	if _, err := m.GetSession(ctx, "p1", "+601"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected session rolled back, got %v", err)
	}
}

func TestMemory_InTxCommits(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.InTx(ctx, func(ctx context.Context, tx Store) error {
		return tx.CreateTicket(ctx, Ticket{ID: "t1", PropertyID: "p1", Status: TicketStatusNew})
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	if _, err := m.GetTicket(ctx, "p1", "t1"); err != nil {
		t.Fatalf("expected committed ticket, got %v", err)
	}
}

func TestMemory_FailWrites(t *testing.T) {
	m := NewMemory()
	boom := errors.New("db down")
	m.FailWrites(boom)
	if err := m.SaveSession(context.Background(), Session{ID: "s", PropertyID: "p", Phone: "n"}); !errors.Is(err, boom) {
		t.Fatalf("expected write failure, got %v", err)
	}
}

func TestMemory_ListOpenTicketsFilters(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()
	emb := []float32{1, 0}

	for _, tk := range []Ticket{
		{ID: "a", PropertyID: "p1", Status: TicketStatusOpen, Embedding: emb, CreatedAt: now},
		{ID: "b", PropertyID: "p1", Status: TicketStatusCancelled, Embedding: emb, CreatedAt: now},
		{ID: "c", PropertyID: "p2", Status: TicketStatusOpen, Embedding: emb, CreatedAt: now},
		{ID: "d", PropertyID: "p1", Status: TicketStatusNew, CreatedAt: now},
		{ID: "e", PropertyID: "p1", Status: TicketStatusNew, Embedding: emb, CreatedAt: now},
	} {
		if err := m.CreateTicket(ctx, tk); err != nil {
			t.Fatalf("create %s: %v", tk.ID, err)
		}
	}

	got, err := m.ListOpenTickets(ctx, "p1", "e")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("expected only ticket a, got %+v", got)
	}
}

func TestMemory_UpdateTicketKeepsCollaboratorStatus(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.CreateTicket(ctx, Ticket{ID: "t1", PropertyID: "p1", Status: TicketStatusPaid}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.UpdateTicket(ctx, Ticket{ID: "t1", PropertyID: "p1", Status: TicketStatusOpen, DescriptionClean: "x"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := m.GetTicket(ctx, "p1", "t1")
	if got.Status != TicketStatusPaid || got.DescriptionClean != "x" {
		t.Fatalf("unexpected ticket: %+v", got)
	}
}

func TestMemory_CreateTicketConflict(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	tk := Ticket{ID: "t1", PropertyID: "p1", Status: TicketStatusNew}
	if err := m.CreateTicket(ctx, tk); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.CreateTicket(ctx, tk); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if got := len(m.Tickets()); got != 1 {
		t.Fatalf("expected one ticket, got %d", got)
	}
}
