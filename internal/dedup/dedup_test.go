package dedup

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"resident-intake/internal/store"
)

// vecAt returns a unit vector whose cosine similarity with (1, 0) is sim.
func vecAt(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

func seed(t *testing.T, m *store.Memory, tickets ...store.Ticket) {
	t.Helper()
	for _, tk := range tickets {
		if err := m.CreateTicket(context.Background(), tk); err != nil {
			t.Fatalf("seed %s: %v", tk.ID, err)
		}
	}
}

func unitTicket(id, unit string, emb []float32) store.Ticket {
	return store.Ticket{
		ID: id, PropertyID: "p1", UnitID: store.StrPtr(unit), Status: store.TicketStatusOpen,
		Embedding: emb, CreatedAt: time.Now(),
	}
}

func TestDetect_SameUnitIsDuplicate(t *testing.T) {
	m := store.NewMemory()
	first := unitTicket("t1", "A-1", []float32{1, 0})
	second := unitTicket("t2", "A-1", vecAt(0.9))
	seed(t, m, first, second)

	res, err := NewDetector(0.85).Detect(context.Background(), m, second)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if !res.IsDuplicate || store.Deref(res.DuplicateOf) != "t1" || res.RelatedTo != nil {
		t.Fatalf("expected duplicate of t1, got %+v", res)
	}
}

func TestDetect_DifferentUnitIsRelated(t *testing.T) {
	m := store.NewMemory()
	first := unitTicket("t1", "A-1", []float32{1, 0})
	second := unitTicket("t2", "B-7", vecAt(0.9))
	seed(t, m, first, second)

	res, err := NewDetector(0.85).Detect(context.Background(), m, second)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if res.IsDuplicate || res.DuplicateOf != nil || store.Deref(res.RelatedTo) != "t1" {
		t.Fatalf("expected related to t1, got %+v", res)
	}
}

func TestDetect_CommonAreaIsDuplicateAcrossUnits(t *testing.T) {
	m := store.NewMemory()
	first := store.Ticket{ID: "t1", PropertyID: "p1", IsCommonArea: true, Status: store.TicketStatusOpen, Embedding: []float32{1, 0}}
	second := unitTicket("t2", "B-7", vecAt(0.95))
	seed(t, m, first, second)

	res, _ := NewDetector(0.85).Detect(context.Background(), m, second)
	if !res.IsDuplicate || store.Deref(res.DuplicateOf) != "t1" {
		t.Fatalf("expected duplicate, got %+v", res)
	}
}

func TestDetect_BelowThresholdAndOtherPropertyIgnored(t *testing.T) {
	m := store.NewMemory()
	low := unitTicket("t1", "A-1", vecAt(0.5))
	other := unitTicket("t2", "A-1", []float32{1, 0})
	other.PropertyID = "p2"
	probe := unitTicket("t3", "A-1", []float32{1, 0})
	seed(t, m, low, other, probe)

	res, err := NewDetector(0.85).Detect(context.Background(), m, probe)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if res.Matched() {
		t.Fatalf("expected no match, got %+v", res)
	}
}

func TestDetect_BestScoreWinsAndTiesKeepOldest(t *testing.T) {
	m := store.NewMemory()
	seed(t, m,
		unitTicket("t1", "A-1", vecAt(0.9)),
		unitTicket("t2", "A-1", vecAt(0.97)),
		unitTicket("t3", "A-1", vecAt(0.97)),
	)
	probe := unitTicket("t4", "A-1", []float32{1, 0})

	res, _ := NewDetector(0.85).Detect(context.Background(), m, probe)
	if store.Deref(res.DuplicateOf) != "t2" {
		t.Fatalf("expected t2, got %+v", res)
	}
}

func TestDetect_NoEmbeddingSkipsLookup(t *testing.T) {
	res, err := NewDetector(0.85).Detect(context.Background(), failingLister{}, store.Ticket{ID: "t1", PropertyID: "p1"})
	if err != nil || res.Matched() {
		t.Fatalf("expected empty result without lookup, got %+v %v", res, err)
	}
}

type failingLister struct{}

func (failingLister) ListOpenTickets(ctx context.Context, propertyID, excludeID string) ([]store.Ticket, error) {
	return nil, errors.New("db down")
}

func TestCosine(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("expected 1, got %v", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
	if got := Cosine([]float32{1}, []float32{1, 0}); got != 0 {
		t.Fatalf("expected 0 on length mismatch, got %v", got)
	}
	if got := Cosine([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Fatalf("expected 0 on zero vector, got %v", got)
	}
}
