package dedup

import (
	"context"
	"math"

	"resident-intake/internal/store"
)

// DefaultThreshold is the minimum cosine similarity for two tickets to be linked.
const DefaultThreshold = 0.85

// TicketLister is the read side of the store the detector needs.
type TicketLister interface {
	ListOpenTickets(ctx context.Context, propertyID, excludeID string) ([]store.Ticket, error)
}

// Result is the classification of a ticket against the open tickets of its property.
// At most one of DuplicateOf and RelatedTo is set.
type Result struct {
	IsDuplicate bool    `json:"is_duplicate"`
	DuplicateOf *string `json:"duplicate_of,omitempty"`
	RelatedTo   *string `json:"related_to,omitempty"`
	Score       float64 `json:"score,omitempty"`
}

// Matched reports whether any ticket reached the threshold.
func (r Result) Matched() bool { return r.DuplicateOf != nil || r.RelatedTo != nil }

// Detector links a new ticket to its single best match among open tickets.
//
// Rules:
// - Only tickets of the same property, other than the ticket itself, are compared.
// - The best score at or above the threshold wins; on an exact tie the older ticket wins.
// - A common-area report on either side, or the same unit on both, is a hard duplicate.
// - Otherwise the match is only related.
// - No embedding, or no match, yields an empty Result.
type Detector struct {
	threshold float64
}

func NewDetector(threshold float64) *Detector {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Detector{threshold: threshold}
}

func (d *Detector) Detect(ctx context.Context, src TicketLister, t store.Ticket) (Result, error) {
	if len(t.Embedding) == 0 {
		return Result{}, nil
	}
	candidates, err := src.ListOpenTickets(ctx, t.PropertyID, t.ID)
	if err != nil {
		return Result{}, err
	}

	var best *store.Ticket
	bestScore := 0.0
	for i := range candidates {
		c := &candidates[i]
		if c.ID == t.ID || c.PropertyID != t.PropertyID {
			continue
		}
		score := Cosine(t.Embedding, c.Embedding)
		if score < d.threshold {
			continue
		}
		if best == nil || score > bestScore {
			best, bestScore = c, score
		}
	}
	if best == nil {
		return Result{}, nil
	}

	id := best.ID
	if t.IsCommonArea || best.IsCommonArea || sameUnit(t, *best) {
		return Result{IsDuplicate: true, DuplicateOf: &id, Score: bestScore}, nil
	}
	return Result{RelatedTo: &id, Score: bestScore}, nil
}

// Apply copies the result onto t, clearing any previous link.
func (r Result) Apply(t *store.Ticket) {
	t.IsDuplicate = r.IsDuplicate
	t.DuplicateOf = r.DuplicateOf
	t.RelatedTo = r.RelatedTo
}

func sameUnit(a, b store.Ticket) bool {
	return a.UnitID != nil && b.UnitID != nil && *a.UnitID == *b.UnitID
}

// Cosine returns the cosine similarity of a and b, or 0 when they differ in
// length or either has zero magnitude.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
