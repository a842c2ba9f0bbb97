package store

import "time"

// Session is the durable per-(property, phone) conversation cursor.
//
// Invariants:
// - At most one session per (PropertyID, Phone).
// - CurrentTicketID is set only in the preview, editing, awaiting_photo and confirmed states.
// - Sessions are never deleted; expiry resets them to idle.
type Session struct {
	ID         string `json:"id" db:"id"`
	PropertyID string `json:"property_id" db:"property_id"`
	Phone      string `json:"phone_number" db:"phone_number"`

	State string `json:"state" db:"state"`

	// CurrentTicketID points at a ticket without owning its lifecycle.
	CurrentTicketID *string `json:"current_ticket_id,omitempty" db:"current_ticket_id"`

	// PreviousTicketID remembers the ticket a closed conversation was about,
	// so the resident can continue it.
	PreviousTicketID *string `json:"previous_ticket_id,omitempty" db:"previous_ticket_id"`

	// PendingReport holds a compound report while the resident decides how to file it.
	PendingReport string `json:"pending_report,omitempty" db:"pending_report"`

	// Language is resolved once and kept until the session is reset.
	Language    string `json:"language" db:"language"`
	LastMessage string `json:"last_message" db:"last_message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "new"
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusPaid       TicketStatus = "paid"
	TicketStatusAssigned   TicketStatus = "assigned"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusCompleted  TicketStatus = "completed"
	TicketStatusCancelled  TicketStatus = "cancelled"
)

// Closed reports whether the ticket no longer takes part in duplicate matching.
func (s TicketStatus) Closed() bool {
	return s == TicketStatusCompleted || s == TicketStatusCancelled
}

// Ticket is a persisted maintenance issue.
//
// Invariants:
// - DuplicateOf and RelatedTo never point at the same ticket, and never at the ticket itself.
// - DiagnosisFee is nonzero only when UnitID is set.
type Ticket struct {
	ID         string `json:"id" db:"id"`
	PropertyID string `json:"property_id" db:"property_id"`
	Phone      string `json:"phone_number" db:"phone_number"`

	DescriptionRaw   string `json:"description_raw" db:"description_raw"`
	DescriptionClean string `json:"description_clean" db:"description_clean"`

	IsCommonArea bool    `json:"is_common_area" db:"is_common_area"`
	UnitID       *string `json:"unit_id,omitempty" db:"unit_id"`

	IntentCategory   string  `json:"intent_category" db:"intent_category"`
	IntentSource     string  `json:"intent_source" db:"intent_source"`
	IntentConfidence float64 `json:"intent_confidence" db:"intent_confidence"`

	Embedding []float32 `json:"-" db:"embedding"`

	IsDuplicate bool    `json:"is_duplicate" db:"is_duplicate"`
	DuplicateOf *string `json:"duplicate_of,omitempty" db:"duplicate_of"`
	RelatedTo   *string `json:"related_to,omitempty" db:"related_to"`

	Status       TicketStatus `json:"status" db:"status"`
	DiagnosisFee int64        `json:"diagnosis_fee" db:"diagnosis_fee"`

	Images            []string `json:"images,omitempty" db:"images"`
	Language          string   `json:"language" db:"language"`
	AwaitingUserReply bool     `json:"awaiting_user_reply" db:"awaiting_user_reply"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Resident is a phone number registered against a property.
type Resident struct {
	PropertyID string `json:"property_id" db:"property_id"`
	Phone      string `json:"phone_number" db:"phone_number"`
	UnitID     string `json:"unit_id" db:"unit_id"`
	Approved   bool   `json:"approved" db:"approved"`
}

// StrPtr returns a pointer to s, or nil for the empty string.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
