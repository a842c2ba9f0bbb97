package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - property_id is required.
// - Audit writes are best-effort; never block a conversation on them.
//
// Storage (Postgres): table audit_events, INSERT only.
type Event struct {
	ID         string `json:"id" db:"id"`
	PropertyID string `json:"property_id" db:"property_id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	Phone    string `json:"phone_number,omitempty" db:"phone_number"`
	TicketID string `json:"ticket_id,omitempty" db:"ticket_id"`

	// FromState and ToState are set for conversation transitions.
	FromState string `json:"from_state,omitempty" db:"from_state"`
	ToState   string `json:"to_state,omitempty" db:"to_state"`

	// Message is a short human-readable description for internal ops.
	// It never contains resident message text.
	Message string `json:"message,omitempty" db:"message"`

	// Actor fields are set for staff actions.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeTransition     EventType = "transition"
	EventTypeSessionExpired EventType = "session_expired"
	EventTypeAdminAction    EventType = "admin_action"
)
