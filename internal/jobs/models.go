package jobs

import (
	"encoding/json"
	"time"
)

type Kind string

const (
	// KindMessage carries one inbound resident message.
	KindMessage Kind = "message"
	// KindClose is the operator command that closes a conversation.
	KindClose Kind = "close"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusProcessing, StatusDone, StatusFailed:
		return st, true
	}
	return "", false
}

// Job is one unit of conversation work for a phone number.
//
// Invariants:
// - Status moves pending -> processing -> done|failed; only Requeue moves failed back to pending.
// - At most one job per phone is processing at a time. The phone lock enforces this, not the queue.
//
// Storage (Postgres): table intake_jobs.
type Job struct {
	ID         string `json:"id" db:"id"`
	PropertyID string `json:"property_id" db:"property_id"`
	Phone      string `json:"phone_number" db:"phone_number"`

	Kind    Kind            `json:"kind" db:"kind"`
	Payload json.RawMessage `json:"payload,omitempty" db:"payload"`

	Status       Status `json:"status" db:"status"`
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`
	Attempts     int    `json:"attempts" db:"attempts"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// MessagePayload is the normalizer input of a message job.
type MessagePayload struct {
	Text     string `json:"text,omitempty"`
	VoiceRef string `json:"voice_ref,omitempty"`
	PhotoRef string `json:"photo_ref,omitempty"`
}
