package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("store: not found")
	ErrInvalidInput = errors.New("store: invalid input")
	// ErrConflict is returned when a row with the same identity already exists.
	ErrConflict = errors.New("store: conflict")
)

// Store is the persistence contract of the conversation engine.
//
// All reads and writes are property-scoped. InTx runs fn against a store bound
// to one transaction; either every write inside fn commits or none does.
type Store interface {
	GetSession(ctx context.Context, propertyID, phone string) (Session, error)
	SaveSession(ctx context.Context, s Session) error

	GetTicket(ctx context.Context, propertyID, ticketID string) (Ticket, error)
	CreateTicket(ctx context.Context, t Ticket) error
	UpdateTicket(ctx context.Context, t Ticket) error

	// ListOpenTickets returns tickets of the property that carry an embedding and
	// are not completed or cancelled, oldest first, excluding excludeID.
	ListOpenTickets(ctx context.Context, propertyID, excludeID string) ([]Ticket, error)

	LookupResident(ctx context.Context, propertyID, phone string) (Resident, error)

	// ResolveProperty maps the channel number a message was sent to onto a property.
	ResolveProperty(ctx context.Context, channelNumber string) (string, error)

	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
