package eventstore

import (
	"context"

	"saga-transaction/internal/domain/events"
)

// EventStore is the append-only journal of saga lifecycle events
type EventStore interface {
	// SaveEvent appends an event to the journal
	SaveEvent(ctx context.Context, event events.Event) error
	// LoadEvents loads all events of one saga, keyed by transaction id, in append order
	LoadEvents(ctx context.Context, aggregateID string) ([]events.Event, error)
}
