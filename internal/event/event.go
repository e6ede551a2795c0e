package event

import (
	"time"

	"github.com/google/uuid"
)

// Type is the routing key for events (e.g., "finance.data.ready").
// Routing uses exact string equality.
type Type string

// Event represents an event in the system.
// Events are immutable once created; handlers must not mutate the
// payload map.
type Event struct {
	// Type is the event type used for routing.
	Type Type

	// Payload contains the event-specific data.
	Payload map[string]any

	// Metadata contains standard event information.
	Metadata Metadata
}

// Metadata contains standard information attached to every event.
type Metadata struct {
	// ID is a unique identifier for this event instance.
	ID string

	// Timestamp is when the event was created.
	Timestamp time.Time

	// Source identifies the component that published the event.
	Source string
}

// New creates a new event with the given type, payload, and source.
// A nil payload is replaced with an empty map.
func New(eventType Type, payload map[string]any, source string) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{
		Type:    eventType,
		Payload: payload,
		Metadata: Metadata{
			ID:        uuid.NewString(),
			Timestamp: time.Now(),
			Source:    source,
		},
	}
}
