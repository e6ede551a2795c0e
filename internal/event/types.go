package event

import "context"

// Priority determines handler execution order within one publish.
// Higher values execute first; the default for new subscriptions is
// PriorityNormal (0).
type Priority int

const (
	// PriorityLow is for handlers that should run last (metrics, logging).
	PriorityLow Priority = -100

	// PriorityNormal is the default priority for plugins and host code.
	PriorityNormal Priority = 0

	// PriorityHigh is for handlers that must observe events early.
	PriorityHigh Priority = 100

	// PriorityCritical is for core infrastructure that must run first.
	PriorityCritical Priority = 200
)

// String returns a human-readable priority name.
func (p Priority) String() string {
	switch {
	case p >= PriorityCritical:
		return "critical"
	case p >= PriorityHigh:
		return "high"
	case p >= PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

// Handler is the interface for event handlers.
type Handler interface {
	// Handle processes an event. A returned error is logged by the bus
	// and contained; it never aborts delivery to other handlers.
	Handle(ctx context.Context, ev Event) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, ev Event) error

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Stats contains event bus statistics.
type Stats struct {
	// EventsPublished is the total number of events published.
	EventsPublished uint64

	// EventsDelivered is the total number of successful handler deliveries.
	EventsDelivered uint64

	// EventsDropped is the number of async publishes dropped (queue full).
	EventsDropped uint64

	// HandlerErrors is the number of handlers that returned errors.
	HandlerErrors uint64

	// HandlerPanics is the number of handlers that panicked.
	HandlerPanics uint64

	// ActiveSubscribers is the current number of active subscriptions.
	ActiveSubscribers int

	// QueueDepth is the current async queue depth.
	QueueDepth int
}
