package event

import (
	"reflect"
	"sync/atomic"

	"github.com/google/uuid"
)

// newSubscriptionID generates a unique subscription identifier.
func newSubscriptionID() string {
	return uuid.NewString()
}

// Subscription represents one handler registration for an event type.
// The same handler may be registered any number of times; each
// registration is a distinct subscription and is invoked once per
// publish.
type Subscription struct {
	id       string
	evType   Type
	handler  Handler
	priority Priority
	seq      uint64 // registration order, breaks priority ties
	canceled atomic.Bool
}

// SubscriptionOption configures a subscription.
type SubscriptionOption func(*Subscription)

// WithPriority sets the subscription priority (higher values first).
func WithPriority(p Priority) SubscriptionOption {
	return func(s *Subscription) {
		s.priority = p
	}
}

// ID returns the unique subscription identifier.
func (s *Subscription) ID() string {
	return s.id
}

// EventType returns the subscribed event type.
func (s *Subscription) EventType() Type {
	return s.evType
}

// Priority returns the subscription priority.
func (s *Subscription) Priority() Priority {
	return s.priority
}

// Handler returns the subscription's handler.
func (s *Subscription) Handler() Handler {
	return s.handler
}

// IsActive returns true if the subscription can receive events.
func (s *Subscription) IsActive() bool {
	return !s.canceled.Load()
}

// Cancel permanently cancels the subscription. A cancelled
// subscription skips delivery even if still held by the registry.
func (s *Subscription) Cancel() {
	s.canceled.Store(true)
}

// handlerEqual reports whether two handlers are the same registration
// target. Function handlers compare by code pointer, so every
// HandlerFunc made from the same function value matches. Non-comparable
// handler types never match anything but themselves by identity.
func handlerEqual(a, b Handler) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va := reflect.ValueOf(a)
	vb := reflect.ValueOf(b)
	if va.Kind() == reflect.Func || vb.Kind() == reflect.Func {
		return va.Kind() == vb.Kind() && va.Pointer() == vb.Pointer()
	}
	if va.Comparable() && vb.Comparable() {
		return a == b
	}
	return false
}
