package event

import (
	"sort"
	"sync"
)

// Registry manages subscriptions organized by event type.
// It is thread-safe for concurrent access; a handler may safely
// unsubscribe itself during dispatch because Match hands out copies.
type Registry struct {
	mu   sync.RWMutex
	subs map[Type][]*Subscription
	byID map[string]*Subscription
	seq  uint64
}

// NewRegistry creates a new subscription registry.
func NewRegistry() *Registry {
	return &Registry{
		subs: make(map[Type][]*Subscription),
		byID: make(map[string]*Subscription),
	}
}

// Add inserts a subscription and re-sorts the list for its type by
// descending priority. The sort is stable on registration order, so
// equal-priority handlers keep their relative order.
func (r *Registry) Add(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	sub.seq = r.seq

	subs := append(r.subs[sub.evType], sub)
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].priority > subs[j].priority
	})
	r.subs[sub.evType] = subs

	r.byID[sub.id] = sub
}

// Remove removes a subscription by ID.
func (r *Registry) Remove(subID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, exists := r.byID[subID]
	if !exists {
		return false
	}

	subs := r.subs[sub.evType]
	for i, s := range subs {
		if s.id == subID {
			r.subs[sub.evType] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(r.subs[sub.evType]) == 0 {
		delete(r.subs, sub.evType)
	}

	delete(r.byID, subID)
	return true
}

// RemoveHandler removes every registration of the given handler for
// the given event type. Returns the number of subscriptions removed;
// zero is not an error.
func (r *Registry) RemoveHandler(evType Type, handler Handler) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.subs[evType]
	if len(subs) == 0 {
		return 0
	}

	kept := subs[:0]
	removed := 0
	for _, s := range subs {
		if handlerEqual(s.handler, handler) {
			delete(r.byID, s.id)
			removed++
			continue
		}
		kept = append(kept, s)
	}

	if len(kept) == 0 {
		delete(r.subs, evType)
	} else {
		r.subs[evType] = kept
	}
	return removed
}

// Get returns a subscription by ID.
func (r *Registry) Get(subID string) (*Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, exists := r.byID[subID]
	return sub, exists
}

// MatchActive returns the active subscriptions for an event type in
// priority order. The result is a copy, safe to iterate while
// subscriptions mutate the registry.
func (r *Registry) MatchActive(evType Type) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.subs[evType]
	if len(subs) == 0 {
		return nil
	}

	result := make([]*Subscription, 0, len(subs))
	for _, sub := range subs {
		if sub.IsActive() {
			result = append(result, sub)
		}
	}
	return result
}

// Count returns the total number of subscriptions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byID)
}

// CountByType returns the number of subscriptions for an event type.
func (r *Registry) CountByType(evType Type) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.subs[evType])
}

// CountActive returns the number of active subscriptions.
func (r *Registry) CountActive() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, sub := range r.byID {
		if sub.IsActive() {
			count++
		}
	}
	return count
}

// Types returns all event types with registered subscriptions.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.subs) == 0 {
		return nil
	}

	types := make([]Type, 0, len(r.subs))
	for t := range r.subs {
		types = append(types, t)
	}
	return types
}

// Clear removes all subscriptions.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subs = make(map[Type][]*Subscription)
	r.byID = make(map[string]*Subscription)
}
