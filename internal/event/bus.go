package event

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/bsundem/Heimdall/internal/event/dispatch"
)

// Bus is the central event bus interface.
type Bus interface {
	// Publishing
	Publish(ctx context.Context, ev Event) error
	PublishAsync(ctx context.Context, ev Event) error

	// Subscription
	Subscribe(evType Type, handler Handler, opts ...SubscriptionOption) (*Subscription, error)
	SubscribeFunc(evType Type, fn HandlerFunc, opts ...SubscriptionOption) (*Subscription, error)
	Unsubscribe(sub *Subscription) error
	UnsubscribeHandler(evType Type, handler Handler) int

	// Lifecycle
	Start() error
	Stop(ctx context.Context) error

	// Status
	Stats() Stats
	IsRunning() bool
}

// busConfig holds bus construction options.
type busConfig struct {
	logger           *zap.Logger
	asyncQueueSize   int
	asyncWorkerCount int
	defaultTimeout   time.Duration
}

func defaultBusConfig() busConfig {
	return busConfig{
		logger:           zap.NewNop(),
		asyncQueueSize:   1024,
		asyncWorkerCount: 4,
		defaultTimeout:   5 * time.Second,
	}
}

// BusOption configures a Bus.
type BusOption func(*busConfig)

// WithLogger sets the logger used for contained handler failures.
func WithLogger(log *zap.Logger) BusOption {
	return func(c *busConfig) {
		if log != nil {
			c.logger = log
		}
	}
}

// WithAsyncQueueSize sets the async dispatch queue capacity.
func WithAsyncQueueSize(size int) BusOption {
	return func(c *busConfig) {
		c.asyncQueueSize = size
	}
}

// WithAsyncWorkerCount sets the number of async dispatch workers.
func WithAsyncWorkerCount(count int) BusOption {
	return func(c *busConfig) {
		c.asyncWorkerCount = count
	}
}

// WithHandlerTimeout sets the per-handler timeout on the async path.
func WithHandlerTimeout(d time.Duration) BusOption {
	return func(c *busConfig) {
		c.defaultTimeout = d
	}
}

// bus is the default Bus implementation.
type bus struct {
	registry *Registry
	logger   *zap.Logger

	syncDispatcher  *dispatch.SyncDispatcher
	asyncDispatcher *dispatch.AsyncDispatcher

	running atomic.Bool

	// Stats
	eventsPublished atomic.Uint64
	eventsDelivered atomic.Uint64
	eventsDropped   atomic.Uint64
	handlerErrors   atomic.Uint64
	handlerPanics   atomic.Uint64
}

// NewBus creates a new event bus with the given options.
func NewBus(opts ...BusOption) Bus {
	config := defaultBusConfig()
	for _, opt := range opts {
		opt(&config)
	}

	b := &bus{
		registry: NewRegistry(),
		logger:   config.logger,
	}

	panicHandler := func(ev any, panicValue any, _ []byte) {
		b.handlerPanics.Add(1)
		evType := Type("")
		if e, ok := ev.(Event); ok {
			evType = e.Type
		}
		b.logger.Error("event handler panicked",
			zap.String("type", string(evType)),
			zap.Any("panic", panicValue))
	}

	b.syncDispatcher = dispatch.NewSyncDispatcher(
		dispatch.WithPanicHandler(panicHandler),
	)

	b.asyncDispatcher = dispatch.NewAsyncDispatcher(
		dispatch.WithQueueSize(config.asyncQueueSize),
		dispatch.WithWorkerCount(config.asyncWorkerCount),
		dispatch.WithAsyncTimeout(config.defaultTimeout),
		dispatch.WithAsyncPanicHandler(panicHandler),
	)

	return b
}

// Start starts the event bus. It must be called once before publishing.
func (b *bus) Start() error {
	if b.running.Load() {
		return ErrBusAlreadyRunning
	}
	if err := b.asyncDispatcher.Start(); err != nil {
		return err
	}
	b.running.Store(true)
	return nil
}

// Stop stops the event bus gracefully, draining pending async work
// until the context expires, then drops every subscription. The bus
// must not be published to afterwards.
func (b *bus) Stop(ctx context.Context) error {
	if !b.running.Swap(false) {
		return ErrBusNotRunning
	}
	err := b.asyncDispatcher.Stop(ctx)
	b.registry.Clear()
	return err
}

// IsRunning returns true if the bus is running.
func (b *bus) IsRunning() bool {
	return b.running.Load()
}

// Publish delivers an event synchronously: every matching handler runs
// on the calling goroutine in descending priority order. A handler
// error or panic is logged and delivery continues with the remaining
// handlers.
func (b *bus) Publish(ctx context.Context, ev Event) error {
	if !b.running.Load() {
		return ErrBusNotRunning
	}
	if ev.Type == "" {
		return ErrInvalidEvent
	}

	subs := b.registry.MatchActive(ev.Type)
	if len(subs) == 0 {
		return nil
	}

	b.eventsPublished.Add(1)

	for _, sub := range subs {
		result := b.syncDispatcher.Dispatch(ctx, ev, adaptHandler(sub.Handler()))

		switch {
		case result.Panicked:
			// Counted and logged by the panic handler.
		case result.Error != nil:
			b.handlerErrors.Add(1)
			b.logger.Warn("event handler failed",
				zap.String("type", string(ev.Type)),
				zap.String("subscription", sub.ID()),
				zap.Error(&HandlerError{SubscriptionID: sub.ID(), Type: ev.Type, Err: result.Error}))
		case result.Success:
			b.eventsDelivered.Add(1)
		}
	}

	return nil
}

// PublishAsync queues the event's full priority-ordered handler chain
// for execution on the worker pool. Handlers for this event still run
// sequentially in priority order, off the caller's goroutine; no order
// is guaranteed relative to other publishes or to the sync path.
// Returns ErrQueueFull when the bounded queue rejects the publish.
func (b *bus) PublishAsync(ctx context.Context, ev Event) error {
	if !b.running.Load() {
		return ErrBusNotRunning
	}
	if ev.Type == "" {
		return ErrInvalidEvent
	}

	subs := b.registry.MatchActive(ev.Type)
	if len(subs) == 0 {
		return nil
	}

	b.eventsPublished.Add(1)

	handlers := make([]dispatch.Handler, len(subs))
	for i, sub := range subs {
		handlers[i] = adaptHandler(sub.Handler())
	}

	if err := b.asyncDispatcher.Enqueue(ctx, ev, handlers); err != nil {
		b.eventsDropped.Add(1)
		b.logger.Warn("async publish dropped",
			zap.String("type", string(ev.Type)),
			zap.Error(err))
		return ErrQueueFull
	}
	return nil
}

// Subscribe registers a handler for an event type. The same handler
// may be registered multiple times and is invoked once per
// registration.
func (b *bus) Subscribe(evType Type, handler Handler, opts ...SubscriptionOption) (*Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if evType == "" {
		return nil, ErrInvalidType
	}

	sub := &Subscription{
		id:       newSubscriptionID(),
		evType:   evType,
		handler:  handler,
		priority: PriorityNormal,
	}
	for _, opt := range opts {
		opt(sub)
	}

	b.registry.Add(sub)
	return sub, nil
}

// SubscribeFunc is a convenience method for subscribing with a function handler.
func (b *bus) SubscribeFunc(evType Type, fn HandlerFunc, opts ...SubscriptionOption) (*Subscription, error) {
	if fn == nil {
		return nil, ErrNilHandler
	}
	return b.Subscribe(evType, fn, opts...)
}

// Unsubscribe removes a single subscription.
func (b *bus) Unsubscribe(sub *Subscription) error {
	if sub == nil {
		return ErrInvalidSubscription
	}

	sub.Cancel()
	if !b.registry.Remove(sub.ID()) {
		return ErrSubscriptionNotFound
	}
	return nil
}

// UnsubscribeHandler removes every registration of the handler for the
// event type. Removing a handler that was never registered is a no-op,
// not an error; the count of removed registrations is returned.
func (b *bus) UnsubscribeHandler(evType Type, handler Handler) int {
	return b.registry.RemoveHandler(evType, handler)
}

// Stats returns current bus statistics.
func (b *bus) Stats() Stats {
	asyncStats := b.asyncDispatcher.Stats()

	return Stats{
		EventsPublished:   b.eventsPublished.Load(),
		EventsDelivered:   b.eventsDelivered.Load() + asyncStats.Succeeded,
		EventsDropped:     b.eventsDropped.Load(),
		HandlerErrors:     b.handlerErrors.Load() + asyncStats.Failed,
		HandlerPanics:     b.handlerPanics.Load(),
		ActiveSubscribers: b.registry.CountActive(),
		QueueDepth:        asyncStats.QueueDepth,
	}
}

// handlerAdapter bridges the typed event.Handler onto the type-erased
// dispatch.Handler contract.
type handlerAdapter struct {
	h Handler
}

func adaptHandler(h Handler) dispatch.Handler {
	return handlerAdapter{h: h}
}

// Handle implements dispatch.Handler.
func (a handlerAdapter) Handle(ctx context.Context, ev any) error {
	e, ok := ev.(Event)
	if !ok {
		return nil
	}
	return a.h.Handle(ctx, e)
}
