package dispatch

import (
	"context"
	"runtime/debug"
	"time"
)

// Handler is the execution contract the dispatchers operate on.
// The event parameter is type-erased; the event package adapts its
// concrete Event type onto this.
type Handler interface {
	Handle(ctx context.Context, event any) error
}

// PanicHandler is called when a handler panics during execution.
type PanicHandler func(event any, panicValue any, stack []byte)

// defaultPanicHandler discards the panic. Panic isolation still holds;
// callers that want visibility install their own handler.
func defaultPanicHandler(event any, panicValue any, stack []byte) {}

// Result describes the outcome of a single handler execution.
type Result struct {
	// Success is true if the handler completed without error or panic.
	Success bool

	// Error is the error returned by the handler, if any.
	Error error

	// Panicked is true if the handler panicked.
	Panicked bool

	// PanicValue is the value passed to panic(), if Panicked.
	PanicValue any

	// PanicStack is the stack trace captured at panic time.
	PanicStack []byte

	// Skipped is true if the handler was never run (context cancelled).
	Skipped bool

	// Duration is the wall time spent in the handler.
	Duration time.Duration
}

// IsSuccess returns true if the handler ran to completion successfully.
func (r Result) IsSuccess() bool {
	return r.Success
}

// IsError returns true if the handler returned an error (panics excluded).
func (r Result) IsError() bool {
	return !r.Success && r.Error != nil && !r.Panicked && !r.Skipped
}

// Executor handles the actual execution of event handlers with
// panic recovery and timing.
type Executor struct {
	panicHandler PanicHandler
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorPanicHandler sets the panic handler for the executor.
func WithExecutorPanicHandler(h PanicHandler) ExecutorOption {
	return func(e *Executor) {
		e.panicHandler = h
	}
}

// NewExecutor creates a new executor with the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		panicHandler: defaultPanicHandler,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs a handler with the given event and returns the result.
// It recovers from panics and captures timing information.
func (e *Executor) Execute(ctx context.Context, event any, handler Handler) (result Result) {
	// Check context before starting
	select {
	case <-ctx.Done():
		return Result{
			Success: false,
			Error:   ctx.Err(),
			Skipped: true,
		}
	default:
	}

	start := time.Now()

	defer func() {
		result.Duration = time.Since(start)

		if r := recover(); r != nil {
			stack := debug.Stack()

			result.Success = false
			result.Panicked = true
			result.PanicValue = r
			result.PanicStack = stack

			// Protect the panic handler call - don't let it crash the process
			if e.panicHandler != nil {
				func() {
					defer func() {
						_ = recover()
					}()
					e.panicHandler(event, r, stack)
				}()
			}
		}
	}()

	err := handler.Handle(ctx, event)

	if err != nil {
		result.Success = false
		result.Error = err
	} else {
		result.Success = true
	}

	return result
}

// ExecuteWithTimeout runs a handler with a timeout.
// The handler must respect context cancellation for this to be effective.
func (e *Executor) ExecuteWithTimeout(ctx context.Context, event any, handler Handler, timeout time.Duration) Result {
	if timeout <= 0 {
		return e.Execute(ctx, event, handler)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return e.Execute(ctx, event, handler)
}

// ExecuteAll runs multiple handlers sequentially and returns all results.
// A handler failure does not stop execution of the remaining handlers;
// only context cancellation does, marking the rest as skipped.
func (e *Executor) ExecuteAll(ctx context.Context, event any, handlers []Handler) []Result {
	results := make([]Result, len(handlers))

	for i, handler := range handlers {
		select {
		case <-ctx.Done():
			for j := i; j < len(handlers); j++ {
				results[j] = Result{
					Success: false,
					Error:   ctx.Err(),
					Skipped: true,
				}
			}
			return results
		default:
		}

		results[i] = e.Execute(ctx, event, handler)
	}

	return results
}
