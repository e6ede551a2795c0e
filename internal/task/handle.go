package task

import (
	"context"
	"sync"
)

// Handle represents one in-flight background invocation. It is held in
// the runner's active-task set from submission until its terminal
// callback has returned, guaranteeing the worker goroutine and its
// callbacks are not reclaimed mid-flight. A handle reaches its
// terminal state exactly once.
type Handle struct {
	id   string
	name string

	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	result any
	err    error
}

// ID returns the unique task identifier.
func (h *Handle) ID() string {
	return h.id
}

// Name returns the optional task name given at submission.
func (h *Handle) Name() string {
	return h.name
}

// Done returns a channel closed after the terminal callback has run.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the task reaches its terminal state or the
// context is cancelled.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result returns the task's result. Valid only after Done is closed.
func (h *Handle) Result() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

// Err returns the task's error, if any. Valid only after Done is closed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// complete records the terminal state and runs fn exactly once.
// Subsequent calls are ignored, which makes double completion
// structurally impossible.
func (h *Handle) complete(result any, err error, fn func()) {
	h.once.Do(func() {
		h.mu.Lock()
		h.result = result
		h.err = err
		h.mu.Unlock()
		if fn != nil {
			fn()
		}
		close(h.done)
	})
}
