package task

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Func is a task body. It receives the submission context and returns
// a result or an error. Cancellation is cooperative: a body that
// ignores ctx runs to completion regardless.
type Func func(ctx context.Context) (any, error)

// Deliverer executes a terminal callback. The default runs it on the
// worker goroutine; a UI host can install one that marshals onto its
// primary goroutine to keep callback thread-affinity.
type Deliverer func(fn func())

// Runner executes task bodies on dedicated goroutines, bounded by a
// concurrency limit. Submissions beyond the limit are rejected with
// ErrSaturated rather than queued, which keeps backpressure visible to
// the caller.
type Runner struct {
	mu     sync.Mutex
	active map[string]*Handle

	sem     chan struct{}
	logger  *zap.Logger
	deliver Deliverer
	wg      sync.WaitGroup
	closed  atomic.Bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxConcurrent sets the maximum number of concurrently running tasks.
func WithMaxConcurrent(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.sem = make(chan struct{}, n)
		}
	}
}

// WithRunnerLogger sets the logger used for the default error surface.
func WithRunnerLogger(log *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if log != nil {
			r.logger = log
		}
	}
}

// WithDeliverer sets the callback delivery mechanism.
func WithDeliverer(d Deliverer) RunnerOption {
	return func(r *Runner) {
		if d != nil {
			r.deliver = d
		}
	}
}

// NewRunner creates a task runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		active:  make(map[string]*Handle),
		sem:     make(chan struct{}, 32),
		logger:  zap.NewNop(),
		deliver: func(fn func()) { fn() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// submitConfig holds per-submission options.
type submitConfig struct {
	name       string
	onComplete func(result any)
	onError    func(err error)
}

// SubmitOption configures a single submission.
type SubmitOption func(*submitConfig)

// WithName attaches a human-readable name to the task for logging.
func WithName(name string) SubmitOption {
	return func(c *submitConfig) {
		c.name = name
	}
}

// WithOnComplete sets the success callback. It is invoked exactly once
// with the task's result.
func WithOnComplete(fn func(result any)) SubmitOption {
	return func(c *submitConfig) {
		c.onComplete = fn
	}
}

// WithOnError sets the failure callback. It is invoked exactly once
// with the task's error. Without it, failures are logged at Error
// level so they are never silent.
func WithOnError(fn func(err error)) SubmitOption {
	return func(c *submitConfig) {
		c.onError = fn
	}
}

// Submit schedules fn for execution on its own goroutine and returns
// immediately with a Handle. The handle stays in the active-task set
// until its terminal callback has returned.
func (r *Runner) Submit(ctx context.Context, fn Func, opts ...SubmitOption) (*Handle, error) {
	if r.closed.Load() {
		return nil, ErrRunnerClosed
	}
	if fn == nil {
		return nil, ErrNilFunc
	}

	cfg := submitConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	select {
	case r.sem <- struct{}{}:
	default:
		return nil, ErrSaturated
	}

	h := &Handle{
		id:   uuid.NewString(),
		name: cfg.name,
		done: make(chan struct{}),
	}

	r.mu.Lock()
	r.active[h.id] = h
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(ctx, fn, h, cfg)

	return h, nil
}

// run executes the task body and delivers the terminal callback.
func (r *Runner) run(ctx context.Context, fn Func, h *Handle, cfg submitConfig) {
	defer r.wg.Done()
	defer func() { <-r.sem }()

	result, err := r.invoke(ctx, fn, h, cfg.name)

	h.complete(result, err, func() {
		r.deliver(func() {
			defer r.remove(h.id)

			if err != nil {
				if cfg.onError != nil {
					cfg.onError(err)
					return
				}
				// No error callback installed: failures must still be
				// visible somewhere.
				r.logger.Error("background task failed",
					zap.String("task", h.id),
					zap.String("name", cfg.name),
					zap.Error(err))
				return
			}
			if cfg.onComplete != nil {
				cfg.onComplete(result)
			}
		})
	})
}

// invoke runs the task body with panic containment.
func (r *Runner) invoke(ctx context.Context, fn Func, h *Handle, name string) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = &TaskError{
				TaskID:   h.id,
				Name:     name,
				Err:      fmt.Errorf("%v", rec),
				Panicked: true,
			}
		}
	}()

	result, err = fn(ctx)
	if err != nil {
		err = &TaskError{TaskID: h.id, Name: name, Err: err}
	}
	return result, err
}

// remove drops a handle from the active set. Called exactly once per
// task, after its terminal callback has returned.
func (r *Runner) remove(id string) {
	r.mu.Lock()
	delete(r.active, id)
	r.mu.Unlock()
}

// ActiveCount returns the number of in-flight tasks.
func (r *Runner) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Get returns an in-flight handle by ID.
func (r *Runner) Get(id string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.active[id]
	return h, ok
}

// Close rejects further submissions and waits for in-flight task
// bodies to finish or the context to expire. Running tasks are never
// interrupted.
func (r *Runner) Close(ctx context.Context) error {
	r.closed.Store(true)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
