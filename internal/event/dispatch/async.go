package dispatch

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// AsyncDispatcher executes handler chains asynchronously using a
// bounded worker pool. One queued job carries the full ordered handler
// chain for a single event, so handlers for that event run
// sequentially in the order they were enqueued even though different
// events may interleave across workers.
type AsyncDispatcher struct {
	// Configuration
	queueSize   int
	workerCount int
	timeout     time.Duration

	// State
	mu      sync.Mutex // protects queue creation/destruction
	queue   chan asyncJob
	running atomic.Bool
	wg      sync.WaitGroup

	// Handlers
	panicHandler PanicHandler

	// Stats
	enqueued    atomic.Uint64
	processed   atomic.Uint64
	succeeded   atomic.Uint64
	failed      atomic.Uint64
	panicked    atomic.Uint64
	dropped     atomic.Uint64
	totalTimeNs atomic.Int64
}

// asyncJob is one event plus its ordered handler chain.
type asyncJob struct {
	ctx      context.Context
	event    any
	handlers []Handler
	timeout  time.Duration
}

// AsyncOption configures an AsyncDispatcher.
type AsyncOption func(*AsyncDispatcher)

// WithQueueSize sets the job queue size.
func WithQueueSize(size int) AsyncOption {
	return func(d *AsyncDispatcher) {
		if size > 0 {
			d.queueSize = size
		}
	}
}

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) AsyncOption {
	return func(d *AsyncDispatcher) {
		if count > 0 {
			d.workerCount = count
		}
	}
}

// WithAsyncTimeout sets the default per-handler execution timeout.
func WithAsyncTimeout(timeout time.Duration) AsyncOption {
	return func(d *AsyncDispatcher) {
		d.timeout = timeout
	}
}

// WithAsyncPanicHandler sets the panic handler for async execution.
func WithAsyncPanicHandler(h PanicHandler) AsyncOption {
	return func(d *AsyncDispatcher) {
		d.panicHandler = h
	}
}

// NewAsyncDispatcher creates a new asynchronous dispatcher.
func NewAsyncDispatcher(opts ...AsyncOption) *AsyncDispatcher {
	d := &AsyncDispatcher{
		queueSize:    1024,
		workerCount:  4,
		timeout:      5 * time.Second,
		panicHandler: defaultPanicHandler,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start starts the worker pool.
func (d *AsyncDispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running.Load() {
		return ErrAlreadyRunning
	}

	d.queue = make(chan asyncJob, d.queueSize)
	d.running.Store(true)

	for i := 0; i < d.workerCount; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	return nil
}

// Stop stops the worker pool gracefully.
// It waits for all queued jobs to complete or until the context is cancelled.
func (d *AsyncDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running.Load() {
		d.mu.Unlock()
		return ErrNotRunning
	}

	d.running.Store(false)
	// Close the queue to signal workers to stop
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue adds an event and its ordered handler chain to the queue.
// Returns ErrQueueFull if the queue is at capacity.
func (d *AsyncDispatcher) Enqueue(ctx context.Context, event any, handlers []Handler) error {
	if !d.running.Load() {
		return ErrNotRunning
	}
	if len(handlers) == 0 {
		return nil
	}

	job := asyncJob{
		ctx:      ctx,
		event:    event,
		handlers: handlers,
		timeout:  d.timeout,
	}

	select {
	case d.queue <- job:
		d.enqueued.Add(1)
		return nil
	default:
		d.dropped.Add(1)
		return ErrQueueFull
	}
}

// worker processes jobs from the queue.
func (d *AsyncDispatcher) worker() {
	defer d.wg.Done()

	executor := NewExecutor(WithExecutorPanicHandler(d.panicHandler))

	for job := range d.queue {
		d.executeJob(executor, job)
	}
}

// executeJob runs one event's handler chain sequentially with timeout
// and panic recovery.
func (d *AsyncDispatcher) executeJob(executor *Executor, job asyncJob) {
	d.processed.Add(1)
	start := time.Now()

	// Fallback recovery for panics that escape the executor (should be rare).
	defer func() {
		if r := recover(); r != nil {
			d.panicked.Add(1)
			if d.panicHandler != nil {
				stack := debug.Stack()
				func() {
					defer func() { _ = recover() }()
					d.panicHandler(job.event, r, stack)
				}()
			}
		}
		d.totalTimeNs.Add(time.Since(start).Nanoseconds())
	}()

	// Check if context is already cancelled
	select {
	case <-job.ctx.Done():
		d.failed.Add(uint64(len(job.handlers)))
		return
	default:
	}

	for _, handler := range job.handlers {
		var result Result
		if job.timeout > 0 {
			result = executor.ExecuteWithTimeout(job.ctx, job.event, handler, job.timeout)
		} else {
			result = executor.Execute(job.ctx, job.event, handler)
		}

		switch {
		case result.Skipped:
			d.failed.Add(1)
		case result.Panicked:
			d.panicked.Add(1)
		case result.Error != nil:
			d.failed.Add(1)
		case result.Success:
			d.succeeded.Add(1)
		}
	}
}

// QueueDepth returns the current number of jobs in the queue.
// Returns 0 if the dispatcher is not running.
func (d *AsyncDispatcher) QueueDepth() int {
	if !d.running.Load() {
		return 0
	}
	return len(d.queue)
}

// IsRunning returns true if the dispatcher is running.
func (d *AsyncDispatcher) IsRunning() bool {
	return d.running.Load()
}

// Stats returns dispatcher statistics.
func (d *AsyncDispatcher) Stats() AsyncDispatcherStats {
	processed := d.processed.Load()
	totalNs := d.totalTimeNs.Load()

	var avgNs int64
	if processed > 0 {
		avgNs = totalNs / int64(processed)
	}

	return AsyncDispatcherStats{
		Enqueued:      d.enqueued.Load(),
		Processed:     processed,
		Succeeded:     d.succeeded.Load(),
		Failed:        d.failed.Load(),
		Panicked:      d.panicked.Load(),
		Dropped:       d.dropped.Load(),
		QueueDepth:    d.QueueDepth(),
		TotalDuration: time.Duration(totalNs),
		AvgDuration:   time.Duration(avgNs),
	}
}

// AsyncDispatcherStats contains statistics for an async dispatcher.
type AsyncDispatcherStats struct {
	// Enqueued is the total number of jobs added to the queue.
	Enqueued uint64

	// Processed is the number of jobs that have been processed.
	Processed uint64

	// Succeeded is the number of successful handler executions.
	Succeeded uint64

	// Failed is the number of handlers that returned errors or were skipped.
	Failed uint64

	// Panicked is the number of handlers that panicked.
	Panicked uint64

	// Dropped is the number of jobs dropped due to the queue being full.
	Dropped uint64

	// QueueDepth is the current number of jobs waiting in the queue.
	QueueDepth int

	// TotalDuration is the cumulative time spent processing jobs.
	TotalDuration time.Duration

	// AvgDuration is the average job processing time.
	AvgDuration time.Duration
}
