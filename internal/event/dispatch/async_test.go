package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestAsyncDispatcherLifecycle(t *testing.T) {
	d := NewAsyncDispatcher(WithWorkerCount(2), WithQueueSize(8))

	if err := d.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if err := d.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() = %v, want ErrAlreadyRunning", err)
	}

	if err := d.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	if err := d.Stop(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Stop() = %v, want ErrNotRunning", err)
	}
}

func TestAsyncDispatcherEnqueueWhenStopped(t *testing.T) {
	d := NewAsyncDispatcher()
	err := d.Enqueue(context.Background(), "ev", []Handler{
		funcHandler(func(ctx context.Context, event any) error { return nil }),
	})
	if !errors.Is(err, ErrNotRunning) {
		t.Errorf("Enqueue on stopped dispatcher = %v, want ErrNotRunning", err)
	}
}

func TestAsyncDispatcherRunsChainInOrder(t *testing.T) {
	d := NewAsyncDispatcher(WithWorkerCount(4))
	if err := d.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	handlers := make([]Handler, 3)
	for i := range handlers {
		i := i
		handlers[i] = funcHandler(func(ctx context.Context, event any) error {
			mu.Lock()
			order = append(order, i)
			finished := len(order) == len(handlers)
			mu.Unlock()
			if finished {
				close(done)
			}
			return nil
		})
	}

	if err := d.Enqueue(context.Background(), "ev", handlers); err != nil {
		t.Fatalf("Enqueue() = %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handlers did not run")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, got := range order {
		if got != i {
			t.Fatalf("execution order = %v, want sequential", order)
		}
	}

	if err := d.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
}

func TestAsyncDispatcherQueueFull(t *testing.T) {
	d := NewAsyncDispatcher(WithWorkerCount(1), WithQueueSize(1))
	if err := d.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	defer d.Stop(context.Background())

	block := make(chan struct{})
	blocking := []Handler{funcHandler(func(ctx context.Context, event any) error {
		<-block
		return nil
	})}
	noop := []Handler{funcHandler(func(ctx context.Context, event any) error { return nil })}

	// First job occupies the worker, second fills the queue.
	if err := d.Enqueue(context.Background(), "a", blocking); err != nil {
		t.Fatalf("first Enqueue() = %v", err)
	}

	// The worker may not have picked up the first job yet, so fill until
	// the queue rejects.
	deadline := time.After(2 * time.Second)
	for {
		err := d.Enqueue(context.Background(), "b", noop)
		if errors.Is(err, ErrQueueFull) {
			break
		}
		if err != nil {
			t.Fatalf("Enqueue() = %v", err)
		}
		select {
		case <-deadline:
			t.Fatal("queue never filled")
		default:
		}
	}

	close(block)
}

func TestAsyncDispatcherStopDrainsQueue(t *testing.T) {
	d := NewAsyncDispatcher(WithWorkerCount(1), WithQueueSize(16))
	if err := d.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}

	var mu sync.Mutex
	count := 0
	h := []Handler{funcHandler(func(ctx context.Context, event any) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})}

	const jobs = 10
	for i := 0; i < jobs; i++ {
		if err := d.Enqueue(context.Background(), i, h); err != nil {
			t.Fatalf("Enqueue(%d) = %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Stop() = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if count != jobs {
		t.Errorf("processed %d jobs before stop returned, want %d", count, jobs)
	}
}
