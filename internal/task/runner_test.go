package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.Wait(ctx); err != nil {
		t.Fatalf("Wait() = %v", err)
	}
}

func TestRunnerOnCompleteExactlyOnce(t *testing.T) {
	r := NewRunner()

	var calls atomic.Int32
	var got any
	h, err := r.Submit(context.Background(),
		func(ctx context.Context) (any, error) { return 42, nil },
		WithOnComplete(func(result any) {
			calls.Add(1)
			got = result
		}),
	)
	if err != nil {
		t.Fatalf("Submit() = %v", err)
	}

	waitDone(t, h)

	if calls.Load() != 1 {
		t.Errorf("onComplete called %d times, want exactly 1", calls.Load())
	}
	if got != 42 {
		t.Errorf("onComplete result = %v, want 42", got)
	}
	if h.Result() != 42 {
		t.Errorf("Result() = %v, want 42", h.Result())
	}
	if h.Err() != nil {
		t.Errorf("Err() = %v, want nil", h.Err())
	}
}

func TestRunnerOnErrorExactlyOnce(t *testing.T) {
	r := NewRunner()
	sentinel := errors.New("body failed")

	var calls atomic.Int32
	var completeCalled atomic.Bool
	var got error
	h, err := r.Submit(context.Background(),
		func(ctx context.Context) (any, error) { return nil, sentinel },
		WithName("failing"),
		WithOnComplete(func(result any) { completeCalled.Store(true) }),
		WithOnError(func(err error) {
			calls.Add(1)
			got = err
		}),
	)
	if err != nil {
		t.Fatalf("Submit() = %v", err)
	}

	waitDone(t, h)

	if calls.Load() != 1 {
		t.Errorf("onError called %d times, want exactly 1", calls.Load())
	}
	if completeCalled.Load() {
		t.Error("onComplete called for a failed task")
	}
	if !errors.Is(got, sentinel) {
		t.Errorf("onError err = %v, want wrapped %v", got, sentinel)
	}

	var taskErr *TaskError
	if !errors.As(got, &taskErr) {
		t.Fatalf("onError err is %T, want *TaskError", got)
	}
	if taskErr.Name != "failing" || taskErr.Panicked {
		t.Errorf("TaskError = %+v", taskErr)
	}
}

func TestRunnerPanicBecomesTaskError(t *testing.T) {
	r := NewRunner()

	var got error
	h, err := r.Submit(context.Background(),
		func(ctx context.Context) (any, error) { panic("task exploded") },
		WithOnError(func(err error) { got = err }),
	)
	if err != nil {
		t.Fatalf("Submit() = %v", err)
	}

	waitDone(t, h)

	var taskErr *TaskError
	if !errors.As(got, &taskErr) {
		t.Fatalf("error is %T, want *TaskError", got)
	}
	if !taskErr.Panicked {
		t.Error("TaskError.Panicked = false, want true")
	}
}

func TestRunnerDefaultErrorSurfaceLogs(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	r := NewRunner(WithRunnerLogger(zap.New(core)))

	h, err := r.Submit(context.Background(),
		func(ctx context.Context) (any, error) { return nil, errors.New("silent failure") },
	)
	if err != nil {
		t.Fatalf("Submit() = %v", err)
	}

	waitDone(t, h)

	if logs.FilterMessage("background task failed").Len() != 1 {
		t.Errorf("failure without onError not logged, entries: %v", logs.All())
	}
}

func TestRunnerSaturationRejectsSubmission(t *testing.T) {
	r := NewRunner(WithMaxConcurrent(1))

	release := make(chan struct{})
	h, err := r.Submit(context.Background(), func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	})
	if err != nil {
		t.Fatalf("first Submit() = %v", err)
	}

	if _, err := r.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return nil, nil
	}); !errors.Is(err, ErrSaturated) {
		t.Errorf("Submit at capacity = %v, want ErrSaturated", err)
	}

	close(release)
	waitDone(t, h)
}

func TestRunnerActiveSetTracksLifetime(t *testing.T) {
	r := NewRunner()

	release := make(chan struct{})
	h, err := r.Submit(context.Background(), func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	}, WithName("tracked"))
	if err != nil {
		t.Fatalf("Submit() = %v", err)
	}

	if got := r.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount() = %d while running, want 1", got)
	}
	if stored, ok := r.Get(h.ID()); !ok || stored != h {
		t.Error("Get() did not return the in-flight handle")
	}

	close(release)
	waitDone(t, h)

	// Done closes only after the terminal callback returned, and the
	// callback removes the handle on its way out.
	if got := r.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount() = %d after completion, want 0", got)
	}
}

func TestRunnerDelivererReceivesCallbacks(t *testing.T) {
	delivered := make(chan func(), 1)
	r := NewRunner(WithDeliverer(func(fn func()) {
		delivered <- fn
	}))

	var completed atomic.Bool
	h, err := r.Submit(context.Background(),
		func(ctx context.Context) (any, error) { return "ok", nil },
		WithOnComplete(func(result any) { completed.Store(true) }),
	)
	if err != nil {
		t.Fatalf("Submit() = %v", err)
	}

	// The callback is marshalled through the deliverer, not run inline.
	select {
	case fn := <-delivered:
		if completed.Load() {
			t.Error("callback ran before deliverer executed it")
		}
		fn()
	case <-time.After(2 * time.Second):
		t.Fatal("deliverer never received the callback")
	}

	waitDone(t, h)
	if !completed.Load() {
		t.Error("onComplete did not run via deliverer")
	}
}

func TestRunnerClose(t *testing.T) {
	r := NewRunner()

	h, err := r.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Submit() = %v", err)
	}
	waitDone(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	if _, err := r.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return nil, nil
	}); !errors.Is(err, ErrRunnerClosed) {
		t.Errorf("Submit after Close = %v, want ErrRunnerClosed", err)
	}
	if _, err := r.Submit(context.Background(), nil); !errors.Is(err, ErrRunnerClosed) {
		t.Errorf("Submit(nil) after Close = %v, want ErrRunnerClosed", err)
	}
}
