package plugin

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakePlugin records lifecycle calls for registry tests.
type fakePlugin struct {
	name       string
	initErr    error
	initPanic  bool
	shutErr    error
	shutBlocks bool

	initCalls int
	shutCalls int
	log       *[]string
}

func (p *fakePlugin) Name() string { return p.name }

func (p *fakePlugin) Initialize(ctx *Context) error {
	p.initCalls++
	if p.log != nil {
		*p.log = append(*p.log, "init:"+p.name)
	}
	if p.initPanic {
		panic("init exploded")
	}
	return p.initErr
}

func (p *fakePlugin) Shutdown() error {
	p.shutCalls++
	if p.log != nil {
		*p.log = append(*p.log, "shutdown:"+p.name)
	}
	if p.shutBlocks {
		select {}
	}
	return p.shutErr
}

func factoryFor(p Plugin) Factory {
	return func() (Plugin, error) { return p, nil }
}

func noContext(name string) *Context { return &Context{} }

func TestRegistryDiscoverSkipsBrokenCandidates(t *testing.T) {
	good := &fakePlugin{name: "good"}
	src := NewStaticSource("test",
		factoryFor(good),
		func() (Plugin, error) { return nil, errors.New("broken factory") },
		func() (Plugin, error) { panic("factory panic") },
		func() (Plugin, error) { return &fakePlugin{name: ""}, nil },
		nil,
	)

	r := NewRegistry(nil, src)
	if err := r.Discover(context.Background()); err != nil {
		t.Fatalf("Discover() = %v", err)
	}

	if r.Len() != 1 {
		t.Fatalf("registry holds %d plugins, want 1", r.Len())
	}
	if _, err := r.Get("good"); err != nil {
		t.Errorf("Get(good) = %v", err)
	}
}

func TestRegistryDiscoverSkipsFailingSource(t *testing.T) {
	broken := brokenSource{}
	good := NewStaticSource("ok", factoryFor(&fakePlugin{name: "survivor"}))

	r := NewRegistry(nil, broken, good)
	if err := r.Discover(context.Background()); err != nil {
		t.Fatalf("Discover() = %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("registry holds %d plugins, want 1", r.Len())
	}
}

type brokenSource struct{}

func (brokenSource) Name() string { return "broken" }
func (brokenSource) Discover(context.Context) ([]Factory, error) {
	return nil, errors.New("source unavailable")
}

func TestRegistryNameCollisionKeepsLast(t *testing.T) {
	first := &fakePlugin{name: "finance"}
	second := &fakePlugin{name: "finance"}

	r := NewRegistry(nil,
		NewStaticSource("a", factoryFor(first)),
		NewStaticSource("b", factoryFor(second)),
	)
	if err := r.Discover(context.Background()); err != nil {
		t.Fatalf("Discover() = %v", err)
	}

	if r.Len() != 1 {
		t.Fatalf("registry holds %d plugins, want 1 after collision", r.Len())
	}
	got, err := r.Get("finance")
	if err != nil {
		t.Fatal(err)
	}
	if got != Plugin(second) {
		t.Error("collision did not resolve to the last registration")
	}

	if err := r.InitializeAll(noContext); err != nil {
		t.Fatalf("InitializeAll() = %v", err)
	}
	if first.initCalls != 0 || second.initCalls != 1 {
		t.Errorf("init calls: first=%d second=%d, want 0 and 1",
			first.initCalls, second.initCalls)
	}
}

func TestRegistryInitializeAllContainsFailures(t *testing.T) {
	var log []string
	a := &fakePlugin{name: "a", log: &log}
	b := &fakePlugin{name: "b", log: &log, initErr: errors.New("b refuses")}
	c := &fakePlugin{name: "c", log: &log, initPanic: true}
	d := &fakePlugin{name: "d", log: &log}

	r := NewRegistry(nil, NewStaticSource("s",
		factoryFor(a), factoryFor(b), factoryFor(c), factoryFor(d)))
	if err := r.Discover(context.Background()); err != nil {
		t.Fatal(err)
	}

	err := r.InitializeAll(noContext)
	if err == nil {
		t.Fatal("InitializeAll() = nil, want joined errors")
	}

	// Every plugin was attempted, in registration order.
	want := []string{"init:a", "init:b", "init:c", "init:d"}
	if len(log) != len(want) {
		t.Fatalf("lifecycle log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("lifecycle log = %v, want %v", log, want)
		}
	}

	// Failed plugins stay Discovered with their error recorded.
	for name, wantState := range map[string]State{
		"a": StateInitialized,
		"b": StateDiscovered,
		"c": StateDiscovered,
		"d": StateInitialized,
	} {
		state, serr := r.StateOf(name)
		if serr != nil {
			t.Fatal(serr)
		}
		if state != wantState {
			t.Errorf("StateOf(%s) = %v, want %v", name, state, wantState)
		}
	}

	var initErr *InitError
	if !errors.As(r.LastError("b"), &initErr) {
		t.Errorf("LastError(b) = %v, want *InitError", r.LastError("b"))
	}
	if !errors.As(r.LastError("c"), &initErr) || !initErr.Panicked {
		t.Errorf("LastError(c) = %v, want panicked *InitError", r.LastError("c"))
	}
}

func TestRegistryInitializeAllRunsOnce(t *testing.T) {
	r := NewRegistry(nil, NewStaticSource("s", factoryFor(&fakePlugin{name: "a"})))
	if err := r.Discover(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.InitializeAll(noContext); err != nil {
		t.Fatal(err)
	}
	if err := r.InitializeAll(noContext); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second InitializeAll() = %v, want ErrAlreadyInitialized", err)
	}
}

func TestRegistryShutdownAllOrderAndContainment(t *testing.T) {
	var log []string
	a := &fakePlugin{name: "a", log: &log}
	b := &fakePlugin{name: "b", log: &log, shutErr: errors.New("b stuck")}
	failedInit := &fakePlugin{name: "fail", log: &log, initErr: errors.New("never up")}

	r := NewRegistry(nil, NewStaticSource("s",
		factoryFor(a), factoryFor(b), factoryFor(failedInit)))
	if err := r.Discover(context.Background()); err != nil {
		t.Fatal(err)
	}
	_ = r.InitializeAll(noContext)

	log = log[:0]
	err := r.ShutdownAll(context.Background())
	if err == nil {
		t.Fatal("ShutdownAll() = nil, want b's error joined")
	}

	// Shutdown visits every plugin in registration order, including the
	// one whose Initialize failed.
	want := []string{"shutdown:a", "shutdown:b", "shutdown:fail"}
	if len(log) != len(want) {
		t.Fatalf("shutdown log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("shutdown log = %v, want %v", log, want)
		}
	}

	for _, name := range []string{"a", "b", "fail"} {
		state, serr := r.StateOf(name)
		if serr != nil {
			t.Fatal(serr)
		}
		if state != StateShutDown {
			t.Errorf("StateOf(%s) = %v, want shutdown", name, state)
		}
	}

	// A second pass finds nothing to do.
	if err := r.ShutdownAll(context.Background()); err != nil {
		t.Errorf("second ShutdownAll() = %v, want nil", err)
	}
	if a.shutCalls != 1 {
		t.Errorf("a.Shutdown called %d times, want 1", a.shutCalls)
	}
}

func TestRegistryShutdownAllHonorsDeadline(t *testing.T) {
	hung := &fakePlugin{name: "hung", shutBlocks: true}
	after := &fakePlugin{name: "after"}

	r := NewRegistry(nil, NewStaticSource("s", factoryFor(hung), factoryFor(after)))
	if err := r.Discover(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.InitializeAll(noContext); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := r.ShutdownAll(ctx)
	if err == nil {
		t.Fatal("ShutdownAll() = nil, want deadline error for hung plugin")
	}
	var shutErr *ShutdownError
	if !errors.As(err, &shutErr) {
		t.Fatalf("error is %T, want *ShutdownError", err)
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry(nil)
	if _, err := r.Get("ghost"); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("Get(ghost) = %v, want ErrPluginNotFound", err)
	}
	if _, err := r.StateOf("ghost"); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("StateOf(ghost) = %v, want ErrPluginNotFound", err)
	}
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateDiscovered, StateInitialized, true},
		{StateDiscovered, StateShutDown, true},
		{StateInitialized, StateShutDown, true},
		{StateInitialized, StateDiscovered, false},
		{StateShutDown, StateInitialized, false},
		{StateShutDown, StateDiscovered, false},
	}
	for _, tt := range tests {
		if got := tt.from.canTransition(tt.to); got != tt.want {
			t.Errorf("canTransition(%v -> %v) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
