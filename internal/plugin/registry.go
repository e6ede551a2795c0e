package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// entry tracks one registered plugin through its lifecycle.
type entry struct {
	plugin  Plugin
	state   State
	lastErr error
}

// Registry owns the set of discovered plugins and drives their
// lifecycle. One instance exists per plugin name; a later registration
// of the same name replaces the earlier one.
type Registry struct {
	logger  *zap.Logger
	sources []Source

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	inited  bool
}

// NewRegistry creates a registry over the given discovery sources.
func NewRegistry(logger *zap.Logger, sources ...Source) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger:  logger,
		sources: sources,
		entries: make(map[string]*entry),
	}
}

// AddSource appends a discovery source. Sources added after Discover
// are only seen by a subsequent Discover call.
func (r *Registry) AddSource(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, s)
}

// Discover runs every source and instantiates the candidates it
// yields. A failing source or candidate is logged and skipped; the
// remaining plugins are unaffected. Name collisions resolve to the
// last registration.
func (r *Registry) Discover(ctx context.Context) error {
	r.mu.RLock()
	sources := make([]Source, len(r.sources))
	copy(sources, r.sources)
	r.mu.RUnlock()

	for _, src := range sources {
		factories, err := src.Discover(ctx)
		if err != nil {
			r.logger.Warn("plugin source failed",
				zap.String("source", src.Name()),
				zap.Error(err))
			continue
		}

		for _, factory := range factories {
			p, err := r.instantiate(factory)
			if err != nil {
				r.logger.Warn("plugin candidate skipped",
					zap.String("source", src.Name()),
					zap.Error(err))
				continue
			}
			r.register(p, src.Name())
		}
	}
	return ctx.Err()
}

// instantiate runs a factory with panic containment.
func (r *Registry) instantiate(factory Factory) (p Plugin, err error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	defer func() {
		if rec := recover(); rec != nil {
			p = nil
			err = fmt.Errorf("factory panicked: %v", rec)
		}
	}()

	p, err = factory()
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.New("factory returned nil plugin")
	}
	if p.Name() == "" {
		return nil, errors.New("plugin has empty name")
	}
	return p, nil
}

// register adds a plugin in the Discovered state, replacing any
// previous plugin of the same name.
func (r *Registry) register(p Plugin, source string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.entries[name]; exists {
		r.logger.Warn("plugin name collision, keeping last registration",
			zap.String("plugin", name),
			zap.String("source", source))
		r.removeFromOrder(name)
	}
	r.entries[name] = &entry{plugin: p, state: StateDiscovered}
	r.order = append(r.order, name)
}

// removeFromOrder drops name from the registration order. Callers hold mu.
func (r *Registry) removeFromOrder(name string) {
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

// InitializeAll initializes every discovered plugin in registration
// order. buildContext constructs the per-plugin context. A failing or
// panicking Initialize leaves that plugin Discovered, records its
// error, and does not stop the others; the joined errors are returned.
func (r *Registry) InitializeAll(buildContext func(name string) *Context) error {
	r.mu.Lock()
	if r.inited {
		r.mu.Unlock()
		return ErrAlreadyInitialized
	}
	r.inited = true
	names := make([]string, len(r.order))
	copy(names, r.order)
	r.mu.Unlock()

	var errs []error
	for _, name := range names {
		r.mu.RLock()
		ent, ok := r.entries[name]
		r.mu.RUnlock()
		if !ok || ent.state != StateDiscovered {
			continue
		}

		err := r.initOne(ent.plugin, buildContext(name))
		r.mu.Lock()
		if err != nil {
			ent.lastErr = err
			r.mu.Unlock()
			r.logger.Error("plugin initialize failed",
				zap.String("plugin", name),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		ent.state = StateInitialized
		r.mu.Unlock()
		r.logger.Info("plugin initialized", zap.String("plugin", name))
	}
	return errors.Join(errs...)
}

// initOne calls Initialize with panic containment.
func (r *Registry) initOne(p Plugin, ctx *Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &InitError{Name: p.Name(), Err: fmt.Errorf("%v", rec), Panicked: true}
		}
	}()

	if ierr := p.Initialize(ctx); ierr != nil {
		return &InitError{Name: p.Name(), Err: ierr}
	}
	return nil
}

// ShutdownAll shuts down every plugin in registration order. Plugins
// that never initialized are shut down too, so partially constructed
// resources get released. Failures are logged and joined, never fatal.
// The context bounds the total time spent; a plugin still running at
// the deadline is abandoned.
func (r *Registry) ShutdownAll(ctx context.Context) error {
	r.mu.Lock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	r.mu.Unlock()

	var errs []error
	for _, name := range names {
		r.mu.Lock()
		ent, ok := r.entries[name]
		if !ok || !ent.state.canTransition(StateShutDown) {
			r.mu.Unlock()
			continue
		}
		ent.state = StateShutDown
		p := ent.plugin
		r.mu.Unlock()

		if err := r.shutdownOne(ctx, p); err != nil {
			r.mu.Lock()
			ent.lastErr = err
			r.mu.Unlock()
			r.logger.Error("plugin shutdown failed",
				zap.String("plugin", name),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		r.logger.Info("plugin shut down", zap.String("plugin", name))
	}
	return errors.Join(errs...)
}

// shutdownOne calls Shutdown with panic containment, bounded by ctx.
func (r *Registry) shutdownOne(ctx context.Context, p Plugin) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- &ShutdownError{Name: p.Name(), Err: fmt.Errorf("%v", rec), Panicked: true}
			}
		}()
		if err := p.Shutdown(); err != nil {
			done <- &ShutdownError{Name: p.Name(), Err: err}
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return &ShutdownError{Name: p.Name(), Err: ctx.Err()}
	}
}

// Get returns the plugin registered under name.
func (r *Registry) Get(name string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ent, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	return ent.plugin, nil
}

// StateOf returns the lifecycle state of the named plugin.
func (r *Registry) StateOf(name string) (State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ent, ok := r.entries[name]
	if !ok {
		return StateDiscovered, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	return ent.state, nil
}

// LastError returns the most recent lifecycle error recorded for the
// named plugin, or nil.
func (r *Registry) LastError(name string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ent, ok := r.entries[name]; ok {
		return ent.lastErr
	}
	return nil
}

// Names returns the registered plugin names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
