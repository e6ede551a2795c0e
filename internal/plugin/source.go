package plugin

import "context"

// Factory constructs a plugin instance. Construction is separate from
// discovery so a broken candidate fails at a well-defined point.
type Factory func() (Plugin, error)

// Source yields plugin factories from somewhere: compiled-in
// registrations, a scripts directory, or anything else.
type Source interface {
	// Name identifies the source in logs.
	Name() string

	// Discover returns factories for every candidate the source can
	// see. Individual broken candidates should be skipped by the
	// caller, so Discover fails only when the source as a whole is
	// unusable.
	Discover(ctx context.Context) ([]Factory, error)
}

// StaticSource yields plugins registered at compile time.
type StaticSource struct {
	name      string
	factories []Factory
}

// NewStaticSource creates a source named name over the given factories.
func NewStaticSource(name string, factories ...Factory) *StaticSource {
	return &StaticSource{name: name, factories: factories}
}

// Name implements Source.
func (s *StaticSource) Name() string {
	return s.name
}

// Add appends a factory to the source.
func (s *StaticSource) Add(f Factory) {
	s.factories = append(s.factories, f)
}

// Discover implements Source.
func (s *StaticSource) Discover(_ context.Context) ([]Factory, error) {
	out := make([]Factory, len(s.factories))
	copy(out, s.factories)
	return out, nil
}
