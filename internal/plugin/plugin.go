package plugin

import (
	"go.uber.org/zap"

	"github.com/bsundem/Heimdall/internal/config"
	"github.com/bsundem/Heimdall/internal/event"
	"github.com/bsundem/Heimdall/internal/task"
)

// Plugin is the capability contract every plugin implements.
// Exactly one instance exists per distinct name.
type Plugin interface {
	// Name returns the unique plugin name.
	Name() string

	// Initialize prepares the plugin for use. The context gives access
	// to the live event bus, configuration, task runner, and service
	// registry; all of these are guaranteed initialized before any
	// plugin's Initialize runs.
	Initialize(ctx *Context) error

	// Shutdown releases the plugin's resources. It is called exactly
	// once, regardless of whether Initialize succeeded.
	Shutdown() error
}

// Services is the keyed service registry exposed to plugins and host
// code. Registered objects keep their original owner; the registry
// performs no lifecycle management.
type Services interface {
	// Register stores a service under name, replacing any previous entry.
	Register(name string, svc any)

	// Lookup returns the service registered under name.
	Lookup(name string) (any, bool)
}

// Context carries the application facilities handed to a plugin at
// initialization.
type Context struct {
	// Logger is pre-scoped with the plugin name.
	Logger *zap.Logger

	// Bus is the application event bus, already started.
	Bus event.Bus

	// Config is the loaded application configuration.
	Config *config.Config

	// Tasks is the shared background task runner.
	Tasks *task.Runner

	// Services is the application service registry.
	Services Services
}
