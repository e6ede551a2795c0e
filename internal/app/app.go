// Package app wires the kernel together: configuration, logging, the
// event bus, the task runner, services, and the plugin registry, in
// dependency order, and tears them down in reverse.
package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/bsundem/Heimdall/internal/config"
	"github.com/bsundem/Heimdall/internal/event"
	"github.com/bsundem/Heimdall/internal/export"
	"github.com/bsundem/Heimdall/internal/logging"
	"github.com/bsundem/Heimdall/internal/plugin"
	"github.com/bsundem/Heimdall/internal/plugins/finance"
	"github.com/bsundem/Heimdall/internal/task"
)

// Lifecycle event types published by the application.
const (
	EventReady          = event.Type("app.ready")
	EventShutdown       = event.Type("app.shutdown")
	EventConfigReloaded = event.Type("config.reloaded")
)

// Options configures the application.
type Options struct {
	// ConfigPath is the path to the configuration file. Empty means
	// "heimdall.toml" in the working directory; a missing file is fine.
	ConfigPath string

	// LogLevel overrides the configured logging level when non-empty.
	LogLevel string

	// PluginPaths are additional plugin script directories, searched
	// after the configured plugins.paths.
	PluginPaths []string

	// WatchConfig reloads the configuration file on change.
	WatchConfig bool

	// Deliverer routes task callbacks onto a host goroutine. A GUI
	// shell installs one that marshals onto its primary goroutine.
	Deliverer task.Deliverer

	// ExtraSources are additional plugin discovery sources, tried
	// after the built-in and directory sources.
	ExtraSources []plugin.Source
}

// Application is the central coordinator. It owns every kernel
// component and manages their lifecycles.
type Application struct {
	opts Options

	logger   *zap.Logger
	config   *config.Config
	bus      event.Bus
	tasks    *task.Runner
	services *ServiceRegistry
	plugins  *plugin.Registry
	export   *export.Service
	watcher  *config.Watcher

	running      atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates and bootstraps an application. The only fatal failure is
// the event bus: config, watcher, and individual plugins degrade to
// logged warnings.
func New(opts Options) (*Application, error) {
	app := &Application{
		opts:     opts,
		services: NewServiceRegistry(),
	}
	if err := app.bootstrap(); err != nil {
		return nil, err
	}
	return app, nil
}

// bootstrap initializes all components in dependency order.
func (app *Application) bootstrap() error {
	// 1. Configuration: defaults, file layer, env overrides. A broken
	// file falls back to the layers beneath it.
	app.config = config.New()
	cfgPath := app.opts.ConfigPath
	if cfgPath == "" {
		cfgPath = "heimdall.toml"
	}
	cfgErr := app.config.LoadFile(cfgPath)
	app.config.LoadEnv()

	// 2. Logging, configured by the layer it just loaded.
	level := app.opts.LogLevel
	if level == "" {
		level = app.config.GetString("app", "logging_level", "info")
	}
	app.logger = logging.New(logging.Cfg{
		Level: level,
		JSON:  app.config.GetBool("app", "logging_json", false),
	})
	if cfgErr != nil {
		app.logger.Warn("config file not loaded, using defaults",
			zap.String("path", cfgPath),
			zap.Error(cfgErr))
	}

	// 3. Event bus. This is the messaging foundation; failure here is
	// fatal.
	app.bus = event.NewBus(
		event.WithLogger(app.logger.Named("bus")),
		event.WithAsyncQueueSize(app.config.GetInt("events", "async_queue_size", 1024)),
		event.WithAsyncWorkerCount(app.config.GetInt("events", "async_worker_count", 4)),
	)
	if err := app.bus.Start(); err != nil {
		return &InitError{Component: "event bus", Err: err}
	}

	// 4. Task runner.
	taskOpts := []task.RunnerOption{
		task.WithMaxConcurrent(app.config.GetInt("tasks", "max_concurrent", 32)),
		task.WithRunnerLogger(app.logger.Named("tasks")),
	}
	if app.opts.Deliverer != nil {
		taskOpts = append(taskOpts, task.WithDeliverer(app.opts.Deliverer))
	}
	app.tasks = task.NewRunner(taskOpts...)

	// 5. Services, before plugins so Initialize can look them up.
	app.export = export.NewService(app.logger.Named("export"))
	app.services.Register("export", app.export)

	// 6. Plugins: discover from every source, then initialize in
	// registration order. Failures are contained per plugin.
	app.plugins = plugin.NewRegistry(app.logger.Named("plugins"), app.pluginSources()...)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.plugins.Discover(ctx); err != nil {
		app.logger.Warn("plugin discovery interrupted", zap.Error(err))
	}
	if err := app.plugins.InitializeAll(app.pluginContext); err != nil {
		app.logger.Warn("some plugins failed to initialize", zap.Error(err))
	}

	// 7. Config watcher, optional.
	if app.opts.WatchConfig {
		w, err := config.NewWatcher(cfgPath, app.reloadConfig)
		if err != nil {
			app.logger.Warn("config watcher not started", zap.Error(err))
		} else {
			app.watcher = w
		}
	}

	app.running.Store(true)
	if err := app.bus.Publish(context.Background(), event.New(EventReady, nil, "app")); err != nil {
		app.logger.Warn("ready event not published", zap.Error(err))
	}
	return nil
}

// pluginSources assembles the discovery sources: compiled-in plugins
// gated by plugins.enabled, then script directories, then any extras.
func (app *Application) pluginSources() []plugin.Source {
	builtin := plugin.NewStaticSource("builtin")
	for _, name := range app.config.GetStringSlice("plugins", "enabled") {
		if name == "finance" {
			builtin.Add(func() (plugin.Plugin, error) {
				return finance.New(), nil
			})
		}
	}

	sources := []plugin.Source{builtin}
	paths := append(app.config.GetStringSlice("plugins", "paths"), app.opts.PluginPaths...)
	if len(paths) > 0 {
		sources = append(sources, plugin.NewDirSource(app.logger.Named("plugins"), paths...))
	}
	return append(sources, app.opts.ExtraSources...)
}

// pluginContext builds the per-plugin initialization context.
func (app *Application) pluginContext(name string) *plugin.Context {
	return &plugin.Context{
		Logger:   app.logger.Named("plugin." + name),
		Bus:      app.bus,
		Config:   app.config,
		Tasks:    app.tasks,
		Services: app.services,
	}
}

// reloadConfig re-reads the config file and announces the change.
func (app *Application) reloadConfig(path string) {
	if err := app.config.LoadFile(path); err != nil {
		app.logger.Warn("config reload failed",
			zap.String("path", path),
			zap.Error(err))
		return
	}
	app.logger.Info("config reloaded", zap.String("path", path))

	if err := app.bus.Publish(context.Background(),
		event.New(EventConfigReloaded, map[string]any{"path": path}, "app")); err != nil {
		app.logger.Warn("config reload event not published", zap.Error(err))
	}
}

// Shutdown tears the application down in reverse dependency order:
// plugins, then the task runner, then the event bus. It is idempotent;
// later calls return the first call's result.
func (app *Application) Shutdown(ctx context.Context) error {
	app.shutdownOnce.Do(func() {
		if !app.running.Swap(false) {
			app.shutdownErr = ErrNotRunning
			return
		}

		if err := app.bus.Publish(ctx, event.New(EventShutdown, nil, "app")); err != nil {
			app.logger.Warn("shutdown event not published", zap.Error(err))
		}

		var errs []error
		if app.watcher != nil {
			if err := app.watcher.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := app.plugins.ShutdownAll(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := app.tasks.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := app.bus.Stop(ctx); err != nil {
			errs = append(errs, err)
		}

		app.shutdownErr = errors.Join(errs...)
		app.logger.Info("application stopped")
		_ = app.logger.Sync()
	})
	return app.shutdownErr
}

// IsRunning reports whether the application has started and not yet
// shut down.
func (app *Application) IsRunning() bool {
	return app.running.Load()
}

// Bus returns the application event bus.
func (app *Application) Bus() event.Bus {
	return app.bus
}

// Config returns the application configuration.
func (app *Application) Config() *config.Config {
	return app.config
}

// Tasks returns the shared task runner.
func (app *Application) Tasks() *task.Runner {
	return app.tasks
}

// Plugins returns the plugin registry.
func (app *Application) Plugins() *plugin.Registry {
	return app.plugins
}

// Services returns the service registry.
func (app *Application) Services() *ServiceRegistry {
	return app.services
}

// RegisterService stores a shared service under name. The registry
// takes no lifecycle ownership.
func (app *Application) RegisterService(name string, svc any) {
	app.services.Register(name, svc)
}

// Service returns the service registered under name.
func (app *Application) Service(name string) (any, bool) {
	return app.services.Lookup(name)
}

// Export returns the export service.
func (app *Application) Export() *export.Service {
	return app.export
}

// Logger returns the application logger.
func (app *Application) Logger() *zap.Logger {
	return app.logger
}
