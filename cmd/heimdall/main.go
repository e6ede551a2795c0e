// Command heimdall runs the extensibility kernel headless: it boots
// the application, loads plugins, and serves events until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bsundem/Heimdall/internal/app"
	"github.com/bsundem/Heimdall/internal/event"
	"github.com/bsundem/Heimdall/internal/plugins/finance"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to configuration file (default heimdall.toml)")
		logLevel   = flag.String("log-level", "", "override logging level (debug, info, warn, error)")
		watch      = flag.Bool("watch-config", false, "reload configuration on change")
		demo       = flag.Bool("demo", false, "publish a sample finance.generate request on startup")
	)
	flag.Parse()

	application, err := app.New(app.Options{
		ConfigPath:  *configPath,
		LogLevel:    *logLevel,
		WatchConfig: *watch,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "heimdall:", err)
		os.Exit(1)
	}
	logger := application.Logger()

	if *demo {
		ev := event.New(finance.EventGenerate, map[string]any{
			"symbol":      "HEIM",
			"days":        int64(30),
			"export_path": "heimdall-demo.csv",
		}, "cli")
		if err := application.Bus().Publish(context.Background(), ev); err != nil {
			logger.Warn("demo request not published", zap.Error(err))
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Shutdown(ctx); err != nil {
		logger.Warn("shutdown finished with errors", zap.Error(err))
		os.Exit(1)
	}
}
