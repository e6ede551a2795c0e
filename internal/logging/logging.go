// Package logging builds the application's zap logger.
package logging

import "go.uber.org/zap"

// Cfg selects the logger's level and encoding.
type Cfg struct {
	Level string
	JSON  bool
}

// New builds a logger from cfg. Unknown levels fall back to the
// production default (info).
func New(c Cfg) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if !c.JSON {
		cfg.Encoding = "console"
	}
	if c.Level != "" {
		_ = cfg.Level.UnmarshalText([]byte(c.Level))
	}
	l, _ := cfg.Build()
	return l
}
