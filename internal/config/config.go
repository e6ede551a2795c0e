// Package config provides the sectioned application configuration:
// built-in defaults, a TOML file layer, and environment variable
// overrides, plus an fsnotify-based watcher for reload on change.
package config

import (
	"fmt"
	"strconv"
	"sync"
)

// Config holds configuration values keyed by section and key.
// It is safe for concurrent use. Configuration has no shutdown step.
type Config struct {
	mu     sync.RWMutex
	values map[string]map[string]any
}

// New creates a Config populated with the built-in defaults.
func New() *Config {
	c := &Config{
		values: make(map[string]map[string]any),
	}
	c.merge(Defaults())
	return c
}

// Defaults returns the built-in configuration values.
func Defaults() map[string]map[string]any {
	return map[string]map[string]any{
		"app": {
			"name":          "Heimdall",
			"version":       "0.1.0",
			"logging_level": "info",
			"logging_json":  false,
		},
		"plugins": {
			"enabled": []string{"finance"},
			"paths":   []string{"plugins"},
		},
		"ui": {
			"theme":         "light",
			"window_width":  int64(1200),
			"window_height": int64(800),
		},
		"export": {
			"default_format": "csv",
			"default_path":   "",
		},
		"events": {
			"async_queue_size":   int64(1024),
			"async_worker_count": int64(4),
		},
		"tasks": {
			"max_concurrent": int64(32),
		},
	}
}

// Get returns the value for section.key, or def if absent.
func (c *Config) Get(section, key string, def any) any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if sec, ok := c.values[section]; ok {
		if v, ok := sec[key]; ok {
			return v
		}
	}
	return def
}

// GetString returns section.key as a string, or def if absent or not a string.
func (c *Config) GetString(section, key, def string) string {
	if v, ok := c.Get(section, key, def).(string); ok {
		return v
	}
	return def
}

// GetInt returns section.key as an int, coercing the numeric types
// TOML and env parsing produce.
func (c *Config) GetInt(section, key string, def int) int {
	switch v := c.Get(section, key, def).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// GetBool returns section.key as a bool, or def if absent or not a bool.
func (c *Config) GetBool(section, key string, def bool) bool {
	if v, ok := c.Get(section, key, def).(bool); ok {
		return v
	}
	return def
}

// GetStringSlice returns section.key as a string slice. TOML arrays
// decode as []any, so both representations are accepted.
func (c *Config) GetStringSlice(section, key string) []string {
	switch v := c.Get(section, key, nil).(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}

// Set stores a value under section.key.
func (c *Config) Set(section, key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sec, ok := c.values[section]
	if !ok {
		sec = make(map[string]any)
		c.values[section] = sec
	}
	sec[key] = value
}

// Sections returns the names of all configuration sections.
func (c *Config) Sections() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.values))
	for name := range c.values {
		out = append(out, name)
	}
	return out
}

// Snapshot returns a deep copy of the current values.
func (c *Config) Snapshot() map[string]map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]map[string]any, len(c.values))
	for section, keys := range c.values {
		sec := make(map[string]any, len(keys))
		for k, v := range keys {
			sec[k] = v
		}
		out[section] = sec
	}
	return out
}

// merge overlays new values onto the existing ones, section by section.
func (c *Config) merge(incoming map[string]map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for section, keys := range incoming {
		sec, ok := c.values[section]
		if !ok {
			sec = make(map[string]any)
			c.values[section] = sec
		}
		for k, v := range keys {
			sec[k] = v
		}
	}
}
