package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix is the prefix for environment variable overrides, in the
// form HEIMDALL_<SECTION>_<KEY>=value.
const EnvPrefix = "HEIMDALL_"

// ParseError describes a malformed configuration file.
type ParseError struct {
	Path    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return "parsing " + e.Path + ": " + e.Message
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// LoadFile merges a TOML configuration file over the current values.
// A missing file is not an error; defaults and earlier layers apply.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return &ParseError{Path: path, Message: err.Error(), Err: err}
	}

	c.merge(sectionize(raw))
	return nil
}

// LoadEnv merges environment variable overrides over the current
// values. Variables follow HEIMDALL_<SECTION>_<KEY>=value; the first
// underscore after the prefix separates section from key, and values
// are coerced to bool, int, or float when they parse as one.
func (c *Config) LoadEnv() {
	c.LoadEnviron(os.Environ())
}

// LoadEnviron is LoadEnv over an explicit environment list, which
// keeps the parsing testable.
func (c *Config) LoadEnviron(environ []string) {
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}

		rest := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
		section, key, ok := strings.Cut(rest, "_")
		if !ok || section == "" || key == "" {
			continue
		}

		c.Set(section, key, coerceValue(value))
	}
}

// sectionize turns a decoded TOML document into section/key maps.
// Top-level scalars land in an implicit "app" section.
func sectionize(raw map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any)
	for name, v := range raw {
		if table, ok := v.(map[string]any); ok {
			sec, ok := out[name]
			if !ok {
				sec = make(map[string]any)
				out[name] = sec
			}
			for k, val := range table {
				sec[k] = val
			}
			continue
		}

		sec, ok := out["app"]
		if !ok {
			sec = make(map[string]any)
			out["app"] = sec
		}
		sec[name] = v
	}
	return out
}

// coerceValue converts an environment string into the closest typed value.
func coerceValue(value string) any {
	switch strings.ToLower(value) {
	case "true", "yes":
		return true
	case "false", "no":
		return false
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}
