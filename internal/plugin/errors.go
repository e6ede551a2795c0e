package plugin

import (
	"errors"
	"fmt"
)

// Sentinel errors for registry operations.
var (
	// ErrPluginNotFound indicates a lookup for an unknown plugin name.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrAlreadyInitialized indicates InitializeAll ran twice.
	ErrAlreadyInitialized = errors.New("plugins already initialized")

	// ErrNilFactory indicates a source yielded a nil factory.
	ErrNilFactory = errors.New("nil plugin factory")
)

// InitError wraps a failure (or panic) during a plugin's Initialize.
type InitError struct {
	Name     string
	Err      error
	Panicked bool
}

// Error implements the error interface.
func (e *InitError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("plugin %s: initialize panicked: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("plugin %s: initialize: %v", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *InitError) Unwrap() error {
	return e.Err
}

// ShutdownError wraps a failure (or panic) during a plugin's Shutdown.
type ShutdownError struct {
	Name     string
	Err      error
	Panicked bool
}

// Error implements the error interface.
func (e *ShutdownError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("plugin %s: shutdown panicked: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("plugin %s: shutdown: %v", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *ShutdownError) Unwrap() error {
	return e.Err
}
