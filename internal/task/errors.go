package task

import (
	"errors"
	"fmt"
)

// Sentinel errors for the task runner.
var (
	// ErrRunnerClosed is returned when submitting to a closed runner.
	ErrRunnerClosed = errors.New("task runner is closed")

	// ErrSaturated is returned when the runner is at its concurrency
	// limit and cannot accept more work. Callers may retry later.
	ErrSaturated = errors.New("task runner is saturated")

	// ErrNilFunc is returned when a nil task function is submitted.
	ErrNilFunc = errors.New("task function cannot be nil")
)

// TaskError wraps a failure produced by a task body, including
// converted panics.
type TaskError struct {
	// TaskID identifies the failed task.
	TaskID string

	// Name is the optional task name given at submission.
	Name string

	// Err is the underlying error.
	Err error

	// Panicked is true if the task body panicked.
	Panicked bool
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	label := e.Name
	if label == "" {
		label = e.TaskID
	}
	if e.Panicked {
		return fmt.Sprintf("task %s panicked: %v", label, e.Err)
	}
	return fmt.Sprintf("task %s failed: %v", label, e.Err)
}

// Unwrap returns the underlying error.
func (e *TaskError) Unwrap() error {
	return e.Err
}
