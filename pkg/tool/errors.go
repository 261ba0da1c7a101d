package tool

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for an unknown tool name.
	ErrNotFound = errors.New("tool not found")

	// ErrBackendUnavailable is returned when an embedding backend call fails.
	ErrBackendUnavailable = errors.New("embedding backend unavailable")

	// ErrInvocationTimeout is returned when an invocation exceeds its deadline.
	ErrInvocationTimeout = errors.New("tool invocation timed out")
)

// LoadError reports that a source failed to produce a valid descriptor.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("tool: load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// InvocationError wraps a failure raised by the tool callable itself.
type InvocationError struct {
	Tool string
	Err  error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("tool: invoke %q: %v", e.Tool, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }
