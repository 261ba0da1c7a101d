package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every candidate of a [FallbackGroup] failed.
var ErrAllFailed = errors.New("all candidates failed")

type fallbackEntry[T any] struct {
	name  string
	value T
}

// FallbackGroup is an ordered list of interchangeable candidates. The first
// candidate for which the probe succeeds wins.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
}

// NewFallbackGroup returns an empty group.
func NewFallbackGroup[T any]() *FallbackGroup[T] {
	return &FallbackGroup[T]{}
}

// Add appends a candidate. Candidates are tried in the order they are added.
func (fg *FallbackGroup[T]) Add(name string, v T) {
	fg.entries = append(fg.entries, fallbackEntry[T]{name: name, value: v})
}

// Len returns the number of candidates.
func (fg *FallbackGroup[T]) Len() int { return len(fg.entries) }

// Choice is the winning candidate of [Select].
type Choice[T any, R any] struct {
	Name   string
	Value  T
	Result R
}

// Select runs probe against each candidate in order and returns the first
// that succeeds. Failed candidates are logged. When all fail the returned
// error wraps [ErrAllFailed] and every candidate's error.
//
// Select is a function because Go methods cannot declare type parameters.
func Select[T any, R any](fg *FallbackGroup[T], probe func(T) (R, error)) (Choice[T, R], error) {
	var errs []error
	for _, e := range fg.entries {
		r, err := probe(e.value)
		if err == nil {
			return Choice[T, R]{Name: e.name, Value: e.value, Result: r}, nil
		}
		slog.Warn("candidate failed, trying next", "candidate", e.name, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
	}
	return Choice[T, R]{}, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
