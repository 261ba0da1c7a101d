// Package tool defines the descriptor every tool source produces and the
// error taxonomy shared by the registry, ranking engine and invocation bridge.
package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/toolhub/pkg/eventloop"
)

// Kind tells the invocation bridge how a descriptor's callable must be run.
type Kind int

const (
	// KindSync callables return their result directly.
	KindSync Kind = iota

	// KindAsync callables return a [eventloop.Future] and must be started from
	// a task running on an event loop.
	KindAsync
)

// String returns "sync" or "async".
func (k Kind) String() string {
	switch k {
	case KindSync:
		return "sync"
	case KindAsync:
		return "async"
	default:
		return "unknown"
	}
}

// Arguments are the decoded JSON arguments of a single invocation.
type Arguments = map[string]any

// SyncFunc is a synchronous tool callable.
type SyncFunc func(ctx context.Context, args Arguments) (any, error)

// AsyncFunc is an asynchronous tool callable. ctx comes from a task running
// on an event loop; the returned future is resolved through that loop.
type AsyncFunc func(ctx context.Context, args Arguments) *eventloop.Future

// Provenance records where a descriptor came from.
type Provenance struct {
	// Source is the adapter kind, e.g. "builtin", "openapi" or "mcp".
	Source string

	// Origin identifies the concrete toolset, document URL or server.
	Origin string
}

// Descriptor is the identity and capability record of one tool. Descriptors
// are treated as immutable once registered.
type Descriptor struct {
	Name        string
	Description string

	// InputSchema is the JSON Schema of accepted arguments. It is opaque to the
	// registry and ranking engine.
	InputSchema map[string]any

	Kind  Kind
	Sync  SyncFunc
	Async AsyncFunc

	Provenance Provenance

	// Timeout overrides the bridge's default invocation deadline when > 0.
	Timeout time.Duration
}

// Validate reports whether d can be registered.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return errors.New("tool: descriptor name must not be empty")
	}
	switch d.Kind {
	case KindSync:
		if d.Sync == nil {
			return fmt.Errorf("tool: %q: sync descriptor has no callable", d.Name)
		}
	case KindAsync:
		if d.Async == nil {
			return fmt.Errorf("tool: %q: async descriptor has no callable", d.Name)
		}
	default:
		return fmt.Errorf("tool: %q: unknown kind %d", d.Name, d.Kind)
	}
	return nil
}

// RankingText is the text embedded for d: its description, or its name when
// the description is empty.
func (d Descriptor) RankingText() string {
	if d.Description != "" {
		return d.Description
	}
	return d.Name
}

// Summary is the list view of a registered tool.
type Summary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Source      string `json:"source,omitempty"`
	Origin      string `json:"origin,omitempty"`
}

// Summarize returns the list view of d.
func (d Descriptor) Summarize() Summary {
	return Summary{
		Name:        d.Name,
		Description: d.Description,
		Source:      d.Provenance.Source,
		Origin:      d.Provenance.Origin,
	}
}

// Source produces descriptors from one origin. Sources that hold resources
// may also implement io.Closer; the hub closes them on teardown.
type Source interface {
	// Name identifies the source in logs and load errors.
	Name() string

	// Load returns every descriptor the source offers.
	Load(ctx context.Context) ([]Descriptor, error)
}
