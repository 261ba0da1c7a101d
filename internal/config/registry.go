package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/toolhub/pkg/tool"
)

// ErrToolsetNotRegistered is returned by [Registry.CreateToolset] when no
// factory has been registered under the requested name.
var ErrToolsetNotRegistered = errors.New("config: toolset not registered")

// ToolsetFactory builds the source behind a builtin toolset entry.
type ToolsetFactory func(BuiltinSourceConfig) (tool.Source, error)

// Registry maps builtin toolset names to their constructors. It is safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	toolsets map[string]ToolsetFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{toolsets: make(map[string]ToolsetFactory)}
}

// RegisterToolset registers factory under name. Subsequent calls with the
// same name overwrite the previous registration.
func (r *Registry) RegisterToolset(name string, factory ToolsetFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolsets[name] = factory
}

// CreateToolset instantiates the toolset named by entry.Name.
func (r *Registry) CreateToolset(entry BuiltinSourceConfig) (tool.Source, error) {
	r.mu.RLock()
	factory, ok := r.toolsets[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrToolsetNotRegistered, entry.Name, r.Toolsets())
	}
	return factory(entry)
}

// Toolsets returns the registered names, sorted.
func (r *Registry) Toolsets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.toolsets))
	for name := range r.toolsets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
