// Package registry holds the named tools of one hub.
//
// Names are unique. A descriptor whose name is already taken is stored under
// the first free name of the form name_2, name_3, …; the existing tool keeps
// its name. Registration order is preserved and doubles as the ranking
// tie-breaker.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/toolhub/internal/observe"
	"github.com/MrWong99/toolhub/pkg/tool"
)

// suggestThreshold is the minimum Jaro-Winkler similarity for a registered
// name to be offered as a suggestion for an unknown one.
const suggestThreshold = 0.85

// Entry is a registered descriptor and its registration sequence number.
type Entry struct {
	Seq        int
	Descriptor tool.Descriptor
}

// Registry maps unique names to descriptors. Writes happen while a hub is
// being assembled; reads are safe from any goroutine at any time.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
	byName  map[string]int // name → index into entries

	metrics *observe.Metrics
}

// Option configures a [Registry].
type Option func(*Registry)

// WithMetrics records registrations and renames on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{byName: make(map[string]int)}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Register stores d and returns the name it was stored under. Invalid
// descriptors are rejected with a *tool.LoadError.
func (r *Registry) Register(d tool.Descriptor) (string, error) {
	if err := d.Validate(); err != nil {
		src := d.Provenance.Source
		if src == "" {
			src = "registry"
		}
		return "", &tool.LoadError{Source: src, Err: err}
	}

	r.mu.Lock()
	requested := d.Name
	d.Name = r.freeNameLocked(requested)
	r.byName[d.Name] = len(r.entries)
	r.entries = append(r.entries, Entry{Seq: len(r.entries), Descriptor: d})
	r.mu.Unlock()

	ctx := context.Background()
	r.metrics.RegisteredTools.Add(ctx, 1)
	if d.Name != requested {
		r.metrics.ToolRenames.Add(ctx, 1, metric.WithAttributes(observe.Attr("source", d.Provenance.Source)))
		slog.Warn("tool name collision, renamed incoming tool",
			"requested", requested,
			"stored_as", d.Name,
			"source", d.Provenance.Source,
			"origin", d.Provenance.Origin,
		)
	}
	return d.Name, nil
}

// freeNameLocked must be called with r.mu held.
func (r *Registry) freeNameLocked(name string) string {
	if _, taken := r.byName[name]; !taken {
		return name
	}
	for i := 2; ; i++ {
		candidate := name + "_" + strconv.Itoa(i)
		if _, taken := r.byName[candidate]; !taken {
			return candidate
		}
	}
}

// Get returns the descriptor registered under name. Unknown names yield an
// error wrapping [tool.ErrNotFound] that suggests the closest known name.
func (r *Registry) Get(name string) (tool.Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i, ok := r.byName[name]; ok {
		return r.entries[i].Descriptor, nil
	}
	if s := r.suggestLocked(name); s != "" {
		return tool.Descriptor{}, fmt.Errorf("registry: %q: %w (did you mean %q?)", name, tool.ErrNotFound, s)
	}
	return tool.Descriptor{}, fmt.Errorf("registry: %q: %w", name, tool.ErrNotFound)
}

func (r *Registry) suggestLocked(name string) string {
	best, bestScore := "", suggestThreshold
	for _, e := range r.entries {
		if s := matchr.JaroWinkler(name, e.Descriptor.Name, false); s >= bestScore {
			best, bestScore = e.Descriptor.Name, s
		}
	}
	return best
}

// ListAll returns every entry in registration order. The slice is a copy.
func (r *Registry) ListAll() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
