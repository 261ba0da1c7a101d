// Package hub is the composition root of toolhub: it owns the tool registry,
// the embedding backend and cache, the ranking engine and the invocation
// bridge, and exposes them as one object.
//
//	h, err := hub.New(ctx, hub.WithSources(mathtools.Source()))
//	if err != nil { … }
//	defer h.Close()
//
//	tools, err := h.QueryTools(ctx, "compute the sine of an angle", 3)
//	v, err := tools[0].Call(ctx, tool.Arguments{"x": math.Pi / 2})
package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/toolhub/internal/bridge"
	"github.com/MrWong99/toolhub/internal/embedding"
	"github.com/MrWong99/toolhub/internal/observe"
	"github.com/MrWong99/toolhub/internal/ranking"
	"github.com/MrWong99/toolhub/internal/registry"
	"github.com/MrWong99/toolhub/pkg/provider/embeddings"
	"github.com/MrWong99/toolhub/pkg/tool"
)

// ErrClosed is returned by operations on a closed hub.
var ErrClosed = errors.New("hub: closed")

// Match is one ranked tool.
type Match struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

// Hub aggregates tools from any number of sources and serves ranking and
// invocation. After construction every method is safe for concurrent use.
type Hub struct {
	registry *registry.Registry
	cache    *embedding.Cache
	engine   *ranking.Engine
	bridge   *bridge.Bridge
	metrics  *observe.Metrics

	wrapped sync.Map // name → *bridge.Tool

	mu      sync.Mutex
	closers []namedCloser // sources
	closed  bool

	closeOnce sync.Once
	closeErr  error
}

type namedCloser struct {
	name string
	c    io.Closer
}

type options struct {
	provider    embeddings.Provider
	variant     embedding.Variant
	selectCfg   embedding.SelectConfig
	store       embedding.Store
	boostWeight *float64
	timeout     time.Duration
	metrics     *observe.Metrics
	sources     []tool.Source
}

// Option configures [New].
type Option func(*options)

// WithEmbeddingProvider uses p instead of selecting a backend.
func WithEmbeddingProvider(p embeddings.Provider, v embedding.Variant) Option {
	return func(o *options) { o.provider, o.variant = p, v }
}

// WithSelectConfig describes the backends available for selection.
func WithSelectConfig(cfg embedding.SelectConfig) Option {
	return func(o *options) { o.selectCfg = cfg }
}

// WithStore persists description vectors in s. The hub closes s.
func WithStore(s embedding.Store) Option {
	return func(o *options) { o.store = s }
}

// WithBoostWeight sets the ranking engine's lexical boost per shared token.
func WithBoostWeight(w float64) Option {
	return func(o *options) { o.boostWeight = &w }
}

// WithTimeout sets the default invocation deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithMetrics records everything on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithSources loads srcs during construction, see [Hub.Load].
func WithSources(srcs ...tool.Source) Option {
	return func(o *options) { o.sources = append(o.sources, srcs...) }
}

// New builds a hub. The embedding backend is chosen here, once.
//
// When only some sources fail to load, New returns a usable hub together
// with the joined *tool.LoadError values. Any other error leaves no hub.
func New(ctx context.Context, opts ...Option) (*Hub, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}

	var backend *embedding.Backend
	if o.provider != nil {
		v := o.variant
		if v == "" {
			v = embedding.VariantFallback
		}
		backend = embedding.NewBackend(o.provider, v, embedding.WithMetrics(o.metrics))
	} else {
		cfg := o.selectCfg
		cfg.Metrics = o.metrics
		var err error
		if backend, err = embedding.Select(ctx, cfg); err != nil {
			if o.store != nil {
				_ = o.store.Close()
			}
			return nil, fmt.Errorf("hub: %w", err)
		}
	}

	cacheOpts := []embedding.CacheOption{embedding.WithCacheMetrics(o.metrics)}
	if o.store != nil {
		cacheOpts = append(cacheOpts, embedding.WithStore(o.store))
	}
	cache := embedding.NewCache(backend, cacheOpts...)

	engineOpts := []ranking.Option{ranking.WithMetrics(o.metrics)}
	if o.boostWeight != nil {
		engineOpts = append(engineOpts, ranking.WithBoostWeight(*o.boostWeight))
	}
	reg := registry.New(registry.WithMetrics(o.metrics))

	h := &Hub{
		registry: reg,
		cache:    cache,
		engine:   ranking.New(reg, cache, engineOpts...),
		bridge:   bridge.New(bridge.WithTimeout(o.timeout), bridge.WithMetrics(o.metrics)),
		metrics:  o.metrics,
	}

	if len(o.sources) > 0 {
		if err := h.Load(ctx, o.sources...); err != nil {
			return h, err
		}
	}
	return h, nil
}

// Register adds d and returns the name it is reachable under.
func (h *Hub) Register(d tool.Descriptor) (string, error) {
	return h.registry.Register(d)
}

// Load registers the descriptors of every source. A failing source, or a
// failing descriptor, is reported as a *tool.LoadError and does not stop the
// others; all failures are joined. Sources implementing io.Closer are closed
// by [Hub.Close], even when their load failed.
func (h *Hub) Load(ctx context.Context, srcs ...tool.Source) error {
	var errs []error
	for _, src := range srcs {
		if c, ok := src.(io.Closer); ok {
			h.mu.Lock()
			h.closers = append(h.closers, namedCloser{src.Name(), c})
			h.mu.Unlock()
		}

		descs, err := src.Load(ctx)
		if err != nil {
			var le *tool.LoadError
			if !errors.As(err, &le) {
				err = &tool.LoadError{Source: src.Name(), Err: err}
			}
			slog.Warn("tool source failed to load", "source", src.Name(), "err", err)
			errs = append(errs, err)
		}

		registered := 0
		for _, d := range descs {
			if _, err := h.registry.Register(d); err != nil {
				errs = append(errs, err)
				continue
			}
			registered++
		}
		slog.Info("tool source loaded", "source", src.Name(), "tools", registered)
	}
	return errors.Join(errs...)
}

// Query ranks the registered tools for text and returns at most k matches,
// best first.
func (h *Hub) Query(ctx context.Context, text string, k int) ([]Match, error) {
	results, err := h.engine.Query(ctx, text, k)
	if err != nil {
		return nil, fmt.Errorf("hub: query: %w", err)
	}
	out := make([]Match, len(results))
	for i, r := range results {
		out[i] = Match{Name: r.Descriptor.Name, Description: r.Descriptor.Description, Score: r.Score}
	}
	return out, nil
}

// QueryTools normalises query (see [NormalizeQuery]), ranks the tools and
// returns the best k wrapped for invocation.
func (h *Hub) QueryTools(ctx context.Context, query any, k int) ([]*bridge.Tool, error) {
	results, err := h.engine.Query(ctx, NormalizeQuery(query), k)
	if err != nil {
		return nil, fmt.Errorf("hub: query tools: %w", err)
	}
	out := make([]*bridge.Tool, len(results))
	for i, r := range results {
		out[i] = h.wrap(r.Descriptor)
	}
	return out, nil
}

// Tool returns the invocable wrapper of name.
func (h *Hub) Tool(name string) (*bridge.Tool, error) {
	d, err := h.registry.Get(name)
	if err != nil {
		return nil, fmt.Errorf("hub: %w", err)
	}
	return h.wrap(d), nil
}

// Invoke runs the tool registered as name.
func (h *Hub) Invoke(ctx context.Context, name string, args tool.Arguments) (any, error) {
	if h.isClosed() {
		return nil, ErrClosed
	}
	t, err := h.Tool(name)
	if err != nil {
		return nil, err
	}
	return t.Call(ctx, args)
}

func (h *Hub) wrap(d tool.Descriptor) *bridge.Tool {
	if t, ok := h.wrapped.Load(d.Name); ok {
		return t.(*bridge.Tool)
	}
	t, _ := h.wrapped.LoadOrStore(d.Name, h.bridge.Wrap(d))
	return t.(*bridge.Tool)
}

// ListAll returns every registered tool in registration order.
func (h *Hub) ListAll() []tool.Summary {
	entries := h.registry.ListAll()
	out := make([]tool.Summary, len(entries))
	for i, e := range entries {
		out[i] = e.Descriptor.Summarize()
	}
	return out
}

// Len returns the number of registered tools.
func (h *Hub) Len() int { return h.registry.Len() }

// Backend reports the embedding backend variant chosen at construction.
func (h *Hub) Backend() embedding.Variant { return h.cache.Backend().Variant() }

// ModelID reports the embedding model in use.
func (h *Hub) ModelID() string { return h.cache.Backend().ModelID() }

// BoostWeight reports the ranking engine's lexical boost.
func (h *Hub) BoostWeight() float64 { return h.engine.BoostWeight() }

// InvocationTimeout reports the default invocation deadline.
func (h *Hub) InvocationTimeout() time.Duration { return h.bridge.Timeout() }

func (h *Hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Close releases every resource the hub owns: sources are closed
// concurrently, then the embedding cache and its store. All closers run even
// if some fail; failures are joined. Close is safe to call more than once and
// returns the same result each time.
func (h *Hub) Close() error {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		closers := slices.Clone(h.closers)
		h.mu.Unlock()

		var (
			mu   sync.Mutex
			errs []error
		)
		fail := func(name string, err error) {
			slog.Warn("hub: close failed", "resource", name, "err", err)
			mu.Lock()
			errs = append(errs, fmt.Errorf("hub: close %s: %w", name, err))
			mu.Unlock()
		}

		var g errgroup.Group
		for _, nc := range closers {
			g.Go(func() error {
				if err := nc.c.Close(); err != nil {
					fail(nc.name, err)
				}
				return nil
			})
		}
		_ = g.Wait()

		if err := h.cache.Close(); err != nil {
			fail("embedding cache", err)
		}
		h.closeErr = errors.Join(errs...)
	})
	return h.closeErr
}
