package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/toolhub/internal/observe"
)

// Store persists description vectors across processes. Lookups and saves are
// keyed by model so vectors from different backends never mix.
type Store interface {
	Lookup(ctx context.Context, model, text string) ([]float32, bool, error)
	Save(ctx context.Context, model, text string, vec []float32) error
	Close() error
}

// Cache memoises description vectors for the lifetime of one hub.
//
// Concurrent first requests for the same text may each compute a vector; the
// first one published wins and every caller receives it. Published vectors
// are never replaced.
type Cache struct {
	backend *Backend
	store   Store
	metrics *observe.Metrics

	mu   sync.RWMutex
	vecs map[string][]float32
}

// CacheOption configures a [Cache].
type CacheOption func(*Cache)

// WithStore adds a persistent second level consulted before the backend.
func WithStore(s Store) CacheOption {
	return func(c *Cache) { c.store = s }
}

// WithCacheMetrics records lookups on m.
func WithCacheMetrics(m *observe.Metrics) CacheOption {
	return func(c *Cache) { c.metrics = m }
}

// NewCache returns an empty cache in front of b.
func NewCache(b *Backend, opts ...CacheOption) *Cache {
	c := &Cache{
		backend: b,
		vecs:    make(map[string][]float32),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Peek returns the memoised vector for text without computing it.
func (c *Cache) Peek(text string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vecs[text]
	return v, ok
}

// Get returns the vector for text, computing and publishing it on first use.
func (c *Cache) Get(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.Peek(text); ok {
		c.metrics.RecordCacheLookup(ctx, "hit")
		return v, nil
	}

	model := c.backend.ModelID()
	if c.store != nil {
		v, ok, err := c.store.Lookup(ctx, model, text)
		switch {
		case err != nil:
			observe.Logger(ctx).Warn("embedding store lookup failed", "model", model, "err", err)
		case ok:
			c.metrics.RecordCacheLookup(ctx, "store")
			return c.publish(text, v), nil
		}
	}

	c.metrics.RecordCacheLookup(ctx, "miss")
	v, err := c.backend.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	v = c.publish(text, v)

	if c.store != nil {
		if err := c.store.Save(ctx, model, text, v); err != nil {
			observe.Logger(ctx).Warn("embedding store save failed", "model", model, "err", err)
		}
	}
	return v, nil
}

// publish stores v under text unless another goroutine got there first, and
// returns the winning vector.
func (c *Cache) publish(text string, v []float32) []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.vecs[text]; ok {
		return existing
	}
	c.vecs[text] = v
	return v
}

// Len returns the number of memoised vectors.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vecs)
}

// Backend returns the backend the cache computes vectors with.
func (c *Cache) Backend() *Backend { return c.backend }

// Close closes the persistent store, if any.
func (c *Cache) Close() error {
	if c.store == nil {
		return nil
	}
	if err := c.store.Close(); err != nil {
		return fmt.Errorf("embedding: close store: %w", err)
	}
	return nil
}
