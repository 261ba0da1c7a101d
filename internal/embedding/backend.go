// Package embedding selects the embedding backend of a hub, guards runtime
// calls to it and memoises tool description vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/toolhub/internal/observe"
	"github.com/MrWong99/toolhub/internal/resilience"
	"github.com/MrWong99/toolhub/pkg/provider/embeddings"
	"github.com/MrWong99/toolhub/pkg/tool"
)

// Variant names the kind of backend a hub ended up with.
type Variant string

const (
	VariantRemote   Variant = "remote"
	VariantLocal    Variant = "local"
	VariantFallback Variant = "fallback"
)

// Backend is the embedding backend chosen for one hub. Every failure it
// returns wraps [tool.ErrBackendUnavailable].
type Backend struct {
	provider embeddings.Provider
	variant  Variant
	breaker  *resilience.CircuitBreaker
	metrics  *observe.Metrics
}

// BackendOption configures a [Backend].
type BackendOption func(*Backend)

// WithBreaker guards provider calls with cb. Once open, calls fail fast
// instead of waiting for the provider's timeout.
func WithBreaker(cb *resilience.CircuitBreaker) BackendOption {
	return func(b *Backend) { b.breaker = cb }
}

// WithMetrics records calls on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) BackendOption {
	return func(b *Backend) { b.metrics = m }
}

// NewBackend wraps p as a backend of the given variant.
func NewBackend(p embeddings.Provider, v Variant, opts ...BackendOption) *Backend {
	b := &Backend{provider: p, variant: v}
	for _, o := range opts {
		o(b)
	}
	if b.metrics == nil {
		b.metrics = observe.DefaultMetrics()
	}
	return b
}

// Variant reports which kind of backend this is.
func (b *Backend) Variant() Variant { return b.variant }

// ModelID reports the underlying model.
func (b *Backend) ModelID() string { return b.provider.ModelID() }

// Provider returns the wrapped provider.
func (b *Backend) Provider() embeddings.Provider { return b.provider }

// Embed computes the vector for text.
func (b *Backend) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var vec []float32
	call := func() error {
		var err error
		vec, err = b.provider.Embed(ctx, text)
		if err == nil && len(vec) == 0 {
			err = errors.New("empty vector")
		}
		return err
	}

	var err error
	if b.breaker != nil {
		err = b.breaker.Execute(call)
	} else {
		err = call()
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	b.metrics.EmbeddingDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("backend", string(b.variant))))
	b.metrics.RecordEmbeddingRequest(ctx, string(b.variant), status)

	if err != nil {
		return nil, fmt.Errorf("embedding: %s backend: %w: %w", b.variant, tool.ErrBackendUnavailable, err)
	}
	return vec, nil
}
