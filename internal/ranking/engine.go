// Package ranking orders registered tools by relevance to a natural-language
// query.
//
// A tool's score is the cosine similarity between the query vector and its
// description vector, plus a lexical boost of BoostWeight per distinct query
// token that also occurs in the tool's name or description. Ties keep
// registration order. Rankings are recomputed on every query; only
// description vectors are cached.
package ranking

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/toolhub/internal/embedding"
	"github.com/MrWong99/toolhub/internal/observe"
	"github.com/MrWong99/toolhub/internal/registry"
	"github.com/MrWong99/toolhub/pkg/textutil"
)

// DefaultBoostWeight is added to a tool's score per shared distinct token.
const DefaultBoostWeight = 0.1

// defaultConcurrency bounds concurrent description embeddings per query.
const defaultConcurrency = 8

// Result is one ranked tool.
type Result struct {
	registry.Entry

	// Score = Similarity + Boost. Higher is better.
	Score      float64
	Similarity float64
	Boost      float64
}

// Engine ranks the tools of a registry. It never mutates the registry and is
// safe for concurrent use.
type Engine struct {
	registry    *registry.Registry
	cache       *embedding.Cache
	boostWeight float64
	concurrency int
	metrics     *observe.Metrics
}

// Option configures an [Engine].
type Option func(*Engine)

// WithBoostWeight sets the per-token lexical boost. Zero disables the boost.
func WithBoostWeight(w float64) Option {
	return func(e *Engine) { e.boostWeight = w }
}

// WithConcurrency bounds how many description vectors are computed at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithMetrics records query latency on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New returns an engine over reg that obtains description vectors from
// cache and embeds queries with the cache's backend.
func New(reg *registry.Registry, cache *embedding.Cache, opts ...Option) *Engine {
	e := &Engine{
		registry:    reg,
		cache:       cache,
		boostWeight: DefaultBoostWeight,
		concurrency: defaultConcurrency,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// BoostWeight returns the configured per-token boost.
func (e *Engine) BoostWeight() float64 { return e.boostWeight }

// Query returns the min(k, n) best tools for text, best first. k <= 0 and an
// empty registry yield an empty result without touching the backend. Backend
// failures are returned unchanged.
func (e *Engine) Query(ctx context.Context, text string, k int) ([]Result, error) {
	entries := e.registry.ListAll()
	if k <= 0 || len(entries) == 0 {
		return []Result{}, nil
	}

	ctx, span := observe.StartSpan(ctx, "ranking.Query")
	defer span.End()
	start := time.Now()
	defer func() {
		e.metrics.QueryDuration.Record(ctx, time.Since(start).Seconds())
	}()

	queryVec, err := e.cache.Backend().Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("ranking: embed query: %w", err)
	}

	vecs, err := e.descriptionVectors(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("ranking: embed descriptions: %w", err)
	}

	queryTokens := textutil.DistinctTokens(text)
	results := make([]Result, len(entries))
	for i, entry := range entries {
		d := entry.Descriptor
		sim := Cosine(queryVec, vecs[i])
		boost := 0.0
		if len(queryTokens) > 0 && e.boostWeight != 0 {
			shared := textutil.SharedCount(queryTokens, textutil.DistinctTokens(d.Name+" "+d.Description))
			boost = float64(shared) * e.boostWeight
		}
		results[i] = Result{Entry: entry, Score: sim + boost, Similarity: sim, Boost: boost}
	}

	slices.SortStableFunc(results, func(a, b Result) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return a.Seq - b.Seq
		}
	})
	if k < len(results) {
		results = results[:k]
	}

	span.SetAttributes(
		attribute.Int("ranking.k", k),
		attribute.Int("ranking.candidates", len(entries)),
		attribute.String("ranking.backend", string(e.cache.Backend().Variant())),
	)
	return results, nil
}

// descriptionVectors returns one vector per entry, embedding missing ones
// concurrently.
func (e *Engine) descriptionVectors(ctx context.Context, entries []registry.Entry) ([][]float32, error) {
	vecs := make([][]float32, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, entry := range entries {
		text := entry.Descriptor.RankingText()
		if v, ok := e.cache.Peek(text); ok {
			vecs[i] = v
			continue
		}
		g.Go(func() error {
			v, err := e.cache.Get(gctx, text)
			if err != nil {
				return fmt.Errorf("%q: %w", entry.Descriptor.Name, err)
			}
			vecs[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vecs, nil
}

// Cosine returns the cosine similarity of a and b. Vectors of different
// length or with zero norm score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
