// Package hashed provides the always-available fallback embeddings backend:
// a hashed bag of words.
//
// Each lowercase token is hashed with xxHash64 into one of D buckets and the
// bucket is incremented per occurrence; the vector is then L2-normalised. The
// result is a pure function of the text, stable across runs and processes,
// and needs neither a model nor network access.
package hashed

import (
	"context"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/MrWong99/toolhub/pkg/provider/embeddings"
	"github.com/MrWong99/toolhub/pkg/textutil"
)

// DefaultDimensions is the bucket count used when none is given.
const DefaultDimensions = 256

var _ embeddings.Provider = (*Provider)(nil)

// Provider implements embeddings.Provider without a model. It is stateless
// and safe for concurrent use.
type Provider struct {
	dims int
}

// New returns a Provider with dims buckets; dims <= 0 selects
// [DefaultDimensions].
func New(dims int) *Provider {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Provider{dims: dims}
}

// Vector computes the embedding of text.
func (p *Provider) Vector(text string) []float32 {
	vec := make([]float32, p.dims)
	for _, tok := range textutil.Tokenize(text) {
		vec[xxhash.Sum64String(tok)%uint64(p.dims)]++
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// Embed implements embeddings.Provider. It only fails when ctx is done.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.Vector(text), nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.Vector(t)
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int { return p.dims }

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return fmt.Sprintf("hashed-xxh64-%d", p.dims) }
