// Package mock provides a test double for embeddings.Provider.
//
// Vectors are looked up in Vectors by exact text; unknown texts fall back to
// EmbedFunc and then to Default. Every call is recorded.
//
//	p := &mock.Provider{
//	    Vectors: map[string][]float32{"sine": {1, 0}},
//	    Default: []float32{0, 1},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/toolhub/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// Provider is a configurable embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// Vectors maps exact input texts to their vectors.
	Vectors map[string][]float32

	// EmbedFunc is consulted for texts missing from Vectors.
	EmbedFunc func(text string) ([]float32, error)

	// Default is returned when neither Vectors nor EmbedFunc apply.
	Default []float32

	// Err, if non-nil, fails every call.
	Err error

	DimensionsValue int
	ModelIDValue    string

	// EmbedCalls records every text submitted, including batch members.
	EmbedCalls []string

	// BatchCalls counts EmbedBatch invocations.
	BatchCalls int
}

func (p *Provider) lookup(text string) ([]float32, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	if v, ok := p.Vectors[text]; ok {
		return v, nil
	}
	if p.EmbedFunc != nil {
		return p.EmbedFunc(text)
	}
	return p.Default, nil
}

// Embed records text and returns its vector.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	return p.lookup(text)
}

// EmbedBatch records texts and returns their vectors.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.BatchCalls++
	p.EmbedCalls = append(p.EmbedCalls, texts...)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.lookup(t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int { return p.DimensionsValue }

// ModelID returns ModelIDValue, or "mock" when empty.
func (p *Provider) ModelID() string {
	if p.ModelIDValue == "" {
		return "mock"
	}
	return p.ModelIDValue
}

// CallCount returns how many texts have been embedded.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.EmbedCalls)
}
