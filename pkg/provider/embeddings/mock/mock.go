// Package mock provides a test double for the embeddings.Provider interface.
//
//	p := &mock.Provider{EmbedResult: []float32{1, 0, 0}, DimensionsValue: 3}
//	vec, _ := p.Embed(ctx, "hello")
//
// Set EmbedFunc to derive vectors from the input text, which lets retrieval
// tests control which chunks rank closest to a question.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/aemassist/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// EmbedFunc, if set, computes the vector for each text. It takes
	// precedence over EmbedResult and EmbedBatchResult.
	EmbedFunc func(text string) []float32

	// EmbedResult is returned by Embed when EmbedFunc is nil.
	EmbedResult []float32
	// EmbedErr is returned by Embed.
	EmbedErr error

	// EmbedBatchResult is returned by EmbedBatch when EmbedFunc is nil. A nil
	// value yields one nil vector per input.
	EmbedBatchResult [][]float32
	// EmbedBatchErr is returned by EmbedBatch.
	EmbedBatchErr error

	DimensionsValue int
	ModelIDValue    string

	// EmbedTexts records every text passed to Embed.
	EmbedTexts []string
	// EmbedBatchTexts records a copy of every slice passed to EmbedBatch.
	EmbedBatchTexts [][]string
}

// Embed records the text and returns the configured vector.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedTexts = append(p.EmbedTexts, text)
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	if p.EmbedFunc != nil {
		return p.EmbedFunc(text), nil
	}
	return p.EmbedResult, nil
}

// EmbedBatch records the texts and returns the configured vectors.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedBatchTexts = append(p.EmbedBatchTexts, append([]string(nil), texts...))
	if p.EmbedBatchErr != nil {
		return nil, p.EmbedBatchErr
	}
	if p.EmbedFunc != nil {
		out := make([][]float32, len(texts))
		for i, t := range texts {
			out[i] = p.EmbedFunc(t)
		}
		return out, nil
	}
	if p.EmbedBatchResult != nil {
		return p.EmbedBatchResult, nil
	}
	return make([][]float32, len(texts)), nil
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DimensionsValue
}

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelIDValue
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedTexts = nil
	p.EmbedBatchTexts = nil
}
