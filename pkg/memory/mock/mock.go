// Package mock provides an in-memory test double for [memory.SemanticIndex].
//
// By default SemanticIndex behaves like a real brute-force index over the
// chunks it was given. Set the exported *Err fields to inject failures or
// SearchResult to bypass scoring entirely.
//
//	idx := &mock.SemanticIndex{}
//	_ = idx.IndexChunks(ctx, chunks)
//	if idx.CallCount("Search") != 1 { … }
package mock

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/aemassist/pkg/memory"
)

var _ memory.SemanticIndex = (*SemanticIndex)(nil)

// Call records the name and non-context arguments of one method invocation.
type Call struct {
	Method string
	Args   []any
}

// SemanticIndex is a configurable in-memory [memory.SemanticIndex].
type SemanticIndex struct {
	mu    sync.Mutex
	calls []Call

	// Chunks holds the stored chunks in insertion order. Tests may seed it
	// directly.
	Chunks []memory.Chunk

	IndexErr error
	// SearchResult, when non-nil, is returned by Search instead of scoring
	// Chunks.
	SearchResult []memory.ChunkResult
	SearchErr    error
	// CountValue, when non-nil, overrides the number of stored chunks.
	CountValue *int
	CountErr   error
	CloseErr   error
}

// Calls returns a copy of all recorded invocations.
func (m *SemanticIndex) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// CallCount returns how many times method was invoked.
func (m *SemanticIndex) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (m *SemanticIndex) record(method string, args ...any) {
	m.calls = append(m.calls, Call{Method: method, Args: args})
}

// IndexChunks implements [memory.SemanticIndex].
func (m *SemanticIndex) IndexChunks(_ context.Context, chunks []memory.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("IndexChunks", chunks)
	if m.IndexErr != nil {
		return m.IndexErr
	}
	for _, c := range chunks {
		i := slices.IndexFunc(m.Chunks, func(e memory.Chunk) bool { return e.ID == c.ID })
		if i >= 0 {
			m.Chunks[i] = c
		} else {
			m.Chunks = append(m.Chunks, c)
		}
	}
	return nil
}

// Search implements [memory.SemanticIndex].
func (m *SemanticIndex) Search(_ context.Context, embedding []float32, topK int, filter memory.ChunkFilter) ([]memory.ChunkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Search", embedding, topK, filter)
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	if m.SearchResult != nil {
		return m.SearchResult, nil
	}

	out := []memory.ChunkResult{}
	for _, c := range m.Chunks {
		if filter.Matches(c) {
			out = append(out, memory.ChunkResult{Chunk: c, Distance: memory.CosineDistance(embedding, c.Embedding)})
		}
	}
	slices.SortStableFunc(out, func(a, b memory.ChunkResult) int { return cmp.Compare(a.Distance, b.Distance) })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// Count implements [memory.SemanticIndex].
func (m *SemanticIndex) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Count")
	if m.CountErr != nil {
		return 0, m.CountErr
	}
	if m.CountValue != nil {
		return *m.CountValue, nil
	}
	return len(m.Chunks), nil
}

// Close implements [memory.SemanticIndex].
func (m *SemanticIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Close")
	return m.CloseErr
}
