// Package memory defines the semantic index that backs retrieval-augmented
// answering.
//
// Documentation is split into chunks, each chunk is embedded once by the
// indexer and stored together with its vector. At query time the question is
// embedded with the same model and the nearest chunks are returned.
//
// Backends live in sub-packages: [sqlite] keeps the index in a single local
// file, [postgres] uses pgvector. All implementations must be safe for
// concurrent use.
package memory

import (
	"context"
	"math"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Types
// ─────────────────────────────────────────────────────────────────────────────

// Chunk is a segment of a source document prepared for semantic indexing.
// A Chunk carries its pre-computed embedding so the index never re-embeds.
type Chunk struct {
	// ID is the unique identifier for this chunk (a UUID).
	ID string

	// Content is the raw text of the chunk.
	Content string

	// Embedding is the vector representation of Content. Its length must match
	// the dimension the index was created with.
	Embedding []float32

	// Source names the document the chunk was cut from, usually a URL or the
	// title of a built-in sample document.
	Source string

	// DocType is a free-form category such as "overview" or "sites".
	DocType string

	// CreatedAt is when the chunk was indexed.
	CreatedAt time.Time
}

// ChunkFilter narrows a search to a subset of chunks. Non-zero fields are
// combined with AND.
type ChunkFilter struct {
	Source  string
	DocType string
}

// ChunkResult pairs a retrieved chunk with its cosine distance from the query
// embedding. Lower is more similar.
type ChunkResult struct {
	Chunk    Chunk
	Distance float64
}

// ─────────────────────────────────────────────────────────────────────────────
// Interface
// ─────────────────────────────────────────────────────────────────────────────

// SemanticIndex is a vector store for embedding-based similarity search.
//
// Callers produce embeddings before calling IndexChunks or Search.
type SemanticIndex interface {
	// IndexChunks stores pre-embedded chunks. A chunk whose ID already exists
	// is replaced.
	IndexChunks(ctx context.Context, chunks []Chunk) error

	// Search returns up to topK chunks ordered by ascending distance to
	// embedding. It returns an empty, non-nil slice when nothing matches.
	Search(ctx context.Context, embedding []float32, topK int, filter ChunkFilter) ([]ChunkResult, error)

	// Count reports how many chunks are stored.
	Count(ctx context.Context) (int, error)

	// Close releases the backend's resources.
	Close() error
}

// CosineDistance returns 1 - cos(a, b). Vectors of different length, or with a
// zero norm, are treated as maximally distant (distance 2).
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// Matches reports whether c passes the filter.
func (f ChunkFilter) Matches(c Chunk) bool {
	if f.Source != "" && c.Source != f.Source {
		return false
	}
	if f.DocType != "" && c.DocType != f.DocType {
		return false
	}
	return true
}
