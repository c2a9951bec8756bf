// Package rag answers documentation questions with retrieval-augmented
// generation.
//
// A question is embedded with the same model the indexer used, the nearest
// chunks are pulled from a [memory.SemanticIndex] and the model is asked to
// answer using only those chunks as context. Every failure is folded into an
// error-shaped [Result]; Query never returns an error.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/aemassist/internal/observe"
	"github.com/MrWong99/aemassist/pkg/memory"
	"github.com/MrWong99/aemassist/pkg/provider/embeddings"
	"github.com/MrWong99/aemassist/pkg/provider/llm"
	"github.com/MrWong99/aemassist/pkg/types"
)

// Defaults applied by [New].
const (
	DefaultTopK        = 4
	DefaultTemperature = 0.7
	DefaultExcerptLen  = 200
)

// NotReadyAnswer is returned by Query when no index is loaded.
const NotReadyAnswer = "❌ Vector store not loaded. Please run 'aemindex' first to index the AEM documentation."

// unknownSource labels chunks that were indexed without a source.
const unknownSource = "Unknown"

// Source is one retrieved passage cited by an answer.
type Source struct {
	// Excerpt is the start of the passage, truncated for display.
	Excerpt string `json:"content"`
	// SourceID identifies the originating document, usually its URL.
	SourceID string `json:"source"`
}

// Result is the outcome of a query. Sources is never nil.
type Result struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Answerer runs retrieval-augmented queries. It is safe for concurrent use.
type Answerer struct {
	index    memory.SemanticIndex
	embedder embeddings.Provider
	llm      llm.Provider

	topK        int
	temperature float64
	excerptLen  int
	loadErr     error
	metrics     *observe.Metrics
}

// Option is a functional option for [New].
type Option func(*Answerer)

// WithTopK sets how many chunks are retrieved per question. Values below 1
// are ignored.
func WithTopK(k int) Option {
	return func(a *Answerer) {
		if k > 0 {
			a.topK = k
		}
	}
}

// WithTemperature sets the sampling temperature used for answering.
func WithTemperature(t float64) Option {
	return func(a *Answerer) { a.temperature = t }
}

// WithExcerptLen sets how many runes of each passage are cited. Values below 1
// are ignored.
func WithExcerptLen(n int) Option {
	return func(a *Answerer) {
		if n > 0 {
			a.excerptLen = n
		}
	}
}

// WithLoadError records that opening the index failed. An Answerer with a
// load error is never ready.
func WithLoadError(err error) Option {
	return func(a *Answerer) { a.loadErr = err }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Answerer) {
		if m != nil {
			a.metrics = m
		}
	}
}

// New returns an Answerer. index may be nil when no index could be opened; the
// Answerer then reports not ready.
func New(index memory.SemanticIndex, embedder embeddings.Provider, model llm.Provider, opts ...Option) *Answerer {
	a := &Answerer{
		index:       index,
		embedder:    embedder,
		llm:         model,
		topK:        DefaultTopK,
		temperature: DefaultTemperature,
		excerptLen:  DefaultExcerptLen,
		metrics:     observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// IsReady reports whether an index is loaded and holds at least one chunk.
func (a *Answerer) IsReady(ctx context.Context) bool {
	if a.index == nil || a.loadErr != nil || a.embedder == nil || a.llm == nil {
		return false
	}
	n, err := a.index.Count(ctx)
	if err != nil {
		slog.Warn("rag: counting indexed chunks failed", "err", err)
		return false
	}
	return n > 0
}

// Query answers question from the indexed documentation.
func (a *Answerer) Query(ctx context.Context, question string) Result {
	ctx, span := observe.StartSpan(ctx, "rag.Query", trace.WithAttributes(
		attribute.Int("rag.top_k", a.topK),
	))
	defer span.End()

	if !a.IsReady(ctx) {
		a.metrics.RecordRAGQuery(ctx, "not_ready")
		return Result{Answer: NotReadyAnswer, Sources: []Source{}}
	}

	start := time.Now()
	res, err := a.query(ctx, question)
	a.metrics.RAGDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.metrics.RecordRAGQuery(ctx, "error")
		observe.Logger(ctx).Warn("rag: query failed", "err", err)
		return Result{Answer: fmt.Sprintf("❌ Error querying RAG system: %v", err), Sources: []Source{}}
	}
	span.SetAttributes(attribute.Int("rag.sources", len(res.Sources)))
	a.metrics.RecordRAGQuery(ctx, "ok")
	return res
}

func (a *Answerer) query(ctx context.Context, question string) (Result, error) {
	embedStart := time.Now()
	vec, err := a.embedder.Embed(ctx, question)
	a.metrics.EmbeddingDuration.Record(ctx, time.Since(embedStart).Seconds())
	if err != nil {
		a.metrics.RecordProviderError(ctx, a.embedder.ModelID(), "embeddings")
		return Result{}, fmt.Errorf("embed question: %w", err)
	}

	hits, err := a.index.Search(ctx, vec, a.topK, memory.ChunkFilter{})
	if err != nil {
		return Result{}, fmt.Errorf("search index: %w", err)
	}

	parts := make([]string, 0, len(hits))
	sources := make([]Source, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, h.Chunk.Content)
		src := h.Chunk.Source
		if src == "" {
			src = unknownSource
		}
		sources = append(sources, Source{Excerpt: excerpt(h.Chunk.Content, a.excerptLen), SourceID: src})
	}

	llmStart := time.Now()
	resp, err := a.llm.Complete(ctx, llm.CompletionRequest{
		Messages:        []types.Message{types.UserMessage(buildPrompt(strings.Join(parts, "\n\n"), question))},
		Temperature:     a.temperature,
		ZeroTemperature: a.temperature == 0,
	})
	a.metrics.LLMDuration.Record(ctx, time.Since(llmStart).Seconds())
	if err != nil {
		a.metrics.RecordProviderError(ctx, "llm", "completion")
		return Result{}, fmt.Errorf("generate answer: %w", err)
	}
	if resp == nil {
		return Result{}, errors.New("generate answer: empty response")
	}
	return Result{Answer: resp.Content, Sources: sources}, nil
}

// excerpt returns the first n runes of s followed by an ellipsis.
func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r) + "..."
}
