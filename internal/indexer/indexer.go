// Package indexer builds the documentation index used for retrieval answering.
//
// A run loads the configured pages, adds the built-in sample documents,
// splits everything into overlapping chunks, embeds the chunks in concurrent
// batches and stores them in a [memory.SemanticIndex]. A page that fails to
// load is logged and skipped; an embedding or storage failure aborts the run.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/aemassist/internal/observe"
	"github.com/MrWong99/aemassist/pkg/memory"
	"github.com/MrWong99/aemassist/pkg/provider/embeddings"
)

// Pipeline defaults.
const (
	DefaultBatchSize   = 64
	DefaultConcurrency = 4
)

// Stats summarises one run.
type Stats struct {
	Documents int
	Chunks    int
	// FailedURLs lists pages that could not be loaded.
	FailedURLs []string
	Duration   time.Duration
}

// Indexer loads, splits, embeds and stores documentation.
type Indexer struct {
	embedder    embeddings.Provider
	index       memory.SemanticIndex
	loader      Loader
	splitter    Splitter
	batchSize   int
	concurrency int
	samples     bool
	newID       func() string
	now         func() time.Time
	metrics     *observe.Metrics
}

// Option is a functional option for [New].
type Option func(*Indexer)

// WithLoader replaces the default [WebLoader].
func WithLoader(l Loader) Option {
	return func(ix *Indexer) { ix.loader = l }
}

// WithSplitter replaces the default 1000/200 splitter.
func WithSplitter(s Splitter) Option {
	return func(ix *Indexer) { ix.splitter = s }
}

// WithBatchSize sets how many chunks are embedded per request.
func WithBatchSize(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.batchSize = n
		}
	}
}

// WithConcurrency bounds the number of in-flight embedding requests.
func WithConcurrency(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.concurrency = n
		}
	}
}

// WithoutSamples skips the built-in sample documents.
func WithoutSamples() Option {
	return func(ix *Indexer) { ix.samples = false }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(ix *Indexer) {
		if m != nil {
			ix.metrics = m
		}
	}
}

// New returns an Indexer writing into index.
func New(embedder embeddings.Provider, index memory.SemanticIndex, opts ...Option) *Indexer {
	ix := &Indexer{
		embedder:    embedder,
		index:       index,
		splitter:    NewSplitter(DefaultChunkSize, DefaultChunkOverlap),
		batchSize:   DefaultBatchSize,
		concurrency: DefaultConcurrency,
		samples:     true,
		newID:       uuid.NewString,
		now:         time.Now,
		metrics:     observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(ix)
	}
	if ix.loader == nil {
		ix.loader = NewWebLoader()
	}
	return ix
}

// Run indexes urls plus the sample documents.
func (ix *Indexer) Run(ctx context.Context, urls []string) (Stats, error) {
	start := ix.now()
	var stats Stats

	docs := make([]Document, 0, len(urls)+6)
	for _, u := range urls {
		doc, err := ix.loader.Load(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return stats, fmt.Errorf("indexer: %w", ctx.Err())
			}
			slog.Warn("indexer: skipping page", "url", u, "err", err)
			stats.FailedURLs = append(stats.FailedURLs, u)
			continue
		}
		slog.Info("indexer: loaded page", "url", u, "chars", len(doc.Content))
		docs = append(docs, doc)
	}
	if ix.samples {
		docs = append(docs, SampleDocuments()...)
	}
	stats.Documents = len(docs)

	chunks := ix.chunk(docs)
	if len(chunks) == 0 {
		return stats, errors.New("indexer: no content to index")
	}
	slog.Info("indexer: split documents", "documents", len(docs), "chunks", len(chunks))

	if err := ix.embed(ctx, chunks); err != nil {
		return stats, err
	}
	if err := ix.index.IndexChunks(ctx, chunks); err != nil {
		return stats, fmt.Errorf("indexer: store chunks: %w", err)
	}

	stats.Chunks = len(chunks)
	stats.Duration = ix.now().Sub(start)
	return stats, nil
}

func (ix *Indexer) chunk(docs []Document) []memory.Chunk {
	created := ix.now()
	var chunks []memory.Chunk
	for _, d := range docs {
		for _, text := range ix.splitter.Split(d.Content) {
			chunks = append(chunks, memory.Chunk{
				ID:        ix.newID(),
				Content:   text,
				Source:    d.Source,
				DocType:   d.DocType,
				CreatedAt: created,
			})
		}
	}
	return chunks
}

// embed fills in the Embedding of every chunk, one batch per goroutine.
func (ix *Indexer) embed(ctx context.Context, chunks []memory.Chunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.concurrency)

	for lo := 0; lo < len(chunks); lo += ix.batchSize {
		batch := chunks[lo:min(lo+ix.batchSize, len(chunks))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Content
			}
			t := time.Now()
			vecs, err := ix.embedder.EmbedBatch(gctx, texts)
			ix.metrics.EmbeddingDuration.Record(gctx, time.Since(t).Seconds())
			if err != nil {
				ix.metrics.RecordProviderRequest(gctx, ix.embedder.ModelID(), "embeddings", "error")
				return fmt.Errorf("indexer: embed batch at %d: %w", lo, err)
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("indexer: embed batch at %d: got %d vectors for %d texts", lo, len(vecs), len(batch))
			}
			ix.metrics.RecordProviderRequest(gctx, ix.embedder.ModelID(), "embeddings", "ok")
			for i := range batch {
				batch[i].Embedding = vecs[i]
			}
			return nil
		})
	}
	return g.Wait()
}
