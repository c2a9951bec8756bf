package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	memmock "github.com/MrWong99/aemassist/pkg/memory/mock"
	embmock "github.com/MrWong99/aemassist/pkg/provider/embeddings/mock"
)

// mapLoader serves documents from a map and fails for unknown URLs.
type mapLoader struct {
	mu    sync.Mutex
	pages map[string]string
	seen  []string
}

func (l *mapLoader) Load(_ context.Context, url string) (Document, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, url)
	text, ok := l.pages[url]
	if !ok {
		return Document{}, fmt.Errorf("GET %s returned status 404", url)
	}
	return Document{Content: text, Source: url, DocType: "web"}, nil
}

func lengthEmbed(text string) []float32 {
	return []float32{float32(len(text)), 1}
}

func TestRun_IndexesPagesAndSamples(t *testing.T) {
	t.Parallel()

	loader := &mapLoader{pages: map[string]string{
		"https://docs/a": "AEM Forms lets authors build adaptive forms.",
	}}
	emb := &embmock.Provider{EmbedFunc: lengthEmbed, ModelIDValue: "test-embed"}
	idx := &memmock.SemanticIndex{}

	ix := New(emb, idx, WithLoader(loader), WithBatchSize(3), WithConcurrency(2))
	stats, err := ix.Run(context.Background(), []string{"https://docs/a", "https://docs/broken"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if stats.Documents != 7 {
		t.Errorf("Documents = %d, want 7", stats.Documents)
	}
	if stats.Chunks != 7 {
		t.Errorf("Chunks = %d, want 7", stats.Chunks)
	}
	if len(stats.FailedURLs) != 1 || stats.FailedURLs[0] != "https://docs/broken" {
		t.Errorf("FailedURLs = %v", stats.FailedURLs)
	}

	if n := idx.CallCount("IndexChunks"); n != 1 {
		t.Fatalf("IndexChunks called %d times", n)
	}
	if len(idx.Chunks) != 7 {
		t.Fatalf("stored %d chunks", len(idx.Chunks))
	}
	ids := map[string]bool{}
	for _, c := range idx.Chunks {
		if c.ID == "" || ids[c.ID] {
			t.Errorf("missing or duplicate id %q", c.ID)
		}
		ids[c.ID] = true
		if len(c.Embedding) != 2 || c.Embedding[0] != float32(len(c.Content)) {
			t.Errorf("chunk %q has embedding %v", c.Content[:10], c.Embedding)
		}
		if c.CreatedAt.IsZero() {
			t.Error("CreatedAt not set")
		}
	}
	if got := len(emb.EmbedBatchTexts); got != 3 {
		t.Errorf("EmbedBatch called %d times, want 3 batches", got)
	}
}

func TestRun_WithoutSamples(t *testing.T) {
	t.Parallel()

	loader := &mapLoader{pages: map[string]string{"u": strings.Repeat("Sling models. ", 200)}}
	idx := &memmock.SemanticIndex{}
	ix := New(&embmock.Provider{EmbedFunc: lengthEmbed}, idx, WithLoader(loader), WithoutSamples())

	stats, err := ix.Run(context.Background(), []string{"u"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Documents != 1 || stats.Chunks < 3 {
		t.Errorf("stats = %+v", stats)
	}
	for _, c := range idx.Chunks {
		if c.Source != "u" {
			t.Errorf("Source = %q", c.Source)
		}
	}
}

func TestRun_NothingToIndex(t *testing.T) {
	t.Parallel()

	ix := New(&embmock.Provider{}, &memmock.SemanticIndex{}, WithLoader(&mapLoader{}), WithoutSamples())
	if _, err := ix.Run(context.Background(), []string{"gone"}); err == nil {
		t.Error("expected error")
	}
}

func TestRun_EmbeddingFailureAborts(t *testing.T) {
	t.Parallel()

	idx := &memmock.SemanticIndex{}
	emb := &embmock.Provider{EmbedBatchErr: errors.New("quota")}
	ix := New(emb, idx, WithLoader(&mapLoader{}))

	_, err := ix.Run(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "quota") {
		t.Fatalf("err = %v", err)
	}
	if n := idx.CallCount("IndexChunks"); n != 0 {
		t.Errorf("IndexChunks called %d times after a failed embedding", n)
	}
}

func TestRun_VectorCountMismatch(t *testing.T) {
	t.Parallel()

	emb := &embmock.Provider{EmbedBatchResult: [][]float32{{1}}}
	ix := New(emb, &memmock.SemanticIndex{}, WithLoader(&mapLoader{}))

	if _, err := ix.Run(context.Background(), nil); err == nil || !strings.Contains(err.Error(), "vectors") {
		t.Errorf("err = %v", err)
	}
}

func TestRun_StoreFailure(t *testing.T) {
	t.Parallel()

	idx := &memmock.SemanticIndex{IndexErr: errors.New("disk full")}
	ix := New(&embmock.Provider{EmbedFunc: lengthEmbed}, idx, WithLoader(&mapLoader{}))

	if _, err := ix.Run(context.Background(), nil); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("err = %v", err)
	}
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ix := New(&embmock.Provider{}, &memmock.SemanticIndex{}, WithLoader(&mapLoader{}))

	if _, err := ix.Run(ctx, []string{"u"}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
