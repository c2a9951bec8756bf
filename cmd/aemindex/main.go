// Command aemindex builds the documentation index read by aemassist.
//
// It fetches the configured documentation pages, adds the built-in sample
// documents, embeds everything with the configured embeddings provider and
// writes the chunks to the configured index backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MrWong99/aemassist/internal/app"
	"github.com/MrWong99/aemassist/internal/config"
	"github.com/MrWong99/aemassist/internal/indexer"
	"github.com/MrWong99/aemassist/pkg/memory"
	"github.com/MrWong99/aemassist/pkg/memory/postgres"
	"github.com/MrWong99/aemassist/pkg/memory/sqlite"
)

// urlList collects repeated -url flags.
type urlList []string

func (u *urlList) String() string     { return strings.Join(*u, ",") }
func (u *urlList) Set(v string) error { *u = append(*u, v); return nil }

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML configuration file (empty: environment only)")
	noSamples := flag.Bool("no-samples", false, "skip the built-in sample documents")
	batch := flag.Int("batch", indexer.DefaultBatchSize, "texts per embeddings request")
	concurrency := flag.Int("concurrency", indexer.DefaultConcurrency, "embeddings requests in flight")
	var urls urlList
	flag.Var(&urls, "url", "documentation page to index (repeatable, added to index.urls)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aemindex: %v\n", err)
		return 1
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: app.LevelFor(cfg.Server.LogLevel)})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg)
	emb, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
	if err != nil {
		slog.Error("failed to create embeddings provider", "name", cfg.Providers.Embeddings.Name, "err", err)
		return 1
	}

	idx, err := openIndex(ctx, cfg.Index)
	if err != nil {
		slog.Error("failed to open index", "backend", cfg.Index.Backend, "err", err)
		return 1
	}
	defer idx.Close()

	opts := []indexer.Option{indexer.WithBatchSize(*batch), indexer.WithConcurrency(*concurrency)}
	if *noSamples {
		opts = append(opts, indexer.WithoutSamples())
	}
	ix := indexer.New(emb, idx, opts...)

	stats, err := ix.Run(ctx, append(cfg.Index.URLs, urls...))
	if err != nil {
		slog.Error("indexing failed", "err", err)
		return 1
	}
	total, _ := idx.Count(ctx)
	slog.Info("indexing complete",
		"documents", stats.Documents,
		"chunks", stats.Chunks,
		"failed_urls", len(stats.FailedURLs),
		"index_total", total,
		"duration", stats.Duration,
	)
	return 0
}

func openIndex(ctx context.Context, cfg config.IndexConfig) (memory.SemanticIndex, error) {
	if cfg.Backend == config.IndexPostgres {
		return postgres.NewStore(ctx, cfg.PostgresDSN, cfg.Dimensions)
	}
	return sqlite.Open(cfg.Path)
}
