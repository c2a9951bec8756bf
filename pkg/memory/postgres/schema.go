// Package postgres provides a PostgreSQL + pgvector implementation of
// [memory.SemanticIndex].
//
// The pgvector extension must be available in the target database; [Migrate]
// installs it via CREATE EXTENSION IF NOT EXISTS.
//
//	idx, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer idx.Close()
//	_ = idx.IndexChunks(ctx, chunks)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlChunks returns the chunk table DDL. The vector dimension is baked into
// the column type at creation time.
func ddlChunks(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS doc_chunks (
    id          TEXT         PRIMARY KEY,
    content     TEXT         NOT NULL,
    embedding   vector(%d)   NOT NULL,
    source      TEXT         NOT NULL DEFAULT '',
    doc_type    TEXT         NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_doc_chunks_source
    ON doc_chunks (source);

CREATE INDEX IF NOT EXISTS idx_doc_chunks_embedding
    ON doc_chunks USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates the chunk table and its indexes. It is idempotent and safe
// to call on every start.
//
// embeddingDimensions must match the embeddings model (1536 for OpenAI
// text-embedding-3-small, 768 for nomic-embed-text). Changing it after the
// first migration requires dropping the table.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if embeddingDimensions <= 0 {
		return fmt.Errorf("postgres migrate: embedding dimensions must be positive, got %d", embeddingDimensions)
	}
	if _, err := pool.Exec(ctx, ddlChunks(embeddingDimensions)); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
