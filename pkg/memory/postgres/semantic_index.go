package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/MrWong99/aemassist/pkg/memory"
)

const upsertChunk = `
	INSERT INTO doc_chunks (id, content, embedding, source, doc_type, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE SET
	    content    = EXCLUDED.content,
	    embedding  = EXCLUDED.embedding,
	    source     = EXCLUDED.source,
	    doc_type   = EXCLUDED.doc_type,
	    created_at = EXCLUDED.created_at`

// IndexChunks implements [memory.SemanticIndex]. All chunks are written in one
// batch inside a transaction.
func (s *Store) IndexChunks(ctx context.Context, chunks []memory.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("semantic index: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, c := range chunks {
		created := c.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		batch.Queue(upsertChunk, c.ID, c.Content, pgvector.NewVector(c.Embedding), c.Source, c.DocType, created)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("semantic index: index chunks: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("semantic index: commit: %w", err)
	}
	return nil
}

// Search implements [memory.SemanticIndex] using the pgvector cosine distance
// operator, which the HNSW index accelerates.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int, filter memory.ChunkFilter) ([]memory.ChunkResult, error) {
	args := []any{pgvector.NewVector(embedding)}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if filter.Source != "" {
		conditions = append(conditions, "source = "+next(filter.Source))
	}
	if filter.DocType != "" {
		conditions = append(conditions, "doc_type = "+next(filter.DocType))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	q := fmt.Sprintf(`
		SELECT id, content, embedding, source, doc_type, created_at,
		       embedding <=> $1 AS distance
		FROM   doc_chunks
		%s
		ORDER  BY distance
		LIMIT  %s`, where, next(topK))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("semantic index: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.ChunkResult, error) {
		var (
			cr  memory.ChunkResult
			vec pgvector.Vector
		)
		if err := row.Scan(
			&cr.Chunk.ID,
			&cr.Chunk.Content,
			&vec,
			&cr.Chunk.Source,
			&cr.Chunk.DocType,
			&cr.Chunk.CreatedAt,
			&cr.Distance,
		); err != nil {
			return memory.ChunkResult{}, err
		}
		cr.Chunk.Embedding = vec.Slice()
		return cr, nil
	})
	if err != nil {
		return nil, fmt.Errorf("semantic index: scan rows: %w", err)
	}
	if results == nil {
		results = []memory.ChunkResult{}
	}
	return results, nil
}

// Count implements [memory.SemanticIndex].
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM doc_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("semantic index: count: %w", err)
	}
	return n, nil
}
