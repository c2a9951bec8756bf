// Package sqlite provides a single-file [memory.SemanticIndex] backed by the
// pure-Go modernc SQLite driver.
//
// Vectors are stored as little-endian float32 blobs and searched by brute-force
// cosine distance. That comfortably covers a documentation corpus of a few
// thousand chunks without any native extension.
package sqlite

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/aemassist/pkg/memory"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

var _ memory.SemanticIndex = (*Index)(nil)

// Index is a SQLite-backed semantic index.
type Index struct {
	db *sql.DB
}

// ─── Lifecycle ───────────────────────────────────────────────────────────────

// Open opens (or creates) the index file at path. Parent directories are
// created as needed. The special path ":memory:" yields a private in-memory
// database.
func Open(path string) (*Index, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("sqlite index: create dir: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite index: open: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serialises
	// writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite index: pragma %q: %w", p, err)
		}
	}

	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

// Close implements [memory.SemanticIndex].
func (x *Index) Close() error {
	return x.db.Close()
}

func (x *Index) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS doc_chunks (
    id         TEXT    PRIMARY KEY,
    content    TEXT    NOT NULL,
    embedding  BLOB    NOT NULL,
    source     TEXT    NOT NULL DEFAULT '',
    doc_type   TEXT    NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_doc_chunks_source ON doc_chunks (source);`
	if _, err := x.db.Exec(ddl); err != nil {
		return fmt.Errorf("sqlite index: migrate: %w", err)
	}
	return nil
}

// ─── SemanticIndex ───────────────────────────────────────────────────────────

// IndexChunks implements [memory.SemanticIndex].
func (x *Index) IndexChunks(ctx context.Context, chunks []memory.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite index: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO doc_chunks (id, content, embedding, source, doc_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
		    content    = excluded.content,
		    embedding  = excluded.embedding,
		    source     = excluded.source,
		    doc_type   = excluded.doc_type,
		    created_at = excluded.created_at`)
	if err != nil {
		return fmt.Errorf("sqlite index: prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		created := c.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.Content, encodeVector(c.Embedding), c.Source, c.DocType, created.UnixNano()); err != nil {
			return fmt.Errorf("sqlite index: insert %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite index: commit: %w", err)
	}
	return nil
}

// Search implements [memory.SemanticIndex]. Every candidate row is scored in
// Go; ties keep insertion order.
func (x *Index) Search(ctx context.Context, embedding []float32, topK int, filter memory.ChunkFilter) ([]memory.ChunkResult, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.DocType != "" {
		conditions = append(conditions, "doc_type = ?")
		args = append(args, filter.DocType)
	}
	q := `SELECT id, content, embedding, source, doc_type, created_at FROM doc_chunks`
	if len(conditions) > 0 {
		q += " WHERE " + strings.Join(conditions, " AND ")
	}
	q += " ORDER BY rowid"

	rows, err := x.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite index: search: %w", err)
	}
	defer rows.Close()

	results := []memory.ChunkResult{}
	for rows.Next() {
		var (
			cr      memory.ChunkResult
			blob    []byte
			created int64
		)
		if err := rows.Scan(&cr.Chunk.ID, &cr.Chunk.Content, &blob, &cr.Chunk.Source, &cr.Chunk.DocType, &created); err != nil {
			return nil, fmt.Errorf("sqlite index: scan: %w", err)
		}
		cr.Chunk.Embedding = decodeVector(blob)
		cr.Chunk.CreatedAt = time.Unix(0, created)
		cr.Distance = memory.CosineDistance(embedding, cr.Chunk.Embedding)
		results = append(results, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite index: rows: %w", err)
	}

	slices.SortStableFunc(results, func(a, b memory.ChunkResult) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Count implements [memory.SemanticIndex].
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM doc_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite index: count: %w", err)
	}
	return n, nil
}

// ─── Encoding ────────────────────────────────────────────────────────────────

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
