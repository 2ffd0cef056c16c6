// Package index persists document chunks into a local SQLite database,
// optionally mirrored into an FTS5 virtual table for full-text search.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

// Store is the indexing backend for the pipeline's final stage.
type Store struct {
	db      *sql.DB
	useFTS5 bool
	mu      sync.Mutex
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	filename   TEXT NOT NULL,
	meta       TEXT,
	indexed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	text        TEXT NOT NULL,
	meta        TEXT
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
`

const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	text, chunk_id UNINDEXED, document_id UNINDEXED
);
`

// Open opens (creating if needed) the index database at path. Use
// ":memory:" for tests.
func Open(path string, useFTS5 bool) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	// modernc.org/sqlite serializes writes; one connection avoids
	// SQLITE_BUSY under concurrent stage workers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index schema: %w", err)
	}
	if useFTS5 {
		if _, err := db.Exec(ftsSchema); err != nil {
			db.Close()
			return nil, fmt.Errorf("create fts5 schema: %w", err)
		}
	}
	return &Store{db: db, useFTS5: useFTS5}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// IndexedChunk is the unit written into the store.
type IndexedChunk struct {
	ID         string
	DocumentID string
	Seq        int
	Text       string
	Meta       map[string]any
}

// IndexDocument replaces the stored representation of a document with
// the given chunks. Re-indexing the same document is idempotent.
func (s *Store) IndexDocument(ctx context.Context, documentID, filename string, meta map[string]any, chunks []IndexedChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.deleteDocumentTx(ctx, tx, documentID); err != nil {
		return err
	}

	metaJSON, err := marshalMeta(meta)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, filename, meta) VALUES (?, ?, ?)`,
		documentID, filename, metaJSON); err != nil {
		return fmt.Errorf("insert document %s: %w", documentID, err)
	}

	for _, c := range chunks {
		chunkMeta, err := marshalMeta(c.Meta)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (id, document_id, seq, text, meta) VALUES (?, ?, ?, ?, ?)`,
			c.ID, documentID, c.Seq, c.Text, chunkMeta); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
		if s.useFTS5 {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO chunks_fts (text, chunk_id, document_id) VALUES (?, ?, ?)`,
				c.Text, c.ID, documentID); err != nil {
				return fmt.Errorf("insert fts chunk %s: %w", c.ID, err)
			}
		}
	}

	return tx.Commit()
}

// DeleteDocument removes a document and its chunks from the index.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback()
	if err := s.deleteDocumentTx(ctx, tx, documentID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) deleteDocumentTx(ctx context.Context, tx *sql.Tx, documentID string) error {
	if s.useFTS5 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM chunks_fts WHERE document_id = ?`, documentID); err != nil {
			return fmt.Errorf("delete fts chunks for %s: %w", documentID, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("delete chunks for %s: %w", documentID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM documents WHERE id = ?`, documentID); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	return nil
}

// Reset clears every indexed artifact. Destructive; guarded at the REST
// surface by a confirmation header.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stmts := []string{`DELETE FROM chunks`, `DELETE FROM documents`}
	if s.useFTS5 {
		stmts = append(stmts, `DELETE FROM chunks_fts`)
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("reset index: %w", err)
		}
	}
	return nil
}

// CountDocuments returns the number of indexed documents.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

// SearchResult is one full-text search hit.
type SearchResult struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
}

// Search runs an FTS5 match query over indexed chunks.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if !s.useFTS5 {
		return nil, types.NewError(types.ErrCodeConfig, "full-text search requires fts5 indexing")
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, document_id, text FROM chunks_fts WHERE chunks_fts MATCH ? ORDER BY rank LIMIT ?`,
		query, limit)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Text); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func marshalMeta(meta map[string]any) (string, error) {
	if len(meta) == 0 {
		return "", nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal meta: %w", err)
	}
	return string(b), nil
}
