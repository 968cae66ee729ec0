package index

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/corpusd/corpusd/internal/chunk"
)

// metadataStore keeps chunk rows in SQLite. It is the authoritative record of
// what the index contains; the vector store mirrors its ids.
type metadataStore struct {
	db *sql.DB
}

const metadataSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id      TEXT PRIMARY KEY,
	source  TEXT NOT NULL,
	page    INTEGER NOT NULL,
	seq     INTEGER NOT NULL,
	content TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);
`

// openMetadataStore opens (creating if needed) the SQLite database at path.
func openMetadataStore(path string) (*metadataStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open metadata database: %w", err)
	}

	// modernc.org/sqlite serializes writers; a single connection avoids
	// SQLITE_BUSY under concurrent access.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(metadataSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create metadata schema: %w", err)
	}
	return &metadataStore{db: db}, nil
}

func (m *metadataStore) close() error {
	return m.db.Close()
}

// insert writes chunks in a single transaction, replacing existing rows.
func (m *metadataStore) insert(ctx context.Context, chunks []chunk.Chunk) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO chunks (id, source, page, seq, content) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.Source, c.Page, c.Seq, c.Text); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// ids returns every chunk id in the store.
func (m *metadataStore) ids(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT id FROM chunks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// entries returns every (id, source) pair.
func (m *metadataStore) entries(ctx context.Context) ([]Entry, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT id, source FROM chunks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Source); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// idsForSource returns the chunk ids belonging to one source document.
func (m *metadataStore) idsForSource(ctx context.Context, source string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT id FROM chunks WHERE source = ? ORDER BY id`, source)
	if err != nil {
		return nil, fmt.Errorf("query ids for source: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// deleteBySource removes all rows for a source and returns their ids.
func (m *metadataStore) deleteBySource(ctx context.Context, source string) ([]string, error) {
	ids, err := m.idsForSource(ctx, source)
	if err != nil {
		return nil, err
	}
	if _, err := m.db.ExecContext(ctx, `DELETE FROM chunks WHERE source = ?`, source); err != nil {
		return nil, fmt.Errorf("delete source %s: %w", source, err)
	}
	return ids, nil
}

// rewriteSource updates the source column of every row for oldSource.
// Chunk ids keep their original path prefix; the identity is assigned at
// indexing time and a metadata-only rewrite does not recompute it.
func (m *metadataStore) rewriteSource(ctx context.Context, oldSource, newSource string) error {
	if _, err := m.db.ExecContext(ctx,
		`UPDATE chunks SET source = ? WHERE source = ?`, newSource, oldSource); err != nil {
		return fmt.Errorf("rewrite source %s -> %s: %w", oldSource, newSource, err)
	}
	return nil
}

// get fetches a single chunk row by id.
func (m *metadataStore) get(ctx context.Context, id string) (chunk.Chunk, error) {
	var c chunk.Chunk
	err := m.db.QueryRowContext(ctx,
		`SELECT id, source, page, seq, content FROM chunks WHERE id = ?`, id).
		Scan(&c.ID, &c.Source, &c.Page, &c.Seq, &c.Text)
	if err != nil {
		return chunk.Chunk{}, fmt.Errorf("get chunk %s: %w", id, err)
	}
	return c, nil
}

// count returns the number of stored chunks.
func (m *metadataStore) count(ctx context.Context) (int, error) {
	var n int
	err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}
