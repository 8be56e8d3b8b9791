// Package sqlite provides a SQLite-backed document store for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"ttrpg-tracker/internal/platform/docstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    data TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER,
    UNIQUE (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_collection_order_idx ON documents (collection, created_at, seq);
`

// Store persists documents in SQLite. Timestamps are stored as unix milliseconds.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

type Option func(*Store)

// WithClock overrides the clock used to stamp created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (or creates) the database file at path and ensures the schema.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	s := &Store{sqlDB: sqlDB, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (docstore.Document, error) {
	var (
		id      string
		data    string
		created int64
		updated sql.NullInt64
	)
	if err := row.Scan(&id, &data, &created, &updated); err != nil {
		return docstore.Document{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("parse document id: %w", err)
	}
	d := docstore.Document{ID: parsed, Data: json.RawMessage(data), CreatedAt: fromMillis(created)}
	if updated.Valid {
		t := fromMillis(updated.Int64)
		d.UpdatedAt = &t
	}
	return d, nil
}

const selectColumns = `id, data, created_at, updated_at`

func (s *Store) List(ctx context.Context, col docstore.Path) ([]docstore.Document, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+selectColumns+` FROM documents
WHERE collection = ? ORDER BY created_at ASC, seq ASC`, string(col))
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]docstore.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func (s *Store) Get(ctx context.Context, col docstore.Path, id uuid.UUID) (docstore.Document, error) {
	d, err := scanDocument(s.sqlDB.QueryRowContext(ctx, `
SELECT `+selectColumns+` FROM documents WHERE collection = ? AND id = ?`, string(col), id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return docstore.Document{}, docstore.ErrNotFound
		}
		return docstore.Document{}, fmt.Errorf("query document: %w", err)
	}
	return d, nil
}

func (s *Store) Count(ctx context.Context, col docstore.Path) (int, error) {
	var n int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE collection = ?`, string(col)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

func (s *Store) Add(ctx context.Context, col docstore.Path, data any) (docstore.Document, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("encode document: %w", err)
	}
	d, err := scanDocument(s.sqlDB.QueryRowContext(ctx, `
INSERT INTO documents (collection, id, data, created_at)
VALUES (?, ?, ?, ?)
RETURNING `+selectColumns, string(col), uuid.NewString(), string(raw), toMillis(s.now())))
	if err != nil {
		return docstore.Document{}, fmt.Errorf("insert document: %w", err)
	}
	return d, nil
}

// AddIfBelow runs the count and the insert as one statement, which SQLite
// executes under a single write lock.
func (s *Store) AddIfBelow(ctx context.Context, col docstore.Path, max int, data any) (docstore.Document, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("encode document: %w", err)
	}
	d, err := scanDocument(s.sqlDB.QueryRowContext(ctx, `
INSERT INTO documents (collection, id, data, created_at)
SELECT ?, ?, ?, ?
WHERE (SELECT COUNT(*) FROM documents WHERE collection = ?) < ?
RETURNING `+selectColumns, string(col), uuid.NewString(), string(raw), toMillis(s.now()), string(col), max))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return docstore.Document{}, docstore.ErrLimitReached
		}
		return docstore.Document{}, fmt.Errorf("insert document: %w", err)
	}
	return d, nil
}

func (s *Store) Update(ctx context.Context, col docstore.Path, id uuid.UUID, patch map[string]any) (docstore.Document, error) {
	raw, err := json.Marshal(patch)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("encode patch: %w", err)
	}
	d, err := scanDocument(s.sqlDB.QueryRowContext(ctx, `
UPDATE documents SET data = json_patch(data, ?), updated_at = ?
WHERE collection = ? AND id = ?
RETURNING `+selectColumns, string(raw), toMillis(s.now()), string(col), id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return docstore.Document{}, docstore.ErrNotFound
		}
		return docstore.Document{}, fmt.Errorf("update document: %w", err)
	}
	return d, nil
}

func (s *Store) Delete(ctx context.Context, col docstore.Path, id uuid.UUID) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, string(col), id.String()); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (s *Store) DeleteAll(ctx context.Context, col docstore.Path) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, string(col)); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	return nil
}
