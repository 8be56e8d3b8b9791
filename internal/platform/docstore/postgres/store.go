package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ttrpg-tracker/internal/platform/docstore"
)

// Store keeps every collection in the single documents table created by
// migrations/002_documents.sql.
type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const selectColumns = `id, data, created_at, updated_at`

func scanDocument(row pgx.Row) (docstore.Document, error) {
	var d docstore.Document
	var data []byte
	var updated *time.Time
	if err := row.Scan(&d.ID, &data, &d.CreatedAt, &updated); err != nil {
		return docstore.Document{}, err
	}
	d.Data = json.RawMessage(data)
	d.UpdatedAt = updated
	return d, nil
}

func (s *Store) List(ctx context.Context, col docstore.Path) ([]docstore.Document, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+selectColumns+`
FROM documents WHERE collection = $1 ORDER BY created_at ASC, seq ASC
`, string(col))
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
	d, err := scanDocument(s.db.QueryRow(ctx, `
SELECT `+selectColumns+` FROM documents WHERE collection = $1 AND id = $2
`, string(col), id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return docstore.Document{}, docstore.ErrNotFound
		}
		return docstore.Document{}, fmt.Errorf("query document: %w", err)
	}
	return d, nil
}

func (s *Store) Count(ctx context.Context, col docstore.Path) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM documents WHERE collection = $1`, string(col)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

func (s *Store) Add(ctx context.Context, col docstore.Path, data any) (docstore.Document, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("encode document: %w", err)
	}
	d, err := scanDocument(s.db.QueryRow(ctx, `
INSERT INTO documents (collection, id, data)
VALUES ($1, $2, $3::jsonb)
RETURNING `+selectColumns+`
`, string(col), uuid.New(), raw))
	if err != nil {
		return docstore.Document{}, fmt.Errorf("insert document: %w", err)
	}
	return d, nil
}

// AddIfBelow serializes writers of one collection on a transaction-scoped
// advisory lock so the count and the insert see the same rows.
func (s *Store) AddIfBelow(ctx context.Context, col docstore.Path, max int, data any) (docstore.Document, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("encode document: %w", err)
	}
	var d docstore.Document
	err = pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, string(col)); err != nil {
			return fmt.Errorf("lock collection: %w", err)
		}
		d, err = scanDocument(tx.QueryRow(ctx, `
INSERT INTO documents (collection, id, data)
SELECT $1::text, $2::uuid, $3::jsonb
WHERE (SELECT COUNT(*) FROM documents WHERE collection = $1::text) < $4
RETURNING `+selectColumns+`
`, string(col), uuid.New(), raw, int64(max)))
		if errors.Is(err, pgx.ErrNoRows) {
			return docstore.ErrLimitReached
		}
		if err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		return nil
	})
	if err != nil {
		return docstore.Document{}, err
	}
	return d, nil
}

func (s *Store) Update(ctx context.Context, col docstore.Path, id uuid.UUID, patch map[string]any) (docstore.Document, error) {
	raw, err := json.Marshal(patch)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("encode patch: %w", err)
	}
	d, err := scanDocument(s.db.QueryRow(ctx, `
UPDATE documents
SET data = data || $3::jsonb, updated_at = NOW()
WHERE collection = $1 AND id = $2
RETURNING `+selectColumns+`
`, string(col), id, raw))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return docstore.Document{}, docstore.ErrNotFound
		}
		return docstore.Document{}, fmt.Errorf("update document: %w", err)
	}
	return d, nil
}

func (s *Store) Delete(ctx context.Context, col docstore.Path, id uuid.UUID) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, string(col), id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (s *Store) DeleteAll(ctx context.Context, col docstore.Path) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM documents WHERE collection = $1`, string(col)); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	return nil
}
