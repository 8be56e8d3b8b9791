// Package migrate applies the numbered .sql files under migrations/ to Postgres.
// Each file runs in its own transaction and is recorded in schema_migrations.
package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

func Up(ctx context.Context, pool *pgxpool.Pool, dir string, logger zerolog.Logger) error {
	return UpFS(ctx, pool, os.DirFS(dir), logger)
}

func UpFS(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, logger zerolog.Logger) error {
	if _, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	files, err := Files(fsys)
	if err != nil {
		return err
	}
	done, err := applied(ctx, pool)
	if err != nil {
		return err
	}

	for _, name := range Pending(files, done) {
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(body)); err != nil {
				return fmt.Errorf("apply migration %s: %w", name, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, name); err != nil {
				return fmt.Errorf("record migration %s: %w", name, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		logger.Info().Str("version", name).Msg("migration applied")
	}
	return nil
}

// Files lists the .sql files at the root of fsys in apply order.
func Files(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Pending keeps the files not yet recorded, preserving order.
func Pending(files []string, done map[string]bool) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		if !done[f] {
			out = append(out, f)
		}
	}
	return out
}

func applied(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan schema_migrations: %w", err)
	}
	done := make(map[string]bool, len(versions))
	for _, v := range versions {
		done[v] = true
	}
	return done, nil
}
