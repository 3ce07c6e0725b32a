package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type migration struct {
	version int
	name    string
	sql     string
}

// Migrate brings the schema up to date: every embedded migration that
// has not been applied yet runs in its own transaction, and its version
// is recorded in schema_migrations so reruns are no-ops.
func Migrate(ctx context.Context, db *sql.DB) error {
	// The tracking table is created outside the versioned migrations so
	// it exists before the first one runs.
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at_ms INTEGER NOT NULL
);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	ms, err := loadMigrations()
	if err != nil {
		return err
	}

	for _, m := range ms {
		if err := applyOnce(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

// loadMigrations reads the embedded *.sql files and returns them sorted
// by version.
func loadMigrations() ([]migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var ms []migration
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		v, err := versionOf(name)
		if err != nil {
			return nil, err
		}
		b, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		ms = append(ms, migration{version: v, name: name, sql: string(b)})
	}

	sort.Slice(ms, func(i, j int) bool { return ms[i].version < ms[j].version })
	return ms, nil
}

// applyOnce runs m inside a transaction unless its version is already
// recorded.
func applyOnce(ctx context.Context, db *sql.DB, m migration) error {
	var have int
	err := db.QueryRowContext(ctx,
		"SELECT version FROM schema_migrations WHERE version = ?;", m.version,
	).Scan(&have)
	switch {
	case err == nil:
		return nil // already applied
	case err != sql.ErrNoRows:
		return fmt.Errorf("look up migration %d: %w", m.version, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %s: begin: %w", m.name, err)
	}

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration %s: %w", m.name, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations(version, applied_at_ms) VALUES(?, ?);",
		m.version, time.Now().UTC().UnixMilli(),
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration %s: record version: %w", m.name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %s: commit: %w", m.name, err)
	}
	return nil
}

// versionOf extracts the numeric prefix of a migration filename, e.g.
// 0001_init.sql -> 1.
func versionOf(filename string) (int, error) {
	prefix, _, found := strings.Cut(filename, "_")
	if !found {
		prefix = strings.TrimSuffix(filename, ".sql")
	}
	s := strings.TrimLeft(prefix, "0")
	if s == "" {
		s = "0"
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("migration %s: bad version prefix: %w", filename, err)
	}
	return v, nil
}
