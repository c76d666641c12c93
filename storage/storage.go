// Package storage provides sqlite-backed implementations of the repository
// interfaces (schedule store, workload store, rule store) for deployments
// that outlive one process. The in-memory implementations next to each
// interface remain the default for tests.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the sqlite handle shared by the stores in this package.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the sqlite database at path and applies
// the schema. The caller owns Close.
func Open(ctx context.Context, path string) (*DB, error) {
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}
	// WAL enables one writer + many readers; busy_timeout avoids
	// "database is locked" flakiness under concurrent local use.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma: %w", err)
		}
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

// Close closes the underlying handle.
func (d *DB) Close() error {
	return d.db.Close()
}

func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scheduled_tasks (
			id TEXT PRIMARY KEY,
			assigned_to TEXT NOT NULL,
			case_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			scheduled_at_unixms INTEGER NOT NULL,
			doc_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sched_assignee ON scheduled_tasks(assigned_to, scheduled_at_unixms);`,
		`CREATE INDEX IF NOT EXISTS idx_sched_case ON scheduled_tasks(case_id);`,
		`CREATE TABLE IF NOT EXISTS workloads (
			user_id TEXT PRIMARY KEY,
			doc_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS rules (
			id TEXT NOT NULL,
			kind TEXT NOT NULL,
			doc_json TEXT NOT NULL,
			PRIMARY KEY(id, kind)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}
