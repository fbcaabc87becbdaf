package sqlstore

import (
	"context"
	"fmt"
)

const schemaLockKey int64 = 2026101501

const postgresSchema = `
CREATE TABLE IF NOT EXISTS files (
	id TEXT PRIMARY KEY,
	original_name TEXT NOT NULL,
	size BIGINT NOT NULL DEFAULT 0,
	content_type TEXT NOT NULL DEFAULT '',
	page_count INTEGER NOT NULL DEFAULT 0,
	storage_path TEXT NOT NULL DEFAULT '',
	raw_text TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	uploaded_at TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS results (
	file_id TEXT PRIMARY KEY REFERENCES files(id) ON DELETE CASCADE,
	run_id TEXT NOT NULL DEFAULT '',
	lawyer JSONB NOT NULL,
	citizen JSONB NOT NULL,
	next_steps JSONB NOT NULL,
	facts JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_status ON files(status);
CREATE INDEX IF NOT EXISTS idx_files_uploaded_at ON files(uploaded_at DESC);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS files (
	id TEXT PRIMARY KEY,
	original_name TEXT NOT NULL,
	size INTEGER NOT NULL DEFAULT 0,
	content_type TEXT NOT NULL DEFAULT '',
	page_count INTEGER NOT NULL DEFAULT 0,
	storage_path TEXT NOT NULL DEFAULT '',
	raw_text TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	uploaded_at TIMESTAMP NOT NULL,
	processed_at TIMESTAMP,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS results (
	file_id TEXT PRIMARY KEY REFERENCES files(id) ON DELETE CASCADE,
	run_id TEXT NOT NULL DEFAULT '',
	lawyer TEXT NOT NULL,
	citizen TEXT NOT NULL,
	next_steps TEXT NOT NULL,
	facts TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_status ON files(status);
CREATE INDEX IF NOT EXISTS idx_files_uploaded_at ON files(uploaded_at DESC);
`

func (s *DocumentStore) EnsureSchema(ctx context.Context) error {
	if s.dialect == DialectSQLite {
		if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
			return fmt.Errorf("execute schema ddl: %w", err)
		}
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
