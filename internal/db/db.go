// Package db provides PostgreSQL access for the shared verdict cache and review run records.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Schema creates every table this package reads or writes. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS verdict_cache (
	fingerprint    TEXT NOT NULL,
	rule_version   TEXT NOT NULL,
	application_id TEXT NOT NULL DEFAULT '',
	payload        JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (fingerprint, rule_version)
);

CREATE TABLE IF NOT EXISTS review_runs (
	id            UUID PRIMARY KEY,
	kind          TEXT NOT NULL,
	status        TEXT NOT NULL,
	summary       JSONB,
	error_message TEXT,
	started_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS application_results (
	run_id         UUID NOT NULL REFERENCES review_runs(id) ON DELETE CASCADE,
	application_id TEXT NOT NULL,
	status         TEXT NOT NULL,
	mode           TEXT NOT NULL DEFAULT '',
	cached         BOOLEAN NOT NULL DEFAULT FALSE,
	rule_version   TEXT NOT NULL DEFAULT '',
	success_rate   DOUBLE PRECISION,
	error_message  TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (run_id, application_id)
);
CREATE INDEX IF NOT EXISTS idx_application_results_app ON application_results(application_id);
`

// EnsureSchema applies Schema.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
