package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps entries in a single-file SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a cache database at path. Use ":memory:" for a private in-memory cache.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS verdict_cache (
		fingerprint  TEXT NOT NULL,
		rule_version TEXT NOT NULL,
		payload      BLOB NOT NULL,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (fingerprint, rule_version)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create cache table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, key Key) (*Entry, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM verdict_cache WHERE fingerprint = ? AND rule_version = ?`,
		key.Fingerprint, key.Version,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("failed to read cache row: %w", err)
	}
	return decode(payload)
}

func (s *SQLiteStore) Put(ctx context.Context, key Key, entry *Entry) error {
	data, err := encode(entry)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO verdict_cache (fingerprint, rule_version, payload) VALUES (?, ?, ?)
		 ON CONFLICT (fingerprint, rule_version) DO UPDATE SET payload = excluded.payload, created_at = CURRENT_TIMESTAMP`,
		key.Fingerprint, key.Version, data,
	)
	if err != nil {
		return fmt.Errorf("failed to write cache row: %w", err)
	}
	return nil
}
