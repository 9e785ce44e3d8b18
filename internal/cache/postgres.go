package cache

import (
	"context"

	"github.com/jonathan/compliance-reviewer/internal/db"
)

// PostgresStore keeps entries in the shared verdict_cache table.
type PostgresStore struct {
	db *db.DB
}

// NewPostgresStore wraps an open database.
func NewPostgresStore(database *db.DB) *PostgresStore {
	return &PostgresStore{db: database}
}

func (s *PostgresStore) Get(ctx context.Context, key Key) (*Entry, error) {
	cached, err := s.db.GetCachedVerdicts(ctx, key.Fingerprint, key.Version)
	if err != nil {
		return nil, err
	}
	if cached == nil {
		return nil, ErrMiss
	}
	return decode(cached.Payload)
}

func (s *PostgresStore) Put(ctx context.Context, key Key, entry *Entry) error {
	data, err := encode(entry)
	if err != nil {
		return err
	}
	return s.db.PutCachedVerdicts(ctx, key.Fingerprint, key.Version, entry.ApplicationID, data)
}
