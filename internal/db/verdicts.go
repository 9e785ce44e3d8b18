package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetCachedVerdicts returns the cached payload for (fingerprint, version), or nil when there is none.
func (db *DB) GetCachedVerdicts(ctx context.Context, fingerprint, version string) (*CachedVerdicts, error) {
	var c CachedVerdicts
	var payload []byte
	err := db.pool.QueryRow(ctx,
		`SELECT fingerprint, rule_version, application_id, payload, created_at
		 FROM verdict_cache WHERE fingerprint = $1 AND rule_version = $2`,
		fingerprint, version,
	).Scan(&c.Fingerprint, &c.RuleVersion, &c.ApplicationID, &payload, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached verdicts: %w", err)
	}
	c.Payload = payload
	return &c, nil
}

// PutCachedVerdicts stores or replaces the payload for (fingerprint, version).
func (db *DB) PutCachedVerdicts(ctx context.Context, fingerprint, version, applicationID string, payload []byte) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO verdict_cache (fingerprint, rule_version, application_id, payload)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (fingerprint, rule_version)
		 DO UPDATE SET application_id = $3, payload = $4, created_at = NOW()`,
		fingerprint, version, applicationID, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to save cached verdicts: %w", err)
	}
	return nil
}

// DeleteCachedVerdicts removes every cached version for a fingerprint and returns the number removed.
func (db *DB) DeleteCachedVerdicts(ctx context.Context, fingerprint string) (int64, error) {
	tag, err := db.pool.Exec(ctx, `DELETE FROM verdict_cache WHERE fingerprint = $1`, fingerprint)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cached verdicts: %w", err)
	}
	return tag.RowsAffected(), nil
}
