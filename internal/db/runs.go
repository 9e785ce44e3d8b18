package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateRun inserts a running run record and returns its ID
func (db *DB) CreateRun(ctx context.Context, kind string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := db.pool.Exec(ctx,
		`INSERT INTO review_runs (id, kind, status) VALUES ($1, $2, $3)`,
		id, kind, StatusRunning,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// CompleteRun marks a run finished with a status, an optional JSON summary and an optional error.
func (db *DB) CompleteRun(ctx context.Context, runID uuid.UUID, status string, summary any, runErr error) error {
	var summaryJSON []byte
	if summary != nil {
		var err error
		summaryJSON, err = json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("failed to marshal run summary: %w", err)
		}
	}
	var message *string
	if runErr != nil {
		m := runErr.Error()
		message = &m
	}

	_, err := db.pool.Exec(ctx,
		`UPDATE review_runs SET status = $1, summary = $2, error_message = $3, completed_at = NOW()
		 WHERE id = $4`,
		status, summaryJSON, message, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID, or nil when it does not exist.
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	var run Run
	var summary []byte
	err := db.pool.QueryRow(ctx,
		`SELECT id, kind, status, summary, error_message, started_at, completed_at
		 FROM review_runs WHERE id = $1`,
		runID,
	).Scan(&run.ID, &run.Kind, &run.Status, &summary, &run.ErrorMessage, &run.StartedAt, &run.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	run.Summary = summary
	return &run, nil
}

// RecordApplicationResult stores the outcome for one application, replacing an earlier record in the same run.
func (db *DB) RecordApplicationResult(ctx context.Context, r *ApplicationResult) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO application_results
		     (run_id, application_id, status, mode, cached, rule_version, success_rate, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (run_id, application_id) DO UPDATE SET
		     status = $3, mode = $4, cached = $5, rule_version = $6,
		     success_rate = $7, error_message = $8, created_at = NOW()`,
		r.RunID, r.ApplicationID, r.Status, r.Mode, r.Cached, r.RuleVersion, r.SuccessRate, r.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to record result for %s: %w", r.ApplicationID, err)
	}
	return nil
}

// ListApplicationResults returns a run's application outcomes ordered by application ID.
func (db *DB) ListApplicationResults(ctx context.Context, runID uuid.UUID) ([]ApplicationResult, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT run_id, application_id, status, mode, cached, rule_version, success_rate, error_message, created_at
		 FROM application_results WHERE run_id = $1 ORDER BY application_id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list application results: %w", err)
	}
	defer rows.Close()

	var results []ApplicationResult
	for rows.Next() {
		var r ApplicationResult
		if err := rows.Scan(&r.RunID, &r.ApplicationID, &r.Status, &r.Mode, &r.Cached,
			&r.RuleVersion, &r.SuccessRate, &r.ErrorMessage, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan application result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate application results: %w", err)
	}
	return results, nil
}
