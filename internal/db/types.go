package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Run kinds
const (
	RunKindValidate = "validate"
	RunKindCompare  = "compare"
	RunKindBatch    = "batch"
)

// Run and application statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is one invocation of validation, comparison or a batch over many applications.
type Run struct {
	ID           uuid.UUID       `json:"id"`
	Kind         string          `json:"kind"`
	Status       string          `json:"status"`
	Summary      json.RawMessage `json:"summary,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// ApplicationResult records the outcome for one application within a run.
type ApplicationResult struct {
	RunID         uuid.UUID `json:"run_id"`
	ApplicationID string    `json:"application_id"`
	Status        string    `json:"status"`
	Mode          string    `json:"mode,omitempty"`
	Cached        bool      `json:"cached"`
	RuleVersion   string    `json:"rule_version,omitempty"`
	SuccessRate   *float64  `json:"success_rate,omitempty"`
	ErrorMessage  *string   `json:"error_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// CachedVerdicts is a stored validation payload keyed by text fingerprint and rule version.
type CachedVerdicts struct {
	Fingerprint   string          `json:"fingerprint"`
	RuleVersion   string          `json:"rule_version"`
	ApplicationID string          `json:"application_id"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
}
