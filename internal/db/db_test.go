package db

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusConstants(t *testing.T) {
	assert.Equal(t, "running", StatusRunning)
	assert.Equal(t, "completed", StatusCompleted)
	assert.Equal(t, "failed", StatusFailed)
}

func TestSchema_DeclaresTables(t *testing.T) {
	for _, table := range []string{"verdict_cache", "review_runs", "application_results"} {
		assert.Contains(t, Schema, "CREATE TABLE IF NOT EXISTS "+table)
	}
	assert.Contains(t, Schema, "PRIMARY KEY (fingerprint, rule_version)")
	assert.Equal(t, strings.Count(Schema, "CREATE "), strings.Count(Schema, "IF NOT EXISTS"),
		"every statement is idempotent")
}

func TestApplicationResult_JSON(t *testing.T) {
	rate := 66.7
	data, err := json.Marshal(ApplicationResult{ApplicationID: "APP-1", Status: StatusCompleted, SuccessRate: &rate})
	assert.NoError(t, err)
	assert.Contains(t, string(data), `"success_rate":66.7`)
	assert.NotContains(t, string(data), "error_message")
}
