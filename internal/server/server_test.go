package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/compliance-reviewer/internal/cache"
	"github.com/jonathan/compliance-reviewer/internal/db"
	"github.com/jonathan/compliance-reviewer/internal/llm"
	"github.com/jonathan/compliance-reviewer/internal/pipeline"
	"github.com/jonathan/compliance-reviewer/internal/retry"
	"github.com/jonathan/compliance-reviewer/internal/rules"
	"github.com/jonathan/compliance-reviewer/internal/server/ratelimit"
	"github.com/jonathan/compliance-reviewer/internal/types"
	"github.com/jonathan/compliance-reviewer/internal/validation"
)

const testRules = `version: "2026"
chapters:
  - chapterTitle: "Chapter 17: Budget"
    sectionName: Budget
    elements:
      - element: "Element a - Annual Budgeting for Scope of Project"
        requirementText: The health center develops an annual budget.
`

const budgetReply = `{"validations": [
	{"section": "Budget", "element": "Element a - Annual Budgeting for Scope of Project", "status": "COMPLIANT", "evidence": "The annual budget covers the scope.", "evidence_location": "Page 1"}
]}`

const applicationText = "========== PAGE 1 ==========\n" +
	"[HEADING] Project Narrative for HRSA-26-004\n" +
	"[TEXT] The annual budget covers the scope.\n"

type stubClient struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (s *stubClient) GenerateJSON(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	return s.GenerateJSONWithSystem(ctx, "", prompt, tier)
}

func (s *stubClient) GenerateJSONWithSystem(context.Context, string, string, llm.ModelTier) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.reply, s.err
}

func (s *stubClient) GetModel(llm.ModelTier) string { return "stub" }
func (s *stubClient) Close() error                  { return nil }

type mockRuns struct {
	runs    map[uuid.UUID]*db.Run
	results map[uuid.UUID][]db.ApplicationResult
	err     error
}

func (m *mockRuns) GetRun(_ context.Context, id uuid.UUID) (*db.Run, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.runs[id], nil
}

func (m *mockRuns) ListApplicationResults(_ context.Context, id uuid.UUID) ([]db.ApplicationResult, error) {
	return m.results[id], nil
}

func noWait(context.Context, time.Duration) error { return nil }

func newTestServer(t *testing.T, client llm.Client, runs RunStore) *Server {
	t.Helper()
	bulk := retry.BulkPolicy()
	bulk.Sleep = noWait
	bulk.MaxAttempts = 1
	chapter := retry.ChapterPolicy()
	chapter.Sleep = noWait
	chapter.MaxAttempts = 1

	store := rules.NewStore(fstest.MapFS{"2026.yaml": {Data: []byte(testRules)}}, "test")
	runner := pipeline.NewRunner(store, client, validation.Options{BulkPolicy: bulk, ChapterPolicy: chapter})
	runner.Cache = cache.NewCoordinator(cache.NewMemoryStore())

	s, err := New(Config{Runner: runner, Runs: runs, RateLimit: &ratelimit.Config{Enabled: false}})
	require.NoError(t, err)
	t.Cleanup(s.rateLimiter.Stop)
	return s
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestNew_RequiresRunner(t *testing.T) {
	complete := func() *pipeline.Runner {
		store := rules.NewStore(fstest.MapFS{"2026.yaml": {Data: []byte(testRules)}}, "test")
		return pipeline.NewRunner(store, &stubClient{}, validation.Options{})
	}

	tests := []struct {
		name    string
		runner  func() *pipeline.Runner
		wantErr string
	}{
		{"no runner", func() *pipeline.Runner { return nil }, "runner"},
		{"no rule store", func() *pipeline.Runner { r := complete(); r.Rules = nil; return r }, "rule store"},
		{"no validator", func() *pipeline.Runner { r := complete(); r.Validator = nil; return r }, "validator"},
		{"no comparator", func() *pipeline.Runner { r := complete(); r.Comparator = nil; return r }, "comparator"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(Config{Runner: tt.runner(), RateLimit: &ratelimit.Config{Enabled: false}})
			require.Error(t, err)
			assert.Nil(t, s)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	s, err := New(Config{Runner: complete(), RateLimit: &ratelimit.Config{Enabled: false}})
	require.NoError(t, err)
	s.rateLimiter.Stop()
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, &stubClient{}, nil)
	w := do(t, s, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody[map[string]string](t, w)["status"])
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestValidateEndpoint(t *testing.T) {
	client := &stubClient{reply: budgetReply}
	s := newTestServer(t, client, nil)
	body := `{"application_id": "APP-1", "text": ` + mustJSON(t, applicationText) + `}`

	w := do(t, s, http.MethodPost, "/validate", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	out := decodeBody[pipeline.Outcome](t, w)
	assert.Equal(t, "APP-1", out.ApplicationID)
	assert.Equal(t, "2026", out.RuleVersion)
	assert.False(t, out.Cached)
	require.NotNil(t, out.Validation)
	assert.Len(t, out.Validation.Results["Budget"].CompliantItems, 1)

	w = do(t, s, http.MethodPost, "/validate", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeBody[pipeline.Outcome](t, w).Cached)
	assert.Equal(t, 1, client.calls)

	w = do(t, s, http.MethodPost, "/validate", `{"application_id": "APP-1", "text": `+mustJSON(t, applicationText)+`, "skip_cache": true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, client.calls, "skip_cache forces a model call")
}

func TestValidateEndpoint_Errors(t *testing.T) {
	tests := []struct {
		name   string
		client *stubClient
		body   string
		want   int
		substr string
	}{
		{"malformed body", &stubClient{}, `{"application_id":`, http.StatusBadRequest, "invalid request body"},
		{"missing text", &stubClient{}, `{"application_id": "APP-1"}`, http.StatusBadRequest, "Text"},
		{"bad year code", &stubClient{}, `{"application_id": "APP-1", "text": "x", "year_code": "2x"}`, http.StatusBadRequest, "YearCode"},
		{"model unavailable", &stubClient{err: errors.New("upstream 503")}, `{"application_id": "APP-1", "text": ` + mustJSON(t, applicationText) + `}`, http.StatusBadGateway, "APP-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.client, nil)
			w := do(t, s, http.MethodPost, "/validate", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.Contains(t, decodeBody[map[string]string](t, w)["error"], tt.substr)
		})
	}
}

func TestValidateEndpoint_MissingRuleSet(t *testing.T) {
	runner := pipeline.NewRunner(rules.NewStore(fstest.MapFS{}, "empty"), &stubClient{}, validation.Options{})
	s, err := New(Config{Runner: runner, RateLimit: &ratelimit.Config{}})
	require.NoError(t, err)

	w := do(t, s, http.MethodPost, "/validate", `{"application_id": "APP-1", "text": "hello"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCompareEndpoint(t *testing.T) {
	s := newTestServer(t, &stubClient{}, nil)

	section := types.NewSectionResult()
	section.Add(types.ValidationVerdict{Element: "Element a - Annual Budgeting for Scope of Project", Status: types.StatusCompliant})
	req := types.CompareRequest{
		ApplicationID: "APP-1",
		Results:       types.ValidationResults{"Budget": section},
		ManualEntries: []types.ManualReviewEntry{
			{ApplicationID: "APP-1", Section: "Budget", ElementLabel: "a. Annual Budgeting for Scope of Project", RawStatus: "Yes"},
			{ApplicationID: "APP-2", Section: "Budget", ElementLabel: "a. Annual Budgeting for Scope of Project", RawStatus: "No"},
		},
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	w := do(t, s, http.MethodPost, "/compare", string(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	comparison := decodeBody[types.ApplicationComparison](t, w)
	assert.Equal(t, "APP-1", comparison.ApplicationID)
	assert.Equal(t, 1, comparison.Stats.Matching)
	assert.Zero(t, comparison.Stats.MissingInAI, "entries of other applications are dropped")
	assert.InDelta(t, 100.0, comparison.Stats.SuccessRatePercent, 0.001)
}

func TestCompareEndpoint_MissingResults(t *testing.T) {
	s := newTestServer(t, &stubClient{}, nil)
	w := do(t, s, http.MethodPost, "/compare", `{"application_id": "APP-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNormalizeEndpoint(t *testing.T) {
	s := newTestServer(t, &stubClient{}, nil)
	w := do(t, s, http.MethodPost, "/normalize", `{"text": `+mustJSON(t, applicationText)+`}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeBody[NormalizeResponse](t, w)
	assert.True(t, strings.HasPrefix(resp.Text, "========== PAGE 1 =========="))
	require.NotNil(t, resp.Metadata)
	assert.Equal(t, "26", resp.Metadata.YearCode)
	assert.Len(t, resp.Metadata.Fingerprint, 64)
}

func TestRulesEndpoints(t *testing.T) {
	s := newTestServer(t, &stubClient{}, nil)

	w := do(t, s, http.MethodGet, "/rules", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"2026"}, decodeBody[RulesResponse](t, w).Versions)

	w = do(t, s, http.MethodGet, "/rules/26", "")
	require.Equal(t, http.StatusOK, w.Code)
	ruleSet := decodeBody[rules.RuleSet](t, w)
	assert.Equal(t, "2026", ruleSet.VersionLabel)
	assert.Equal(t, 1, ruleSet.RequirementCount())

	w = do(t, s, http.MethodGet, "/rules/27", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "no 2027 set and no default")
}

func TestRunEndpoint(t *testing.T) {
	id := uuid.New()
	rate := 50.0
	runs := &mockRuns{
		runs: map[uuid.UUID]*db.Run{id: {ID: id, Kind: db.RunKindBatch, Status: db.StatusCompleted}},
		results: map[uuid.UUID][]db.ApplicationResult{id: {
			{RunID: id, ApplicationID: "APP-1", Status: db.StatusCompleted, SuccessRate: &rate},
		}},
	}
	s := newTestServer(t, &stubClient{}, runs)

	w := do(t, s, http.MethodGet, "/runs/"+id.String(), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody[RunResponse](t, w)
	assert.Equal(t, db.RunKindBatch, resp.Run.Kind)
	require.Len(t, resp.Applications, 1)
	assert.Equal(t, 50.0, *resp.Applications[0].SuccessRate)

	tests := []struct {
		name string
		path string
		runs RunStore
		want int
	}{
		{"unknown run", "/runs/" + uuid.New().String(), runs, http.StatusNotFound},
		{"bad id", "/runs/not-a-uuid", runs, http.StatusBadRequest},
		{"history disabled", "/runs/" + id.String(), nil, http.StatusNotFound},
		{"database error", "/runs/" + id.String(), &mockRuns{err: errors.New("connection refused")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, newTestServer(t, &stubClient{}, tt.runs), http.MethodGet, tt.path, "")
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, &stubClient{}, nil)
	s.rateLimiter = ratelimit.NewLimiter(&ratelimit.Config{
		Enabled:         true,
		EndpointConfigs: []ratelimit.EndpointConfig{{Path: "/normalize", Method: "POST", Limit: 1, Window: time.Hour}},
	})
	t.Cleanup(s.rateLimiter.Stop)
	s.handler = s.withRateLimit(s.withLogging(s.withCORS(http.HandlerFunc(s.handleNormalize))))

	w := do(t, s, http.MethodPost, "/normalize", `{"text": "hello"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = do(t, s, http.MethodPost, "/normalize", `{"text": "hello"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3600", w.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limit_exceeded", decodeBody[map[string]any](t, w)["error"])
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, &stubClient{}, nil)
	w := do(t, s, http.MethodOptions, "/validate", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
}

func mustJSON(t *testing.T, s string) string {
	t.Helper()
	data, err := json.Marshal(s)
	require.NoError(t, err)
	return string(data)
}
