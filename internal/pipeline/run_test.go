package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/compliance-reviewer/internal/cache"
	"github.com/jonathan/compliance-reviewer/internal/llm"
	"github.com/jonathan/compliance-reviewer/internal/observability"
	"github.com/jonathan/compliance-reviewer/internal/retry"
	"github.com/jonathan/compliance-reviewer/internal/rules"
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
      - element: "Element b - Revenue Sources"
        requirementText: The budget identifies all revenue sources.
  - chapterTitle: "Chapter 20: Board Composition"
    sectionName: Board Composition
    elements:
      - element: "Element a - Board Member Selection"
        requirementText: The bylaws specify board selection.
`

const applicationText = "========== PAGE 1 ==========\n" +
	"[HEADING] Project Narrative for HRSA-26-004\n" +
	"[TEXT] The annual budget covers the full scope of project.\n" +
	"========== PAGE 2 ==========\n" +
	"[TEXT] Board members are appointed by the CEO.\n"

// partialReply covers two of the three elements.
const partialReply = `{"validations": [
	{"section": "Budget", "element": "Element a - Annual Budgeting for Scope of Project", "status": "COMPLIANT", "evidence": "The annual budget covers the full scope of project.", "evidence_location": "Page 1"},
	{"section": "Board Composition", "element": "Element a - Board Member Selection", "status": "NON_COMPLIANT", "evidence_location": "Page 2", "reasoning": "Appointed by the CEO."}
]}`

// fakeClient returns queued replies in order and counts calls.
type fakeClient struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (f *fakeClient) GenerateJSON(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	return f.GenerateJSONWithSystem(ctx, "", prompt, tier)
}

func (f *fakeClient) GenerateJSONWithSystem(context.Context, string, string, llm.ModelTier) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.replies) == 0 {
		return "", errors.New("fake client: no reply queued")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func (f *fakeClient) GetModel(llm.ModelTier) string { return "fake-model" }
func (f *fakeClient) Close() error                  { return nil }

func noWait(context.Context, time.Duration) error { return nil }

func newTestRunner(client llm.Client) *Runner {
	bulk := retry.BulkPolicy()
	bulk.Sleep = noWait
	chapter := retry.ChapterPolicy()
	chapter.Sleep = noWait

	store := rules.NewStore(fstest.MapFS{"2026.yaml": {Data: []byte(testRules)}}, "test")
	r := NewRunner(store, client, validation.Options{BulkPolicy: bulk, ChapterPolicy: chapter})
	r.Cache = cache.NewCoordinator(cache.NewMemoryStore())
	return r
}

func manualEntries() []types.ManualReviewEntry {
	return []types.ManualReviewEntry{
		{Section: "Budget", ElementLabel: "Element a - Annual Budgeting for Scope of Project", RawStatus: "Yes, the budget is complete."},
		{Section: "Budget", ElementLabel: "Element b - Revenue Sources", RawStatus: "No"},
		{Section: "Board Composition", ElementLabel: "Element a - Board Member Selection", RawStatus: "Yes"},
	}
}

func TestRunApplication_EndToEnd(t *testing.T) {
	client := &fakeClient{replies: []string{partialReply}}
	r := newTestRunner(client)
	var buf bytes.Buffer
	r.Printer = observability.NewPrinter(&buf)

	out, err := r.RunApplication(context.Background(), Input{
		ApplicationID: "APP-1",
		Text:          applicationText,
		Manual:        manualEntries(),
	})
	require.NoError(t, err)

	assert.Equal(t, "2026", out.RuleVersion, "year detected from the announcement number")
	assert.Equal(t, "26", out.Metadata.YearCode)
	assert.Equal(t, 2, out.Metadata.PageCount)
	assert.False(t, out.Cached)
	assert.Equal(t, 1, client.calls)

	v := out.Validation
	require.NotNil(t, v)
	assert.Equal(t, validation.ModeBulk, v.Mode)
	assert.Equal(t, 2, v.Results.Total())
	assert.Equal(t, 3, v.Coverage.Expected)
	assert.False(t, v.Coverage.Complete())
	assert.Contains(t, v.Coverage.Warnings(), "expected 3 validations, got 2")

	c := out.Comparison
	require.NotNil(t, c)
	assert.Equal(t, types.ComparisonStats{
		Total:              2,
		Matching:           1,
		Mismatching:        1,
		MissingInAI:        1,
		SuccessRatePercent: 50,
	}, c.Stats)

	assert.Contains(t, buf.String(), "VALIDATION RESULTS")
	assert.Contains(t, buf.String(), "Success rate: 50.0% (1 of 2)")
}

func TestRunApplication_CachesByFingerprintAndVersion(t *testing.T) {
	client := &fakeClient{replies: []string{partialReply}}
	r := newTestRunner(client)
	ctx := context.Background()

	first, err := r.RunApplication(ctx, Input{ApplicationID: "APP-1", Text: applicationText})
	require.NoError(t, err)
	second, err := r.RunApplication(ctx, Input{ApplicationID: "APP-1-resubmitted", Text: applicationText})
	require.NoError(t, err)

	assert.Equal(t, 1, client.calls, "identical text is validated once")
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, "APP-1-resubmitted", second.Validation.ApplicationID)
	assert.Equal(t, first.Validation.Results, second.Validation.Results)
}

func TestRunApplication_MissingRuleSetFailsBeforeModelCall(t *testing.T) {
	client := &fakeClient{replies: []string{partialReply}}
	r := newTestRunner(client)
	r.Rules = rules.NewStore(fstest.MapFS{}, "empty")

	_, err := r.RunApplication(context.Background(), Input{ApplicationID: "APP-1", Text: applicationText})
	require.Error(t, err)

	var appErr *validation.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "APP-1", appErr.ApplicationID)
	var missing *rules.RuleSetMissingError
	assert.ErrorAs(t, err, &missing)
	assert.Zero(t, client.calls)
}

func TestRunApplication_ReadsFileAndManualSpreadsheetPath(t *testing.T) {
	dir := t.TempDir()
	appPath := filepath.Join(dir, "APP-7.txt")
	manualPath := filepath.Join(dir, "APP-7.manual.csv")
	require.NoError(t, os.WriteFile(appPath, []byte(applicationText), 0644))
	require.NoError(t, os.WriteFile(manualPath, []byte("Section,Element,Status\n"+
		"Budget,Element a - Annual Budgeting for Scope of Project,Yes\n"), 0644))

	r := newTestRunner(&fakeClient{replies: []string{partialReply}})
	out, err := r.RunApplication(context.Background(), Input{Path: appPath, ManualPath: manualPath})
	require.NoError(t, err)

	assert.Equal(t, "APP-7", out.ApplicationID)
	assert.Equal(t, appPath, out.Metadata.SourcePath)
	require.NotNil(t, out.Comparison)
	assert.Equal(t, 1, out.Comparison.Stats.Matching)
	assert.Equal(t, 1, out.Comparison.Stats.MissingInManual)
}

func TestRunApplication_SharedTrackingSheet(t *testing.T) {
	manualPath := filepath.Join(t.TempDir(), "reviews.csv")
	require.NoError(t, os.WriteFile(manualPath, []byte("Tracking Number,Section,Question,Answer,Comment\n"+
		"APP-7,Budget,a. Annual Budgeting for Scope of Project,Yes,\n"+
		",Board Composition,a. Board Member Selection,No,bylaws outdated\n"+
		"APP-8,Budget,a. Annual Budgeting for Scope of Project,No,\n"+
		"APP-8,Budget,b. Revenue Sources,No,\n"), 0644))

	r := newTestRunner(&fakeClient{replies: []string{partialReply}})
	out, err := r.RunApplication(context.Background(), Input{ApplicationID: "app-7", Text: applicationText, ManualPath: manualPath})
	require.NoError(t, err)

	require.NotNil(t, out.Comparison)
	assert.Equal(t, 2, out.Comparison.Stats.Total)
	assert.Equal(t, 2, out.Comparison.Stats.Matching)
	assert.Zero(t, out.Comparison.Stats.MissingInAI, "rows of other applications are not compared")
	assert.Empty(t, out.Comparison.Ambiguities)
}

func TestRunApplication_FreeTextManualNeedsClient(t *testing.T) {
	r := newTestRunner(&fakeClient{replies: []string{partialReply}})
	r.Client = nil

	_, err := r.RunApplication(context.Background(), Input{ApplicationID: "APP-1", Text: applicationText, ManualText: "Budget a: Yes"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "need an LLM client")
}

func TestRunApplication_InputErrors(t *testing.T) {
	r := newTestRunner(&fakeClient{})

	_, err := r.RunApplication(context.Background(), Input{Text: applicationText})
	assert.ErrorContains(t, err, "application ID is required")

	_, err = r.RunApplication(context.Background(), Input{ApplicationID: "APP-1"})
	assert.ErrorContains(t, err, "needs a path or text")

	_, err = r.RunApplication(context.Background(), Input{Path: filepath.Join(t.TempDir(), "missing.txt")})
	assert.ErrorContains(t, err, "file not found")
}
