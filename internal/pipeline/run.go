// Package pipeline provides the high-level orchestration of application review:
// extraction, normalization, rule loading, validation, comparison and reporting.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonathan/compliance-reviewer/internal/cache"
	"github.com/jonathan/compliance-reviewer/internal/db"
	"github.com/jonathan/compliance-reviewer/internal/extract"
	"github.com/jonathan/compliance-reviewer/internal/ingestion"
	"github.com/jonathan/compliance-reviewer/internal/llm"
	"github.com/jonathan/compliance-reviewer/internal/manual"
	"github.com/jonathan/compliance-reviewer/internal/notify"
	"github.com/jonathan/compliance-reviewer/internal/observability"
	"github.com/jonathan/compliance-reviewer/internal/reconcile"
	"github.com/jonathan/compliance-reviewer/internal/rules"
	"github.com/jonathan/compliance-reviewer/internal/storage"
	"github.com/jonathan/compliance-reviewer/internal/types"
	"github.com/jonathan/compliance-reviewer/internal/validation"
)

// Input identifies one application and, optionally, its manual review.
type Input struct {
	// ApplicationID defaults to the input file name without extension.
	ApplicationID string
	// Path is a .pdf or an already extracted, page-marked text file. Ignored when Text is set.
	Path string
	Text string
	// YearCode overrides the announcement year detected in the text.
	YearCode string
	// SkipCache forces a fresh model call. The fresh result still replaces the cached one.
	SkipCache bool

	// At most one manual source is used, in this order.
	Manual     []types.ManualReviewEntry
	ManualText string
	ManualPath string
}

func (in Input) hasManual() bool {
	return in.Manual != nil || in.ManualText != "" || in.ManualPath != ""
}

// Outcome is the result of reviewing one application.
type Outcome struct {
	ApplicationID string                       `json:"applicationId"`
	Metadata      *ingestion.Metadata          `json:"metadata,omitempty"`
	RuleVersion   string                       `json:"ruleVersion,omitempty"`
	Validation    *validation.Result           `json:"validation,omitempty"`
	Cached        bool                         `json:"cached"`
	Comparison    *types.ApplicationComparison `json:"comparison,omitempty"`
	Error         string                       `json:"error,omitempty"`
}

// Runner holds the collaborators shared by every application in a run.
type Runner struct {
	Rules      *rules.Store
	Validator  *validation.Validator
	Cache      *cache.Coordinator
	Comparator *reconcile.Comparator
	// Client converts free-text manual reviews into entries. Optional.
	Client llm.Client
	// Printer renders boxed summaries when set.
	Printer *observability.Printer

	// Batch collaborators; each is optional.
	Storage  storage.Storage
	DB       *db.DB
	Notifier notify.Notifier
	// Delay separates consecutive applications in a batch.
	Delay time.Duration
	// Sleep waits between applications. Nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner wires a runner with the default comparator and an uncached coordinator.
func NewRunner(store *rules.Store, client llm.Client, opts validation.Options) *Runner {
	return &Runner{
		Rules:      store,
		Validator:  validation.NewValidator(client, opts),
		Cache:      cache.NewCoordinator(nil),
		Comparator: reconcile.NewComparator(nil, reconcile.DefaultExclusions()),
		Client:     client,
	}
}

// Normalize loads the input text and returns the normalized text with its metadata.
func Normalize(ctx context.Context, in Input) (string, *ingestion.Metadata, error) {
	raw := in.Text
	if raw == "" {
		if in.Path == "" {
			return "", nil, errors.New("application needs a path or text")
		}
		var err error
		raw, err = extract.LoadText(ctx, in.Path)
		if err != nil {
			return "", nil, fmt.Errorf("failed to load %s: %w", in.Path, err)
		}
	}
	normalized := ingestion.NormalizeText(raw)
	return normalized, ingestion.NewMetadata(normalized, in.Path), nil
}

// ID returns the explicit application ID, else the file name without extension.
func (in Input) ID() string {
	if in.ApplicationID != "" {
		return in.ApplicationID
	}
	if in.Path != "" {
		base := filepath.Base(in.Path)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return ""
}

// RunApplication validates one application and compares it with its manual review when one is given.
// The rule set is resolved before any model call, so a missing rule set fails fast.
func (r *Runner) RunApplication(ctx context.Context, in Input) (*Outcome, error) {
	appID := in.ID()
	if appID == "" {
		return nil, errors.New("application ID is required when no path is given")
	}

	text, meta, err := Normalize(ctx, in)
	if err != nil {
		return nil, &validation.ApplicationError{ApplicationID: appID, Cause: err}
	}
	if r.Printer != nil {
		r.Printer.PrintMetadata(meta)
	}

	year := in.YearCode
	if year == "" {
		year = meta.YearCode
	}
	rs, err := r.Rules.Load(year)
	if err != nil {
		return nil, &validation.ApplicationError{ApplicationID: appID, Cause: err}
	}
	if r.Printer != nil {
		r.Printer.PrintRuleSet(rs)
	}

	key := cache.Key{Fingerprint: meta.Fingerprint, Version: rs.VersionLabel}
	compute := func(ctx context.Context) (*validation.Result, error) {
		return r.Validator.Validate(ctx, appID, text, rs.Chapters)
	}
	var result *validation.Result
	var cached bool
	if in.SkipCache {
		result, err = r.Cache.Refresh(ctx, key, appID, compute)
	} else {
		result, cached, err = r.Cache.GetOrCompute(ctx, key, appID, compute)
	}
	if err != nil {
		return nil, err
	}
	// A cached result may have been computed under another application ID
	if result.ApplicationID != appID {
		copied := *result
		copied.ApplicationID = appID
		result = &copied
	}

	out := &Outcome{
		ApplicationID: appID,
		Metadata:      meta,
		RuleVersion:   rs.VersionLabel,
		Validation:    result,
		Cached:        cached,
	}
	if result.Coverage != nil && !result.Coverage.Complete() {
		log.Printf("[VALIDATE] Warning: %s: %s", appID, strings.Join(result.Coverage.Warnings(), "; "))
	}
	if r.Printer != nil {
		r.Printer.PrintValidation(result)
	}

	if in.hasManual() {
		comparison, err := r.Compare(ctx, appID, result.Results, in)
		if err != nil {
			return nil, &validation.ApplicationError{ApplicationID: appID, Cause: err}
		}
		out.Comparison = comparison
	}
	return out, nil
}

// Compare reconciles results with the manual review named by in.
// Reviews that track several applications are narrowed to appID first.
func (r *Runner) Compare(ctx context.Context, appID string, results types.ValidationResults, in Input) (*types.ApplicationComparison, error) {
	entries, err := r.ManualEntries(ctx, in)
	if err != nil {
		return nil, err
	}
	entries = manual.ForApplication(entries, appID)
	comparison := r.Comparator.CompareApplication(appID, results, entries)
	if r.Printer != nil {
		r.Printer.PrintComparison(&comparison)
	}
	return &comparison, nil
}

// ManualEntries returns the manual review entries from the first source set on in.
// Text and .txt/.md files are converted with one model call.
func (r *Runner) ManualEntries(ctx context.Context, in Input) ([]types.ManualReviewEntry, error) {
	switch {
	case in.Manual != nil:
		return in.Manual, nil
	case in.ManualText != "":
		return r.extractManual(ctx, in.ManualText)
	}

	switch strings.ToLower(filepath.Ext(in.ManualPath)) {
	case ".txt", ".md":
		data, err := os.ReadFile(in.ManualPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read manual review %s: %w", in.ManualPath, err)
		}
		return r.extractManual(ctx, string(data))
	default:
		return manual.LoadFile(in.ManualPath)
	}
}

func (r *Runner) extractManual(ctx context.Context, text string) ([]types.ManualReviewEntry, error) {
	if r.Client == nil {
		return nil, errors.New("free-text manual reviews need an LLM client")
	}
	return manual.ExtractFromText(ctx, r.Client, text)
}
