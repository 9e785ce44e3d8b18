package validation

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jonathan/compliance-reviewer/internal/ingestion"
	"github.com/jonathan/compliance-reviewer/internal/llm"
	"github.com/jonathan/compliance-reviewer/internal/retry"
	"github.com/jonathan/compliance-reviewer/internal/types"
)

// Validation modes reported on a Result.
const (
	ModeBulk       = "bulk"
	ModePerChapter = "per-chapter"
)

// Options configures a Validator. Zero policies use retry.BulkPolicy and retry.ChapterPolicy.
type Options struct {
	Tier          llm.ModelTier
	BulkPolicy    retry.Policy
	ChapterPolicy retry.Policy
	// DisableFallback surfaces bulk exhaustion instead of retrying chapter by chapter.
	DisableFallback bool
}

// Result is the outcome of validating one application.
type Result struct {
	ApplicationID string                  `json:"applicationId"`
	Mode          string                  `json:"mode"`
	Results       types.ValidationResults `json:"results"`
	Coverage      *Coverage               `json:"coverage"`
}

// Validator runs the bulk call and, when it exhausts its budget, the per-chapter fallback.
type Validator struct {
	client llm.Client
	opts   Options
}

// NewValidator creates a validator over an LLM client.
func NewValidator(client llm.Client, opts Options) *Validator {
	if opts.Tier == "" {
		opts.Tier = llm.TierAdvanced
	}
	if opts.BulkPolicy.MaxAttempts == 0 {
		opts.BulkPolicy = retry.BulkPolicy()
	}
	if opts.ChapterPolicy.MaxAttempts == 0 {
		opts.ChapterPolicy = retry.ChapterPolicy()
	}
	for _, p := range []*retry.Policy{&opts.BulkPolicy, &opts.ChapterPolicy} {
		if p.IsRateLimited == nil {
			p.IsRateLimited = llm.IsRateLimited
		}
	}
	return &Validator{client: client, opts: opts}
}

type parsed struct {
	results  types.ValidationResults
	coverage *Coverage
}

// Validate checks normalized application text against rules.
// All sections are submitted in one call first; if that call exhausts its retries, each chapter is
// validated in turn under its own budget. A chapter that still fails aborts the application with
// an *ApplicationError naming that section. No partial results are returned on error.
func (v *Validator) Validate(ctx context.Context, appID, text string, rules []types.ComplianceChapter) (*Result, error) {
	if len(rules) == 0 {
		return nil, &ApplicationError{ApplicationID: appID, Cause: errors.New("no rules to validate against")}
	}

	system := SystemInstruction()
	log.Printf("[VALIDATE] %s: validating %d requirements across %d sections", appID, RequirementCount(rules), len(rules))

	bulk := v.opts.BulkPolicy
	if bulk.Name == "" || bulk.Name == "bulk" {
		bulk.Name = fmt.Sprintf("bulk %s", appID)
	}
	out, err := retry.Do(ctx, bulk, func(ctx context.Context) (parsed, error) {
		return v.call(ctx, system, BuildPrompt(rules, text), rules)
	})
	mode := ModeBulk
	if err != nil {
		var exhausted *retry.ExhaustedError
		if !errors.As(err, &exhausted) || v.opts.DisableFallback {
			return nil, &ApplicationError{ApplicationID: appID, Cause: err}
		}
		log.Printf("[VALIDATE] %s: bulk validation failed after %d attempts, falling back to per-chapter validation", appID, exhausted.Attempts)

		out, err = v.validateChapters(ctx, appID, system, text, rules)
		if err != nil {
			return nil, err
		}
		mode = ModePerChapter
	}

	out.coverage.InvalidCitations = CheckCitations(out.results, ingestion.PageCount(text))
	return &Result{
		ApplicationID: appID,
		Mode:          mode,
		Results:       out.results,
		Coverage:      out.coverage,
	}, nil
}

func (v *Validator) validateChapters(ctx context.Context, appID, system, text string, rules []types.ComplianceChapter) (parsed, error) {
	merged := parsed{results: make(types.ValidationResults, len(rules)), coverage: newCoverage(0)}
	for _, chapter := range rules {
		chapter := chapter
		policy := v.opts.ChapterPolicy
		policy.Name = fmt.Sprintf("chapter %s/%s", appID, chapter.SectionName)

		out, err := retry.Do(ctx, policy, func(ctx context.Context) (parsed, error) {
			return v.call(ctx, system, BuildChapterPrompt(chapter, text), []types.ComplianceChapter{chapter})
		})
		if err != nil {
			return parsed{}, &ApplicationError{ApplicationID: appID, Section: chapter.SectionName, Cause: err}
		}

		merged.results[chapter.SectionName] = out.results[chapter.SectionName]
		merged.coverage.merge(out.coverage)
	}
	return merged, nil
}

// call performs one model request and parses it. Errors that retrying cannot fix are marked permanent.
func (v *Validator) call(ctx context.Context, system, prompt string, rules []types.ComplianceChapter) (parsed, error) {
	raw, err := v.client.GenerateJSONWithSystem(ctx, system, prompt, v.opts.Tier)
	if err != nil {
		if llm.IsPermanent(err) {
			return parsed{}, retry.Permanent(err)
		}
		return parsed{}, err
	}
	results, coverage, err := ParseResponse(raw, rules)
	if err != nil {
		return parsed{}, err
	}
	return parsed{results: results, coverage: coverage}, nil
}
