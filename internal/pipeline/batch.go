package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/compliance-reviewer/internal/db"
	"github.com/jonathan/compliance-reviewer/internal/notify"
	"github.com/jonathan/compliance-reviewer/internal/reconcile"
	"github.com/jonathan/compliance-reviewer/internal/report"
	"github.com/jonathan/compliance-reviewer/internal/storage"
	"github.com/jonathan/compliance-reviewer/internal/types"
	"github.com/jonathan/compliance-reviewer/internal/validation"
)

// Report file names stored under runs/<run id>/.
const (
	FileSummary    = "summary.json"
	FileValidation = "validation.xlsx"
	FileComparison = "comparison.xlsx"
)

// Report is the outcome of one run over one or more applications.
type Report struct {
	RunID        uuid.UUID             `json:"runId"`
	Kind         string                `json:"kind"`
	Applications []*Outcome            `json:"applications"`
	Failed       int                   `json:"failed"`
	Aggregate    *types.AggregateStats `json:"aggregate,omitempty"`
	ReportKeys   []string              `json:"reports,omitempty"`

	errs []error
}

// Err joins the per-application failures, or returns nil when every application succeeded.
func (r *Report) Err() error {
	return errors.Join(r.errs...)
}

// Summary converts the report for notification.
func (r *Report) Summary() notify.Summary {
	s := notify.Summary{
		RunID:        r.RunID.String(),
		Applications: len(r.Applications),
		Failed:       r.Failed,
		Aggregate:    r.Aggregate,
		ReportKeys:   r.ReportKeys,
	}
	for _, o := range r.Applications {
		if o.Error != "" {
			s.Failures = append(s.Failures, o.Error)
		}
	}
	return s
}

// RunBatch reviews applications one after another, waiting Delay between them so a shared
// rate-limit budget is not exhausted. A failed application is recorded and the batch goes on;
// cancelling ctx stops the batch after the application in progress.
func (r *Runner) RunBatch(ctx context.Context, inputs []Input) (*Report, error) {
	return r.Run(ctx, db.RunKindBatch, inputs)
}

// Run reviews inputs sequentially under one run record of the given kind, then writes reports,
// completes the run record and posts a notification, each when configured.
func (r *Runner) Run(ctx context.Context, kind string, inputs []Input) (*Report, error) {
	rep := &Report{RunID: r.startRun(ctx, kind), Kind: kind, Applications: []*Outcome{}}
	log.Printf("[BATCH] Run %s (%s): %d applications", rep.RunID, kind, len(inputs))

	var runErr error
	for i, in := range inputs {
		if i > 0 && r.Delay > 0 {
			log.Printf("[BATCH] Waiting %s before next application", r.Delay)
			if err := r.sleep(ctx, r.Delay); err != nil {
				runErr = fmt.Errorf("batch interrupted after %d of %d applications: %w", i, len(inputs), err)
				break
			}
		}

		out, err := r.RunApplication(ctx, in)
		if err != nil {
			out = &Outcome{ApplicationID: in.ID(), Error: err.Error()}
			rep.Failed++
			rep.errs = append(rep.errs, err)
			log.Printf("[BATCH] Application %s failed: %v", out.ApplicationID, err)
		}
		rep.Applications = append(rep.Applications, out)
		r.recordOutcome(ctx, rep.RunID, out)
	}

	var comparisons []types.ApplicationComparison
	for _, o := range rep.Applications {
		if o.Comparison != nil {
			comparisons = append(comparisons, *o.Comparison)
		}
	}
	if len(comparisons) > 0 {
		agg := reconcile.Aggregate(comparisons)
		rep.Aggregate = &agg
		if r.Printer != nil {
			r.Printer.PrintAggregate(agg)
		}
	}

	if err := r.writeReports(ctx, rep, comparisons); err != nil && runErr == nil {
		runErr = err
	}
	r.finishRun(ctx, rep, runErr)

	if r.Notifier != nil {
		if err := r.Notifier.PostBatchSummary(ctx, rep.Summary()); err != nil {
			log.Printf("[BATCH] Warning: notification failed: %v", err)
		}
	}
	return rep, runErr
}

func (r *Runner) startRun(ctx context.Context, kind string) uuid.UUID {
	if r.DB != nil {
		id, err := r.DB.CreateRun(ctx, kind)
		if err == nil {
			return id
		}
		log.Printf("[BATCH] Warning: failed to create run record, continuing without persistence: %v", err)
	}
	return uuid.New()
}

func (r *Runner) recordOutcome(ctx context.Context, runID uuid.UUID, o *Outcome) {
	if r.DB == nil {
		return
	}
	res := &db.ApplicationResult{
		RunID:         runID,
		ApplicationID: o.ApplicationID,
		Status:        db.StatusCompleted,
		Cached:        o.Cached,
		RuleVersion:   o.RuleVersion,
	}
	if o.Validation != nil {
		res.Mode = o.Validation.Mode
	}
	if o.Comparison != nil {
		rate := o.Comparison.Stats.SuccessRatePercent
		res.SuccessRate = &rate
	}
	if o.Error != "" {
		res.Status = db.StatusFailed
		msg := o.Error
		res.ErrorMessage = &msg
	}
	if err := r.DB.RecordApplicationResult(ctx, res); err != nil {
		log.Printf("[BATCH] Warning: failed to record %s: %v", o.ApplicationID, err)
	}
}

func (r *Runner) finishRun(ctx context.Context, rep *Report, runErr error) {
	if r.DB == nil {
		return
	}
	status := db.StatusCompleted
	if runErr != nil || (len(rep.Applications) > 0 && rep.Failed == len(rep.Applications)) {
		status = db.StatusFailed
	}
	// The run record is closed even when ctx was cancelled
	ctx = context.WithoutCancel(ctx)
	if err := r.DB.CompleteRun(ctx, rep.RunID, status, rep.Summary(), runErr); err != nil {
		log.Printf("[BATCH] Warning: failed to complete run %s: %v", rep.RunID, err)
	}
}

// writeReports stores the validation and comparison workbooks, then the JSON summary listing them.
func (r *Runner) writeReports(ctx context.Context, rep *Report, comparisons []types.ApplicationComparison) error {
	if r.Storage == nil {
		return nil
	}
	ctx = context.WithoutCancel(ctx)

	var results []*validation.Result
	for _, o := range rep.Applications {
		if o.Validation != nil {
			results = append(results, o.Validation)
		}
	}
	if len(results) > 0 {
		key := storage.ReportKey(rep.RunID, FileValidation)
		if err := report.WriteValidationWorkbook(ctx, r.Storage, key, results); err != nil {
			return fmt.Errorf("failed to write validation report: %w", err)
		}
		rep.ReportKeys = append(rep.ReportKeys, key)
	}
	if len(comparisons) > 0 {
		key := storage.ReportKey(rep.RunID, FileComparison)
		if err := report.WriteComparisonWorkbook(ctx, r.Storage, key, comparisons, *rep.Aggregate); err != nil {
			return fmt.Errorf("failed to write comparison report: %w", err)
		}
		rep.ReportKeys = append(rep.ReportKeys, key)
	}

	key := storage.ReportKey(rep.RunID, FileSummary)
	rep.ReportKeys = append(rep.ReportKeys, key)
	if err := report.WriteJSON(ctx, r.Storage, key, rep); err != nil {
		return fmt.Errorf("failed to write run summary: %w", err)
	}
	log.Printf("[BATCH] Stored %d reports for run %s", len(rep.ReportKeys), rep.RunID)
	return nil
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	return waitContext(ctx, d)
}

func waitContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
