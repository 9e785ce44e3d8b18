package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ParseSchedule parses a standard 5-field cron expression (minute hour day-of-month month day-of-week).
// Examples: "0 6 * * *" (daily 6am), "0 6 * * 1-5" (weekdays 6am).
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(strings.TrimSpace(spec))
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return sched, nil
}

// Schedule calls job each time spec fires until ctx is cancelled. Runs never overlap:
// the next fire time is computed after the previous job returns.
func Schedule(ctx context.Context, spec string, job func(ctx context.Context)) error {
	sched, err := ParseSchedule(spec)
	if err != nil {
		return err
	}
	return runSchedule(ctx, sched, time.Now, waitContext, job)
}

func runSchedule(ctx context.Context, sched cron.Schedule, now func() time.Time,
	wait func(context.Context, time.Duration) error, job func(ctx context.Context)) error {
	for {
		t := now()
		next := sched.Next(t)
		log.Printf("[BATCH] Next scheduled run at %s (in %s)", next.Format("Mon Jan 2 15:04"), next.Sub(t).Round(time.Minute))

		if err := wait(ctx, next.Sub(t)); err != nil {
			log.Printf("[BATCH] Scheduler stopped: %v", err)
			return nil
		}
		job(ctx)
	}
}
