package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/compliance-reviewer/internal/pipeline"
)

var batchCommand = &cobra.Command{
	Use:   "batch",
	Short: "Validate every application in an inbox directory",
	Long: `Discovers applications (.pdf, .txt) in --inbox together with their manual reviews
(<name>.manual.xlsx|csv|json|txt) and reviews them one after another, waiting --delay seconds
between applications. Reports are written to storage under runs/<run id>/ and a summary is
posted to Slack when SLACK_BOT_TOKEN and SLACK_CHANNEL_ID are set.

With --schedule (a five-field cron expression) the inbox is processed on every tick until interrupted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := batchFlags.resolve(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("delay") {
			cfg.BatchDelaySeconds = batchDelay
		}
		if cmd.Flags().Changed("schedule") {
			cfg.Schedule = batchSchedule
		}
		if cfg.BatchDelaySeconds < 0 {
			return fmt.Errorf("--delay must be non-negative")
		}

		a, err := newApp(cmd.Context(), cfg, appOptions{llm: true, storage: true, notify: true})
		if err != nil {
			return err
		}
		defer a.Close()

		if cfg.Schedule == "" {
			_, err := runBatch(cmd.Context(), a.runner, batchInbox, batchOut)
			return err
		}
		return pipeline.Schedule(cmd.Context(), cfg.Schedule, func(ctx context.Context) {
			if _, err := runBatch(ctx, a.runner, batchInbox, batchOut); err != nil {
				log.Printf("[BATCH] Scheduled run failed: %v", err)
			}
		})
	},
}

var (
	batchFlags    commonFlags
	batchInbox    string
	batchDelay    int
	batchSchedule string
	batchOut      string
)

func init() {
	batchFlags.register(batchCommand)
	batchCommand.Flags().StringVar(&batchInbox, "inbox", "", "Directory of applications and manual reviews")
	batchCommand.Flags().IntVar(&batchDelay, "delay", 0, "Seconds to wait between applications (default 30)")
	batchCommand.Flags().StringVar(&batchSchedule, "schedule", "", "Cron expression for recurring runs, e.g. \"0 6 * * 1-5\"")
	batchCommand.Flags().StringVarP(&batchOut, "out", "o", "", "Also write the run report JSON here")

	_ = batchCommand.MarkFlagRequired("inbox")
	rootCmd.AddCommand(batchCommand)
}

// runBatch reviews the current inbox contents. An empty inbox is not an error.
func runBatch(ctx context.Context, runner *pipeline.Runner, inbox, out string) (*pipeline.Report, error) {
	inputs, err := pipeline.DiscoverInputs(inbox)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		log.Printf("[BATCH] No applications in %s", inbox)
		return nil, nil
	}

	rep, err := runner.RunBatch(ctx, inputs)
	if rep != nil {
		_, _ = fmt.Fprintf(os.Stdout, "Run %s: %d of %d applications validated\n",
			rep.RunID, len(rep.Applications)-rep.Failed, len(rep.Applications))
		for _, key := range rep.ReportKeys {
			_, _ = fmt.Fprintf(os.Stdout, "  report: %s\n", key)
		}
		if out != "" {
			if werr := writeJSON(out, rep); werr != nil && err == nil {
				err = werr
			}
		}
	}
	if err != nil {
		return rep, err
	}
	if rep.Failed == len(rep.Applications) {
		return rep, fmt.Errorf("every application failed: %w", rep.Err())
	}
	return rep, nil
}
