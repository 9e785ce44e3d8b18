package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/compliance-reviewer/internal/db"
	"github.com/jonathan/compliance-reviewer/internal/pipeline"
	"github.com/jonathan/compliance-reviewer/internal/report"
	"github.com/jonathan/compliance-reviewer/internal/validation"
)

var validateCommand = &cobra.Command{
	Use:   "validate",
	Short: "Validate one application against its Compliance Manual rule set",
	Long: `Normalizes the application, picks the rule set from the announcement year (or --year),
asks the model for a verdict on every element and, when --manual is given, compares the
verdicts with the human review.

Results are cached by text fingerprint and rule version; --skip-cache forces a fresh call.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := validateFlags.resolve(cmd)
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, appOptions{llm: true})
		if err != nil {
			return err
		}
		defer a.Close()
		return runValidate(cmd.Context(), a.runner, validateOpts)
	},
}

type validateOptions struct {
	input     string
	id        string
	year      string
	manual    string
	skipCache bool
	out       string
	xlsx      string
}

var (
	validateFlags commonFlags
	validateOpts  validateOptions
)

func init() {
	validateFlags.register(validateCommand)
	validateCommand.Flags().StringVarP(&validateOpts.input, "input", "i", "", "Path to the application (.pdf or extracted .txt)")
	validateCommand.Flags().StringVar(&validateOpts.id, "id", "", "Application ID (defaults to the input file name)")
	validateCommand.Flags().StringVar(&validateOpts.year, "year", "", "Announcement year code, overriding the one detected in the text")
	validateCommand.Flags().StringVarP(&validateOpts.manual, "manual", "m", "", "Manual review to compare with (.xlsx, .csv, .json, or free text .txt/.md)")
	validateCommand.Flags().BoolVar(&validateOpts.skipCache, "skip-cache", false, "Ignore cached verdicts and call the model")
	validateCommand.Flags().StringVarP(&validateOpts.out, "out", "o", "", "Write the outcome JSON here instead of stdout")
	validateCommand.Flags().StringVar(&validateOpts.xlsx, "xlsx", "", "Also write a validation workbook to this path")

	_ = validateCommand.MarkFlagRequired("input")
	rootCmd.AddCommand(validateCommand)
}

func runValidate(ctx context.Context, runner *pipeline.Runner, opts validateOptions) error {
	rep, err := runner.Run(ctx, db.RunKindValidate, []pipeline.Input{{
		ApplicationID: opts.id,
		Path:          opts.input,
		YearCode:      opts.year,
		SkipCache:     opts.skipCache,
		ManualPath:    opts.manual,
	}})
	if err != nil {
		return err
	}
	if err := rep.Err(); err != nil {
		return err
	}
	if len(rep.Applications) != 1 || rep.Applications[0].Validation == nil {
		return errors.New("validation produced no result")
	}
	outcome := rep.Applications[0]

	if opts.xlsx != "" {
		f, err := report.ValidationWorkbook([]*validation.Result{outcome.Validation})
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		if err := f.SaveAs(opts.xlsx); err != nil {
			return fmt.Errorf("failed to write %s: %w", opts.xlsx, err)
		}
	}
	return writeJSON(opts.out, outcome)
}
