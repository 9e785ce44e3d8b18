package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/compliance-reviewer/internal/config"
	"github.com/jonathan/compliance-reviewer/internal/pipeline"
	"github.com/jonathan/compliance-reviewer/internal/reconcile"
	"github.com/jonathan/compliance-reviewer/internal/report"
	"github.com/jonathan/compliance-reviewer/internal/types"
	"github.com/jonathan/compliance-reviewer/internal/validation"
)

var compareCommand = &cobra.Command{
	Use:   "compare",
	Short: "Compare saved validation results with a manual review",
	Long: `Reads the JSON written by 'validate --out' (or a bare validation result) and a manual review,
then reports MATCH, MISMATCH, MISSING_IN_MANUAL and MISSING_IN_AI per element with the success rate.

Free-text reviews (.txt, .md) are converted into entries with one model call; spreadsheets,
CSV and JSON reviews need no model.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := compareFlags.resolve(cmd)
		if err != nil {
			return err
		}
		// Comparison never calls the validator, so skip opening a cache
		cfg.CacheBackend = config.CacheNone
		a, err := newApp(cmd.Context(), cfg, appOptions{llm: isFreeText(compareOpts.manual)})
		if err != nil {
			return err
		}
		defer a.Close()
		return runCompare(cmd.Context(), a.runner, compareOpts)
	},
}

type compareOptions struct {
	results string
	manual  string
	id      string
	out     string
	xlsx    string
}

var (
	compareFlags commonFlags
	compareOpts  compareOptions
)

func init() {
	compareFlags.register(compareCommand)
	compareCommand.Flags().StringVarP(&compareOpts.results, "results", "r", "", "Validation results JSON")
	compareCommand.Flags().StringVarP(&compareOpts.manual, "manual", "m", "", "Manual review (.xlsx, .csv, .json, or free text .txt/.md)")
	compareCommand.Flags().StringVar(&compareOpts.id, "id", "", "Application ID (defaults to the one in the results file)")
	compareCommand.Flags().StringVarP(&compareOpts.out, "out", "o", "", "Write the comparison JSON here instead of stdout")
	compareCommand.Flags().StringVar(&compareOpts.xlsx, "xlsx", "", "Also write a comparison workbook to this path")

	_ = compareCommand.MarkFlagRequired("results")
	_ = compareCommand.MarkFlagRequired("manual")
	rootCmd.AddCommand(compareCommand)
}

func isFreeText(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return true
	}
	return false
}

// resultsFile accepts both a pipeline outcome and a bare validation result.
type resultsFile struct {
	ApplicationID string                  `json:"applicationId"`
	Validation    *validation.Result      `json:"validation"`
	Results       types.ValidationResults `json:"results"`
}

func loadResults(path string) (string, types.ValidationResults, error) {
	var doc resultsFile
	if err := readJSON(path, &doc); err != nil {
		return "", nil, err
	}
	if doc.Validation != nil {
		id := doc.ApplicationID
		if id == "" {
			id = doc.Validation.ApplicationID
		}
		return id, doc.Validation.Results, nil
	}
	if doc.Results == nil {
		return "", nil, fmt.Errorf("no validation results in %s", path)
	}
	return doc.ApplicationID, doc.Results, nil
}

func runCompare(ctx context.Context, runner *pipeline.Runner, opts compareOptions) error {
	appID, results, err := loadResults(opts.results)
	if err != nil {
		return err
	}
	if opts.id != "" {
		appID = opts.id
	}
	if appID == "" {
		return fmt.Errorf("no application ID in %s; pass --id", opts.results)
	}

	comparison, err := runner.Compare(ctx, appID, results, pipeline.Input{ManualPath: opts.manual})
	if err != nil {
		return err
	}

	if opts.xlsx != "" {
		comparisons := []types.ApplicationComparison{*comparison}
		f, err := report.ComparisonWorkbook(comparisons, reconcile.Aggregate(comparisons))
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		if err := f.SaveAs(opts.xlsx); err != nil {
			return fmt.Errorf("failed to write %s: %w", opts.xlsx, err)
		}
	}
	return writeJSON(opts.out, comparison)
}
