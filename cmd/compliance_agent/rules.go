package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jonathan/compliance-reviewer/internal/observability"
	"github.com/jonathan/compliance-reviewer/internal/rules"
	"github.com/jonathan/compliance-reviewer/internal/types"
)

var rulesCommand = &cobra.Command{
	Use:   "rules",
	Short: "List rule set versions or print the rule set used for a year",
	Long: `Without --year, lists the versions available in the rule directory (or the embedded set).
With --year, prints the rule set an application from that announcement year is validated against,
falling back to the default set when no year-specific file exists.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		store := rules.DefaultStore()
		if rulesDir != "" {
			store = rules.NewDirStore(rulesDir)
		}
		return runRules(os.Stdout, store, rulesYear, rulesSummary)
	},
}

var (
	rulesDir     string
	rulesYear    string
	rulesSummary bool
)

func init() {
	rulesCommand.Flags().StringVar(&rulesDir, "rules-dir", "", "Directory of <YYYY>.yaml rule sets (defaults to the embedded set)")
	rulesCommand.Flags().StringVar(&rulesYear, "year", "", "Two- or four-digit announcement year")
	rulesCommand.Flags().BoolVar(&rulesSummary, "summary", false, "Print section counts instead of the full YAML")
	rootCmd.AddCommand(rulesCommand)
}

func runRules(out io.Writer, store *rules.Store, year string, summary bool) error {
	if year == "" {
		versions, err := store.Versions()
		if err != nil {
			return err
		}
		for _, v := range versions {
			_, _ = fmt.Fprintln(out, v)
		}
		return nil
	}

	ruleSet, err := store.Load(year)
	if err != nil {
		return err
	}
	if summary {
		observability.NewPrinter(out).PrintRuleSet(ruleSet)
		return nil
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	// Same shape as the rule files, so the output can seed a new year's file
	file := struct {
		Version  string                    `yaml:"version"`
		Chapters []types.ComplianceChapter `yaml:"chapters"`
	}{ruleSet.VersionLabel, ruleSet.Chapters}
	if err := enc.Encode(file); err != nil {
		return fmt.Errorf("failed to encode rule set: %w", err)
	}
	return enc.Close()
}
