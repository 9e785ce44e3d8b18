package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/compliance-reviewer/internal/ingestion"
	"github.com/jonathan/compliance-reviewer/internal/observability"
	"github.com/jonathan/compliance-reviewer/internal/pipeline"
)

var normalizeCommand = &cobra.Command{
	Use:   "normalize",
	Short: "Normalize an extracted application and write text plus metadata",
	Long: `Reads a .pdf or page-marked text file, removes OCR noise while keeping page markers,
and writes <name>.normalized.txt and <name>.meta.json (fingerprint, announcement year, page count).`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runNormalize(cmd.Context(), normalizeInput, normalizeOut, normalizeVerbose)
	},
}

var (
	normalizeInput   string
	normalizeOut     string
	normalizeVerbose bool
)

func init() {
	normalizeCommand.Flags().StringVarP(&normalizeInput, "input", "i", "", "Path to the application (.pdf or extracted .txt)")
	normalizeCommand.Flags().StringVarP(&normalizeOut, "out", "o", "output", "Output directory")
	normalizeCommand.Flags().BoolVarP(&normalizeVerbose, "verbose", "v", false, "Print metadata summary")

	_ = normalizeCommand.MarkFlagRequired("input")
	rootCmd.AddCommand(normalizeCommand)
}

func runNormalize(ctx context.Context, input, outDir string, verbose bool) error {
	text, meta, err := pipeline.Normalize(ctx, pipeline.Input{Path: input})
	if err != nil {
		return err
	}

	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	if err := ingestion.WriteOutput(outDir, base, text, meta); err != nil {
		return err
	}
	if verbose {
		observability.NewPrinter(os.Stdout).PrintMetadata(meta)
	}
	_, _ = fmt.Fprintf(os.Stdout, "Wrote %s\n", filepath.Join(outDir, base+".normalized.txt"))
	return nil
}
