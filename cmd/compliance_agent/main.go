// Package main provides the command-line entry point for the compliance reviewer.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/compliance-reviewer/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "compliance_agent",
	Short: "HRSA Health Center Program compliance review assistant",
	Long: `Validates grant applications against the Compliance Manual with an LLM, compares the
verdicts with human reviews and reports agreement per element, per application and per batch.`,
	SilenceUsage: true,
}

func main() {
	// Load .env file if it exists
	if err := config.LoadDotEnv(); err != nil {
		log.Printf("[CONFIG] Warning: %v", err)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
