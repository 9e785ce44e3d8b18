package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/compliance-reviewer/internal/server"
)

var (
	serveFlags commonFlags
	servePort  int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server exposing POST /validate, POST /compare, POST /normalize,
GET /rules, GET /rules/{year}, GET /runs/{id} (with a database) and GET /health.`,
	RunE: runServe,
}

func init() {
	serveFlags.register(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := serveFlags.resolve(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, appOptions{llm: true})
	if err != nil {
		return err
	}
	defer a.Close()

	srvCfg := server.Config{Port: servePort, Runner: a.runner}
	if a.db != nil {
		srvCfg.Runs = a.db
	}
	srv, err := server.New(srvCfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Start(cmd.Context())
}
