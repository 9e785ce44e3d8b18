package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jonathan/compliance-reviewer/internal/cache"
	"github.com/jonathan/compliance-reviewer/internal/config"
	"github.com/jonathan/compliance-reviewer/internal/db"
	"github.com/jonathan/compliance-reviewer/internal/llm"
	"github.com/jonathan/compliance-reviewer/internal/notify"
	"github.com/jonathan/compliance-reviewer/internal/observability"
	"github.com/jonathan/compliance-reviewer/internal/pipeline"
	"github.com/jonathan/compliance-reviewer/internal/reconcile"
	"github.com/jonathan/compliance-reviewer/internal/rules"
	"github.com/jonathan/compliance-reviewer/internal/storage"
	"github.com/jonathan/compliance-reviewer/internal/validation"
)

// commonFlags are the configuration flags shared by every command that builds a runner.
type commonFlags struct {
	configPath   string
	provider     string
	apiKey       string
	model        string
	rulesDir     string
	cacheBackend string
	databaseURL  string
	verbose      bool
}

func (f *commonFlags) register(cmd *cobra.Command) {
	// Config file flag (processed first)
	cmd.Flags().StringVar(&f.configPath, "config", "", "Path to a .json or .yaml config file (values can be overridden by other flags)")

	cmd.Flags().StringVar(&f.provider, "provider", "", "LLM provider: gemini or anthropic (defaults to LLM_PROVIDER)")
	cmd.Flags().StringVar(&f.apiKey, "api-key", "", "Provider API key (defaults to GEMINI_API_KEY or ANTHROPIC_API_KEY)")
	cmd.Flags().StringVar(&f.model, "model", "", "Override the model used for validation")
	cmd.Flags().StringVar(&f.rulesDir, "rules-dir", "", "Directory of <YYYY>.yaml rule sets (defaults to the embedded set)")
	cmd.Flags().StringVar(&f.cacheBackend, "cache", "", "Verdict cache: none, memory, sqlite, postgres or blob (default sqlite)")
	cmd.Flags().StringVar(&f.databaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Print boxed summaries")
}

// resolve builds the effective configuration: config file, then explicitly set flags,
// then the environment, then defaults.
func (f *commonFlags) resolve(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if f.configPath != "" {
		loaded, err := config.LoadConfig(f.configPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}

	// Only override if the flag was explicitly set
	flags := cmd.Flags()
	if flags.Changed("provider") {
		cfg.Provider = f.provider
	}
	if flags.Changed("api-key") {
		cfg.APIKey = f.apiKey
	}
	if flags.Changed("model") {
		cfg.Model = f.model
	}
	if flags.Changed("rules-dir") {
		cfg.RulesDir = f.rulesDir
	}
	if flags.Changed("cache") {
		cfg.CacheBackend = f.cacheBackend
	}
	if flags.Changed("db-url") {
		cfg.DatabaseURL = f.databaseURL
	}
	if flags.Changed("verbose") {
		cfg.Verbose = f.verbose
	}

	cfg.ApplyEnv()
	cfg = cfg.MergeWithDefaults(config.Defaults())
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	if cfg.Verbose && f.configPath != "" {
		log.Printf("[CONFIG] Loaded config from: %s", f.configPath)
	}
	return cfg, nil
}

// appOptions selects the optional collaborators a command needs.
type appOptions struct {
	llm     bool
	storage bool
	notify  bool
}

// app owns the runner and everything that must be closed after it.
type app struct {
	cfg     config.Config
	runner  *pipeline.Runner
	db      *db.DB
	storage storage.Storage
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("[CLOSE] Warning: %v", err)
		}
	}
	a.closers = nil
}

func newApp(ctx context.Context, cfg config.Config, opts appOptions) (*app, error) {
	a := &app{cfg: cfg}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()

	store := rules.DefaultStore()
	if cfg.RulesDir != "" {
		store = rules.NewDirStore(cfg.RulesDir)
	}

	var client llm.Client
	if opts.llm {
		var err error
		client, err = newLLMClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
	}

	a.runner = pipeline.NewRunner(store, client, validation.Options{
		BulkPolicy:      cfg.BulkPolicy(),
		ChapterPolicy:   cfg.ChapterPolicy(),
		DisableFallback: cfg.Retry.DisableFallback,
	})
	matcher, err := cfg.Matcher()
	if err != nil {
		return nil, err
	}
	a.runner.Comparator = reconcile.NewComparator(matcher, cfg.Exclusions)
	a.runner.Delay = cfg.BatchDelay()
	if cfg.Verbose {
		a.runner.Printer = observability.NewPrinter(os.Stdout)
	}

	if cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { database.Close(); return nil })
		if err := database.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		a.db = database
		a.runner.DB = database
	}

	if opts.storage || cfg.CacheBackend == config.CacheBlob {
		files, err := storage.New(ctx, cfg.StorageConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		a.storage = files
		a.runner.Storage = files
	}

	cacheStore, closeCache, err := openCache(cfg, a.db, a.storage)
	if err != nil {
		return nil, err
	}
	if closeCache != nil {
		a.closers = append(a.closers, closeCache)
	}
	a.runner.Cache = cache.NewCoordinator(cacheStore)

	if opts.notify && cfg.SlackToken != "" {
		notifier, err := notify.NewSlackNotifier(cfg.SlackToken, cfg.SlackChannel)
		if err != nil {
			return nil, err
		}
		a.runner.Notifier = notifier
	}
	ready = true
	return a, nil
}

func newLLMClient(ctx context.Context, cfg config.Config) (llm.Client, error) {
	llmCfg, err := cfg.LLMConfig()
	if err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		envVar := "GEMINI_API_KEY"
		if llmCfg.Provider == llm.ProviderAnthropic {
			envVar = "ANTHROPIC_API_KEY"
		}
		return nil, fmt.Errorf("%s environment variable or --api-key flag is required", envVar)
	}
	client, err := llm.NewClient(ctx, llmCfg, cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return client, nil
}

// openCache returns the configured verdict cache. A nil store disables caching.
func openCache(cfg config.Config, database *db.DB, files storage.Storage) (cache.Store, func() error, error) {
	switch cfg.CacheBackend {
	case config.CacheNone:
		return nil, nil, nil
	case config.CacheMemory:
		return cache.NewMemoryStore(), nil, nil
	case config.CacheSQLite, "":
		if dir := filepath.Dir(cfg.CachePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, nil, fmt.Errorf("failed to create cache directory: %w", err)
			}
		}
		store, err := cache.OpenSQLite(cfg.CachePath)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.CachePostgres:
		if database == nil {
			return nil, nil, errors.New("postgres cache needs a database connection")
		}
		return cache.NewPostgresStore(database), nil, nil
	case config.CacheBlob:
		if files == nil {
			return nil, nil, errors.New("blob cache needs report storage")
		}
		return cache.NewBlobStore(files, "cache"), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// writeJSON writes v as indented JSON to path, or to stdout when path is empty.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// readJSON decodes a JSON file into v.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
