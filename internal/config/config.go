// Package config provides configuration loading and validation for the CLI and server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jonathan/compliance-reviewer/internal/llm"
	"github.com/jonathan/compliance-reviewer/internal/matching"
	"github.com/jonathan/compliance-reviewer/internal/reconcile"
	"github.com/jonathan/compliance-reviewer/internal/retry"
	"github.com/jonathan/compliance-reviewer/internal/storage"
)

// Cache backends
const (
	CacheNone     = "none"
	CacheMemory   = "memory"
	CacheSQLite   = "sqlite"
	CachePostgres = "postgres"
	CacheBlob     = "blob"
)

// DefaultBatchDelaySeconds throttles batches to stay inside a shared rate-limit budget.
const DefaultBatchDelaySeconds = 30

// RetryConfig overrides the retry budgets. Zero values keep the built-in policy.
type RetryConfig struct {
	BulkAttempts            int  `json:"bulk_attempts,omitempty" yaml:"bulk_attempts,omitempty"`
	BulkRateLimitSeconds    int  `json:"bulk_rate_limit_seconds,omitempty" yaml:"bulk_rate_limit_seconds,omitempty"`
	ChapterAttempts         int  `json:"chapter_attempts,omitempty" yaml:"chapter_attempts,omitempty"`
	ChapterRateLimitSeconds int  `json:"chapter_rate_limit_seconds,omitempty" yaml:"chapter_rate_limit_seconds,omitempty"`
	TransientDelaySeconds   int  `json:"transient_delay_seconds,omitempty" yaml:"transient_delay_seconds,omitempty"`
	DisableFallback         bool `json:"disable_fallback,omitempty" yaml:"disable_fallback,omitempty"`
}

// Config represents the configuration that can be loaded from a JSON or YAML file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// LLM
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"` // gemini or anthropic
	APIKey   string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty"` // Overrides the advanced-tier model

	// Rules and reconciliation
	RulesDir    string   `json:"rules_dir,omitempty" yaml:"rules_dir,omitempty"`       // Directory of <YYYY>.yaml rule sets; empty uses the embedded set
	RenamesFile string   `json:"renames_file,omitempty" yaml:"renames_file,omitempty"` // Extra element renames, merged over the built-in table
	Exclusions  []string `json:"exclusions,omitempty" yaml:"exclusions,omitempty"`     // Elements left out of comparison

	Retry RetryConfig `json:"retry,omitempty" yaml:"retry,omitempty"`

	// Batch
	BatchDelaySeconds int    `json:"batch_delay_seconds,omitempty" yaml:"batch_delay_seconds,omitempty"`
	Schedule          string `json:"schedule,omitempty" yaml:"schedule,omitempty"` // Cron expression for recurring batches

	// Cache
	CacheBackend string `json:"cache_backend,omitempty" yaml:"cache_backend,omitempty"`
	CachePath    string `json:"cache_path,omitempty" yaml:"cache_path,omitempty"` // SQLite file
	DatabaseURL  string `json:"database_url,omitempty" yaml:"database_url,omitempty"`

	// Report storage
	StorageType string `json:"storage_type,omitempty" yaml:"storage_type,omitempty"`
	StoragePath string `json:"storage_path,omitempty" yaml:"storage_path,omitempty"`
	S3Bucket    string `json:"s3_bucket,omitempty" yaml:"s3_bucket,omitempty"`
	S3Region    string `json:"s3_region,omitempty" yaml:"s3_region,omitempty"`
	S3Endpoint  string `json:"s3_endpoint,omitempty" yaml:"s3_endpoint,omitempty"`

	// Notifications
	SlackToken   string `json:"slack_token,omitempty" yaml:"slack_token,omitempty"`
	SlackChannel string `json:"slack_channel,omitempty" yaml:"slack_channel,omitempty"`

	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		Provider:          string(llm.ProviderGemini),
		Exclusions:        reconcile.DefaultExclusions(),
		BatchDelaySeconds: DefaultBatchDelaySeconds,
		CacheBackend:      CacheSQLite,
		CachePath:         "./storage/cache.db",
		StorageType:       string(storage.TypeLocal),
		StoragePath:       storage.DefaultLocalPath,
	}
}

// LoadDotEnv loads variables from .env files, ignoring files that do not exist.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadConfig loads configuration from a JSON or YAML file, chosen by extension.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// ApplyEnv fills empty fields from the environment. Explicit values are never overwritten.
func (c *Config) ApplyEnv() {
	setIfEmpty := func(field *string, keys ...string) {
		if *field != "" {
			return
		}
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*field = v
				return
			}
		}
	}

	setIfEmpty(&c.Provider, "LLM_PROVIDER")
	if llm.Provider(c.Provider) == llm.ProviderAnthropic {
		setIfEmpty(&c.APIKey, "ANTHROPIC_API_KEY")
	} else {
		setIfEmpty(&c.APIKey, "GEMINI_API_KEY")
	}
	setIfEmpty(&c.DatabaseURL, "DATABASE_URL")
	setIfEmpty(&c.StorageType, "STORAGE_TYPE")
	setIfEmpty(&c.StoragePath, "STORAGE_PATH")
	setIfEmpty(&c.S3Bucket, "AWS_S3_BUCKET")
	setIfEmpty(&c.S3Region, "AWS_REGION")
	setIfEmpty(&c.S3Endpoint, "AWS_S3_ENDPOINT")
	setIfEmpty(&c.SlackToken, "SLACK_BOT_TOKEN")
	setIfEmpty(&c.SlackChannel, "SLACK_CHANNEL_ID")
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those are handled
// by CLI flag validation after merging.
func (c *Config) Validate() error {
	if c.Provider != "" {
		if _, err := llm.ConfigFor(c.Provider); err != nil {
			return fmt.Errorf("config error: %w", err)
		}
	}

	// Validate numeric ranges
	for name, v := range map[string]int{
		"batch_delay_seconds":              c.BatchDelaySeconds,
		"retry.bulk_attempts":              c.Retry.BulkAttempts,
		"retry.bulk_rate_limit_seconds":    c.Retry.BulkRateLimitSeconds,
		"retry.chapter_attempts":           c.Retry.ChapterAttempts,
		"retry.chapter_rate_limit_seconds": c.Retry.ChapterRateLimitSeconds,
		"retry.transient_delay_seconds":    c.Retry.TransientDelaySeconds,
	} {
		if v < 0 {
			return fmt.Errorf("config error: '%s' must be non-negative", name)
		}
	}

	switch c.CacheBackend {
	case "", CacheNone, CacheMemory, CacheSQLite, CacheBlob:
	case CachePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config error: cache_backend 'postgres' requires 'database_url'")
		}
	default:
		return fmt.Errorf("config error: unknown cache_backend %q", c.CacheBackend)
	}

	switch storage.Type(c.StorageType) {
	case "", storage.TypeLocal:
	case storage.TypeS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("config error: storage_type 's3' requires 's3_bucket'")
		}
	default:
		return fmt.Errorf("config error: unknown storage_type %q", c.StorageType)
	}

	// Slack needs both halves or neither
	if (c.SlackToken == "") != (c.SlackChannel == "") {
		return fmt.Errorf("config error: 'slack_token' and 'slack_channel' must be set together")
	}

	// Validate file paths exist (if specified)
	if c.RulesDir != "" {
		if info, err := os.Stat(c.RulesDir); err != nil || !info.IsDir() {
			return fmt.Errorf("config error: rules directory not found: %s", c.RulesDir)
		}
	}
	if c.RenamesFile != "" {
		if _, err := os.Stat(c.RenamesFile); os.IsNotExist(err) {
			return fmt.Errorf("config error: renames file not found: %s", c.RenamesFile)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	for _, f := range []struct{ dst, def *string }{
		{&result.Provider, &defaults.Provider},
		{&result.APIKey, &defaults.APIKey},
		{&result.Model, &defaults.Model},
		{&result.RulesDir, &defaults.RulesDir},
		{&result.RenamesFile, &defaults.RenamesFile},
		{&result.Schedule, &defaults.Schedule},
		{&result.CacheBackend, &defaults.CacheBackend},
		{&result.CachePath, &defaults.CachePath},
		{&result.DatabaseURL, &defaults.DatabaseURL},
		{&result.StorageType, &defaults.StorageType},
		{&result.StoragePath, &defaults.StoragePath},
		{&result.S3Bucket, &defaults.S3Bucket},
		{&result.S3Region, &defaults.S3Region},
		{&result.S3Endpoint, &defaults.S3Endpoint},
		{&result.SlackToken, &defaults.SlackToken},
		{&result.SlackChannel, &defaults.SlackChannel},
	} {
		if *f.dst == "" {
			*f.dst = *f.def
		}
	}

	// A nil list means unset; an explicit empty list disables exclusions
	if result.Exclusions == nil {
		result.Exclusions = defaults.Exclusions
	}

	// Int fields: use default if zero
	if result.BatchDelaySeconds == 0 {
		result.BatchDelaySeconds = defaults.BatchDelaySeconds
	}
	if result.Retry == (RetryConfig{}) {
		result.Retry = defaults.Retry
	}

	// Boolean fields: true wins
	result.Verbose = result.Verbose || defaults.Verbose

	return result
}

// BulkPolicy returns the retry policy for the single all-sections call.
func (c *Config) BulkPolicy() retry.Policy {
	p := retry.BulkPolicy()
	if c.Retry.BulkAttempts > 0 {
		p.MaxAttempts = c.Retry.BulkAttempts
	}
	if c.Retry.BulkRateLimitSeconds > 0 {
		p.RateLimitBackoff = seconds(c.Retry.BulkRateLimitSeconds)
	}
	if c.Retry.TransientDelaySeconds > 0 {
		p.TransientDelay = seconds(c.Retry.TransientDelaySeconds)
	}
	return p
}

// ChapterPolicy returns the retry policy for each per-chapter fallback call.
func (c *Config) ChapterPolicy() retry.Policy {
	p := retry.ChapterPolicy()
	if c.Retry.ChapterAttempts > 0 {
		p.MaxAttempts = c.Retry.ChapterAttempts
	}
	if c.Retry.ChapterRateLimitSeconds > 0 {
		p.RateLimitBackoff = seconds(c.Retry.ChapterRateLimitSeconds)
	}
	if c.Retry.TransientDelaySeconds > 0 {
		p.TransientDelay = seconds(c.Retry.TransientDelaySeconds)
	}
	return p
}

// BatchDelay is the wait between applications in a batch.
func (c *Config) BatchDelay() time.Duration {
	return seconds(c.BatchDelaySeconds)
}

// LLMConfig returns the model configuration for the selected provider.
func (c *Config) LLMConfig() (*llm.Config, error) {
	cfg, err := llm.ConfigFor(c.Provider)
	if err != nil {
		return nil, err
	}
	if c.Model != "" {
		cfg = cfg.WithModel(llm.TierAdvanced, c.Model)
	}
	return cfg, nil
}

// StorageConfig returns the report storage configuration. S3 credentials come from the
// AWS default chain unless AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are both set.
func (c *Config) StorageConfig() storage.Config {
	return storage.Config{
		Type:         storage.Type(c.StorageType),
		LocalPath:    c.StoragePath,
		S3Bucket:     c.S3Bucket,
		S3Region:     c.S3Region,
		S3Endpoint:   c.S3Endpoint,
		AWSAccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
	}
}

// Matcher builds the element matcher from the built-in rename table plus RenamesFile.
func (c *Config) Matcher() (*matching.Matcher, error) {
	table := matching.DefaultRenames()
	if c.RenamesFile != "" {
		extra, err := matching.LoadRenameTable(c.RenamesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load renames: %w", err)
		}
		table = table.Merge(extra)
	}
	return matching.NewMatcher(table), nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
