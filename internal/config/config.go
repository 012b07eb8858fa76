// Package config holds the engine's tunable settings. Thresholds are
// deliberately configuration, not constants: the similarity and
// coverage defaults have no principled derivation, so operators tune
// them per corpus.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds engine configuration
type Config struct {
	// SimilarityThreshold is the minimum similarity score for two
	// recommendations to join the same consensus cluster
	// Default: 0.85, Range: (0, 1]
	SimilarityThreshold float64

	// CoverageThreshold is the minimum overlap for a plan to count as
	// covering a consensus recommendation (gap/obsolescence scans)
	// Default: 0.5, Range: (0, 1]
	CoverageThreshold float64

	// DuplicateThreshold is the minimum similarity for two active
	// plans to be proposed for merging
	// Default: 0.85, Range: (0, 1]
	DuplicateThreshold float64

	// AutoApproveThreshold is the minimum proposal confidence for the
	// editor to apply a mutation without human approval. DELETE
	// proposals are never auto-applied regardless of this value.
	// Default: 0.85, Range: (0, 1]
	AutoApproveThreshold float64

	// ApprovalTimeout is how long the gate waits for a human decision
	// before treating the request as rejected
	// Default: 10m
	ApprovalTimeout time.Duration

	// MaxWorkers bounds how many independent phases run concurrently
	// Default: 4, Range: 1-64
	MaxWorkers int

	// CacheTTL is how long cached analyzer outputs stay valid
	// Default: 168h (7 days)
	CacheTTL time.Duration

	// AnalyzerRetries is how many times a transient analyzer failure
	// is retried before the run continues without that analyzer
	// Default: 3, Range: 0-10
	AnalyzerRetries int

	// AnalyzerBackoff is the initial retry backoff, doubled per attempt
	// Default: 1s
	AnalyzerBackoff time.Duration

	// AnalyzerRateLimit is the sustained analyzer calls per second
	// shared across all analyzers (0 = unlimited)
	// Default: 2
	AnalyzerRateLimit float64

	// BudgetUSD caps estimated analyzer spend per run; once reached,
	// remaining analyzer calls are skipped and the run continues with
	// whatever outputs succeeded (0 = unlimited)
	// Default: 0
	BudgetUSD float64

	// DatabasePath is the SQLite database file path
	// Default: ".accord/accord.db"
	DatabasePath string
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() *Config {
	return &Config{
		SimilarityThreshold:  0.85,
		CoverageThreshold:    0.5,
		DuplicateThreshold:   0.85,
		AutoApproveThreshold: 0.85,
		ApprovalTimeout:      10 * time.Minute,
		MaxWorkers:           4,
		CacheTTL:             7 * 24 * time.Hour,
		AnalyzerRetries:      3,
		AnalyzerBackoff:      time.Second,
		AnalyzerRateLimit:    2,
		BudgetUSD:            0,
		DatabasePath:         ".accord/accord.db",
	}
}

// Validate checks the configuration for out-of-range values
func (c *Config) Validate() error {
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in (0, 1] (got %.2f)", c.SimilarityThreshold)
	}
	if c.CoverageThreshold <= 0 || c.CoverageThreshold > 1 {
		return fmt.Errorf("coverage_threshold must be in (0, 1] (got %.2f)", c.CoverageThreshold)
	}
	if c.DuplicateThreshold <= 0 || c.DuplicateThreshold > 1 {
		return fmt.Errorf("duplicate_threshold must be in (0, 1] (got %.2f)", c.DuplicateThreshold)
	}
	if c.AutoApproveThreshold <= 0 || c.AutoApproveThreshold > 1 {
		return fmt.Errorf("auto_approve_threshold must be in (0, 1] (got %.2f)", c.AutoApproveThreshold)
	}
	if c.ApprovalTimeout <= 0 {
		return fmt.Errorf("approval_timeout must be positive (got %s)", c.ApprovalTimeout)
	}
	if c.MaxWorkers < 1 || c.MaxWorkers > 64 {
		return fmt.Errorf("max_workers must be between 1 and 64 (got %d)", c.MaxWorkers)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl cannot be negative (got %s)", c.CacheTTL)
	}
	if c.AnalyzerRetries < 0 || c.AnalyzerRetries > 10 {
		return fmt.Errorf("analyzer_retries must be between 0 and 10 (got %d)", c.AnalyzerRetries)
	}
	if c.AnalyzerBackoff < 0 {
		return fmt.Errorf("analyzer_backoff cannot be negative (got %s)", c.AnalyzerBackoff)
	}
	if c.AnalyzerRateLimit < 0 {
		return fmt.Errorf("analyzer_rate_limit cannot be negative (got %.2f)", c.AnalyzerRateLimit)
	}
	if c.BudgetUSD < 0 {
		return fmt.Errorf("budget_usd cannot be negative (got %.2f)", c.BudgetUSD)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	return nil
}

// fileConfig mirrors Config for YAML decoding. Durations are strings
// ("10m", "168h") parsed with time.ParseDuration; pointers distinguish
// absent keys from zero values.
type fileConfig struct {
	SimilarityThreshold  *float64 `yaml:"similarity_threshold"`
	CoverageThreshold    *float64 `yaml:"coverage_threshold"`
	DuplicateThreshold   *float64 `yaml:"duplicate_threshold"`
	AutoApproveThreshold *float64 `yaml:"auto_approve_threshold"`
	ApprovalTimeout      *string  `yaml:"approval_timeout"`
	MaxWorkers           *int     `yaml:"max_workers"`
	CacheTTL             *string  `yaml:"cache_ttl"`
	AnalyzerRetries      *int     `yaml:"analyzer_retries"`
	AnalyzerBackoff      *string  `yaml:"analyzer_backoff"`
	AnalyzerRateLimit    *float64 `yaml:"analyzer_rate_limit"`
	BudgetUSD            *float64 `yaml:"budget_usd"`
	DatabasePath         *string  `yaml:"database_path"`
}

// Load reads configuration from the YAML file at path, applies
// environment overrides, and validates the result. A missing file is
// not an error: defaults plus env overrides are returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		if err := cfg.applyFile(&fc); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyFile(fc *fileConfig) error {
	if fc.SimilarityThreshold != nil {
		c.SimilarityThreshold = *fc.SimilarityThreshold
	}
	if fc.CoverageThreshold != nil {
		c.CoverageThreshold = *fc.CoverageThreshold
	}
	if fc.DuplicateThreshold != nil {
		c.DuplicateThreshold = *fc.DuplicateThreshold
	}
	if fc.AutoApproveThreshold != nil {
		c.AutoApproveThreshold = *fc.AutoApproveThreshold
	}
	if fc.ApprovalTimeout != nil {
		d, err := time.ParseDuration(*fc.ApprovalTimeout)
		if err != nil {
			return fmt.Errorf("approval_timeout: %w", err)
		}
		c.ApprovalTimeout = d
	}
	if fc.MaxWorkers != nil {
		c.MaxWorkers = *fc.MaxWorkers
	}
	if fc.CacheTTL != nil {
		d, err := time.ParseDuration(*fc.CacheTTL)
		if err != nil {
			return fmt.Errorf("cache_ttl: %w", err)
		}
		c.CacheTTL = d
	}
	if fc.AnalyzerRetries != nil {
		c.AnalyzerRetries = *fc.AnalyzerRetries
	}
	if fc.AnalyzerBackoff != nil {
		d, err := time.ParseDuration(*fc.AnalyzerBackoff)
		if err != nil {
			return fmt.Errorf("analyzer_backoff: %w", err)
		}
		c.AnalyzerBackoff = d
	}
	if fc.AnalyzerRateLimit != nil {
		c.AnalyzerRateLimit = *fc.AnalyzerRateLimit
	}
	if fc.BudgetUSD != nil {
		c.BudgetUSD = *fc.BudgetUSD
	}
	if fc.DatabasePath != nil {
		c.DatabasePath = *fc.DatabasePath
	}
	return nil
}

// applyEnvOverrides reads ACCORD_* environment variables over the
// file-based settings. Malformed values are ignored in favor of the
// existing setting.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ACCORD_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.SimilarityThreshold = f
		}
	}
	if v := os.Getenv("ACCORD_COVERAGE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.CoverageThreshold = f
		}
	}
	if v := os.Getenv("ACCORD_DUPLICATE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.DuplicateThreshold = f
		}
	}
	if v := os.Getenv("ACCORD_AUTO_APPROVE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.AutoApproveThreshold = f
		}
	}
	if v := os.Getenv("ACCORD_APPROVAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ApprovalTimeout = d
		}
	}
	if v := os.Getenv("ACCORD_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxWorkers = n
		}
	}
	if v := os.Getenv("ACCORD_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.CacheTTL = d
		}
	}
	if v := os.Getenv("ACCORD_BUDGET_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.BudgetUSD = f
		}
	}
	if v := os.Getenv("ACCORD_DB_PATH"); v != "" {
		c.DatabasePath = v
	}
}
