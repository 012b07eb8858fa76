package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.85, cfg.SimilarityThreshold)
	assert.Equal(t, 0.5, cfg.CoverageThreshold)
	assert.Equal(t, 0.85, cfg.AutoApproveThreshold)
	assert.Equal(t, 4, cfg.MaxWorkers)
	assert.Equal(t, 7*24*time.Hour, cfg.CacheTTL)
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"similarity above 1", func(c *Config) { c.SimilarityThreshold = 1.5 }},
		{"similarity zero", func(c *Config) { c.SimilarityThreshold = 0 }},
		{"coverage negative", func(c *Config) { c.CoverageThreshold = -0.1 }},
		{"auto approve zero", func(c *Config) { c.AutoApproveThreshold = 0 }},
		{"workers zero", func(c *Config) { c.MaxWorkers = 0 }},
		{"workers too many", func(c *Config) { c.MaxWorkers = 100 }},
		{"retries negative", func(c *Config) { c.AnalyzerRetries = -1 }},
		{"empty db path", func(c *Config) { c.DatabasePath = "" }},
		{"approval timeout zero", func(c *Config) { c.ApprovalTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().SimilarityThreshold, cfg.SimilarityThreshold)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
similarity_threshold: 0.9
coverage_threshold: 0.4
max_workers: 8
approval_timeout: 5m
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.SimilarityThreshold)
	assert.Equal(t, 0.4, cfg.CoverageThreshold)
	assert.Equal(t, 8, cfg.MaxWorkers)
	assert.Equal(t, 5*time.Minute, cfg.ApprovalTimeout)
	// Untouched keys keep defaults.
	assert.Equal(t, 0.85, cfg.AutoApproveThreshold)
}

func TestLoadInvalidYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_workers: [not a number"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("similarity_threshold: 3.0"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ACCORD_SIMILARITY_THRESHOLD", "0.75")
	t.Setenv("ACCORD_MAX_WORKERS", "2")
	t.Setenv("ACCORD_APPROVAL_TIMEOUT", "30s")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 0.75, cfg.SimilarityThreshold)
	assert.Equal(t, 2, cfg.MaxWorkers)
	assert.Equal(t, 30*time.Second, cfg.ApprovalTimeout)
}

func TestEnvOverrideMalformedIgnored(t *testing.T) {
	t.Setenv("ACCORD_MAX_WORKERS", "lots")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxWorkers)
}

func TestDurationYAMLParsing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache_ttl: 24h"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
}
