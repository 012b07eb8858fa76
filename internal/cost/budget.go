// Package cost tracks token usage and estimated spend for analyzer
// calls within a run, with an optional ceiling that stops further
// calls once exceeded.
package cost

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// BudgetStatus represents the current budget state
type BudgetStatus int

const (
	// BudgetHealthy indicates normal operation, under budget limits
	BudgetHealthy BudgetStatus = iota
	// BudgetWarning indicates approaching budget limits
	BudgetWarning
	// BudgetExceeded indicates budget limits have been exceeded
	BudgetExceeded
)

// String returns a human-readable representation of the budget status
func (s BudgetStatus) String() string {
	switch s {
	case BudgetHealthy:
		return "HEALTHY"
	case BudgetWarning:
		return "WARNING"
	case BudgetExceeded:
		return "EXCEEDED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Config holds cost budgeting configuration
type Config struct {
	// MaxTokensPerRun is the maximum number of tokens (input + output)
	// allowed per run. 0 = unlimited.
	MaxTokensPerRun int64 `json:"max_tokens_per_run"`

	// MaxCostPerRun is the maximum estimated cost in USD per run.
	// 0.0 = unlimited.
	MaxCostPerRun float64 `json:"max_cost_per_run"`

	// AlertThreshold is the fraction of budget usage that flips the
	// status to Warning. Default 0.80.
	AlertThreshold float64 `json:"alert_threshold"`

	// InputTokenCost is the cost per 1M input tokens in USD
	InputTokenCost float64 `json:"input_token_cost"`

	// OutputTokenCost is the cost per 1M output tokens in USD
	OutputTokenCost float64 `json:"output_token_cost"`

	// Enabled controls whether budgeting is active
	Enabled bool `json:"enabled"`
}

// DefaultConfig returns default cost budgeting configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		MaxTokensPerRun: 500000,
		MaxCostPerRun:   5.00,
		AlertThreshold:  0.80,
		InputTokenCost:  3.00,
		OutputTokenCost: 15.00,
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.MaxTokensPerRun < 0 {
		return fmt.Errorf("max tokens per run cannot be negative")
	}
	if c.MaxCostPerRun < 0 {
		return fmt.Errorf("max cost per run cannot be negative")
	}
	if c.AlertThreshold <= 0 || c.AlertThreshold > 1 {
		return fmt.Errorf("alert threshold must be in (0, 1] (got %.2f)", c.AlertThreshold)
	}
	if c.InputTokenCost < 0 || c.OutputTokenCost < 0 {
		return fmt.Errorf("token costs cannot be negative")
	}
	return nil
}

// AnalyzerUsage is the accumulated spend of one analyzer
type AnalyzerUsage struct {
	AnalyzerID string  `json:"analyzer_id"`
	Tokens     int64   `json:"tokens"`
	Cost       float64 `json:"cost"`
	Calls      int     `json:"calls"`
}

// Tracker accumulates token usage for one run. Safe for concurrent use
// by parallel phases.
type Tracker struct {
	config *Config

	mu          sync.RWMutex
	totalTokens int64
	totalCost   float64
	byAnalyzer  map[string]*AnalyzerUsage
	startedAt   time.Time
}

// NewTracker creates a cost tracker for one run
func NewTracker(cfg *Config) (*Tracker, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Tracker{
		config:     cfg,
		byAnalyzer: make(map[string]*AnalyzerUsage),
		startedAt:  time.Now().UTC(),
	}, nil
}

// RecordUsage records one analyzer call's token usage and returns the
// budget status after the update.
func (t *Tracker) RecordUsage(analyzerID string, inputTokens, outputTokens int64) BudgetStatus {
	if !t.config.Enabled {
		return BudgetHealthy
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tokens := inputTokens + outputTokens
	cost := t.calculateCost(inputTokens, outputTokens)

	t.totalTokens += tokens
	t.totalCost += cost

	usage, ok := t.byAnalyzer[analyzerID]
	if !ok {
		usage = &AnalyzerUsage{AnalyzerID: analyzerID}
		t.byAnalyzer[analyzerID] = usage
	}
	usage.Tokens += tokens
	usage.Cost += cost
	usage.Calls++

	return t.statusLocked()
}

// CanProceed reports whether another analyzer call fits the budget.
// The reason is non-empty only when the answer is no.
func (t *Tracker) CanProceed() (bool, string) {
	if !t.config.Enabled {
		return true, ""
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.config.MaxTokensPerRun > 0 && t.totalTokens >= t.config.MaxTokensPerRun {
		return false, fmt.Sprintf("token budget exceeded (%d/%d tokens used)",
			t.totalTokens, t.config.MaxTokensPerRun)
	}
	if t.config.MaxCostPerRun > 0 && t.totalCost >= t.config.MaxCostPerRun {
		return false, fmt.Sprintf("cost budget exceeded ($%.2f/$%.2f used)",
			t.totalCost, t.config.MaxCostPerRun)
	}
	return true, ""
}

// Status returns the current budget status without recording usage
func (t *Tracker) Status() BudgetStatus {
	if !t.config.Enabled {
		return BudgetHealthy
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.statusLocked()
}

// TotalTokens returns the run's total token usage
func (t *Tracker) TotalTokens() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalTokens
}

// TotalCost returns the run's estimated spend in USD
func (t *Tracker) TotalCost() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalCost
}

// Usage returns per-analyzer usage sorted by analyzer ID
func (t *Tracker) Usage() []AnalyzerUsage {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]AnalyzerUsage, 0, len(t.byAnalyzer))
	for _, u := range t.byAnalyzer {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AnalyzerID < out[j].AnalyzerID })
	return out
}

func (t *Tracker) statusLocked() BudgetStatus {
	if t.config.MaxTokensPerRun > 0 {
		frac := float64(t.totalTokens) / float64(t.config.MaxTokensPerRun)
		if frac >= 1.0 {
			return BudgetExceeded
		}
		if frac >= t.config.AlertThreshold {
			return BudgetWarning
		}
	}
	if t.config.MaxCostPerRun > 0 {
		frac := t.totalCost / t.config.MaxCostPerRun
		if frac >= 1.0 {
			return BudgetExceeded
		}
		if frac >= t.config.AlertThreshold {
			return BudgetWarning
		}
	}
	return BudgetHealthy
}

// calculateCost estimates the cost in USD for given token usage
func (t *Tracker) calculateCost(inputTokens, outputTokens int64) float64 {
	inputCost := float64(inputTokens) * t.config.InputTokenCost / 1_000_000
	outputCost := float64(outputTokens) * t.config.OutputTokenCost / 1_000_000
	return inputCost + outputCost
}
