package analyzer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accordhq/accord/internal/types"
)

// flakyAnalyzer fails a set number of times before succeeding
type flakyAnalyzer struct {
	failures int
	calls    int
	err      error
}

func (f *flakyAnalyzer) ID() string { return "flaky" }

func (f *flakyAnalyzer) Analyze(ctx context.Context, doc *types.Document) ([]types.Recommendation, error) {
	f.calls++
	if f.calls <= f.failures {
		if f.err != nil {
			return nil, f.err
		}
		return nil, fmt.Errorf("503 service unavailable")
	}
	return []types.Recommendation{{
		ID:               "flaky-1",
		Title:            "Add health checks",
		SourceAnalyzerID: "flaky",
	}}, nil
}

func fastRetryConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	cfg.RequestsPerSecond = 0
	return cfg
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	inner := &flakyAnalyzer{failures: 2}
	r := WithRetry(inner, fastRetryConfig())

	recs, err := r.Analyze(context.Background(), &types.Document{ID: "doc-1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryGivesUpAfterMaxRetries(t *testing.T) {
	inner := &flakyAnalyzer{failures: 100}
	cfg := fastRetryConfig()
	cfg.MaxRetries = 2
	cfg.CircuitBreakerEnabled = false
	r := WithRetry(inner, cfg)

	_, err := r.Analyze(context.Background(), &types.Document{ID: "doc-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Equal(t, 3, inner.calls)
}

func TestNonRetriableErrorReturnsImmediately(t *testing.T) {
	inner := &flakyAnalyzer{failures: 100, err: errors.New("401 authentication failed")}
	r := WithRetry(inner, fastRetryConfig())

	_, err := r.Analyze(context.Background(), &types.Document{ID: "doc-1"})
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestCircuitBreakerTransitions(t *testing.T) {
	cb := NewCircuitBreaker(2, 1, 10*time.Millisecond)

	assert.Equal(t, CircuitClosed, cb.State())
	require.NoError(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	// After the open timeout the breaker admits one trial call in half-open.
	time.Sleep(15 * time.Millisecond)
	require.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 2, 10*time.Millisecond)

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())

	time.Sleep(15 * time.Millisecond)
	require.NoError(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitOpensAfterRepeatedFailures(t *testing.T) {
	inner := &flakyAnalyzer{failures: 100}
	cfg := fastRetryConfig()
	cfg.MaxRetries = 10
	cfg.FailureThreshold = 3
	r := WithRetry(inner, cfg)

	_, err := r.Analyze(context.Background(), &types.Document{ID: "doc-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 3, inner.calls)
}

func TestIsRetriableError(t *testing.T) {
	tests := []struct {
		err       error
		retriable bool
	}{
		{fmt.Errorf("429 too many requests"), true},
		{fmt.Errorf("529 overloaded"), true},
		{fmt.Errorf("connection reset by peer"), true},
		{context.DeadlineExceeded, true},
		{fmt.Errorf("401 unauthorized"), false},
		{fmt.Errorf("invalid_request: bad model"), false},
		{context.Canceled, false},
		{nil, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.retriable, isRetriableError(tt.err), "err=%v", tt.err)
	}
}
