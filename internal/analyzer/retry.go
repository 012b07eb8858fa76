package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/accordhq/accord/internal/types"
)

// RetryConfig holds retry configuration for analyzer calls
type RetryConfig struct {
	MaxRetries        int           // Maximum number of retries (default: 3)
	InitialBackoff    time.Duration // Initial backoff duration (default: 1s)
	MaxBackoff        time.Duration // Maximum backoff duration (default: 30s)
	BackoffMultiplier float64       // Backoff multiplier (default: 2.0)
	Timeout           time.Duration // Per-attempt timeout (default: 60s)

	// Circuit breaker settings
	CircuitBreakerEnabled bool          // Enable circuit breaker (default: true)
	FailureThreshold      int           // Failures before opening circuit (default: 5)
	SuccessThreshold      int           // Successes in half-open before closing (default: 2)
	OpenTimeout           time.Duration // How long to keep circuit open (default: 30s)

	// RequestsPerSecond caps the call rate to the underlying analyzer
	// (0 = unlimited)
	RequestsPerSecond float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:            3,
		InitialBackoff:        1 * time.Second,
		MaxBackoff:            30 * time.Second,
		BackoffMultiplier:     2.0,
		Timeout:               60 * time.Second,
		CircuitBreakerEnabled: true,
		FailureThreshold:      5,
		SuccessThreshold:      2,
		OpenTimeout:           30 * time.Second,
		RequestsPerSecond:     2.0,
	}
}

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation, requests pass through
	CircuitOpen                         // Too many failures, block requests
	CircuitHalfOpen                     // Testing recovery, allow limited requests
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker prevents hammering an analyzer that keeps failing
type CircuitBreaker struct {
	mu sync.Mutex

	state            CircuitState
	failureCount     int
	successCount     int
	lastFailureTime  time.Time
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
}

// NewCircuitBreaker creates a circuit breaker with the given thresholds
func NewCircuitBreaker(failureThreshold, successThreshold int, openTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
	}
}

// Allow checks whether a request may pass. Returns ErrCircuitOpen while
// the circuit is open and the open timeout has not elapsed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if time.Since(cb.lastFailureTime) > cb.openTimeout {
			cb.state = CircuitHalfOpen
			cb.successCount = 0
			return nil
		}
		return ErrCircuitOpen
	case CircuitHalfOpen:
		return nil
	default:
		return ErrCircuitOpen
	}
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount = 0
	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = CircuitClosed
			cb.failureCount = 0
			cb.successCount = 0
		}
	}
}

// RecordFailure records a failed request. Any failure in half-open
// immediately reopens the circuit.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = time.Now()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.state = CircuitOpen
			cb.successCount = 0
		}
	case CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.successCount = 0
	}
}

// State returns the current state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Resilient wraps an analyzer with retry, circuit breaking, and rate
// limiting. A failed analyzer degrades the run rather than aborting it;
// the wrapper's job is to make transient failures invisible and
// persistent failures fast.
type Resilient struct {
	inner   Analyzer
	cfg     RetryConfig
	breaker *CircuitBreaker
	limiter *rate.Limiter
	sleep   func(context.Context, time.Duration) error
}

// WithRetry wraps an analyzer in the resilience stack
func WithRetry(inner Analyzer, cfg RetryConfig) *Resilient {
	r := &Resilient{inner: inner, cfg: cfg, sleep: sleepCtx}
	if cfg.CircuitBreakerEnabled {
		r.breaker = NewCircuitBreaker(cfg.FailureThreshold, cfg.SuccessThreshold, cfg.OpenTimeout)
	}
	if cfg.RequestsPerSecond > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return r
}

// ID returns the wrapped analyzer's ID
func (r *Resilient) ID() string {
	return r.inner.ID()
}

// Analyze calls the wrapped analyzer with exponential backoff between
// attempts. Non-retriable errors return immediately.
func (r *Resilient) Analyze(ctx context.Context, doc *types.Document) ([]types.Recommendation, error) {
	var lastErr error
	backoff := r.cfg.InitialBackoff

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if r.breaker != nil {
			if err := r.breaker.Allow(); err != nil {
				return nil, fmt.Errorf("analyzer %s blocked: %w", r.inner.ID(), err)
			}
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if r.cfg.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		}
		recs, err := r.inner.Analyze(attemptCtx, doc)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			if r.breaker != nil {
				r.breaker.RecordSuccess()
			}
			return recs, nil
		}
		lastErr = err

		if !isRetriableError(err) {
			return nil, err
		}
		if r.breaker != nil {
			r.breaker.RecordFailure()
		}
		if attempt == r.cfg.MaxRetries {
			break
		}

		if err := r.sleep(ctx, backoff); err != nil {
			return nil, err
		}
		backoff = time.Duration(float64(backoff) * r.cfg.BackoffMultiplier)
		if backoff > r.cfg.MaxBackoff {
			backoff = r.cfg.MaxBackoff
		}
	}

	return nil, fmt.Errorf("analyzer %s failed after %d retries: %w", r.inner.ID(), r.cfg.MaxRetries, lastErr)
}

// isRetriableError reports whether an error is worth retrying.
// Authentication and malformed-request errors are not; timeouts, rate
// limits, and server errors are.
func isRetriableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"401", "403", "invalid_request", "authentication"} {
		if strings.Contains(msg, s) {
			return false
		}
	}
	for _, s := range []string{"429", "500", "502", "503", "529", "overloaded", "rate limit", "timeout", "connection"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
