package errors

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/openjdk/jmerge/pkg/clock"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts         int
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:         3,
		InitialInterval:     time.Second,
		MaxInterval:         30 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.1,
	}
}

// RetryableFunc is a function that can be retried
type RetryableFunc func() error

// ShouldRetryFunc determines if an error should trigger a retry
type ShouldRetryFunc func(error) bool

// DefaultShouldRetry retries structured errors marked recoverable and nothing
// else.
func DefaultShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if bErr, ok := err.(*botError); ok {
		return bErr.IsRecoverable()
	}
	return false
}

// AdapterShouldRetry retries the transient adapter categories: forge, tracker,
// vcs and raw network failures.
func AdapterShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if bErr, ok := err.(*botError); ok {
		switch bErr.Type() {
		case ErrorTypeForge, ErrorTypeTracker, ErrorTypeVCS, ErrorTypeNetwork:
			return bErr.IsRecoverable()
		}
	}
	return false
}

// Retry executes a function with retry logic
func Retry(ctx context.Context, config RetryConfig, fn RetryableFunc, shouldRetry ShouldRetryFunc) error {
	return RetryWithClock(ctx, clock.NewRealClock(), config, fn, shouldRetry)
}

// RetryWithClock executes a function with retry logic using a custom clock
func RetryWithClock(ctx context.Context, clk clock.Clock, config RetryConfig, fn RetryableFunc, shouldRetry ShouldRetryFunc) error {
	if shouldRetry == nil {
		shouldRetry = DefaultShouldRetry
	}

	var lastErr error
	interval := config.InitialInterval

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !shouldRetry(err) {
			return err
		}

		if attempt == config.MaxAttempts-1 {
			break
		}

		next := time.Duration(float64(interval) * config.Multiplier)
		if next > config.MaxInterval {
			next = config.MaxInterval
		}

		// Jitter spreads concurrent work items retrying against the same
		// forge endpoint.
		maxJitter := int64(float64(next) * config.RandomizationFactor)
		if maxJitter > 0 {
			jitterValue, jerr := rand.Int(rand.Reader, big.NewInt(maxJitter*2))
			if jerr == nil {
				next += time.Duration(jitterValue.Int64() - maxJitter)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.After(interval):
		}

		interval = next
	}

	return NewError(ErrorTypeWorkItem).
		WithMessage("operation failed after maximum retry attempts").
		WithCause(lastErr).
		WithSeverity(SeverityHigh).
		WithContext("max_attempts", config.MaxAttempts).
		Build()
}

// RetryAdapterOperation is a convenience wrapper for retrying adapter I/O with
// the bot's standard backoff settings.
func RetryAdapterOperation(ctx context.Context, clk clock.Clock, fn RetryableFunc) error {
	config := RetryConfig{
		MaxAttempts:         5,
		InitialInterval:     time.Second,
		MaxInterval:         10 * time.Second,
		Multiplier:          1.5,
		RandomizationFactor: 0.2,
	}
	return RetryWithClock(ctx, clk, config, fn, AdapterShouldRetry)
}
