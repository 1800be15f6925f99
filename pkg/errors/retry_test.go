package errors

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openjdk/jmerge/pkg/clock"
)

func retryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     10 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func TestRetrySucceedsEventually(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), retryConfig(5), func() error {
		calls++
		if calls < 3 {
			return ForgeError("get", fmt.Errorf("transient"))
		}
		return nil
	}, AdapterShouldRetry)

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), retryConfig(5), func() error {
		calls++
		return ConfigurationError("broken")
	}, AdapterShouldRetry)

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), retryConfig(3), func() error {
		calls++
		return ForgeError("get", fmt.Errorf("transient"))
	}, AdapterShouldRetry)

	assert.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, IsType(err, ErrorTypeWorkItem))
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, retryConfig(3), func() error {
		return ForgeError("get", fmt.Errorf("transient"))
	}, AdapterShouldRetry)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithFakeClock(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	config := RetryConfig{
		MaxAttempts:     2,
		InitialInterval: time.Minute,
		MaxInterval:     time.Hour,
		Multiplier:      2.0,
	}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- RetryWithClock(context.Background(), clk, config, func() error {
			calls++
			if calls == 1 {
				return ForgeError("get", fmt.Errorf("transient"))
			}
			return nil
		}, AdapterShouldRetry)
	}()

	// The retry sleeps on the fake clock until it is advanced. Advancing
	// repeatedly avoids racing the waiter registration.
	var err error
loop:
	for i := 0; i < 1000; i++ {
		clk.Advance(2 * time.Minute)
		select {
		case err = <-done:
			break loop
		case <-time.After(time.Millisecond):
		}
	}

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}
