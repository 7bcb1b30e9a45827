package errors

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (not including
	// the initial attempt).
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration

	// Multiplier is the factor by which delay increases after each retry.
	Multiplier float64

	// Jitter adds randomness to delay to prevent thundering herd.
	Jitter bool
}

// DefaultRetryConfig returns sensible default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
		Jitter:       false,
	}
}

// EmbeddingRetryConfig returns the retry policy for embedding-service
// calls: five attempts with doubling backoff from one second. Once the
// attempts are exhausted the failure belongs to the enclosing file, not
// the whole pipeline run.
func EmbeddingRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   4,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// wait sleeps for the current delay (with optional jitter) honoring
// context cancellation, and returns the next backoff delay.
func (cfg RetryConfig) wait(ctx context.Context, delay time.Duration) (time.Duration, error) {
	waitDelay := delay
	if cfg.Jitter {
		// delay * (0.5 + rand(0, 0.5))
		waitDelay = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(waitDelay):
	}

	next := time.Duration(float64(delay) * cfg.Multiplier)
	if next > cfg.MaxDelay {
		next = cfg.MaxDelay
	}
	return next, nil
}

// Retry executes a function with exponential backoff.
// It retries up to MaxRetries times if the function returns an error.
// If the context is cancelled, it returns the context error immediately.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult executes a function that returns a value with retry logic.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt >= cfg.MaxRetries {
			break
		}

		delay, err = cfg.wait(ctx, delay)
		if err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}
