package errors

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(3), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	// Given a function that fails twice before succeeding
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(3), func() error {
		calls++
		if calls < 3 {
			return stderrors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	// Given a function that always fails
	sentinel := stderrors.New("always broken")
	calls := 0

	err := Retry(context.Background(), fastRetryConfig(2), func() error {
		calls++
		return sentinel
	})

	// Then all attempts ran and the last error is preserved in the chain
	require.Error(t, err)
	assert.Equal(t, 3, calls) // initial + 2 retries
	assert.ErrorIs(t, err, sentinel)
}

func TestRetry_ContextCancellationStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Retry(ctx, fastRetryConfig(10), func() error {
		calls++
		cancel()
		return stderrors.New("fail then cancel")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), fastRetryConfig(3), func() ([]float32, error) {
		calls++
		if calls == 1 {
			return nil, stderrors.New("warming up")
		}
		return []float32{0.1, 0.2}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, got)
}

func TestRetryWithResult_ZeroValueOnExhaustion(t *testing.T) {
	got, err := RetryWithResult(context.Background(), fastRetryConfig(1), func() (int, error) {
		return 42, stderrors.New("never trust partial results")
	})

	require.Error(t, err)
	assert.Equal(t, 0, got)
}

func TestEmbeddingRetryConfig_FiveTotalAttempts(t *testing.T) {
	cfg := EmbeddingRetryConfig()
	assert.Equal(t, 4, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.InitialDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
}
