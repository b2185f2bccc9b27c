package embed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestWithRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), fastRetryConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_GivesUp(t *testing.T) {
	calls := 0
	boom := errors.New("persistent")
	err := withRetry(context.Background(), fastRetryConfig(), func() error {
		calls++
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	// Initial attempt plus MaxRetries.
	assert.Equal(t, 3, calls)
}

func TestWithRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := withRetry(ctx, fastRetryConfig(), func() error {
		calls++
		return errors.New("never retried")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, calls, 1)
}

func TestBackoffAt(t *testing.T) {
	cfg := RetryConfig{
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}

	assert.Equal(t, time.Second, backoffAt(cfg, 1))
	assert.Equal(t, 2*time.Second, backoffAt(cfg, 2))
	assert.Equal(t, 4*time.Second, backoffAt(cfg, 3))
	// The schedule is capped.
	assert.Equal(t, 5*time.Second, backoffAt(cfg, 4))
	assert.Equal(t, 5*time.Second, backoffAt(cfg, 10))
}
