package embed

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig configures retry behavior for embedding requests.
type RetryConfig struct {
	MaxRetries   int           // Retry attempts, not counting the initial one
	InitialDelay time.Duration // Delay before first retry
	MaxDelay     time.Duration // Ceiling for the backoff schedule
	Multiplier   float64       // Growth factor between retries
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   DefaultMaxRetries,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
	}
}

// withRetry runs fn up to 1+MaxRetries times, sleeping an exponentially
// growing interval before each re-attempt. Cancellation cuts both the
// sleep and the attempt loop short.
func withRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	attempts := cfg.MaxRetries + 1

	var err error
	for try := 0; try < attempts; try++ {
		if try > 0 {
			if sleepErr := sleep(ctx, backoffAt(cfg, try)); sleepErr != nil {
				return sleepErr
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", attempts, err)
}

// backoffAt returns the pause before the try-th attempt (try >= 1):
// InitialDelay * Multiplier^(try-1), capped at MaxDelay.
func backoffAt(cfg RetryConfig, try int) time.Duration {
	d := cfg.InitialDelay
	for i := 1; i < try; i++ {
		d = time.Duration(float64(d) * cfg.Multiplier)
		if d >= cfg.MaxDelay {
			return cfg.MaxDelay
		}
	}
	return min(d, cfg.MaxDelay)
}

// sleep waits for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
