package embedder

import (
	"context"
	"time"
)

// RetryConfig configures exponential backoff
type RetryConfig struct {
	MaxRetries int           // total attempts
	BaseDelay  time.Duration // delay before the second attempt
	MaxDelay   time.Duration
	Multiplier float64

	// Retryable reports whether err is worth another attempt. nil retries everything.
	Retryable func(err error) bool
}

// DefaultRetryConfig returns the defaults used by remote providers
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: MaxRetries,
		BaseDelay:  time.Duration(InitialBackoffMs) * time.Millisecond,
		MaxDelay:   time.Duration(MaxBackoffMs) * time.Millisecond,
		Multiplier: BackoffMultiplier,
	}
}

// retryWithBackoff calls fn until it succeeds, the error is not retryable,
// attempts run out or ctx is done. The last error is returned.
func retryWithBackoff[T any](ctx context.Context, config RetryConfig, fn func() (T, error)) (T, error) {
	var lastErr error
	var zero T
	backoff := config.BaseDelay
	attempts := max(1, config.MaxRetries)

	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if config.Retryable != nil && !config.Retryable(err) {
			return zero, err
		}

		if attempt < attempts-1 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
			backoff = time.Duration(float64(backoff) * config.Multiplier)
			if config.MaxDelay > 0 && backoff > config.MaxDelay {
				backoff = config.MaxDelay
			}
		}
	}

	return zero, lastErr
}
