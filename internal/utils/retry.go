package utils

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
)

const retryBaseDelay = 500 * time.Millisecond

// WithRetry runs op until it succeeds, the context is cancelled, or
// maxRetries additional attempts have failed. Backoff grows linearly with
// the attempt number.
func WithRetry[T any](ctx context.Context, maxRetries uint, op func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := uint(0); attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		v, err := op()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt < maxRetries {
			delay := time.Duration(attempt+1) * retryBaseDelay
			slog.Debug("Operation failed, retrying",
				"attempt", attempt+1,
				"maxRetries", maxRetries,
				"delay", delay,
				"error", err)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return zero, errors.WithMessagef(lastErr, "giving up after %d retries", maxRetries)
}
