package contextutils

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// RetryConfig bounds the retry helper.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig returns the default bounded exponential backoff settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// IsRetryableStatus reports whether an HTTP status code indicates a transient
// failure worth retrying on an idempotent call.
func IsRetryableStatus(status int) bool {
	if status >= 500 {
		return true
	}
	return status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
}

// isNetworkError reports whether err is a transport-level failure.
func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}

// RetryWithBackoff runs fn up to cfg.MaxAttempts times with exponential backoff.
// Only intended for idempotent operations: it retries on network failures,
// retryable AppErrors, and HTTP statuses reported via IsRetryableStatus by fn
// returning a retryable error. The last error is returned when attempts are exhausted.
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig()
	}

	var lastErr error
	delay := cfg.BaseDelay
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) && !isNetworkError(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return WrapError(ctx.Err(), "retry canceled")
		case <-time.After(delay):
		}

		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}
