package contextutils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryWithBackoff_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWithBackoff_NonRetryableFailsImmediately(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		return ErrInvalidInput
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWithBackoff_RetriesRetryableUntilSuccess(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	calls := 0
	err := RetryWithBackoff(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls < 3 {
			return ErrServiceUnavailable
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_ExhaustsAttempts(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	calls := 0
	err := RetryWithBackoff(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return ErrTimeout
	})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, 2, calls)
}

func TestRetryWithBackoff_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}
	calls := 0
	err := RetryWithBackoff(ctx, cfg, func(_ context.Context) error {
		calls++
		cancel()
		return ErrServiceUnavailable
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsRetryableStatus(t *testing.T) {
	assert.True(t, IsRetryableStatus(500))
	assert.True(t, IsRetryableStatus(503))
	assert.True(t, IsRetryableStatus(408))
	assert.True(t, IsRetryableStatus(429))
	assert.False(t, IsRetryableStatus(400))
	assert.False(t, IsRetryableStatus(200))
}
