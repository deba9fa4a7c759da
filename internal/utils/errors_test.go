package contextutils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrorCodeInvalidInput, SeverityWarn, "Invalid input", "field missing")
	assert.Equal(t, "INVALID_INPUT: Invalid input - field missing", err.Error())

	err = NewAppError(ErrorCodeInvalidInput, SeverityWarn, "Invalid input", "")
	assert.Equal(t, "INVALID_INPUT: Invalid input", err.Error())
}

func TestWrapError_PreservesCode(t *testing.T) {
	wrapped := WrapError(ErrNoTopicForDifficulty, "rotation failed")
	assert.True(t, IsError(wrapped, ErrNoTopicForDifficulty))
	assert.Equal(t, ErrorCodeNoTopicForDifficulty, GetErrorCode(wrapped))
	assert.Contains(t, wrapped.Error(), "rotation failed")
}

func TestWrapError_PlainError(t *testing.T) {
	wrapped := WrapError(errors.New("boom"), "context")
	assert.Equal(t, ErrorCodeInternalError, GetErrorCode(wrapped))
	assert.True(t, errors.Is(wrapped, ErrInternalError))
}

func TestWrapError_Nil(t *testing.T) {
	assert.NoError(t, WrapError(nil, "context"))
	assert.NoError(t, WrapErrorf(nil, "context %d", 1))
}

func TestErrorsIs_MatchesByCode(t *testing.T) {
	err := WrapError(ErrInsufficientTopics, "generate schedule")
	assert.True(t, errors.Is(err, ErrInsufficientTopics))
	assert.False(t, errors.Is(err, ErrInsufficientDistinctTopics))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrServiceUnavailable))
	assert.True(t, IsRetryable(ErrTimeout))
	assert.True(t, IsRetryable(ErrLLMUnavailable))
	assert.False(t, IsRetryable(ErrInvalidInput))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestToJSON(t *testing.T) {
	err := NewAppError(ErrorCodeQuotaExceeded, SeverityWarn, "Daily quota exceeded", "chat limit reached")
	out := err.ToJSON()
	assert.Equal(t, "QUOTA_EXCEEDED", out["code"])
	assert.Equal(t, "Daily quota exceeded", out["message"])
	assert.Equal(t, "chat limit reached", out["details"])
	assert.Equal(t, false, out["retryable"])
}
