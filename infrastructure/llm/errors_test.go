package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderError_IsRetryable(t *testing.T) {
	retryable := []ErrorType{
		ErrorTypeConnection,
		ErrorTypeRateLimit,
		ErrorTypeInvalidResponse,
		ErrorTypeTimeout,
	}
	for _, errType := range retryable {
		pErr := NewProviderError("openai", errType, 0, "transient", nil)
		assert.True(t, pErr.IsRetryable(), "type %v should be retryable", errType)
	}

	terminal := []ErrorType{
		ErrorTypeUnknown,
		ErrorTypeCostExceeded,
		ErrorTypeNoProvider,
		ErrorTypeMissingCredential,
		ErrorTypeAuthentication,
	}
	for _, errType := range terminal {
		pErr := NewProviderError("openai", errType, 0, "terminal", nil)
		assert.False(t, pErr.IsRetryable(), "type %v should not be retryable", errType)
	}
}

func TestIsRetryableError(t *testing.T) {
	t.Run("detects retryable provider error through wrapping", func(t *testing.T) {
		inner := NewProviderError("anthropic", ErrorTypeRateLimit, 429, "slow down", nil)
		wrapped := fmt.Errorf("generate BRD: %w", inner)
		assert.True(t, IsRetryableError(wrapped))
	})

	t.Run("treats plain errors as terminal", func(t *testing.T) {
		assert.False(t, IsRetryableError(errors.New("boom")))
	})

	t.Run("treats nil as terminal", func(t *testing.T) {
		assert.False(t, IsRetryableError(nil))
	})
}

func TestProviderError_Error(t *testing.T) {
	pErr := NewProviderError("google", ErrorTypeRateLimit, 429, "rate limit exceeded", nil)
	msg := pErr.Error()
	assert.Contains(t, msg, "google")
	assert.Contains(t, msg, "429")
	assert.Contains(t, msg, "rate_limited")
	assert.Contains(t, msg, "rate limit exceeded")
}

func TestProviderError_Unwrap(t *testing.T) {
	inner := errors.New("connection reset")
	pErr := NewProviderError("openai", ErrorTypeConnection, 0, "connection failed", inner)
	assert.ErrorIs(t, pErr, inner)
}

func TestNewCostExceededError(t *testing.T) {
	pErr := NewCostExceededError("anthropic", 0.3425, 0.25)
	assert.Equal(t, ErrorTypeCostExceeded, pErr.Type)
	assert.False(t, pErr.IsRetryable())
	assert.Contains(t, pErr.Message, "$0.3425")
	assert.Contains(t, pErr.Message, "$0.25")
}

func TestErrorClassifier_ClassifyHTTPResponse(t *testing.T) {
	classifier := &ErrorClassifier{Provider: "openai"}

	t.Run("maps unauthorized to authentication", func(t *testing.T) {
		resp := &http.Response{StatusCode: http.StatusUnauthorized, Header: http.Header{}}
		pErr := classifier.ClassifyHTTPResponse(resp, "bad key")
		assert.Equal(t, ErrorTypeAuthentication, pErr.Type)
		assert.False(t, pErr.IsRetryable())
	})

	t.Run("maps too many requests to rate limit with retry hint", func(t *testing.T) {
		header := http.Header{}
		header.Set("Retry-After", "20")
		resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: header}

		pErr := classifier.ClassifyHTTPResponse(resp, "slow down")
		assert.Equal(t, ErrorTypeRateLimit, pErr.Type)
		assert.Equal(t, 20*time.Second, pErr.RetryAfter)
		assert.True(t, pErr.IsRetryable())
	})

	t.Run("rate limit without hint has zero retry after", func(t *testing.T) {
		resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}
		pErr := classifier.ClassifyHTTPResponse(resp, "")
		assert.Equal(t, time.Duration(0), pErr.RetryAfter)
	})

	t.Run("maps server errors to connection", func(t *testing.T) {
		resp := &http.Response{StatusCode: http.StatusInternalServerError, Header: http.Header{}}
		pErr := classifier.ClassifyHTTPResponse(resp, "internal error")
		assert.Equal(t, ErrorTypeConnection, pErr.Type)
		assert.Equal(t, http.StatusInternalServerError, pErr.StatusCode)
		assert.True(t, pErr.IsRetryable())
	})
}

func TestErrorClassifier_ClassifyTransportError(t *testing.T) {
	classifier := &ErrorClassifier{Provider: "anthropic"}

	t.Run("maps deadline exceeded to timeout", func(t *testing.T) {
		pErr := classifier.ClassifyTransportError(fmt.Errorf("do request: %w", context.DeadlineExceeded))
		assert.Equal(t, ErrorTypeTimeout, pErr.Type)
	})

	t.Run("maps cancellation to connection", func(t *testing.T) {
		pErr := classifier.ClassifyTransportError(context.Canceled)
		assert.Equal(t, ErrorTypeConnection, pErr.Type)
	})

	t.Run("maps other failures to connection", func(t *testing.T) {
		pErr := classifier.ClassifyTransportError(errors.New("dial tcp: refused"))
		assert.Equal(t, ErrorTypeConnection, pErr.Type)
	})
}

func TestParseRetryAfter(t *testing.T) {
	t.Run("parses delta seconds", func(t *testing.T) {
		assert.Equal(t, 30*time.Second, parseRetryAfter("30"))
	})

	t.Run("parses HTTP date in the future", func(t *testing.T) {
		at := time.Now().Add(45 * time.Second).UTC()
		d := parseRetryAfter(at.Format(http.TimeFormat))
		require.Greater(t, d, 40*time.Second)
		require.LessOrEqual(t, d, 45*time.Second)
	})

	t.Run("returns zero for past dates and garbage", func(t *testing.T) {
		past := time.Now().Add(-time.Minute).UTC()
		assert.Equal(t, time.Duration(0), parseRetryAfter(past.Format(http.TimeFormat)))
		assert.Equal(t, time.Duration(0), parseRetryAfter("not-a-duration"))
		assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	})
}
