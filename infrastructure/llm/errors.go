// Package llm provides a unified interface for generating structured
// documents through multiple LLM providers. It abstracts the provider wire
// protocols behind a common core interface and layers cross-cutting concerns
// such as rate limiting, cost enforcement, metrics, and tracing through a
// middleware chain.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Common errors returned by the LLM clients and providers.
var (
	// ErrEmptyAPIKey indicates that an API key was required but not provided.
	ErrEmptyAPIKey = errors.New("API key cannot be empty")
	// ErrEmptyResponse indicates that the provider's API returned an empty or nil response body.
	ErrEmptyResponse = errors.New("empty response from API")
	// ErrNoResponseChoice indicates that the provider's response contained no usable candidates.
	ErrNoResponseChoice = errors.New("no response choices returned")
)

// ErrorType represents the category of an error raised while generating a
// document. The category alone decides retryability: connection, rate-limit,
// invalid-response, and timeout errors are transient; everything else is
// terminal and propagates immediately.
type ErrorType int

const (
	// ErrorTypeUnknown indicates an error of an undetermined category.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeConnection indicates the provider could not be reached or
	// answered with a non-success status.
	ErrorTypeConnection
	// ErrorTypeRateLimit indicates that the provider rejected the request
	// with a rate-limit status.
	ErrorTypeRateLimit
	// ErrorTypeInvalidResponse indicates that the provider answered but the
	// body could not be turned into a usable document payload.
	ErrorTypeInvalidResponse
	// ErrorTypeTimeout indicates that the request exceeded its deadline.
	ErrorTypeTimeout
	// ErrorTypeCostExceeded indicates the pre-flight cost estimate was over
	// the caller's ceiling. No network traffic occurred.
	ErrorTypeCostExceeded
	// ErrorTypeNoProvider indicates that no configured provider has a
	// credential available.
	ErrorTypeNoProvider
	// ErrorTypeMissingCredential indicates the selected provider's API key
	// environment variable is unset.
	ErrorTypeMissingCredential
	// ErrorTypeAuthentication indicates the provider rejected the
	// credential.
	ErrorTypeAuthentication
)

// ProviderError represents a structured error from an LLM provider.
// It normalizes provider-specific failures into a common format so the
// retry layer can decide behavior from the Type alone.
type ProviderError struct {
	// Type classifies the error into a standard category.
	Type ErrorType
	// Provider identifies the name of the LLM provider that produced the error.
	Provider string
	// StatusCode holds the HTTP status code from the provider's response, if applicable.
	StatusCode int
	// Message contains the user-facing error message.
	Message string
	// RetryAfter carries the provider's Retry-After hint on rate-limit
	// errors. Zero when the provider sent none.
	RetryAfter time.Duration
	// WrappedError holds the original underlying error for error chaining.
	WrappedError error
}

// Error returns a string representation of the ProviderError,
// satisfying the standard error interface.
func (e *ProviderError) Error() string {
	base := fmt.Sprintf("%s error", e.Provider)
	if e.StatusCode > 0 {
		base += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}

	if typeStr := e.typeString(); typeStr != "" {
		base += fmt.Sprintf(" [%s]", typeStr)
	}

	if e.Message != "" {
		base += ": " + e.Message
	}

	if e.WrappedError != nil {
		base += fmt.Sprintf(": %v", e.WrappedError)
	}

	return base
}

// Unwrap returns the underlying wrapped error, allowing for error inspection
// with functions like errors.Is and errors.As.
func (e *ProviderError) Unwrap() error { return e.WrappedError }

// IsRetryable determines whether a request that failed with this error
// should be retried. Only transient categories qualify; cost, credential,
// and provider-availability failures never do.
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeConnection, ErrorTypeRateLimit, ErrorTypeInvalidResponse, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

func (e *ProviderError) typeString() string {
	switch e.Type {
	case ErrorTypeConnection:
		return "connection_failed"
	case ErrorTypeRateLimit:
		return "rate_limited"
	case ErrorTypeInvalidResponse:
		return "invalid_response"
	case ErrorTypeTimeout:
		return "timed_out"
	case ErrorTypeCostExceeded:
		return "cost_exceeded"
	case ErrorTypeNoProvider:
		return "no_available_provider"
	case ErrorTypeMissingCredential:
		return "missing_credential"
	case ErrorTypeAuthentication:
		return "authentication"
	default:
		return ""
	}
}

// NewProviderError creates a new ProviderError.
// This constructor is used to build standardized errors from provider-specific responses.
func NewProviderError(provider string, errType ErrorType, statusCode int, message string, wrapped error) *ProviderError {
	return &ProviderError{
		Type:         errType,
		Provider:     provider,
		StatusCode:   statusCode,
		Message:      message,
		WrappedError: wrapped,
	}
}

// NewCostExceededError reports a pre-flight cost estimate over the ceiling.
func NewCostExceededError(provider string, estimated, ceiling float64) *ProviderError {
	return &ProviderError{
		Type:     ErrorTypeCostExceeded,
		Provider: provider,
		Message:  fmt.Sprintf("estimated cost $%.4f exceeds ceiling $%.2f", estimated, ceiling),
	}
}

// NewNoProviderError reports that no provider has a usable credential.
func NewNoProviderError() *ProviderError {
	return &ProviderError{
		Type:    ErrorTypeNoProvider,
		Message: "no provider has credentials configured",
	}
}

// IsRetryableError reports whether err is a ProviderError in a transient
// category. Non-ProviderError values are treated as non-retryable.
func IsRetryableError(err error) bool {
	var pErr *ProviderError
	if errors.As(err, &pErr) {
		return pErr.IsRetryable()
	}
	return false
}

// ErrorClassifier standardizes provider-specific failures into ProviderError
// instances using context such as HTTP status codes.
type ErrorClassifier struct {
	// Provider is the name of the LLM provider for which this classifier works.
	Provider string
}

// ClassifyHTTPResponse creates a ProviderError from a non-success HTTP
// response. Rate-limit responses carry the parsed Retry-After hint.
func (ec *ErrorClassifier) ClassifyHTTPResponse(resp *http.Response, body string) *ProviderError {
	var errType ErrorType
	message := body

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		errType = ErrorTypeAuthentication
		message = fmt.Sprintf("%s authentication failed", ec.Provider)
	case resp.StatusCode == http.StatusTooManyRequests:
		errType = ErrorTypeRateLimit
		message = fmt.Sprintf("%s rate limit exceeded", ec.Provider)
	default:
		errType = ErrorTypeConnection
	}

	pErr := NewProviderError(ec.Provider, errType, resp.StatusCode, message, nil)
	if errType == ErrorTypeRateLimit {
		pErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return pErr
}

// ClassifyTransportError creates a ProviderError from a transport-level
// failure, distinguishing timeouts from other connection problems.
func (ec *ErrorClassifier) ClassifyTransportError(err error) *ProviderError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewProviderError(ec.Provider, ErrorTypeTimeout, 0, "request deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return NewProviderError(ec.Provider, ErrorTypeConnection, 0, "request canceled", err)
	default:
		return NewProviderError(ec.Provider, ErrorTypeConnection, 0, "connection failed", err)
	}
}

// parseRetryAfter reads an HTTP Retry-After header value in either the
// delta-seconds or HTTP-date form.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
