package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind is the canonical, provider-agnostic classification of an AI
// invocation failure. Every provider adapter maps its wire-level errors
// into one of these kinds before they leave the invoker.
type ErrorKind string

const (
	KindTimeout              ErrorKind = "timeout"
	KindRateLimited          ErrorKind = "rate_limited"
	KindNetworkError         ErrorKind = "network_error"
	KindAuthenticationFailed ErrorKind = "authentication_failed"
	KindModelNotFound        ErrorKind = "model_not_found"
	KindServiceUnavailable   ErrorKind = "service_unavailable"
	KindInvalidResponse      ErrorKind = "invalid_response"
	KindValidationFailed     ErrorKind = "validation_failed"
	KindCircuitBreakerOpen   ErrorKind = "circuit_breaker_open"
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	return string(k)
}

// AIError is a classified AI invocation failure. It carries a retryability
// hint and an optional delay suggestion consumed by the retry loop.
type AIError struct {
	Kind     ErrorKind
	Provider string
	Message  string

	// Retryable indicates the failure is transient and a retry may succeed.
	Retryable bool

	// RetryAfter is a provider-supplied (or default) backoff hint.
	// Zero means no hint; the retry policy's own delay applies.
	RetryAfter time.Duration

	Cause error
}

// Error implements the error interface.
// Format: "provider/kind: message" or with the cause appended.
func (e *AIError) Error() string {
	base := fmt.Sprintf("%s/%s: %s", e.Provider, e.Kind, e.Message)
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", base, e.Cause)
	}
	return base
}

// Unwrap returns the underlying cause for error chain inspection.
func (e *AIError) Unwrap() error {
	return e.Cause
}

// Is matches AIErrors by kind, enabling errors.Is against sentinel kinds.
func (e *AIError) Is(target error) bool {
	var aiErr *AIError
	if errors.As(target, &aiErr) {
		return e.Kind == aiErr.Kind
	}
	return false
}

// IsRetryable reports whether err is an AIError marked retryable.
// Non-AIError values are treated as non-retryable for safety.
func IsRetryable(err error) bool {
	var aiErr *AIError
	if errors.As(err, &aiErr) {
		return aiErr.Retryable
	}
	return false
}

// RetryAfterHint extracts the backoff hint from err, or zero.
func RetryAfterHint(err error) time.Duration {
	var aiErr *AIError
	if errors.As(err, &aiErr) {
		return aiErr.RetryAfter
	}
	return 0
}

// KindOf returns the canonical kind of err, or an empty kind for
// unclassified errors.
func KindOf(err error) ErrorKind {
	var aiErr *AIError
	if errors.As(err, &aiErr) {
		return aiErr.Kind
	}
	return ""
}

// Default backoff hints applied when the provider supplies none.
const (
	defaultRateLimitRetryAfter   = 60 * time.Second
	defaultUnavailableRetryAfter = 30 * time.Second
)

// FromHTTPStatus maps an HTTP status code to a canonical AIError.
//
// Mapping: 401 -> AuthenticationFailed (non-retryable); 404 -> ModelNotFound
// (non-retryable); 429 -> RateLimited (retryable, 60s default hint);
// 500/502/503/504 -> ServiceUnavailable (retryable, 30s default hint).
// Anything else is non-retryable InvalidResponse unless the status is >= 500.
func FromHTTPStatus(provider string, status int, message string) *AIError {
	switch status {
	case 401:
		return &AIError{
			Kind:     KindAuthenticationFailed,
			Provider: provider,
			Message:  message,
		}
	case 404:
		return &AIError{
			Kind:     KindModelNotFound,
			Provider: provider,
			Message:  message,
		}
	case 429:
		return &AIError{
			Kind:       KindRateLimited,
			Provider:   provider,
			Message:    message,
			Retryable:  true,
			RetryAfter: defaultRateLimitRetryAfter,
		}
	case 500, 502, 503, 504:
		return &AIError{
			Kind:       KindServiceUnavailable,
			Provider:   provider,
			Message:    message,
			Retryable:  true,
			RetryAfter: defaultUnavailableRetryAfter,
		}
	default:
		return &AIError{
			Kind:      KindInvalidResponse,
			Provider:  provider,
			Message:   fmt.Sprintf("unexpected HTTP status %d: %s", status, message),
			Retryable: status >= 500,
		}
	}
}

// NewTimeoutError creates a retryable timeout error.
func NewTimeoutError(provider, message string) *AIError {
	return &AIError{
		Kind:      KindTimeout,
		Provider:  provider,
		Message:   message,
		Retryable: true,
	}
}

// NewNetworkError creates a retryable network error wrapping cause.
func NewNetworkError(provider string, cause error) *AIError {
	return &AIError{
		Kind:      KindNetworkError,
		Provider:  provider,
		Message:   "network failure",
		Retryable: true,
		Cause:     cause,
	}
}

// NewValidationError creates a non-retryable resolution/validation error.
// Validation errors fail fast before any network call and are never retried.
func NewValidationError(provider, message string) *AIError {
	return &AIError{
		Kind:     KindValidationFailed,
		Provider: provider,
		Message:  message,
	}
}

// NewInvalidResponseError creates a non-retryable error for malformed or
// empty provider responses.
func NewInvalidResponseError(provider, message string) *AIError {
	return &AIError{
		Kind:     KindInvalidResponse,
		Provider: provider,
		Message:  message,
	}
}

// NewCircuitOpenError creates the rejection returned while a provider's
// breaker is open. Reported distinctly from provider errors so callers can
// tell "provider is failing" from "we are intentionally not calling it".
func NewCircuitOpenError(provider string, retryAfter time.Duration) *AIError {
	return &AIError{
		Kind:       KindCircuitBreakerOpen,
		Provider:   provider,
		Message:    "circuit breaker open, rejecting call",
		Retryable:  true,
		RetryAfter: retryAfter,
	}
}

// TranslateError classifies a generic provider error into a canonical
// AIError. Context deadline/cancellation map to Timeout; otherwise the
// error message content decides. Already-classified errors pass through.
func TranslateError(provider string, err error) error {
	if err == nil {
		return nil
	}

	var aiErr *AIError
	if errors.As(err, &aiErr) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(provider, "deadline exceeded")
	}
	if errors.Is(err, context.Canceled) {
		return &AIError{
			Kind:     KindTimeout,
			Provider: provider,
			Message:  "invocation cancelled",
			Cause:    err,
		}
	}

	lowerMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerMsg, "unauthorized") ||
		strings.Contains(lowerMsg, "authentication") ||
		strings.Contains(lowerMsg, "api key"):
		return &AIError{
			Kind:     KindAuthenticationFailed,
			Provider: provider,
			Message:  "authentication failed",
			Cause:    err,
		}
	case strings.Contains(lowerMsg, "rate limit") ||
		strings.Contains(lowerMsg, "too many requests"):
		return &AIError{
			Kind:       KindRateLimited,
			Provider:   provider,
			Message:    "rate limit exceeded",
			Retryable:  true,
			RetryAfter: defaultRateLimitRetryAfter,
			Cause:      err,
		}
	case strings.Contains(lowerMsg, "timeout") ||
		strings.Contains(lowerMsg, "deadline"):
		return &AIError{
			Kind:      KindTimeout,
			Provider:  provider,
			Message:   "request timed out",
			Retryable: true,
			Cause:     err,
		}
	case strings.Contains(lowerMsg, "connection") ||
		strings.Contains(lowerMsg, "network") ||
		strings.Contains(lowerMsg, "no such host"):
		return NewNetworkError(provider, err)
	case strings.Contains(lowerMsg, "model") && strings.Contains(lowerMsg, "not found"):
		return &AIError{
			Kind:     KindModelNotFound,
			Provider: provider,
			Message:  "model not found",
			Cause:    err,
		}
	default:
		return &AIError{
			Kind:       KindServiceUnavailable,
			Provider:   provider,
			Message:    "provider call failed",
			Retryable:  true,
			RetryAfter: defaultUnavailableRetryAfter,
			Cause:      err,
		}
	}
}
