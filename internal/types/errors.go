package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for reportflow errors.
type ErrorCode string

// Configuration error codes
const (
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_PARSE_FAILED      ErrorCode = "CONFIG_PARSE_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
	CONFIG_NOT_FOUND         ErrorCode = "CONFIG_NOT_FOUND"
)

// Database error codes
const (
	DB_OPEN_FAILED      ErrorCode = "DB_OPEN_FAILED"
	DB_MIGRATION_FAILED ErrorCode = "DB_MIGRATION_FAILED"
	DB_QUERY_FAILED     ErrorCode = "DB_QUERY_FAILED"
)

// Report error codes
const (
	REPORT_NOT_FOUND ErrorCode = "REPORT_NOT_FOUND"
	REPORT_INVALID   ErrorCode = "REPORT_INVALID"
	REPORT_BLOCKED   ErrorCode = "REPORT_BLOCKED"
)

// Stage error codes
const (
	STAGE_NOT_FOUND    ErrorCode = "STAGE_NOT_FOUND"
	STAGE_NOT_ELIGIBLE ErrorCode = "STAGE_NOT_ELIGIBLE"
	STAGE_TIMEOUT      ErrorCode = "STAGE_TIMEOUT"
)

// Job error codes
const (
	JOB_NOT_FOUND ErrorCode = "JOB_NOT_FOUND"
	JOB_TERMINAL  ErrorCode = "JOB_TERMINAL"
	JOB_CANCELLED ErrorCode = "JOB_CANCELLED"
)

// Version store error codes
const (
	VERSION_CONFLICT     ErrorCode = "VERSION_CONFLICT"
	VERSION_NOT_FOUND    ErrorCode = "VERSION_NOT_FOUND"
	VERSION_CHAIN_BROKEN ErrorCode = "VERSION_CHAIN_BROKEN"
)

// Observability error codes
const (
	TRACING_INIT_FAILED     ErrorCode = "TRACING_INIT_FAILED"
	TRACING_SHUTDOWN_FAILED ErrorCode = "TRACING_SHUTDOWN_FAILED"
)

// FlowError represents a structured error with error code, message, and
// optional cause. It supports error wrapping and retryability hints for
// error handling logic.
type FlowError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface, returning a formatted error message.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *FlowError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error unwrapping chains.
// This enables using errors.Is() and errors.As() with wrapped errors.
func (e *FlowError) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error by error code.
// Returns true if target is a FlowError with the same Code.
func (e *FlowError) Is(target error) bool {
	var flowErr *FlowError
	if errors.As(target, &flowErr) {
		return e.Code == flowErr.Code
	}
	return false
}

// NewError creates a new non-retryable FlowError with the given code and message.
func NewError(code ErrorCode, message string) *FlowError {
	return &FlowError{
		Code:      code,
		Message:   message,
		Retryable: false,
		Cause:     nil,
	}
}

// NewRetryableError creates a new retryable FlowError with the given code and message.
// Use this for transient errors that may succeed on retry (e.g., network timeouts).
func NewRetryableError(code ErrorCode, message string) *FlowError {
	return &FlowError{
		Code:      code,
		Message:   message,
		Retryable: true,
		Cause:     nil,
	}
}

// WrapError creates a new non-retryable FlowError that wraps an existing error.
// The wrapped error is accessible via Unwrap() for error chain inspection.
func WrapError(code ErrorCode, message string, cause error) *FlowError {
	return &FlowError{
		Code:      code,
		Message:   message,
		Retryable: false,
		Cause:     cause,
	}
}
