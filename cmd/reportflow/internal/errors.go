package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mtb-technology/reportflow/internal/types"
)

// Exit code constants for the CLI.
const (
	// ExitSuccess indicates successful execution.
	ExitSuccess = 0
	// ExitError indicates a general error.
	ExitError = 1
	// ExitBlocked indicates the report is gated on missing client information.
	ExitBlocked = 2
	// ExitTimeout indicates the operation timed out.
	ExitTimeout = 3
	// ExitCancelled indicates the operation was cancelled.
	ExitCancelled = 4
	// ExitConfigError indicates a configuration error.
	ExitConfigError = 10
	// ExitDatabaseError indicates a database error.
	ExitDatabaseError = 12
)

// CLIError represents a CLI-specific error with an exit code.
type CLIError struct {
	Code    int
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause error.
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// WrapError creates a CLIError wrapping an existing error.
func WrapError(code int, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Cause: err}
}

// NewCLIError creates a CLIError with the given code and message.
func NewCLIError(code int, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// HandleError prints the error to the command's error output and returns
// the appropriate exit code.
func HandleError(cmd *cobra.Command, err error) int {
	if err == nil {
		return ExitSuccess
	}

	if errors.Is(err, context.Canceled) {
		cmd.PrintErrln("Operation cancelled")
		return ExitCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		cmd.PrintErrln("Operation timed out")
		return ExitTimeout
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		cmd.PrintErrln("Error:", cliErr.Message)
		if cliErr.Cause != nil {
			verboseFlag := cmd.Flag("verbose")
			if verboseFlag != nil && verboseFlag.Changed {
				cmd.PrintErrln("Cause:", cliErr.Cause)
			}
		}
		return cliErr.Code
	}

	var flowErr *types.FlowError
	if errors.As(err, &flowErr) {
		cmd.PrintErrln("Error:", flowErr.Error())
		return mapFlowErrorToExitCode(flowErr)
	}

	cmd.PrintErrln("Error:", err)
	return ExitError
}

// mapFlowErrorToExitCode maps structured error codes onto CLI exit codes.
func mapFlowErrorToExitCode(err *types.FlowError) int {
	switch err.Code {
	case types.CONFIG_LOAD_FAILED, types.CONFIG_PARSE_FAILED,
		types.CONFIG_VALIDATION_FAILED, types.CONFIG_NOT_FOUND:
		return ExitConfigError
	case types.DB_OPEN_FAILED, types.DB_MIGRATION_FAILED, types.DB_QUERY_FAILED:
		return ExitDatabaseError
	case types.REPORT_BLOCKED:
		return ExitBlocked
	case types.JOB_CANCELLED:
		return ExitCancelled
	default:
		return ExitError
	}
}
