package agent

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is a string type used for structured failure reporting in action
// outcomes. Using a custom type ensures only predefined constants appear
// where an ErrorCode is expected.
type ErrorCode string

const (
	// -- Decision validation --
	ErrCodeValidation    ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidParams ErrorCode = "INVALID_PARAMETERS"
	ErrCodeUnknownAction ErrorCode = "UNKNOWN_ACTION_TYPE"

	// -- Browser/DOM failures --
	ErrCodeElementNotFound ErrorCode = "ELEMENT_NOT_FOUND"
	ErrCodeTimeoutError    ErrorCode = "TIMEOUT_ERROR"
	ErrCodeNavigationError ErrorCode = "NAVIGATION_ERROR"

	// -- Execution failures --
	ErrCodeExecutionFailure ErrorCode = "EXECUTION_FAILURE"
	ErrCodeExecutorPanic    ErrorCode = "EXECUTOR_PANIC"

	// -- Session level --
	ErrCodeSessionFatal ErrorCode = "SESSION_FATAL"
)

// ValidationError reports a model decision that failed validation before
// execution: an unknown action kind, or an element reference that cannot be
// satisfied by the current element table.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid decision: %s: %s", e.Field, e.Message)
	}
	return "invalid decision: " + e.Message
}

// ElementNotFoundError reports that no resolution strategy produced a live
// element for the requested reference.
type ElementNotFoundError struct {
	ElementID string
	Tried     []string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element %q not found after trying %d selectors", e.ElementID, len(e.Tried))
}

// SessionFatalError marks conditions the step loop cannot recover from, such
// as a dead browser tab or an exhausted decision provider.
type SessionFatalError struct {
	Reason string
	Err    error
}

func (e *SessionFatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session fatal: %s: %v", e.Reason, e.Err)
	}
	return "session fatal: " + e.Reason
}

func (e *SessionFatalError) Unwrap() error { return e.Err }

// classifyExecutionError maps a raw handler error onto a structured code.
// Typed errors are matched first; everything else falls back to the text
// heuristics browsers actually surface.
func classifyExecutionError(err error) ErrorCode {
	var notFound *ElementNotFoundError
	if errors.As(err, &notFound) {
		return ErrCodeElementNotFound
	}
	var invalid *ValidationError
	if errors.As(err, &invalid) {
		return ErrCodeInvalidParams
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "not found"),
		strings.Contains(errStr, "no element"),
		strings.Contains(errStr, "no visible box"):
		return ErrCodeElementNotFound
	case strings.Contains(errStr, "timeout"),
		strings.Contains(errStr, "deadline exceeded"):
		return ErrCodeTimeoutError
	case strings.Contains(errStr, "net::ERR"):
		return ErrCodeNavigationError
	default:
		return ErrCodeExecutionFailure
	}
}
