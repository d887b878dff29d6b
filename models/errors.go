package models

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a failure class. Callers branch on codes, not on error
// strings.
type ErrorCode string

const (
	ErrInvalidInput     ErrorCode = "invalid_input"
	ErrSessionBusy      ErrorCode = "session_busy"
	ErrModelAuth        ErrorCode = "model_auth"
	ErrModelRateLimited ErrorCode = "model_rate_limited"
	ErrModelProtocol    ErrorCode = "model_protocol"
	ErrToolUnavailable  ErrorCode = "tool_unavailable"
	ErrToolTimeout      ErrorCode = "tool_timeout"
)

// AgentError is the error type crossing package boundaries. Retryable marks
// transient failures worth one more attempt.
type AgentError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Err       error
}

func (e *AgentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

func InvalidInput(message string) *AgentError {
	return &AgentError{Code: ErrInvalidInput, Message: message}
}

func SessionBusy(message string) *AgentError {
	return &AgentError{Code: ErrSessionBusy, Message: message}
}

func ModelAuth(err error) *AgentError {
	return &AgentError{Code: ErrModelAuth, Message: "model rejected credentials", Err: err}
}

func ModelRateLimited(err error) *AgentError {
	return &AgentError{Code: ErrModelRateLimited, Message: "model rate limited", Retryable: true, Err: err}
}

func ModelProtocol(message string, err error) *AgentError {
	return &AgentError{Code: ErrModelProtocol, Message: message, Err: err}
}

func ToolUnavailable(name string, err error) *AgentError {
	return &AgentError{Code: ErrToolUnavailable, Message: fmt.Sprintf("tool %q unavailable", name), Err: err}
}

func ToolTimeout(name string, err error) *AgentError {
	return &AgentError{Code: ErrToolTimeout, Message: fmt.Sprintf("tool %q timed out", name), Err: err}
}

// CodeOf extracts the error code, or empty string for foreign errors.
func CodeOf(err error) ErrorCode {
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsRetryable reports whether a failed model call may be attempted again.
// Errors from outside the taxonomy (network hiccups, timeouts) are treated as
// transient.
func IsRetryable(err error) bool {
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return err != nil
}
