package types

import (
	"errors"
	"fmt"
)

// ErrorCode classifies engine errors.
type ErrorCode string

const (
	// ErrCodeInvalidWorkflow indicates a malformed submission, rejected
	// before execution begins.
	ErrCodeInvalidWorkflow ErrorCode = "INVALID_WORKFLOW"
	// ErrCodeNotFound indicates the referenced entity does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeAlreadyRunning indicates the workflow is already executing.
	ErrCodeAlreadyRunning ErrorCode = "ALREADY_RUNNING"
	// ErrCodeInvalidState indicates the operation is illegal for the
	// current task or workflow status.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"
	// ErrCodeSessionInUse indicates a conflicting exclusive session.
	ErrCodeSessionInUse ErrorCode = "SESSION_IN_USE"
	// ErrCodeTaskFailure indicates a recoverable task-level failure.
	ErrCodeTaskFailure ErrorCode = "TASK_FAILURE"
	// ErrCodeTimeout indicates an external call exceeded its deadline.
	// It is a TaskFailure with a distinguishing code so clients can back off.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeRateLimited indicates the external analyzer rejected the call.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	// ErrCodeOutOfOrderStage indicates a stage transition that regresses
	// past a later-recorded stage. Logged anomaly, never fatal.
	ErrCodeOutOfOrderStage ErrorCode = "OUT_OF_ORDER_STAGE"
	// ErrCodeConfig indicates an invalid configuration value.
	ErrCodeConfig ErrorCode = "CONFIG_ERROR"
)

// Error is the coded error used across the engine.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a coded error.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a coded error with a cause.
func WrapError(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CodeOf returns the error code, or empty when err is not a coded error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool { return IsCode(err, ErrCodeNotFound) }

// IsInvalidState reports whether err is an INVALID_STATE error.
func IsInvalidState(err error) bool { return IsCode(err, ErrCodeInvalidState) }

// IsSessionInUse reports whether err is a SESSION_IN_USE error.
func IsSessionInUse(err error) bool { return IsCode(err, ErrCodeSessionInUse) }

// IsTimeout reports whether err is a TIMEOUT error.
func IsTimeout(err error) bool { return IsCode(err, ErrCodeTimeout) }

// IsRateLimited reports whether err is a RATE_LIMITED error.
func IsRateLimited(err error) bool { return IsCode(err, ErrCodeRateLimited) }

// IsOutOfOrderStage reports whether err is an OUT_OF_ORDER_STAGE error.
func IsOutOfOrderStage(err error) bool { return IsCode(err, ErrCodeOutOfOrderStage) }
