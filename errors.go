package fncall

import (
	"errors"
	"fmt"
)

// Sentinel errors for fncall. Use errors.Is to check.
var (
	ErrFunctionNotFound  = errors.New("function not found")
	ErrDuplicateFunction = errors.New("duplicate function name")
	ErrTimeout           = errors.New("function execution timeout")
	ErrValidation        = errors.New("validation failed")
	ErrNoRemoteTool      = errors.New("no remote tool configured")
	ErrNotApproved       = errors.New("function not approved")
)

// ClientError is an error that should be sent back to the model for self-correction
// (e.g. invalid JSON arguments, schema validation failure, bad enum value).
// Err optionally wraps a sentinel (e.g. ErrValidation) for errors.Is/errors.As.
type ClientError struct {
	Reason string
	// Retryable is set by the application. When true, the orchestrator
	// may retry the same call without changing arguments.
	Retryable bool
	Err       error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("invalid function arguments: %s", e.Reason)
}

func (e *ClientError) Unwrap() error { return e.Err }

// SystemError represents an internal failure (panic, unmarshalable result).
// The model should not see the underlying error message.
type SystemError struct {
	Err error
}

func (e *SystemError) Error() string {
	return "internal system error during function execution"
}

func (e *SystemError) Unwrap() error { return e.Err }

// IsClientError returns true if err is or wraps a ClientError.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// IsSystemError returns true if err is or wraps a SystemError.
func IsSystemError(err error) bool {
	var se *SystemError
	return errors.As(err, &se)
}

// callError carries the model-facing message of a dispatch failure while keeping
// the sentinel reachable through errors.Is.
type callError struct {
	msg string
	err error
}

func (e *callError) Error() string { return e.msg }
func (e *callError) Unwrap() error { return e.err }

func notFoundError(name string) error {
	return &callError{msg: fmt.Sprintf("Function '%s' not found", name), err: ErrFunctionNotFound}
}

func noRemoteError(name string) error {
	return &callError{msg: fmt.Sprintf("no remote tool configured for function '%s'", name), err: ErrNoRemoteTool}
}

func notApprovedError(name string) error {
	return &callError{msg: fmt.Sprintf("Function '%s' was not approved", name), err: ErrNotApproved}
}

func timeoutError(name string, cause error) error {
	return &callError{
		msg: fmt.Sprintf("Function '%s' timed out", name),
		err: errors.Join(ErrTimeout, cause),
	}
}

// wrapJSONParseError returns a ClientError for JSON unmarshal failures.
func wrapJSONParseError(err error) error {
	return &ClientError{Reason: "json parse error: " + err.Error()}
}

// panicError wraps a recovered panic value for SystemError.
type panicError struct{ p any }

func (e *panicError) Error() string {
	return "panic: " + fmt.Sprint(e.p)
}
