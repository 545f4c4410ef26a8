package toolerr

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Standard error codes used across tools for consistent error reporting.
const (
	// ErrCodeBinaryNotFound indicates a required binary is not in PATH
	ErrCodeBinaryNotFound = "BINARY_NOT_FOUND"

	// ErrCodeExecutionFailed indicates command execution failed
	ErrCodeExecutionFailed = "EXECUTION_FAILED"

	// ErrCodeTimeout indicates an operation timed out
	ErrCodeTimeout = "TIMEOUT"

	// ErrCodeParseError indicates failure to parse output or data
	ErrCodeParseError = "PARSE_ERROR"

	// ErrCodeInvalidInput indicates invalid input parameters
	ErrCodeInvalidInput = "INVALID_INPUT"

	// ErrCodeNetworkError indicates a network-related error
	ErrCodeNetworkError = "NETWORK_ERROR"

	// ErrCodePermissionDenied indicates insufficient permissions
	ErrCodePermissionDenied = "PERMISSION_DENIED"

	// ErrCodeScopeViolation indicates the target is outside the authorized scope
	ErrCodeScopeViolation = "SCOPE_VIOLATION"

	// ErrCodeRateLimited indicates a rate limit prevented the call
	ErrCodeRateLimited = "RATE_LIMITED"

	// ErrCodeNotImplemented indicates the tool has no implementation
	ErrCodeNotImplemented = "NOT_IMPLEMENTED"
)

// Error is a structured error type for tool operations.
type Error struct {
	// Tool is the name of the tool that generated the error
	Tool string `json:"tool"`

	// Operation is the specific operation that failed
	Operation string `json:"operation"`

	// Code is a standard error code constant
	Code string `json:"code"`

	// Message is a human-readable error message
	Message string `json:"message,omitempty"`

	// Details contains additional context as key-value pairs
	Details map[string]any `json:"details,omitempty"`

	// Cause is the underlying error
	Cause error `json:"-"`

	// Class categorizes the error; New derives it from Code
	Class ErrorClass `json:"class"`
}

// New creates a new structured tool error. The class is derived from the code
// and can be overridden with WithClass.
//
// Example:
//
//	err := toolerr.New("parse_nmap", "parse", toolerr.ErrCodeParseError, "no hosts in output")
func New(tool, operation, code, message string) *Error {
	return &Error{
		Tool:      tool,
		Operation: operation,
		Code:      code,
		Message:   message,
		Class:     DefaultClassForCode(code),
	}
}

// WithCause adds an underlying error and returns the same instance.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithDetails merges details into the error and returns the same instance.
func (e *Error) WithDetails(details map[string]any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any, len(details))
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithClass overrides the error classification.
func (e *Error) WithClass(class ErrorClass) *Error {
	e.Class = class
	return e
}

// Error formats the error as "tool [operation/code]: message: cause".
//
// Examples:
//   - "ping [probe/TIMEOUT]: no reply from host"
//   - "ping [probe/EXECUTION_FAILED]: command failed: exit status 2"
func (e *Error) Error() string {
	parts := []string{fmt.Sprintf("%s [%s/%s]", e.Tool, e.Operation, e.Code)}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports equality on Tool, Operation and Code. Empty fields on the target
// act as wildcards, so &Error{Code: ErrCodeTimeout} matches any timeout.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return (t.Tool == "" || e.Tool == t.Tool) &&
		(t.Operation == "" || e.Operation == t.Operation) &&
		(t.Code == "" || e.Code == t.Code)
}

// Code returns the code of the first *Error in err's chain, or "".
func Code(err error) string {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// ClassOf returns the class of err. Errors that are not *Error are classified
// transient when they are network timeouts and permanent otherwise.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ""
	}
	var te *Error
	if errors.As(err, &te) {
		if te.Class != "" {
			return te.Class
		}
		return DefaultClassForCode(te.Code)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrorClassTransient
	}
	return ErrorClassPermanent
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return ClassOf(err) == ErrorClassTransient
}

// Sentinel errors for common scenarios
var (
	// ErrBinaryNotFound is returned when a required binary is not in PATH
	ErrBinaryNotFound = errors.New("binary not found")

	// ErrTimeout is returned when an operation times out
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")
)
