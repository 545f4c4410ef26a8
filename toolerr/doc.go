// Package toolerr provides structured error types for pipeline tools.
//
// # Overview
//
// Every concrete tool reports failures as an *Error carrying the tool name,
// the operation that failed, a standard code and a class. The class drives
// retry decisions in the resilience package: transient errors are retried,
// everything else is surfaced as a failed observation.
//
// # Error Codes
//
//   - ErrCodeBinaryNotFound: Required binary not in PATH
//   - ErrCodeExecutionFailed: Command execution failed
//   - ErrCodeTimeout: Operation timed out
//   - ErrCodeParseError: Failed to parse output or data
//   - ErrCodeInvalidInput: Invalid input parameters
//   - ErrCodeNetworkError: Network-related error
//   - ErrCodePermissionDenied: Insufficient permissions
//   - ErrCodeScopeViolation: Target outside the authorized scope
//   - ErrCodeRateLimited: Local or remote rate limit hit
//   - ErrCodeNotImplemented: Tool has no implementation
//
// # Usage
//
//	err := toolerr.New("ping", "probe", toolerr.ErrCodeTimeout, "no reply").
//	    WithCause(ctx.Err()).
//	    WithDetails(map[string]any{"host": host})
//
//	if toolerr.IsTransient(err) {
//	    // retry
//	}
package toolerr
