package toolerr

// ErrorClass categorizes errors by their nature so callers can decide whether
// a retry makes sense.
type ErrorClass string

const (
	// ErrorClassInfrastructure indicates environment or setup issues
	// such as a missing binary or denied permissions.
	ErrorClassInfrastructure ErrorClass = "infrastructure"

	// ErrorClassSemantic indicates input or configuration issues
	// such as a bad target or an out-of-scope host.
	ErrorClassSemantic ErrorClass = "semantic"

	// ErrorClassTransient indicates temporary failures that may resolve
	// on their own, for example timeouts and rate limits.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassPermanent indicates non-recoverable failures.
	ErrorClassPermanent ErrorClass = "permanent"
)

// DefaultClassForCode returns the default error class for a given error code.
func DefaultClassForCode(code string) ErrorClass {
	switch code {
	case ErrCodeBinaryNotFound, ErrCodePermissionDenied:
		return ErrorClassInfrastructure
	case ErrCodeInvalidInput, ErrCodeParseError, ErrCodeScopeViolation:
		return ErrorClassSemantic
	case ErrCodeTimeout, ErrCodeNetworkError, ErrCodeRateLimited:
		return ErrorClassTransient
	default:
		return ErrorClassPermanent
	}
}
