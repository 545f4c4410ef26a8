package tool

import (
	"fmt"
	"strings"

	"github.com/zero-day-ai/reconpipe/toolerr"
)

// RequireString returns input[key] as a non-empty string. Failures are
// ErrCodeInvalidInput errors attributed to toolName.
func RequireString(toolName string, input map[string]any, key string) (string, error) {
	v, ok := input[key]
	if !ok {
		return "", toolerr.New(toolName, "validate", toolerr.ErrCodeInvalidInput,
			fmt.Sprintf("missing required field %q", key)).WithCause(toolerr.ErrInvalidInput)
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", toolerr.New(toolName, "validate", toolerr.ErrCodeInvalidInput,
			fmt.Sprintf("field %q must be a non-empty string", key)).WithCause(toolerr.ErrInvalidInput)
	}
	return s, nil
}

// OptionalString returns input[key] when it is a string, else def.
func OptionalString(input map[string]any, key, def string) string {
	if s, ok := input[key].(string); ok {
		return s
	}
	return def
}
