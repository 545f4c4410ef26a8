package tool

import (
	"context"
	"errors"

	"github.com/zero-day-ai/reconpipe/health"
	"github.com/zero-day-ai/reconpipe/toolerr"
)

// ErrNotImplemented is the cause of every error returned by Unimplemented.
var ErrNotImplemented = errors.New("tool: not implemented")

// Tool is a single capability with an invoke(input) -> output contract.
//
// Tools are stateless across calls: they may read external state such as the
// network but keep nothing between invocations. Retries and overall timeouts
// belong to the caller.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool does.
	Description() string

	// Invoke runs the tool. Input and output are plain JSON objects.
	// Failures should be *toolerr.Error values.
	Invoke(ctx context.Context, input map[string]any) (map[string]any, error)
}

// HealthChecker is implemented by tools with external dependencies.
type HealthChecker interface {
	Health(ctx context.Context) health.Status
}

// Health returns t's health, or healthy when t has no dependencies to check.
func Health(ctx context.Context, t Tool) health.Status {
	if hc, ok := t.(HealthChecker); ok {
		return hc.Health(ctx)
	}
	return health.Healthy("no external dependencies")
}

// Unimplemented is the base form of a tool. Embed it to satisfy Tool while a
// concrete Invoke is being written; invoking it directly always fails.
type Unimplemented struct {
	ToolName        string
	ToolDescription string
}

// Name returns the configured name.
func (u Unimplemented) Name() string { return u.ToolName }

// Description returns the configured description.
func (u Unimplemented) Description() string { return u.ToolDescription }

// Invoke always fails with ErrNotImplemented.
func (u Unimplemented) Invoke(context.Context, map[string]any) (map[string]any, error) {
	return nil, toolerr.New(u.ToolName, "invoke", toolerr.ErrCodeNotImplemented,
		"tool must implement Invoke").WithCause(ErrNotImplemented)
}
