package toolkit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/zero-day-ai/reconpipe/exec"
	"github.com/zero-day-ai/reconpipe/health"
	"github.com/zero-day-ai/reconpipe/tool"
	"github.com/zero-day-ai/reconpipe/toolerr"
)

// DefaultPingTimeout bounds one ping.
const DefaultPingTimeout = 3 * time.Second

// Ping sends one ICMP echo with the system ping binary. A host that does not
// answer, or answers too late, is unreachable rather than an error.
type Ping struct {
	Binary  string
	Timeout time.Duration
}

// NewPing returns a ping tool with the defaults.
func NewPing() *Ping {
	return &Ping{Binary: "ping", Timeout: DefaultPingTimeout}
}

// Name implements tool.Tool.
func (p *Ping) Name() string { return "ping" }

// Description implements tool.Tool.
func (p *Ping) Description() string { return "Checks if a host is reachable." }

// Invoke takes {"host"} and returns {"reachable"}.
func (p *Ping) Invoke(ctx context.Context, in map[string]any) (map[string]any, error) {
	host, err := tool.RequireString(p.Name(), in, "host")
	if err != nil {
		return nil, err
	}
	host = strings.TrimSpace(host)
	if strings.HasPrefix(host, "-") || strings.ContainsAny(host, " \t") {
		return nil, toolerr.New(p.Name(), "validate", toolerr.ErrCodeInvalidInput,
			"host must be a hostname or IP address").WithCause(toolerr.ErrInvalidInput)
	}

	res, err := exec.Run(ctx, exec.Command{
		Name:    p.Binary,
		Args:    []string{"-c", "1", host},
		Timeout: p.Timeout,
	})
	switch {
	case errors.Is(err, toolerr.ErrTimeout):
		return map[string]any{"reachable": false}, nil
	case err != nil:
		return nil, err
	}
	return map[string]any{"reachable": res.Success()}, nil
}

// Health reports whether the ping binary is installed.
func (p *Ping) Health(context.Context) health.Status {
	return health.Binary(p.Binary)
}
