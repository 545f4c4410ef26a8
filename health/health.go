// Package health provides status values and reusable checks for tools and
// pipeline prerequisites: binaries on PATH, network reachability and a
// writable run directory.
package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/zero-day-ai/reconpipe/exec"
)

// State is the coarse health of a component.
type State string

const (
	StateHealthy   State = "healthy"
	StateDegraded  State = "degraded"
	StateUnhealthy State = "unhealthy"
)

func (s State) rank() int {
	switch s {
	case StateHealthy:
		return 0
	case StateDegraded:
		return 1
	default:
		return 2
	}
}

// Status is the result of a health check.
type Status struct {
	State   State          `json:"state"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Healthy returns a healthy status.
func Healthy(message string) Status {
	return Status{State: StateHealthy, Message: message}
}

// Degraded returns a degraded status.
func Degraded(message string, details map[string]any) Status {
	return Status{State: StateDegraded, Message: message, Details: details}
}

// Unhealthy returns an unhealthy status.
func Unhealthy(message string, details map[string]any) Status {
	return Status{State: StateUnhealthy, Message: message, Details: details}
}

// IsHealthy reports whether the state is healthy.
func (s Status) IsHealthy() bool { return s.State == StateHealthy }

// IsUnhealthy reports whether the state is unhealthy.
func (s Status) IsUnhealthy() bool { return s.State == StateUnhealthy }

// Combine merges statuses. The worst state wins and non-healthy messages are
// joined with "; ".
func Combine(statuses ...Status) Status {
	if len(statuses) == 0 {
		return Healthy("no checks")
	}
	worst := StateHealthy
	var msgs []string
	for _, s := range statuses {
		if s.State.rank() > worst.rank() {
			worst = s.State
		}
		if !s.IsHealthy() {
			msgs = append(msgs, s.Message)
		}
	}
	if worst == StateHealthy {
		return Healthy(fmt.Sprintf("%d checks passed", len(statuses)))
	}
	return Status{State: worst, Message: strings.Join(msgs, "; ")}
}

// Binary verifies that name resolves through PATH.
//
// Example:
//
//	if health.Binary("ping").IsUnhealthy() {
//	    // fall back to a TCP probe
//	}
func Binary(name string) Status {
	if name == "" {
		return Unhealthy("binary name cannot be empty", nil)
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return Unhealthy(fmt.Sprintf("binary '%s' not found in PATH", name),
			map[string]any{"binary": name, "error": err.Error()})
	}
	return Healthy(fmt.Sprintf("binary '%s' found at %s", name, path))
}

// Network dials address over TCP within timeout.
func Network(ctx context.Context, address string, timeout time.Duration) Status {
	if address == "" {
		return Unhealthy("address cannot be empty", nil)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return Unhealthy(fmt.Sprintf("cannot reach %s", address),
			map[string]any{"address": address, "error": err.Error()})
	}
	_ = conn.Close()
	return Healthy(fmt.Sprintf("%s reachable", address))
}

// WritableDir verifies that dir exists (creating it if needed) and accepts
// new files. The artifact logger relies on this for its audit guarantee.
func WritableDir(dir string) Status {
	if dir == "" {
		return Unhealthy("directory cannot be empty", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Unhealthy(fmt.Sprintf("cannot create %s", dir), map[string]any{"error": err.Error()})
	}
	f, err := os.CreateTemp(dir, ".healthcheck-*")
	if err != nil {
		return Unhealthy(fmt.Sprintf("%s is not writable", dir), map[string]any{"error": err.Error()})
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return Healthy(fmt.Sprintf("%s is writable", dir))
}
