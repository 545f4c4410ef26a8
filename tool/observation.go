package tool

import (
	"context"
	"time"
)

// Observation is the recorded result of one tool invocation.
// Success is false exactly when Error is set; Output may then be partial or
// empty.
type Observation struct {
	Tool      string         `json:"tool"`
	Input     map[string]any `json:"input"`
	Output    map[string]any `json:"output"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Observe invokes t and records the outcome. It never returns an error: a
// failed call becomes Success=false with the error text.
func Observe(ctx context.Context, t Tool, input map[string]any) Observation {
	obs, _ := Call(ctx, t, input)
	return obs
}

// Call is Observe that also hands back the tool's error unchanged, for
// callers that classify or retry it.
func Call(ctx context.Context, t Tool, input map[string]any) (Observation, error) {
	if input == nil {
		input = map[string]any{}
	}
	out, err := t.Invoke(ctx, input)
	if out == nil {
		out = map[string]any{}
	}
	obs := Observation{
		Tool:      t.Name(),
		Input:     input,
		Output:    out,
		Success:   err == nil,
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		obs.Error = err.Error()
	}
	return obs, err
}

// Record returns the observation as a plain JSON object for embedding in an
// artifact's output.
func (o Observation) Record() map[string]any {
	rec := map[string]any{
		"tool":      o.Tool,
		"input":     o.Input,
		"output":    o.Output,
		"success":   o.Success,
		"timestamp": o.Timestamp.Format(time.RFC3339Nano),
	}
	if o.Error != "" {
		rec["error"] = o.Error
	}
	return rec
}
