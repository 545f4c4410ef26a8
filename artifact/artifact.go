package artifact

import (
	"errors"
	"fmt"
	"time"
)

// SchemaPipeline tags stage artifacts written by the orchestrator.
const SchemaPipeline = "pipeline-v1"

var (
	// ErrMissingError is returned when a failed artifact carries no error text.
	ErrMissingError = errors.New("artifact: success=false requires an error")

	// ErrMissingStage is returned when an artifact has no stage name.
	ErrMissingStage = errors.New("artifact: stage is required")
)

// now is replaced in tests.
var now = func() time.Time { return time.Now().UTC() }

// Artifact is the complete, self-describing output of one pipeline stage.
//
// Input holds the previous stage's output at the time this stage ran and
// Output holds what this stage produced. Both must be plain JSON values (see
// ValidateValue). Once written to a Logger an Artifact is never modified.
type Artifact struct {
	Schema    string         `json:"schema"`
	RunID     string         `json:"run_id"`
	Stage     string         `json:"stage"`
	Timestamp time.Time      `json:"timestamp"`
	Input     map[string]any `json:"input"`
	Output    map[string]any `json:"output"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
}

// New creates a successful artifact for stage.
func New(runID, stage string, input, output map[string]any) *Artifact {
	if input == nil {
		input = map[string]any{}
	}
	if output == nil {
		output = map[string]any{}
	}
	return &Artifact{
		Schema:    SchemaPipeline,
		RunID:     runID,
		Stage:     stage,
		Timestamp: now(),
		Input:     input,
		Output:    output,
		Success:   true,
	}
}

// Next chains a successful artifact onto prev: it inherits the run id and
// snapshots prev's output as its input. prev may be nil for the first stage.
func Next(prev *Artifact, stage string, output map[string]any) *Artifact {
	runID, input := chain(prev)
	return New(runID, stage, input, output)
}

// Failed builds the failure artifact for stage, chained onto prev.
func Failed(prev *Artifact, stage string, err error) *Artifact {
	runID, input := chain(prev)
	a := New(runID, stage, input, nil)
	a.Success = false
	a.Error = "unknown error"
	if err != nil {
		a.Error = err.Error()
	}
	return a
}

func chain(prev *Artifact) (string, map[string]any) {
	if prev == nil {
		return "", map[string]any{}
	}
	return prev.RunID, prev.Output
}

// Validate checks the artifact invariants: a stage name, plain-JSON input and
// output, and an error message on failure.
func (a *Artifact) Validate() error {
	if a.Stage == "" {
		return ErrMissingStage
	}
	if !a.Success && a.Error == "" {
		return ErrMissingError
	}
	if err := ValidateValue(a.Input); err != nil {
		return fmt.Errorf("input: %w", err)
	}
	if err := ValidateValue(a.Output); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	return nil
}
