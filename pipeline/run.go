package pipeline

import (
	"time"

	"github.com/zero-day-ai/reconpipe/artifact"
	"github.com/zero-day-ai/reconpipe/gate"
)

// State is the lifecycle position of a run.
type State string

const (
	StateNotStarted  State = "not_started"
	StateRunning     State = "running"
	StateGateBlocked State = "gate_blocked"
	StateFailed      State = "failed"
	StateCompleted   State = "completed"
	StateCancelled   State = "cancelled"
)

// String returns the state name.
func (s State) String() string { return string(s) }

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateGateBlocked, StateFailed, StateCompleted, StateCancelled:
		return true
	default:
		return false
	}
}

// Run is the record of one pipeline execution. It only grows while the run
// is in progress and is not modified once terminal.
type Run struct {
	ID    string `json:"run_id"`
	State State  `json:"state"`

	// Stages lists the stages that produced an artifact in this execution,
	// in order. Stages skipped on resume are not included.
	Stages []string `json:"stages"`

	// Final is the last successful artifact.
	Final *artifact.Artifact `json:"final,omitempty"`

	Decisions []gate.Decision `json:"decisions,omitempty"`

	// Checkpoint is the index of the last completed stage, or -1.
	Checkpoint int `json:"checkpoint"`

	// ResumedFrom is the checkpoint index a resumed run started after, or -1.
	ResumedFrom int `json:"resumed_from"`

	FailedStage string `json:"failed_stage,omitempty"`
	Reason      string `json:"reason,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

func newRun(id string) *Run {
	return &Run{ID: id, State: StateNotStarted, Stages: []string{}, Checkpoint: -1, ResumedFrom: -1}
}

// Duration is the wall time of a finished run.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Blocked returns the decision that stopped a gate-blocked run.
func (r *Run) Blocked() (gate.Decision, bool) {
	if r.State != StateGateBlocked {
		return gate.Decision{}, false
	}
	for i := len(r.Decisions) - 1; i >= 0; i-- {
		if !r.Decisions[i].Allowed {
			return r.Decisions[i], true
		}
	}
	return gate.Decision{}, false
}
