// Package stage defines the Stage contract and the built-in stages of the
// recon demo pipeline: synthetic recon, normalize, triage and report, plus a
// ToolStage that wraps any tool.Tool.
//
// Stages only transform artifacts. Ordering, gating, retries and logging are
// the orchestrator's job (see package pipeline).
package stage
