package stage

import (
	"context"

	"go.uber.org/zap"

	"github.com/zero-day-ai/reconpipe/artifact"
	"github.com/zero-day-ai/reconpipe/tool"
)

// InputFunc derives tool input from the previous stage's output.
type InputFunc func(prev map[string]any) map[string]any

// ToolStage runs a single tool. The output is the tool's output plus an
// "observation" record of the call.
type ToolStage struct {
	base
	name         string
	tool         tool.Tool
	inputFn      InputFunc
	allowFailure bool
}

// NewToolStage wraps t. A nil inputFn passes the previous output through.
func NewToolStage(name string, t tool.Tool, inputFn InputFunc, opts ...Option) *ToolStage {
	if name == "" {
		name = t.Name()
	}
	if inputFn == nil {
		inputFn = func(prev map[string]any) map[string]any { return prev }
	}
	return &ToolStage{base: newBase(opts), name: name, tool: t, inputFn: inputFn}
}

// AllowFailure records a failed tool call as a successful stage instead of
// failing it.
func (s *ToolStage) AllowFailure() *ToolStage {
	s.allowFailure = true
	return s
}

// Name implements Stage.
func (s *ToolStage) Name() string { return s.name }

// Run implements Stage. Unless AllowFailure is set, a failed call returns the
// tool's error so the caller can retry it.
func (s *ToolStage) Run(ctx context.Context, prev *artifact.Artifact) (*artifact.Artifact, error) {
	obs, err := tool.Call(ctx, s.tool, s.inputFn(input(prev)))
	s.logger.Debug("tool invoked",
		zap.String("stage", s.name),
		zap.String("tool", obs.Tool),
		zap.Bool("success", obs.Success))

	if err != nil && !s.allowFailure {
		return nil, err
	}

	out := make(map[string]any, len(obs.Output)+1)
	for k, v := range obs.Output {
		out[k] = v
	}
	out["observation"] = obs.Record()
	return artifact.Next(prev, s.name, out), nil
}
