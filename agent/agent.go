package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zero-day-ai/reconpipe/tool"
)

// ErrStepLimit is returned when the loop runs out of steps before the agent
// produces a final answer.
var ErrStepLimit = errors.New("agent: step limit reached")

// Agent implements the plan-act-reflect cycle.
type Agent interface {
	// Plan decides the next step from the conversation so far. A nil message
	// means there is nothing left to do.
	Plan(ctx context.Context, history []Message) (*Message, error)

	// Act carries out plan with the available tools. A nil observation means
	// the plan was a final answer and no tool was called.
	Act(ctx context.Context, plan Message, tools *tool.Set) (*tool.Observation, error)

	// Reflect turns an observation into a message for the history. It may
	// return nil.
	Reflect(ctx context.Context, obs tool.Observation) (*Message, error)
}

// Transcript is the record of one loop run.
type Transcript struct {
	Messages     []Message          `json:"messages"`
	Observations []tool.Observation `json:"observations"`
	Steps        int                `json:"steps"`
	Final        string             `json:"final,omitempty"`
}

type loopConfig struct {
	maxSteps     int
	memory       *Memory
	systemPrompt string
	logger       *zap.Logger
}

// LoopOption configures Run.
type LoopOption func(*loopConfig)

// WithMaxSteps bounds the number of plan-act-reflect cycles (default 5).
func WithMaxSteps(n int) LoopOption {
	return func(c *loopConfig) {
		if n > 0 {
			c.maxSteps = n
		}
	}
}

// WithMemory runs the loop on an existing conversation buffer.
func WithMemory(m *Memory) LoopOption {
	return func(c *loopConfig) { c.memory = m }
}

// WithSystemPrompt prepends a system message.
func WithSystemPrompt(p string) LoopOption {
	return func(c *loopConfig) { c.systemPrompt = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) LoopOption {
	return func(c *loopConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Run drives a through plan, act and reflect until it gives a final answer,
// Plan returns nil, or the step limit is hit. Tool results enter the history
// as tool-role messages.
func Run(ctx context.Context, a Agent, tools *tool.Set, task string, opts ...LoopOption) (*Transcript, error) {
	cfg := loopConfig{maxSteps: 5, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.memory == nil {
		cfg.memory = NewMemory(0)
	}
	if tools == nil {
		tools, _ = tool.NewSet()
	}

	mem := cfg.memory
	if cfg.systemPrompt != "" {
		mem.Add(mustMessage(RoleSystem, cfg.systemPrompt))
	}
	mem.Add(mustMessage(RoleUser, task))

	tr := &Transcript{}
	finish := func(err error) (*Transcript, error) {
		tr.Messages = mem.Messages()
		return tr, err
	}

	for tr.Steps < cfg.maxSteps {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		tr.Steps++

		plan, err := a.Plan(ctx, mem.Messages())
		if err != nil {
			return finish(fmt.Errorf("plan: %w", err))
		}
		if plan == nil {
			return finish(nil)
		}
		mem.Add(*plan)

		obs, err := a.Act(ctx, *plan, tools)
		if err != nil {
			return finish(fmt.Errorf("act: %w", err))
		}
		if obs == nil {
			tr.Final = plan.Content
			return finish(nil)
		}
		tr.Observations = append(tr.Observations, *obs)
		cfg.logger.Debug("tool observed",
			zap.String("tool", obs.Tool),
			zap.Bool("success", obs.Success),
			zap.Int("step", tr.Steps))
		mem.Add(observationMessage(*obs))

		reflection, err := a.Reflect(ctx, *obs)
		if err != nil {
			return finish(fmt.Errorf("reflect: %w", err))
		}
		if reflection != nil {
			mem.Add(*reflection)
		}
	}
	return finish(ErrStepLimit)
}

func observationMessage(obs tool.Observation) Message {
	content := fmt.Sprintf("%s -> %v", obs.Tool, obs.Output)
	if !obs.Success {
		content = fmt.Sprintf("%s failed: %s", obs.Tool, obs.Error)
	}
	m := mustMessage(RoleTool, content)
	m.Metadata = map[string]any{"tool": obs.Tool, "success": obs.Success}
	return m
}
