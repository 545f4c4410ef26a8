package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zero-day-ai/reconpipe/llm"
	"github.com/zero-day-ai/reconpipe/tool"
)

// LLMAgent plans with a language model. The model is asked to answer with
// either
//
//	CALL <tool> <json object>
//
// to invoke a tool, or
//
//	FINAL: <answer>
//
// Any reply that is not a CALL is treated as a final answer.
type LLMAgent struct {
	exec  llm.Executor
	tools *tool.Set
}

// NewLLMAgent returns an agent that describes tools to exec when planning.
func NewLLMAgent(exec llm.Executor, tools *tool.Set) *LLMAgent {
	return &LLMAgent{exec: exec, tools: tools}
}

// Plan asks the model for the next step.
func (a *LLMAgent) Plan(ctx context.Context, history []Message) (*Message, error) {
	reply, err := a.exec.Execute(ctx, a.prompt(history))
	if err != nil {
		return nil, err
	}
	reply = strings.TrimSpace(reply)

	msg := mustMessage(RoleAgent, reply)
	name, input, ok, err := parseCall(reply)
	if err != nil {
		return nil, err
	}
	if ok {
		msg.Metadata = map[string]any{"tool": name, "input": input}
		return &msg, nil
	}
	msg.Content = strings.TrimSpace(strings.TrimPrefix(reply, "FINAL:"))
	msg.Metadata = map[string]any{"final": true}
	return &msg, nil
}

// Act invokes the tool named in the plan. Unknown tools produce a failed
// observation rather than an error so the model can correct itself.
func (a *LLMAgent) Act(ctx context.Context, plan Message, tools *tool.Set) (*tool.Observation, error) {
	name, ok := plan.Metadata["tool"].(string)
	if !ok {
		return nil, nil
	}
	input, _ := plan.Metadata["input"].(map[string]any)

	t, found := tools.Get(name)
	if !found {
		obs := tool.Observation{
			Tool:    name,
			Input:   input,
			Output:  map[string]any{},
			Success: false,
			Error:   fmt.Sprintf("unknown tool %q", name),
		}
		return &obs, nil
	}
	obs := tool.Observe(ctx, t, input)
	return &obs, nil
}

// Reflect records a one-line summary of the observation.
func (a *LLMAgent) Reflect(_ context.Context, obs tool.Observation) (*Message, error) {
	status := "succeeded"
	if !obs.Success {
		status = "failed"
	}
	msg := mustMessage(RoleAgent, fmt.Sprintf("Reflection: %s %s.", obs.Tool, status))
	return &msg, nil
}

func (a *LLMAgent) prompt(history []Message) string {
	var b strings.Builder
	b.WriteString("You are a reconnaissance assistant working inside an authorized scope.\n")
	if a.tools != nil && a.tools.Len() > 0 {
		b.WriteString("Available tools:\n")
		for _, name := range a.tools.Names() {
			t, _ := a.tools.Get(name)
			fmt.Fprintf(&b, "- %s: %s\n", name, t.Description())
		}
	}
	b.WriteString("Reply with exactly one line: CALL <tool> <json object> or FINAL: <answer>.\n\n")
	b.WriteString(Format(history))
	return b.String()
}

func parseCall(reply string) (name string, input map[string]any, ok bool, err error) {
	if !strings.HasPrefix(reply, "CALL ") {
		return "", nil, false, nil
	}
	rest := strings.TrimSpace(strings.TrimPrefix(reply, "CALL "))
	name, args, _ := strings.Cut(rest, " ")
	input = map[string]any{}
	if args = strings.TrimSpace(args); args != "" {
		if err := json.Unmarshal([]byte(args), &input); err != nil {
			return "", nil, false, fmt.Errorf("invalid tool input for %s: %w", name, err)
		}
	}
	return name, input, true, nil
}
