// Package agent provides the message model and the plan-act-reflect loop used
// by single-agent workflows.
//
// Messages carry one of four roles: system, user, agent or tool. Unknown roles
// are rejected at construction. Run drives an Agent until it produces a final
// answer, and every tool call is captured as a tool.Observation.
//
//	exec := llm.NewScripted(`CALL ping {"host":"example.com"}`, "FINAL: example.com is up")
//	a := agent.NewLLMAgent(exec, tools)
//	tr, err := agent.Run(ctx, a, tools, "Check reachability of example.com")
package agent
