package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/reconpipe/agent"
	"github.com/zero-day-ai/reconpipe/llm"
)

func newAgentCmd(a *app) *cobra.Command {
	var maxSteps int
	cmd := &cobra.Command{
		Use:   "agent <task>",
		Short: "Let a language model drive the toolkit for one task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxSteps <= 0 {
				maxSteps = a.cfg.LLM.MaxSteps
			}
			exec, err := llm.NewFromConfig(a.cfg.Provider(),
				llm.WithLogger(a.logger),
				llm.WithRetry(a.cfg.RetryPolicy()))
			if err != nil {
				return err
			}
			tools, err := a.toolSet()
			if err != nil {
				return err
			}

			tr, err := agent.Run(cmd.Context(), agent.NewLLMAgent(exec, tools), tools, strings.Join(args, " "),
				agent.WithMaxSteps(maxSteps),
				agent.WithLogger(a.logger))
			if err != nil {
				return err
			}
			for _, obs := range tr.Observations {
				status := "ok"
				if !obs.Success {
					status = "failed"
				}
				fmt.Fprintf(a.stdout, "[%s] %s\n", obs.Tool, status)
			}
			fmt.Fprintln(a.stdout, tr.Final)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "plan-act-reflect cycles (default llm.max_steps)")
	return cmd
}
