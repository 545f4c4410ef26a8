package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/reconpipe/trace"
)

func newTraceCmd(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "trace [run-id]",
		Short: "List runs or summarise one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = a.cfg.Run.Dir
			}
			if len(args) == 0 {
				ids, err := trace.List(dir)
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					fmt.Fprintf(a.stdout, "no runs in %s\n", dir)
				}
				for _, id := range ids {
					fmt.Fprintln(a.stdout, id)
				}
				return nil
			}
			s, err := trace.Summarize(dir, args[0])
			if err != nil {
				return err
			}
			return trace.Format(a.stdout, s)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "run directory (default run.dir)")
	return cmd
}
