package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/reconpipe/recon"
	"github.com/zero-day-ai/reconpipe/tool"
	"github.com/zero-day-ai/reconpipe/toolkit"
)

// toolSet returns the built-in toolkit plus the recon probes, restricted to
// the configured scope.
func (a *app) toolSet() (*tool.Set, error) {
	set, err := toolkit.NewSet()
	if err != nil {
		return nil, err
	}
	checker, err := a.cfg.Scope()
	if err != nil {
		return nil, err
	}
	for _, t := range recon.Tools(recon.NewProber(a.cfg.ProberOptions(a.logger)...), checker) {
		if err := set.Add(t); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func newToolsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List available tools and their health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := a.toolSet()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tHEALTH\tDESCRIPTION")
			for _, name := range set.Names() {
				t, _ := set.Get(name)
				st := tool.Health(cmd.Context(), t)
				fmt.Fprintf(tw, "%s\t%s\t%s\n", name, st.State, t.Description())
			}
			return tw.Flush()
		},
	}
}
