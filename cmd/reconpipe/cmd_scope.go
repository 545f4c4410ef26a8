package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/reconpipe/scope"
)

func newScopeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scope",
		Short: "Inspect the scope file",
	}

	var file string
	check := &cobra.Command{
		Use:   "check <host>...",
		Short: "Report whether each host is in scope",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = a.cfg.Gates.ScopeFile
			}
			if file == "" {
				return errors.New("no scope file: pass --file or set gates.scope_file")
			}
			doc, err := scope.Load(file)
			if err != nil {
				return err
			}
			checker, err := scope.NewChecker(doc)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			blocked := 0
			for _, host := range args {
				d := checker.Check(host)
				verdict := "allowed"
				if !d.Allowed {
					verdict = "blocked"
					blocked++
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Host, verdict, d.Reason)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if blocked > 0 {
				return fmt.Errorf("%d of %d hosts out of scope", blocked, len(args))
			}
			return nil
		},
	}
	check.Flags().StringVarP(&file, "file", "f", "", "scope file (default gates.scope_file)")
	cmd.AddCommand(check)
	return cmd
}
