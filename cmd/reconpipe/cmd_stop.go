package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/reconpipe/killswitch"
)

func newStopCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop [reason]",
		Short: "Halt every run watching the etcd kill switch",
		RunE: func(cmd *cobra.Command, args []string) error {
			ec, ok := a.cfg.Etcd()
			if !ok {
				return errors.New("no etcd endpoints: set killswitch.etcd_endpoints")
			}
			w, err := killswitch.NewEtcdWatcher(ec, a.logger)
			if err != nil {
				return err
			}
			defer w.Close()
			if err := w.Signal(cmd.Context(), strings.Join(args, " ")); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "stop written to %s\n", w.Key())
			return nil
		},
	}
}
