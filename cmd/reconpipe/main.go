// Command reconpipe runs gated reconnaissance pipelines and inspects their
// artifact logs.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zero-day-ai/reconpipe/config"
)

// app holds state shared by every subcommand.
type app struct {
	configPath string
	verbose    bool

	logger *zap.Logger
	cfg    *config.Config

	stdin  io.Reader
	stdout io.Writer
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "reconpipe",
		Short: "Gated reconnaissance pipeline",
		Long: `reconpipe runs recon, normalize, triage and report stages against
authorised targets. Every stage passes the configured safety gates first and
every artifact is appended to a JSONL log under the run directory.

Type STOP on stdin, or write STOP to the configured etcd key, to halt a run
before its next stage.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.logger == nil {
				zc := zap.NewProductionConfig()
				if a.verbose {
					zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
				}
				logger, err := zc.Build()
				if err != nil {
					return fmt.Errorf("failed to initialize logger: %w", err)
				}
				a.logger = logger
			}
			if a.cfg == nil {
				cfg, err := config.Load(a.configPath)
				if err != nil {
					return err
				}
				a.cfg = cfg
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newRunCmd(a),
		newReconCmd(a),
		newScopeCmd(a),
		newTraceCmd(a),
		newToolsCmd(a),
		newAgentCmd(a),
		newStopCmd(a),
	)
	return root
}

func main() {
	a := &app{stdin: os.Stdin, stdout: os.Stdout}
	if err := newRootCmd(a).Execute(); err != nil {
		os.Exit(1)
	}
}
