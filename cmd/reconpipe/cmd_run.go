package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/zero-day-ai/reconpipe/artifact"
	"github.com/zero-day-ai/reconpipe/gate"
	"github.com/zero-day-ai/reconpipe/killswitch"
	"github.com/zero-day-ai/reconpipe/pipeline"
	"github.com/zero-day-ai/reconpipe/recon"
	"github.com/zero-day-ai/reconpipe/stage"
	"github.com/zero-day-ai/reconpipe/trace"
)

const instrumentation = "github.com/zero-day-ai/reconpipe"

type runOptions struct {
	live      bool
	resume    string
	reportDir string
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run [target...]",
		Short: "Run recon, normalize, triage and report",
		Long: `Runs the four-stage pipeline. Without --live the recon stage replays
canned findings for the demo domains and never touches the network. With
--live exactly one root domain is required and its candidate subdomains are
probed over DNS, HTTPS and TLS.

Targets default to run.targets from the config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPipeline(cmd.Context(), args, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.live, "live", false, "probe the network instead of using synthetic recon")
	cmd.Flags().StringVar(&opts.resume, "resume", "", "resume the given run id from its last checkpoint")
	cmd.Flags().StringVar(&opts.reportDir, "report-dir", "", "save the markdown report here (default run.report_dir)")
	return cmd
}

func (a *app) runPipeline(ctx context.Context, args []string, opts runOptions) error {
	cfg := a.cfg
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	targets := args
	if len(targets) == 0 {
		targets = cfg.Run.Targets
	}

	var (
		log *artifact.Logger
		err error
	)
	if opts.resume != "" {
		log, err = artifact.OpenLogger(cfg.Run.Dir, opts.resume)
	} else {
		log, err = artifact.NewLogger(cfg.Run.Dir)
	}
	if err != nil {
		return err
	}
	defer log.Close()
	logger := a.logger.With(zap.String("run_id", log.RunID()))

	reconStage, closeRecon, err := a.reconStage(targets, opts.live, logger)
	if err != nil {
		return err
	}
	defer closeRecon()

	triage, err := cfg.TriageStage(stage.WithLogger(logger))
	if err != nil {
		return err
	}
	reportDir := opts.reportDir
	if reportDir == "" {
		reportDir = cfg.Run.ReportDir
	}
	stages := []stage.Stage{
		reconStage,
		stage.NewNormalize(stage.WithLogger(logger)),
		triage,
		stage.NewReport(reportDir, stage.WithLogger(logger)),
	}

	interactive := cfg.Gates.Confirm || (len(cfg.Gates.ApprovalStages) > 0 && !cfg.Gates.AutoApprove)
	gates, err := cfg.BuildGates(gate.ReaderPrompt(a.stdin, a.stdout))
	if err != nil {
		return err
	}

	store, err := cfg.CheckpointStore()
	if err != nil {
		return err
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	meter := otel.Meter(instrumentation)
	alerts, alertCloser, err := cfg.AlertHandler(logger, meter)
	if err != nil {
		return err
	}
	defer alertCloser.Close()

	sw := killswitch.New()
	var watchers sync.WaitGroup
	watchCtx, cancelWatch := context.WithCancel(ctx)
	if ec, ok := cfg.Etcd(); ok {
		w, err := killswitch.NewEtcdWatcher(ec, logger)
		if err != nil {
			cancelWatch()
			return err
		}
		defer w.Close()
		watchers.Add(1)
		go func() {
			defer watchers.Done()
			if err := w.Watch(watchCtx, sw); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("etcd kill switch stopped", zap.Error(err))
			}
		}()
	}
	if cfg.KillSwitch.Stdin {
		if interactive {
			logger.Warn("stdin kill switch disabled while gates prompt on stdin")
		} else {
			watchers.Add(1)
			go func() {
				defer watchers.Done()
				_ = killswitch.Monitor(watchCtx, a.stdin, sw, logger)
			}()
		}
	}
	defer func() {
		cancelWatch()
		watchers.Wait()
	}()

	pipeOpts := []pipeline.Option{
		pipeline.WithGates(gates...),
		pipeline.WithRetry(cfg.RetryPolicy()),
		pipeline.WithAlerts(alerts),
		pipeline.WithKillSwitch(sw),
		pipeline.WithLogger(logger),
		pipeline.WithTracer(otel.Tracer(instrumentation)),
		pipeline.WithMeter(meter),
	}
	if store != nil {
		pipeOpts = append(pipeOpts, pipeline.WithCheckpointStore(store))
	}
	if opts.resume != "" {
		pipeOpts = append(pipeOpts, pipeline.WithResume())
	}
	if len(targets) > 0 {
		pipeOpts = append(pipeOpts, pipeline.WithTargets(targets...))
	}

	var input map[string]any
	if len(targets) > 0 && !opts.live {
		list := make([]any, len(targets))
		for i, t := range targets {
			list[i] = t
		}
		input = map[string]any{"targets": list}
	}

	run, runErr := pipeline.New(log, stages, pipeOpts...).Run(ctx, input)
	if run != nil {
		if s, err := trace.Summarize(cfg.Run.Dir, run.ID); err == nil {
			_ = trace.Format(a.stdout, s)
		}
		if run.Final != nil {
			if path, ok := run.Final.Output["report_path"].(string); ok {
				fmt.Fprintf(a.stdout, "report: %s\n", path)
			}
		}
	}
	if runErr != nil {
		return runErr
	}
	if d, blocked := run.Blocked(); blocked {
		return fmt.Errorf("run %s blocked by %s gate: %s", run.ID, d.Gate, d.Reason)
	}
	return nil
}

// reconStage returns the synthetic stage, or a live one writing recon-v1
// records to recon.output. The returned func releases the output file.
func (a *app) reconStage(targets []string, live bool, logger *zap.Logger) (stage.Stage, func(), error) {
	if !live {
		return stage.NewSyntheticRecon(targets, stage.WithLogger(logger)), func() {}, nil
	}
	if len(targets) != 1 {
		return nil, nil, fmt.Errorf("live recon needs exactly one root domain, got %d", len(targets))
	}
	checker, err := a.cfg.Scope()
	if err != nil {
		return nil, nil, err
	}
	out, err := recon.OpenOutput(a.cfg.Recon.Output)
	if err != nil {
		return nil, nil, err
	}
	pl := recon.NewPipeline(recon.NewProber(a.cfg.ProberOptions(logger)...), out, recon.PipelineConfig{
		Scope:          checker,
		IncludeTLS:     a.cfg.Recon.IncludeTLS,
		IncludeContent: a.cfg.Recon.IncludeContent,
		Logger:         logger,
	})
	return recon.NewStage(pl, targets[0]), func() { _ = out.Close() }, nil
}
