package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/zero-day-ai/reconpipe/artifact"
	"github.com/zero-day-ai/reconpipe/gate"
	"github.com/zero-day-ai/reconpipe/killswitch"
	"github.com/zero-day-ai/reconpipe/resilience"
	"github.com/zero-day-ai/reconpipe/stage"
)

// InputStage names the artifact that records the caller's initial input.
const InputStage = "input"

// Event record types written alongside artifacts.
const (
	EventRunStarted  = "run_started"
	EventRunFinished = "run_finished"
	EventGateBlocked = "gate_blocked"
	EventKilled      = "killed"
)

// ErrNoArtifact is returned when a stage succeeds without producing an artifact.
var ErrNoArtifact = errors.New("pipeline: stage returned no artifact")

// Orchestrator runs a fixed list of stages against one artifact log.
type Orchestrator struct {
	log    *artifact.Logger
	stages []stage.Stage

	gates      []gate.Gate
	policy     resilience.Policy
	store      resilience.CheckpointStore
	alerts     *resilience.AlertHandler
	killSwitch *killswitch.Switch
	targets    []string
	resume     bool

	logger *zap.Logger
	tracer trace.Tracer
	meter  metric.Meter
	now    func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithGates sets the gates evaluated before every stage, in order.
func WithGates(gates ...gate.Gate) Option {
	return func(o *Orchestrator) { o.gates = append(o.gates, gates...) }
}

// WithRetry sets the retry policy for stages. The default is a single attempt.
func WithRetry(p resilience.Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithCheckpointStore saves a checkpoint after every completed stage.
func WithCheckpointStore(s resilience.CheckpointStore) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithAlerts reports stage failures to h.
func WithAlerts(h *resilience.AlertHandler) Option {
	return func(o *Orchestrator) { o.alerts = h }
}

// WithKillSwitch stops the run before the next stage once sw trips.
func WithKillSwitch(sw *killswitch.Switch) Option {
	return func(o *Orchestrator) { o.killSwitch = sw }
}

// WithTargets sets the hosts gated for stages that do not report their own.
func WithTargets(targets ...string) Option {
	return func(o *Orchestrator) { o.targets = append(o.targets, targets...) }
}

// WithResume continues the logger's run after its latest checkpoint. It
// requires a checkpoint store.
func WithResume() Option {
	return func(o *Orchestrator) { o.resume = true }
}

// WithLogger sets the operational logger. The artifact log is separate.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracer records a span per run and per stage.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithMeter records stage duration, outcome and gate block metrics.
func WithMeter(m metric.Meter) Option {
	return func(o *Orchestrator) { o.meter = m }
}

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New returns an orchestrator that writes to log. The caller owns log and
// closes it after the run.
func New(log *artifact.Logger, stages []stage.Stage, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		log:    log,
		stages: stages,
		policy: resilience.Policy{MaxAttempts: 1},
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StageNames returns the configured stage order.
func (o *Orchestrator) StageNames() []string {
	names := make([]string, len(o.stages))
	for i, s := range o.stages {
		names[i] = s.Name()
	}
	return names
}

// Run executes the stages in order. input, when non-nil, is logged as the
// "input" artifact and becomes the first stage's previous artifact.
//
// A gate block ends the run in GateBlocked with a nil error. A stage that
// exhausts its retries ends it in Failed and returns the stage error. The kill
// switch or ctx ends it in Cancelled. A logger write failure is returned as is
// and also ends the run in Failed.
func (o *Orchestrator) Run(ctx context.Context, input map[string]any) (*Run, error) {
	if o.log == nil {
		return nil, errors.New("pipeline: logger is required")
	}
	if o.resume && o.store == nil {
		return nil, errors.New("pipeline: resume requires a checkpoint store")
	}
	tel, err := newTelemetry(o.tracer, o.meter)
	if err != nil {
		return nil, err
	}

	run := newRun(o.log.RunID())
	run.StartedAt = o.now()
	run.State = StateRunning
	logger := o.logger.With(zap.String("run_id", run.ID))

	ctx, span := tel.startRun(ctx, run.ID, len(o.stages))
	defer tel.endRun(span, run)

	if err := o.event(EventRunStarted, run.ID, map[string]any{"stages": stringsToAny(o.StageNames())}); err != nil {
		return o.finish(run, StateFailed, "", err.Error()), err
	}
	logger.Info("run started", zap.Strings("stages", o.StageNames()))

	var prev *artifact.Artifact
	start := 0
	if o.resume {
		cp, err := o.store.Load(ctx, run.ID)
		switch {
		case err == nil:
			if cp.Index >= len(o.stages) || cp.Stage != o.stages[cp.Index].Name() {
				err := fmt.Errorf("pipeline: checkpoint stage %q at %d does not match the pipeline", cp.Stage, cp.Index)
				return o.finish(run, StateFailed, cp.Stage, err.Error()), err
			}
			prev = cp.Artifact
			start = cp.Index + 1
			run.Checkpoint = cp.Index
			run.ResumedFrom = cp.Index
			run.Final = cp.Artifact
			logger.Info("resuming from checkpoint", zap.String("stage", cp.Stage), zap.Int("index", cp.Index))
		case errors.Is(err, resilience.ErrNoCheckpoint):
			logger.Info("no checkpoint, starting from the first stage")
		default:
			err = fmt.Errorf("pipeline: load checkpoint: %w", err)
			return o.finish(run, StateFailed, "", err.Error()), err
		}
	}

	if input != nil && start == 0 {
		in := artifact.New(run.ID, InputStage, nil, input)
		if err := o.log.WriteArtifact(in); err != nil {
			err = fmt.Errorf("pipeline: log input: %w", err)
			return o.finish(run, StateFailed, InputStage, err.Error()), err
		}
		prev = in
	}

	for i := start; i < len(o.stages); i++ {
		s := o.stages[i]
		name := s.Name()

		if err := o.stopped(ctx); err != nil {
			logger.Warn("run cancelled", zap.String("before_stage", name), zap.Error(err))
			if werr := o.event(EventKilled, run.ID, map[string]any{"stage": name, "reason": err.Error()}); werr != nil {
				logger.Error("failed to log cancellation", zap.Error(werr))
			}
			return o.finish(run, StateCancelled, name, err.Error()), err
		}

		if blocked := o.checkGates(ctx, run, s, i, prev); blocked != nil {
			tel.gateBlocked(ctx, name, blocked.Gate)
			logger.Warn("stage blocked by gate",
				zap.String("stage", name),
				zap.String("gate", blocked.Gate),
				zap.String("target", blocked.Target),
				zap.String("reason", blocked.Reason))
			if err := o.event(EventGateBlocked, run.ID, map[string]any{
				"stage":    name,
				"gate":     blocked.Gate,
				"target":   blocked.Target,
				"reason":   blocked.Reason,
				"decision": blocked.Record(),
			}); err != nil {
				return o.finish(run, StateFailed, name, err.Error()), err
			}
			return o.finish(run, StateGateBlocked, name, blocked.Reason), nil
		}

		a, err := o.runStage(ctx, tel, logger, run.ID, s, i, prev)
		if err != nil {
			state := StateFailed
			if ctx.Err() != nil {
				state = StateCancelled
			}
			failed := artifact.Failed(prev, name, err)
			failed.RunID = run.ID
			if werr := o.log.WriteArtifact(failed); werr != nil {
				logger.Error("failed to log failure artifact", zap.String("stage", name), zap.Error(werr))
			}
			o.saveCheckpoint(ctx, logger, run)
			if o.alerts != nil && state == StateFailed {
				o.alerts.RecordFailure(ctx, run.ID, name, err)
			}
			logger.Error("stage failed", zap.String("stage", name), zap.Error(err))
			return o.finish(run, state, name, err.Error()), err
		}

		if err := o.log.WriteArtifact(a); err != nil {
			err = fmt.Errorf("pipeline: log %s artifact: %w", name, err)
			return o.finish(run, StateFailed, name, err.Error()), err
		}
		run.Stages = append(run.Stages, name)
		run.Final = a
		run.Checkpoint = i
		prev = a
		o.saveCheckpoint(ctx, logger, run)
		logger.Info("stage completed", zap.String("stage", name), zap.Int("index", i))
	}

	logger.Info("run completed", zap.Int("stages", len(run.Stages)))
	return o.finish(run, StateCompleted, "", ""), nil
}

func (o *Orchestrator) stopped(ctx context.Context) error {
	if o.killSwitch != nil && o.killSwitch.Active() {
		return o.killSwitch.Err()
	}
	return ctx.Err()
}

// checkGates evaluates the gates for stage s and returns the blocking
// decision, or nil when every gate allowed.
func (o *Orchestrator) checkGates(ctx context.Context, run *Run, s stage.Stage, index int, prev *artifact.Artifact) *gate.Decision {
	if len(o.gates) == 0 {
		return nil
	}
	targets := o.targets
	if t, ok := s.(stage.Targeter); ok {
		targets = t.Targets(prev)
	}
	req := gate.Request{
		Action:  s.Name(),
		Stage:   s.Name(),
		Targets: targets,
		Context: map[string]any{"run_id": run.ID, "index": index},
	}
	if len(targets) > 0 {
		req.Target = targets[0]
	}

	decisions, ok := gate.Evaluate(ctx, req, o.gates...)
	run.Decisions = append(run.Decisions, decisions...)
	if ok {
		return nil
	}
	blocked := decisions[len(decisions)-1]
	return &blocked
}

func (o *Orchestrator) runStage(ctx context.Context, tel *telemetry, logger *zap.Logger, runID string,
	s stage.Stage, index int, prev *artifact.Artifact) (*artifact.Artifact, error) {
	name := s.Name()
	ctx, span := tel.startStage(ctx, name, index)
	started := time.Now()

	policy := o.policy
	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		logger.Warn("stage attempt failed, retrying",
			zap.String("stage", name),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
		if onRetry != nil {
			onRetry(attempt, err, wait)
		}
	}

	attempts := 0
	a, err := resilience.Do(ctx, policy, func(ctx context.Context) (*artifact.Artifact, error) {
		attempts++
		a, err := s.Run(ctx, prev)
		if err != nil {
			return nil, err
		}
		if a == nil {
			return nil, resilience.Permanent(ErrNoArtifact)
		}
		if a.RunID == "" {
			a.RunID = runID
		}
		if a.Stage == "" {
			a.Stage = name
		}
		if err := a.Validate(); err != nil {
			return nil, resilience.Permanent(fmt.Errorf("invalid artifact: %w", err))
		}
		return a, nil
	})
	tel.endStage(ctx, span, name, attempts, time.Since(started), err)
	return a, err
}

func (o *Orchestrator) saveCheckpoint(ctx context.Context, logger *zap.Logger, run *Run) {
	if o.store == nil || run.Checkpoint < 0 || run.Final == nil {
		return
	}
	cp := resilience.Checkpoint{
		RunID:    run.ID,
		Index:    run.Checkpoint,
		Stage:    o.stages[run.Checkpoint].Name(),
		Artifact: run.Final,
	}
	if err := o.store.Save(context.WithoutCancel(ctx), cp); err != nil {
		logger.Error("failed to save checkpoint", zap.String("stage", cp.Stage), zap.Error(err))
	}
}

func (o *Orchestrator) event(name, runID string, fields map[string]any) error {
	rec := map[string]any{
		"event":     name,
		"run_id":    runID,
		"timestamp": o.now().Format(time.RFC3339Nano),
	}
	for k, v := range fields {
		rec[k] = v
	}
	if err := o.log.Write(rec); err != nil {
		return fmt.Errorf("pipeline: log %s event: %w", name, err)
	}
	return nil
}

func (o *Orchestrator) finish(run *Run, state State, stageName, reason string) *Run {
	run.State = state
	run.Reason = reason
	if state != StateCompleted {
		run.FailedStage = stageName
	}
	run.FinishedAt = o.now()

	fields := map[string]any{
		"state":      state.String(),
		"stages":     stringsToAny(run.Stages),
		"checkpoint": run.Checkpoint,
	}
	if reason != "" {
		fields["reason"] = reason
	}
	if stageName != "" && state != StateCompleted {
		fields["stage"] = stageName
	}
	if err := o.event(EventRunFinished, run.ID, fields); err != nil {
		o.logger.Error("failed to log run end", zap.String("run_id", run.ID), zap.Error(err))
	}
	return run
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
