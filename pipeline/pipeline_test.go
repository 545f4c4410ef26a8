package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zero-day-ai/reconpipe/artifact"
	"github.com/zero-day-ai/reconpipe/gate"
	"github.com/zero-day-ai/reconpipe/killswitch"
	"github.com/zero-day-ai/reconpipe/resilience"
	"github.com/zero-day-ai/reconpipe/stage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// counted returns a stage that fails its first `failures` calls.
func counted(name string, failures int, calls *int32) stage.Stage {
	return stage.NewFunc(name, func(_ context.Context, prev *artifact.Artifact) (map[string]any, error) {
		n := atomic.AddInt32(calls, 1)
		if int(n) <= failures {
			return nil, errors.New(name + " unavailable")
		}
		return map[string]any{"step": name}, nil
	})
}

func passing(name string) stage.Stage {
	var calls int32
	return counted(name, 0, &calls)
}

func newLogger(t *testing.T) (*artifact.Logger, string) {
	t.Helper()
	dir := t.TempDir()
	l, err := artifact.NewLogger(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l, dir
}

func stageNames(arts []*artifact.Artifact) []string {
	out := make([]string, len(arts))
	for i, a := range arts {
		out[i] = a.Stage
	}
	return out
}

func events(t *testing.T, l *artifact.Logger, name string) []map[string]any {
	t.Helper()
	recs, err := artifact.ReadRecords(l.Path())
	require.NoError(t, err)
	var out []map[string]any
	for _, r := range recs {
		if r["event"] == name {
			out = append(out, r)
		}
	}
	return out
}

func TestRun_RetriesFlakyStage(t *testing.T) {
	l, dir := newLogger(t)
	var calls int32
	o := New(l, []stage.Stage{
		passing("recon"),
		counted("normalize", 2, &calls),
		passing("triage"),
		passing("report"),
	}, WithRetry(resilience.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}))

	run, err := o.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, run.State)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Equal(t, []string{"recon", "normalize", "triage", "report"}, run.Stages)
	assert.Equal(t, 3, run.Checkpoint)
	assert.Equal(t, "report", run.Final.Stage)

	arts, err := artifact.Load(dir, l.RunID())
	require.NoError(t, err)
	assert.Equal(t, []string{"recon", "normalize", "triage", "report"}, stageNames(arts))
	for _, a := range arts {
		assert.True(t, a.Success)
		assert.Equal(t, l.RunID(), a.RunID)
	}
	assert.Len(t, events(t, l, EventRunStarted), 1)
	finished := events(t, l, EventRunFinished)
	require.Len(t, finished, 1)
	assert.Equal(t, "completed", finished[0]["state"])
}

func TestRun_InputChainsIntoFirstStage(t *testing.T) {
	l, dir := newLogger(t)
	var seen map[string]any
	first := stage.NewFunc("echo", func(_ context.Context, prev *artifact.Artifact) (map[string]any, error) {
		seen = prev.Output
		return map[string]any{"targets": prev.Output["targets"]}, nil
	})

	run, err := New(l, []stage.Stage{first}).Run(context.Background(), map[string]any{"targets": []any{"example.com"}})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, run.State)
	assert.Equal(t, map[string]any{"targets": []any{"example.com"}}, seen)

	arts, err := artifact.Load(dir, l.RunID())
	require.NoError(t, err)
	require.Len(t, arts, 2)
	assert.Equal(t, InputStage, arts[0].Stage)
	if diff := cmp.Diff(arts[0].Output, arts[1].Input); diff != "" {
		t.Errorf("second artifact input differs from first output (-want +got):\n%s", diff)
	}
}

func TestRun_GateBlocked(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	l, dir := newLogger(t)

	var normalizeCalls int32
	o := New(l, []stage.Stage{
		stage.NewSyntheticRecon([]string{"payment.example.com"}),
		counted("normalize", 0, &normalizeCalls),
	},
		WithGates(gate.NewProhibited(gate.DefaultProhibited...)),
		WithLogger(zap.New(core)),
	)

	run, err := o.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, StateGateBlocked, run.State)
	assert.Equal(t, "recon", run.FailedStage)
	assert.Empty(t, run.Stages)
	assert.Zero(t, atomic.LoadInt32(&normalizeCalls))

	d, ok := run.Blocked()
	require.True(t, ok)
	assert.Equal(t, "prohibited", d.Gate)
	assert.Equal(t, "payment.example.com", d.Target)
	assert.Contains(t, d.Reason, `"payment"`)

	arts, err := artifact.Load(dir, l.RunID())
	require.NoError(t, err)
	assert.Empty(t, arts)

	blocked := events(t, l, EventGateBlocked)
	require.Len(t, blocked, 1)
	assert.Equal(t, "recon", blocked[0]["stage"])
	assert.Equal(t, "prohibited", blocked[0]["gate"])
	assert.Equal(t, 1, logs.FilterMessage("stage blocked by gate").Len())
}

func TestRun_GatesSeeTargetsFromInput(t *testing.T) {
	l, dir := newLogger(t)

	run, err := New(l, []stage.Stage{stage.NewSyntheticRecon(nil)},
		WithGates(gate.NewDefaultProhibited()),
	).Run(context.Background(), map[string]any{"targets": []any{"payment.example.com"}})
	require.NoError(t, err)
	assert.Equal(t, StateGateBlocked, run.State)

	d, ok := run.Blocked()
	require.True(t, ok)
	assert.Equal(t, "payment.example.com", d.Target)

	arts, err := artifact.Load(dir, l.RunID())
	require.NoError(t, err)
	assert.Equal(t, []string{InputStage}, stageNames(arts))
}

func TestRun_GateRequestUsesConfiguredTargets(t *testing.T) {
	l, _ := newLogger(t)
	var reqs []gate.Request
	record := gate.Func{GateName: "record", Fn: func(_ context.Context, req gate.Request) (bool, string) {
		reqs = append(reqs, req)
		return true, "ok"
	}}

	run, err := New(l, []stage.Stage{passing("normalize"), passing("triage")},
		WithGates(record),
		WithTargets("a.example.com", "b.example.com"),
	).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, run.State)

	require.Len(t, reqs, 2)
	assert.Equal(t, "normalize", reqs[0].Action)
	assert.Equal(t, "triage", reqs[1].Stage)
	assert.Equal(t, "a.example.com", reqs[0].Target)
	assert.Equal(t, []string{"a.example.com", "b.example.com"}, reqs[1].Targets)
	assert.Len(t, run.Decisions, 2)
}

func TestRun_FailureCheckpointsAndAlerts(t *testing.T) {
	l, dir := newLogger(t)
	store := resilience.NewFileStore(t.TempDir())
	var alerts []resilience.Alert
	handler := resilience.NewAlertHandler(resilience.WithSink(func(_ context.Context, a resilience.Alert) {
		alerts = append(alerts, a)
	}))

	var calls int32
	o := New(l, []stage.Stage{passing("recon"), counted("normalize", 100, &calls), passing("triage")},
		WithRetry(resilience.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}),
		WithCheckpointStore(store),
		WithAlerts(handler),
	)

	run, err := o.Run(context.Background(), nil)
	require.Error(t, err)
	assert.EqualError(t, err, "normalize unavailable")
	assert.Equal(t, StateFailed, run.State)
	assert.Equal(t, "normalize", run.FailedStage)
	assert.Equal(t, 0, run.Checkpoint)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))

	arts, err := artifact.Load(dir, l.RunID())
	require.NoError(t, err)
	require.Len(t, arts, 2)
	assert.False(t, arts[1].Success)
	assert.Equal(t, "normalize unavailable", arts[1].Error)
	assert.Equal(t, arts[0].Output, arts[1].Input)

	cp, err := store.Load(context.Background(), l.RunID())
	require.NoError(t, err)
	assert.Equal(t, 0, cp.Index)
	assert.Equal(t, "recon", cp.Stage)

	require.Len(t, alerts, 1)
	assert.Equal(t, "normalize", alerts[0].Stage)
	assert.Equal(t, 1, handler.Count("normalize"))
}

func TestRun_InvalidArtifactIsNotRetried(t *testing.T) {
	l, _ := newLogger(t)
	var calls int32
	bad := stage.NewFunc("bad", func(context.Context, *artifact.Artifact) (map[string]any, error) {
		atomic.AddInt32(&calls, 1)
		return map[string]any{"raw": []byte("x")}, nil
	})

	run, err := New(l, []stage.Stage{bad},
		WithRetry(resilience.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}),
	).Run(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, artifact.ErrNotJSON)
	assert.Equal(t, StateFailed, run.State)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRun_KillSwitchStopsBeforeNextStage(t *testing.T) {
	l, dir := newLogger(t)
	sw := killswitch.New()
	tripper := stage.NewFunc("recon", func(context.Context, *artifact.Artifact) (map[string]any, error) {
		sw.Trip("operator typed STOP")
		return map[string]any{"done": true}, nil
	})
	var calls int32

	run, err := New(l, []stage.Stage{tripper, counted("normalize", 0, &calls)}, WithKillSwitch(sw)).
		Run(context.Background(), nil)
	assert.ErrorIs(t, err, killswitch.ErrKilled)
	assert.Equal(t, StateCancelled, run.State)
	assert.Equal(t, "normalize", run.FailedStage)
	assert.Equal(t, []string{"recon"}, run.Stages)
	assert.Zero(t, atomic.LoadInt32(&calls))

	arts, err := artifact.Load(dir, l.RunID())
	require.NoError(t, err)
	assert.Equal(t, []string{"recon"}, stageNames(arts))
	assert.Len(t, events(t, l, EventKilled), 1)
}

func TestRun_CancelledContext(t *testing.T) {
	l, _ := newLogger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := New(l, []stage.Stage{passing("recon")}).Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateCancelled, run.State)
	assert.True(t, run.State.Terminal())
}

func TestRun_ResumeSkipsCompletedStages(t *testing.T) {
	dir := t.TempDir()
	store := resilience.NewFileStore(t.TempDir())

	first, err := artifact.NewLogger(dir)
	require.NoError(t, err)
	runID := first.RunID()

	var reconCalls, normalizeCalls int32
	recon := counted("recon", 0, &reconCalls)
	run, err := New(first, []stage.Stage{recon, counted("normalize", 100, &normalizeCalls)},
		WithCheckpointStore(store)).Run(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, StateFailed, run.State)
	require.NoError(t, first.Close())

	second, err := artifact.OpenLogger(dir, runID)
	require.NoError(t, err)
	defer second.Close()

	var prevStep any
	normalize := stage.NewFunc("normalize", func(_ context.Context, prev *artifact.Artifact) (map[string]any, error) {
		prevStep = prev.Output["step"]
		return map[string]any{"step": "normalize"}, nil
	})
	run, err = New(second, []stage.Stage{recon, normalize, passing("triage")},
		WithCheckpointStore(store), WithResume()).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, run.State)
	assert.Equal(t, 0, run.ResumedFrom)
	assert.Equal(t, []string{"normalize", "triage"}, run.Stages)
	assert.EqualValues(t, 1, atomic.LoadInt32(&reconCalls))
	assert.Equal(t, "recon", prevStep)

	arts, err := artifact.Load(dir, runID)
	require.NoError(t, err)
	assert.Equal(t, []string{"recon", "normalize", "normalize", "triage"}, stageNames(arts))
	assert.False(t, arts[1].Success)
}

func TestRun_ResumeRequiresStore(t *testing.T) {
	l, _ := newLogger(t)
	_, err := New(l, nil, WithResume()).Run(context.Background(), nil)
	assert.EqualError(t, err, "pipeline: resume requires a checkpoint store")
}

func TestRun_Telemetry(t *testing.T) {
	ctx := context.Background()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(ctx) }()
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	defer func() { _ = mp.Shutdown(ctx) }()

	l, _ := newLogger(t)
	run, err := New(l, []stage.Stage{passing("recon"), passing("normalize")},
		WithTracer(tp.Tracer("test")),
		WithMeter(mp.Meter("test")),
	).Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, run.State)

	names := map[string]int{}
	for _, s := range sr.Ended() {
		names[s.Name()]++
	}
	assert.Equal(t, map[string]int{"pipeline.run": 1, "pipeline.stage": 2}, names)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "reconpipe.stage.runs" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	assert.EqualValues(t, 2, total)
}

func TestState_Terminal(t *testing.T) {
	assert.False(t, StateNotStarted.Terminal())
	assert.False(t, StateRunning.Terminal())
	for _, s := range []State{StateGateBlocked, StateFailed, StateCompleted, StateCancelled} {
		assert.True(t, s.Terminal(), s.String())
	}
}
