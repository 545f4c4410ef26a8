package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// telemetry holds the instruments for one orchestrator. Nil instruments are
// skipped, so an orchestrator without a tracer or meter records nothing.
type telemetry struct {
	tracer trace.Tracer

	stageDuration metric.Float64Histogram
	stageRuns     metric.Int64Counter
	gateBlocks    metric.Int64Counter
}

func newTelemetry(tracer trace.Tracer, meter metric.Meter) (*telemetry, error) {
	t := &telemetry{tracer: tracer}
	if meter == nil {
		return t, nil
	}

	var err error
	t.stageDuration, err = meter.Float64Histogram(
		"reconpipe.stage.duration",
		metric.WithDescription("Stage duration in milliseconds, including retries"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stage duration histogram: %w", err)
	}

	t.stageRuns, err = meter.Int64Counter(
		"reconpipe.stage.runs",
		metric.WithDescription("Stages executed, by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stage run counter: %w", err)
	}

	t.gateBlocks, err = meter.Int64Counter(
		"reconpipe.gate.blocks",
		metric.WithDescription("Stages stopped by a safety gate"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create gate block counter: %w", err)
	}
	return t, nil
}

func (t *telemetry) startRun(ctx context.Context, runID string, stages int) (context.Context, trace.Span) {
	if t.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.Int("run.stages", stages),
	))
}

func (t *telemetry) endRun(span trace.Span, run *Run) {
	if t.tracer == nil {
		return
	}
	span.SetAttributes(attribute.String("run.state", run.State.String()))
	if run.State == StateCompleted {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, run.Reason)
	}
	span.End()
}

func (t *telemetry) startStage(ctx context.Context, name string, index int) (context.Context, trace.Span) {
	if t.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "pipeline.stage", trace.WithAttributes(
		attribute.String("stage.name", name),
		attribute.Int("stage.index", index),
	))
}

func (t *telemetry) endStage(ctx context.Context, span trace.Span, name string, attempts int, elapsed time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	if t.tracer != nil {
		span.SetAttributes(attribute.Int("stage.attempts", attempts))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}

	opts := metric.WithAttributes(attribute.String("stage", name), attribute.String("outcome", outcome))
	if t.stageDuration != nil {
		t.stageDuration.Record(ctx, float64(elapsed.Milliseconds()), opts)
	}
	if t.stageRuns != nil {
		t.stageRuns.Add(ctx, 1, opts)
	}
}

func (t *telemetry) gateBlocked(ctx context.Context, name, gateName string) {
	if t.gateBlocks != nil {
		t.gateBlocks.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stage", name),
			attribute.String("gate", gateName),
		))
	}
}
