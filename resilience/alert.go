package resilience

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Alert levels.
const (
	LevelError   = "error"
	LevelWarning = "warning"
)

// Alert is one notification emitted by an AlertHandler.
type Alert struct {
	Level     string    `json:"level"`
	RunID     string    `json:"run_id"`
	Stage     string    `json:"stage,omitempty"`
	Count     int       `json:"count"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc receives alerts. Sinks must not block for long; they run on the
// caller's goroutine.
type AlertFunc func(ctx context.Context, a Alert)

// AlertHandler counts stage failures and notifies sinks once a stage's count
// reaches the threshold. It has no retry or suppression logic: every failure
// at or above the threshold produces an alert.
type AlertHandler struct {
	mu        sync.Mutex
	threshold int
	sinks     []AlertFunc
	counts    map[string]int
	history   []Alert

	failures metric.Int64Counter
	alerts   metric.Int64Counter
	logger   *zap.Logger
}

// AlertOption configures an AlertHandler.
type AlertOption func(*AlertHandler)

// WithThreshold sets the per-stage failure count that triggers alerts.
func WithThreshold(n int) AlertOption {
	return func(h *AlertHandler) {
		if n > 0 {
			h.threshold = n
		}
	}
}

// WithSink adds an alert receiver.
func WithSink(fn AlertFunc) AlertOption {
	return func(h *AlertHandler) {
		if fn != nil {
			h.sinks = append(h.sinks, fn)
		}
	}
}

// WithAlertLogger sets the logger; alerts are always logged at warn level.
func WithAlertLogger(logger *zap.Logger) AlertOption {
	return func(h *AlertHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMeter records failure and alert counters on meter.
func WithMeter(meter metric.Meter) AlertOption {
	return func(h *AlertHandler) {
		if meter == nil {
			return
		}
		h.failures, _ = meter.Int64Counter("reconpipe.stage.failures",
			metric.WithDescription("Stage failures seen by the alert handler"),
			metric.WithUnit("1"))
		h.alerts, _ = meter.Int64Counter("reconpipe.alerts",
			metric.WithDescription("Alerts emitted"),
			metric.WithUnit("1"))
	}
}

// NewAlertHandler returns a handler that alerts on every failure unless
// WithThreshold raises the bar.
func NewAlertHandler(opts ...AlertOption) *AlertHandler {
	h := &AlertHandler{
		threshold: 1,
		counts:    make(map[string]int),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RecordFailure is called once per stage failure. It returns true when an
// alert was emitted.
func (h *AlertHandler) RecordFailure(ctx context.Context, runID, stage string, cause error) bool {
	h.mu.Lock()
	h.counts[stage]++
	count := h.counts[stage]
	h.mu.Unlock()

	if h.failures != nil {
		h.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	}
	if count < h.threshold {
		return false
	}

	msg := fmt.Sprintf("stage %s failed %d time(s)", stage, count)
	if cause != nil {
		msg += ": " + cause.Error()
	}
	h.emit(ctx, Alert{Level: LevelError, RunID: runID, Stage: stage, Count: count, Message: msg})
	return true
}

// CheckAndAlert emits a warning when count exceeds threshold.
func (h *AlertHandler) CheckAndAlert(ctx context.Context, runID string, count, threshold int) bool {
	if count <= threshold {
		return false
	}
	h.emit(ctx, Alert{
		Level:   LevelWarning,
		RunID:   runID,
		Count:   count,
		Message: fmt.Sprintf("Pipeline %s failing repeatedly", runID),
	})
	return true
}

func (h *AlertHandler) emit(ctx context.Context, a Alert) {
	a.Timestamp = time.Now().UTC()

	h.mu.Lock()
	h.history = append(h.history, a)
	sinks := append([]AlertFunc(nil), h.sinks...)
	h.mu.Unlock()

	h.logger.Warn("pipeline alert",
		zap.String("level", a.Level),
		zap.String("run_id", a.RunID),
		zap.String("stage", a.Stage),
		zap.Int("count", a.Count),
		zap.String("message", a.Message))
	if h.alerts != nil {
		h.alerts.Add(ctx, 1, metric.WithAttributes(attribute.String("level", a.Level)))
	}
	for _, sink := range sinks {
		sink(ctx, a)
	}
}

// Count returns the failures recorded for stage.
func (h *AlertHandler) Count(stage string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[stage]
}

// History returns a copy of the emitted alerts.
func (h *AlertHandler) History() []Alert {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Alert(nil), h.history...)
}

// Reset clears the count of stage, or every count when stage is empty.
func (h *AlertHandler) Reset(stage string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if stage == "" {
		h.counts = make(map[string]int)
		return
	}
	delete(h.counts, stage)
}

// RedisPublisher returns a sink that publishes alerts as JSON on channel.
// Publish errors are logged and dropped.
func RedisPublisher(client redis.UniversalClient, channel string, logger *zap.Logger) AlertFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, a Alert) {
		data, err := json.Marshal(a)
		if err != nil {
			logger.Error("failed to marshal alert", zap.Error(err))
			return
		}
		if err := client.Publish(ctx, channel, data).Err(); err != nil {
			logger.Error("failed to publish alert", zap.String("channel", channel), zap.Error(err))
		}
	}
}
