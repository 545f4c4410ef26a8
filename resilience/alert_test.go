package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestAlertHandler_DefaultAlertsEveryFailure(t *testing.T) {
	var got []Alert
	h := NewAlertHandler(WithSink(func(_ context.Context, a Alert) { got = append(got, a) }))

	assert.True(t, h.RecordFailure(context.Background(), "run-1", "triage", errors.New("boom")))
	assert.True(t, h.RecordFailure(context.Background(), "run-2", "triage", nil))

	require.Len(t, got, 2)
	assert.Equal(t, LevelError, got[0].Level)
	assert.Equal(t, "stage triage failed 1 time(s): boom", got[0].Message)
	assert.Equal(t, 2, got[1].Count)
	assert.Equal(t, 2, h.Count("triage"))
}

func TestAlertHandler_Threshold(t *testing.T) {
	h := NewAlertHandler(WithThreshold(3))
	ctx := context.Background()

	assert.False(t, h.RecordFailure(ctx, "r", "recon", nil))
	assert.False(t, h.RecordFailure(ctx, "r", "recon", nil))
	assert.False(t, h.RecordFailure(ctx, "r", "triage", nil))
	assert.True(t, h.RecordFailure(ctx, "r", "recon", nil))
	assert.True(t, h.RecordFailure(ctx, "r", "recon", nil))
	assert.Len(t, h.History(), 2)

	h.Reset("recon")
	assert.Equal(t, 0, h.Count("recon"))
	assert.Equal(t, 1, h.Count("triage"))
	h.Reset("")
	assert.Equal(t, 0, h.Count("triage"))
}

func TestAlertHandler_CheckAndAlert(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	h := NewAlertHandler(WithAlertLogger(zap.New(core)))

	assert.False(t, h.CheckAndAlert(context.Background(), "run-9", 5, 5))
	assert.True(t, h.CheckAndAlert(context.Background(), "run-9", 6, 5))

	hist := h.History()
	require.Len(t, hist, 1)
	assert.Equal(t, LevelWarning, hist[0].Level)
	assert.Equal(t, "Pipeline run-9 failing repeatedly", hist[0].Message)
	assert.Equal(t, 1, logs.FilterMessage("pipeline alert").Len())
}

func TestAlertHandler_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	h := NewAlertHandler(WithThreshold(2), WithMeter(mp.Meter("test")))
	ctx := context.Background()
	h.RecordFailure(ctx, "r", "recon", nil)
	h.RecordFailure(ctx, "r", "recon", nil)
	h.RecordFailure(ctx, "r", "triage", nil)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, m.Name)
			for _, dp := range sum.DataPoints {
				totals[m.Name] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(3), totals["reconpipe.stage.failures"])
	assert.Equal(t, int64(1), totals["reconpipe.alerts"])
}

func TestRedisPublisher(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, "alerts")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	h := NewAlertHandler(WithSink(RedisPublisher(client, "alerts", nil)))
	h.RecordFailure(ctx, "run-1", "report", errors.New("disk full"))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var a Alert
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &a))
	assert.Equal(t, "run-1", a.RunID)
	assert.Equal(t, "report", a.Stage)
	assert.Contains(t, a.Message, "disk full")
}
