package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesperrec/vesper-recorder/internal/audiocore"
)

var _ audiocore.MetricsRecorder = (*RecorderMetrics)(nil)

func TestRecorderMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewRecorderMetrics(reg)
	require.NoError(t, err)

	m.RecordBufferDelivered(100)
	m.RecordBufferDelivered(50)
	m.RecordOverflow(30)
	m.RecordDroppedCallback()
	m.RecordListenerFailure("writer", audiocore.EventInputArrived)
	m.RecordListenerFailure("writer", audiocore.EventInputArrived)
	m.RecordListenerDuration("writer", audiocore.EventInputArrived, time.Millisecond)
	m.SetRecording(true)
	m.SetBuffersInFlight(3)

	assert.InDelta(t, 2, testutil.ToFloat64(m.BuffersDelivered), 0)
	assert.InDelta(t, 150, testutil.ToFloat64(m.FramesDelivered), 0)
	assert.InDelta(t, 30, testutil.ToFloat64(m.OverflowFrames), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.OverflowEvents), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.DroppedCallbacks), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.ListenerFailures.WithLabelValues("writer", audiocore.EventInputArrived)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Recording), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.BuffersInFlight), 0)

	m.SetRecording(false)
	assert.Zero(t, testutil.ToFloat64(m.Recording))

	assert.Equal(t, 1, testutil.CollectAndCount(m.ListenerDurations))

	_, err = NewRecorderMetrics(reg)
	require.Error(t, err, "duplicate registration must fail")
}

func TestLevelMetrics(t *testing.T) {
	t.Parallel()

	available := false
	reg := prometheus.NewRegistry()
	m, err := NewLevelMetrics(reg, func() ([]float64, []float64, bool) {
		return []float64{-20, -30}, []float64{-6, -12}, available
	})
	require.NoError(t, err)

	assert.Zero(t, testutil.CollectAndCount(m), "nothing is exported while unavailable")

	available = true
	assert.Equal(t, 4, testutil.CollectAndCount(m))

	expected := `
# HELP vesper_recorder_level_peak_dbfs Latest peak level per channel in dBFS
# TYPE vesper_recorder_level_peak_dbfs gauge
vesper_recorder_level_peak_dbfs{channel="0"} -6
vesper_recorder_level_peak_dbfs{channel="1"} -12
`
	require.NoError(t, testutil.CollectAndCompare(m, strings.NewReader(expected), "vesper_recorder_level_peak_dbfs"))
}

func TestMQTTMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.UpdateConnectionStatus(true)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Connected), 0)
	assert.Positive(t, testutil.ToFloat64(m.LastConnectTime))
	m.UpdateConnectionStatus(false)
	assert.Zero(t, testutil.ToFloat64(m.Connected))

	m.RecordPublish("vesper/status", 512, 3*time.Millisecond)
	m.RecordPublish("vesper/status", 600, time.Millisecond)
	m.RecordPublish("vesper/other", 100, time.Millisecond)
	m.RecordError(MQTTOpPublish)
	m.RecordError(MQTTOpConnectionLost)
	m.IncrementReconnectAttempts()

	assert.InDelta(t, 2, testutil.ToFloat64(m.Published.WithLabelValues("vesper/status")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Published.WithLabelValues("vesper/other")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Errors.WithLabelValues(MQTTOpPublish)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Errors.WithLabelValues(MQTTOpConnectionLost)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ReconnectAttempts), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(m.PayloadSize))
	assert.Equal(t, 2, testutil.CollectAndCount(m.PublishLatency, "vesper_mqtt_publish_latency_seconds"))
}

func TestHTTPMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewHTTPMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordHTTPRequest("GET", "/api/v1/status", 200, 0.01)
	m.RecordHTTPRequest("GET", "/api/v1/status", 200, 0.02)
	m.RecordHTTPRequestError("GET", "/missing", "client")
	m.RecordTemplateRender("status", 0.005)
	m.RecordTemplateRenderError("status", "execute")

	assert.InDelta(t, 2, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/api/v1/status", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.httpRequestErrors.WithLabelValues("GET", "/missing", "client")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.templateRenderErrors.WithLabelValues("status", "execute")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.templateRenderDuration))
}
