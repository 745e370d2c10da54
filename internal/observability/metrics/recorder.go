// Package metrics provides custom Prometheus metrics for the recorder.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RecorderMetrics contains Prometheus metrics for the audio recorder. It
// implements audiocore.MetricsRecorder.
type RecorderMetrics struct {
	BuffersDelivered  prometheus.Counter
	FramesDelivered   prometheus.Counter
	OverflowFrames    prometheus.Counter
	OverflowEvents    prometheus.Counter
	DroppedCallbacks  prometheus.Counter
	Recording         prometheus.Gauge
	BuffersInFlight   prometheus.Gauge
	ListenerFailures  *prometheus.CounterVec
	ListenerDurations *prometheus.HistogramVec
	registry          *prometheus.Registry
}

// NewRecorderMetrics creates and registers recorder metrics.
func NewRecorderMetrics(registry *prometheus.Registry) (*RecorderMetrics, error) {
	m := &RecorderMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register recorder metrics: %w", err)
	}
	return m, nil
}

func (m *RecorderMetrics) initMetrics() {
	m.BuffersDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "recorder_buffers_delivered_total",
		Help:      "Total number of audio buffers handed to the consumer",
	})
	m.FramesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "recorder_frames_delivered_total",
		Help:      "Total number of audio frames handed to the consumer",
	})
	m.OverflowFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "recorder_overflow_frames_total",
		Help:      "Total number of frames lost because the buffer pool was empty",
	})
	m.OverflowEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "recorder_overflow_deliveries_total",
		Help:      "Total number of deliveries that found the buffer pool empty",
	})
	m.DroppedCallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "recorder_dropped_callbacks_total",
		Help:      "Total number of driver callbacks dropped after an internal failure",
	})
	m.Recording = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "recorder_recording",
		Help:      "Whether the recorder is inside a scheduled recording span (1) or not (0)",
	})
	m.BuffersInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "recorder_buffers_in_flight",
		Help:      "Number of pool buffers queued or being delivered",
	})
	m.ListenerFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "recorder_listener_failures_total",
		Help:      "Total number of failed listener callbacks",
	}, []string{"listener", "event"})
	m.ListenerDurations = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "recorder_listener_duration_seconds",
		Help:      "Time spent in listener callbacks",
		Buckets:   prometheus.ExponentialBuckets(BucketStart100us, BucketFactor2, BucketCount12),
	}, []string{"listener", "event"})
}

func (m *RecorderMetrics) RecordBufferDelivered(frames int) {
	m.BuffersDelivered.Inc()
	m.FramesDelivered.Add(float64(frames))
}

func (m *RecorderMetrics) RecordOverflow(frames int) {
	m.OverflowEvents.Inc()
	m.OverflowFrames.Add(float64(frames))
}

func (m *RecorderMetrics) RecordDroppedCallback() { m.DroppedCallbacks.Inc() }

func (m *RecorderMetrics) RecordListenerFailure(listener, event string) {
	m.ListenerFailures.WithLabelValues(listener, event).Inc()
}

func (m *RecorderMetrics) RecordListenerDuration(listener, event string, d time.Duration) {
	m.ListenerDurations.WithLabelValues(listener, event).Observe(d.Seconds())
}

func (m *RecorderMetrics) SetRecording(on bool) {
	if on {
		m.Recording.Set(1)
	} else {
		m.Recording.Set(0)
	}
}

func (m *RecorderMetrics) SetBuffersInFlight(n int) { m.BuffersInFlight.Set(float64(n)) }

// Describe implements the prometheus.Collector interface.
func (m *RecorderMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.BuffersDelivered.Desc()
	ch <- m.FramesDelivered.Desc()
	ch <- m.OverflowFrames.Desc()
	ch <- m.OverflowEvents.Desc()
	ch <- m.DroppedCallbacks.Desc()
	ch <- m.Recording.Desc()
	ch <- m.BuffersInFlight.Desc()
	m.ListenerFailures.Describe(ch)
	m.ListenerDurations.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *RecorderMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.BuffersDelivered
	ch <- m.FramesDelivered
	ch <- m.OverflowFrames
	ch <- m.OverflowEvents
	ch <- m.DroppedCallbacks
	ch <- m.Recording
	ch <- m.BuffersInFlight
	m.ListenerFailures.Collect(ch)
	m.ListenerDurations.Collect(ch)
}
