package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const subsystemMQTT = "mqtt"

// MQTT error operations.
const (
	MQTTOpConnect        = "connect"
	MQTTOpPublish        = "publish"
	MQTTOpConnectionLost = "connection_lost"
)

// MQTTMetrics tracks the status publisher's broker connection and the
// status messages it sends, per topic.
type MQTTMetrics struct {
	Connected         prometheus.Gauge
	LastConnectTime   prometheus.Gauge
	ReconnectAttempts prometheus.Counter
	Errors            *prometheus.CounterVec
	Published         *prometheus.CounterVec
	PayloadSize       *prometheus.HistogramVec
	PublishLatency    *prometheus.HistogramVec
}

// NewMQTTMetrics creates and registers status publisher metrics.
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
	}
	return m, nil
}

func (m *MQTTMetrics) initMetrics() {
	m.Connected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: subsystemMQTT,
		Name:      "connected",
		Help:      "Whether the status publisher is connected to its broker (1) or not (0)",
	})
	m.LastConnectTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: subsystemMQTT,
		Name:      "last_connect_time_seconds",
		Help:      "Unix time of the last successful broker connection",
	})
	m.ReconnectAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: subsystemMQTT,
		Name:      "reconnect_attempts_total",
		Help:      "Total number of automatic reconnection attempts",
	})
	m.Errors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: subsystemMQTT,
		Name:      "errors_total",
		Help:      "Total number of broker errors by operation",
	}, []string{"operation"})
	m.Published = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: subsystemMQTT,
		Name:      "status_messages_published_total",
		Help:      "Total number of status snapshots published",
	}, []string{"topic"})
	m.PayloadSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: subsystemMQTT,
		Name:      "status_payload_bytes",
		Help:      "Size of published status snapshots",
		Buckets:   prometheus.ExponentialBuckets(BucketStart64B, BucketFactor2, BucketCount10),
	}, []string{"topic"})
	m.PublishLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: subsystemMQTT,
		Name:      "publish_latency_seconds",
		Help:      "Time from publish to broker acknowledgement",
		Buckets:   prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount10),
	}, []string{"topic"})
}

// UpdateConnectionStatus records a connection state change.
func (m *MQTTMetrics) UpdateConnectionStatus(connected bool) {
	if connected {
		m.Connected.Set(1)
		m.LastConnectTime.SetToCurrentTime()
		return
	}
	m.Connected.Set(0)
}

// RecordPublish records a status snapshot acknowledged by the broker.
func (m *MQTTMetrics) RecordPublish(topic string, payloadBytes int, latency time.Duration) {
	m.Published.WithLabelValues(topic).Inc()
	m.PayloadSize.WithLabelValues(topic).Observe(float64(payloadBytes))
	m.PublishLatency.WithLabelValues(topic).Observe(latency.Seconds())
}

// RecordError counts a failed broker operation, one of the MQTTOp values.
func (m *MQTTMetrics) RecordError(operation string) {
	m.Errors.WithLabelValues(operation).Inc()
}

// IncrementReconnectAttempts counts an automatic reconnection attempt.
func (m *MQTTMetrics) IncrementReconnectAttempts() {
	m.ReconnectAttempts.Inc()
}

// Describe implements prometheus.Collector.
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.Connected.Desc()
	ch <- m.LastConnectTime.Desc()
	ch <- m.ReconnectAttempts.Desc()
	m.Errors.Describe(ch)
	m.Published.Describe(ch)
	m.PayloadSize.Describe(ch)
	m.PublishLatency.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.Connected
	ch <- m.LastConnectTime
	ch <- m.ReconnectAttempts
	m.Errors.Collect(ch)
	m.Published.Collect(ch)
	m.PayloadSize.Collect(ch)
	m.PublishLatency.Collect(ch)
}
