package audiocore

import (
	"sync/atomic"
	"time"

	"github.com/vesperrec/vesper-recorder/internal/schedule"
)

// Stats is a snapshot of recorder counters.
type Stats struct {
	DeliveredBuffers     uint64          `json:"deliveredBuffers"`
	OverflowFrames       uint64          `json:"overflowFrames"`
	OverflowedDeliveries uint64          `json:"overflowedDeliveries"`
	OverflowEvents       uint64          `json:"overflowEvents"`
	DroppedCallbacks     uint64          `json:"droppedCallbacks"`
	ListenerFailures     uint64          `json:"listenerFailures"`
	RecordingSpans       uint64          `json:"recordingSpans"`
	Pool                 BufferPoolStats `json:"pool"`
}

// recorderCounters are updated from both the producer and the consumer.
type recorderCounters struct {
	delivered            atomic.Uint64
	overflowFrames       atomic.Uint64
	overflowedDeliveries atomic.Uint64
	overflowEvents       atomic.Uint64
	droppedCallbacks     atomic.Uint64
	listenerFailures     atomic.Uint64
	recordingSpans       atomic.Uint64
}

func (c *recorderCounters) snapshot() Stats {
	return Stats{
		DeliveredBuffers:     c.delivered.Load(),
		OverflowFrames:       c.overflowFrames.Load(),
		OverflowedDeliveries: c.overflowedDeliveries.Load(),
		OverflowEvents:       c.overflowEvents.Load(),
		DroppedCallbacks:     c.droppedCallbacks.Load(),
		ListenerFailures:     c.listenerFailures.Load(),
		RecordingSpans:       c.recordingSpans.Load(),
	}
}

// RecorderOption configures an AudioRecorder.
type RecorderOption func(*AudioRecorder)

// WithSchedule sets the recording schedule. Without one the recorder never
// records.
func WithSchedule(s *schedule.Schedule) RecorderOption {
	return func(r *AudioRecorder) { r.schedule = s }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m MetricsRecorder) RecorderOption {
	return func(r *AudioRecorder) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithClock overrides the time source used for events that have no capture
// time, such as the final RecordingStopped on Stop.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *AudioRecorder) {
		if now != nil {
			r.now = now
		}
	}
}
