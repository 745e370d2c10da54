package audiocore

import "time"

const (
	// SampleSize is the size in bytes of one sample. Streams are always
	// signed 16-bit little-endian.
	SampleSize = 2

	// SampleBits is the width of one sample.
	SampleBits = SampleSize * 8

	// queueFactor sizes the consumer queue relative to the pool so that
	// overflow markers never take a slot a buffer needs.
	queueFactor = 2

	// drainPollInterval is how often the consumer checks for callbacks still
	// running on the driver thread during shutdown.
	drainPollInterval = time.Millisecond
)

// Listener event names used in logs and metrics.
const (
	EventRecordingStarting = "recording_starting"
	EventRecordingStarted  = "recording_started"
	EventInputArrived      = "input_arrived"
	EventInputOverflowed   = "input_overflowed"
	EventRecordingStopped  = "recording_stopped"
)
