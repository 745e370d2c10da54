package audiocore

import (
	"time"

	"github.com/vesperrec/vesper-recorder/internal/schedule"
)

// InputDevice describes a capture device.
type InputDevice struct {
	Index             int    `json:"index"`
	Name              string `json:"name"`
	InputChannelCount int    `json:"inputChannelCount"`
	Default           bool   `json:"default"`
}

// StreamConfig holds the parameters a stream is opened with. Samples are
// always interleaved signed 16-bit little-endian.
type StreamConfig struct {
	DeviceIndex     int
	ChannelCount    int
	SampleRate      int
	FramesPerBuffer int
}

// StreamCallbacks are invoked by the driver.
type StreamCallbacks struct {
	// Data is called on the driver's thread for every delivery. samples is
	// only valid for the duration of the call. inputOverflow reports that the
	// driver itself lost input before this delivery.
	Data func(samples []byte, frameCount int, captureTime time.Time, inputOverflow bool)

	// Stop is called when the stream stops, with a non-nil error when it
	// stopped on its own (device removed, driver failure).
	Stop func(err error)
}

// Stream is an opened capture stream.
type Stream interface {
	Start() error
	// Stop stops callbacks. No Data callback runs after Stop returns.
	Stop() error
	// Close releases the stream. It is called once, after Stop.
	Close() error
}

// Driver abstracts the audio hardware layer.
type Driver interface {
	// InputDevices lists capture devices. Index is the value accepted by
	// StreamConfig.DeviceIndex.
	InputDevices() ([]InputDevice, error)

	// OpenStream opens, but does not start, a capture stream.
	OpenStream(cfg StreamConfig, callbacks StreamCallbacks) (Stream, error)
}

// RecorderInfo is the read-only view of the recorder passed to listeners.
type RecorderInfo interface {
	DeviceIndex() int
	ChannelCount() int
	SampleRate() int
	// SampleSize is the size of one sample in bytes.
	SampleSize() int
	FramesPerBuffer() int
	Schedule() *schedule.Schedule
	Recording() bool
	// Err returns the failure that stopped the recorder, if any.
	Err() error
}

// Listener receives recording events. Callbacks run one at a time on the
// recorder's consumer goroutine, in registration order. A returned error or
// a panic is logged and counted; delivery to the remaining listeners and of
// later events continues.
//
// Listeners must not retain samples past the InputArrived call.
type Listener interface {
	RecordingStarting(r RecorderInfo, t time.Time) error
	RecordingStarted(r RecorderInfo, t time.Time) error
	InputArrived(r RecorderInfo, t time.Time, samples []byte, frameCount int, inputOverflow bool) error
	InputOverflowed(r RecorderInfo, t time.Time, frameCount int, inputOverflow bool) error
	RecordingStopped(r RecorderInfo, t time.Time) error
}

// BaseListener implements every Listener callback as a no-op. Embed it to
// implement only the callbacks a listener needs.
type BaseListener struct{}

func (BaseListener) RecordingStarting(RecorderInfo, time.Time) error { return nil }
func (BaseListener) RecordingStarted(RecorderInfo, time.Time) error  { return nil }
func (BaseListener) InputArrived(RecorderInfo, time.Time, []byte, int, bool) error {
	return nil
}
func (BaseListener) InputOverflowed(RecorderInfo, time.Time, int, bool) error { return nil }
func (BaseListener) RecordingStopped(RecorderInfo, time.Time) error           { return nil }

// Named is implemented by listeners that want a stable name in logs and
// metrics.
type Named interface {
	Name() string
}

// MetricsRecorder receives recorder measurements. Methods marked producer
// are called from the driver thread and must not block.
type MetricsRecorder interface {
	RecordBufferDelivered(frames int)
	RecordOverflow(frames int) // producer
	RecordDroppedCallback()    // producer
	RecordListenerFailure(listener, event string)
	RecordListenerDuration(listener, event string, d time.Duration)
	SetRecording(recording bool)
	SetBuffersInFlight(n int)
}

type noopMetrics struct{}

func (noopMetrics) RecordBufferDelivered(int)                            {}
func (noopMetrics) RecordOverflow(int)                                   {}
func (noopMetrics) RecordDroppedCallback()                               {}
func (noopMetrics) RecordListenerFailure(string, string)                 {}
func (noopMetrics) RecordListenerDuration(string, string, time.Duration) {}
func (noopMetrics) SetRecording(bool)                                    {}
func (noopMetrics) SetBuffersInFlight(int)                               {}
