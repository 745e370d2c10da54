package audiocore

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vesperrec/vesper-recorder/internal/errors"
	"github.com/vesperrec/vesper-recorder/internal/logger"
	"github.com/vesperrec/vesper-recorder/internal/schedule"
)

// State is the recorder lifecycle state.
type State int32

const (
	StateCreated State = iota
	StateStarted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// RecorderConfig holds the input parameters. Buffer sizes are in seconds.
type RecorderConfig struct {
	DeviceIndex     int
	ChannelCount    int
	SampleRate      int
	BufferSize      float64
	TotalBufferSize float64
}

// FramesPerBuffer returns round(SampleRate * BufferSize), at least 1.
func (c RecorderConfig) FramesPerBuffer() int {
	return max(1, int(math.Round(float64(c.SampleRate)*c.BufferSize)))
}

// BufferCount returns round(TotalBufferSize / BufferSize), at least 1.
func (c RecorderConfig) BufferCount() int {
	if c.BufferSize <= 0 {
		return 1
	}
	return max(1, int(math.Round(c.TotalBufferSize/c.BufferSize)))
}

func (c RecorderConfig) validate() error {
	switch {
	case c.ChannelCount < 1:
		return deviceError(nil, "channel count must be at least 1", "channel_count", c.ChannelCount)
	case c.SampleRate <= 0:
		return deviceError(nil, "sample rate must be positive", "sample_rate", c.SampleRate)
	case c.BufferSize <= 0 || math.IsNaN(c.BufferSize):
		return deviceError(nil, "buffer size must be positive", "buffer_size", c.BufferSize)
	case c.TotalBufferSize <= 0 || math.IsNaN(c.TotalBufferSize):
		return deviceError(nil, "total buffer size must be positive", "total_buffer_size", c.TotalBufferSize)
	}
	return nil
}

// overflowRun is a run of consecutive overflowed deliveries that share the
// same schedule interval, or all lie outside the schedule.
type overflowRun struct {
	frames        int
	start         time.Time
	inputOverflow bool
	interval      schedule.Interval
	scheduled     bool
}

// overflowRuns is the pending overflow, split where schedule membership
// changes.
type overflowRuns []overflowRun

func (o overflowRuns) add(s *schedule.Schedule, frames int, t time.Time, inputOverflow bool) overflowRuns {
	iv, in := s.Current(t)
	if n := len(o); n > 0 {
		last := &o[n-1]
		if last.scheduled == in && last.interval.Start.Equal(iv.Start) {
			last.frames += frames
			last.inputOverflow = last.inputOverflow || inputOverflow
			return o
		}
	}
	return append(o, overflowRun{
		frames:        frames,
		start:         t,
		inputOverflow: inputOverflow,
		interval:      iv,
		scheduled:     in,
	})
}

// queueItem is one delivery. buf is nil for a delivery that found the pool
// empty. carried holds overflow that happened before this delivery and could
// not be queued on its own.
type queueItem struct {
	buf           *Buffer
	frames        int
	captureTime   time.Time
	inputOverflow bool
	carried       overflowRuns
}

// AudioRecorder captures audio from a Driver and delivers it to listeners
// while the schedule says to record.
type AudioRecorder struct {
	driver   Driver
	cfg      RecorderConfig
	log      logger.Logger
	schedule *schedule.Schedule
	metrics  MetricsRecorder
	now      func() time.Time

	mu        sync.Mutex
	state     State
	listeners []Listener
	devices   []InputDevice
	stream    Stream
	pool      *BufferPool
	queue     chan queueItem

	notify chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}

	// producer handshake with Stop
	accepting atomic.Bool
	inflight  atomic.Int32

	pendingMu  sync.Mutex
	pending    overflowRuns
	hasPending atomic.Bool

	recording atomic.Bool
	stateVal  atomic.Int32
	failure   atomic.Pointer[error]
	counters  recorderCounters
}

// NewAudioRecorder creates a recorder in the Created state.
func NewAudioRecorder(driver Driver, cfg RecorderConfig, log logger.Logger, opts ...RecorderOption) (*AudioRecorder, error) {
	if driver == nil {
		return nil, errors.Newf("audio driver is required").
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()
	}
	if log == nil {
		log = logger.Global().Module("recorder")
	}
	r := &AudioRecorder{
		driver:  driver,
		cfg:     cfg,
		log:     log,
		metrics: noopMetrics{},
		now:     time.Now,
		notify:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// AddListener registers l. Listeners are invoked in registration order.
func (r *AudioRecorder) AddListener(l Listener) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateCreated {
		return stateError(ErrListenersFrozen, r.state)
	}
	if l == nil {
		return errors.Newf("listener is nil").
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()
	}
	r.listeners = append(r.listeners, l)
	return nil
}

// Start validates the device and parameters, allocates the buffer pool,
// opens and starts the stream and launches the consumer.
func (r *AudioRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateCreated {
		return stateError(ErrAlreadyStarted, r.state)
	}
	if err := r.cfg.validate(); err != nil {
		return err
	}

	devices, err := r.driver.InputDevices()
	if err != nil {
		return deviceError(err, "listing input devices failed")
	}
	r.devices = devices
	device, ok := r.findDevice(r.cfg.DeviceIndex)
	if !ok {
		return deviceError(nil, "invalid input device index",
			"device_index", r.cfg.DeviceIndex, "device_count", len(devices))
	}
	if device.InputChannelCount > 0 && r.cfg.ChannelCount > device.InputChannelCount {
		return deviceError(nil, "channel count exceeds device inputs",
			"channel_count", r.cfg.ChannelCount, "device_channels", device.InputChannelCount)
	}

	frames := r.cfg.FramesPerBuffer()
	count := r.cfg.BufferCount()
	pool, err := NewBufferPool(count, frames*r.cfg.ChannelCount*SampleSize)
	if err != nil {
		return err
	}
	r.pool = pool
	r.queue = make(chan queueItem, queueFactor*count)

	stream, err := r.driver.OpenStream(StreamConfig{
		DeviceIndex:     r.cfg.DeviceIndex,
		ChannelCount:    r.cfg.ChannelCount,
		SampleRate:      r.cfg.SampleRate,
		FramesPerBuffer: frames,
	}, StreamCallbacks{
		Data: r.onInput,
		Stop: r.onStreamStop,
	})
	if err != nil {
		return deviceError(err, "opening input stream failed", "device_index", r.cfg.DeviceIndex)
	}

	r.accepting.Store(true)
	if err := stream.Start(); err != nil {
		r.accepting.Store(false)
		if cerr := stream.Close(); cerr != nil {
			r.log.Warn("closing stream after failed start", logger.Error(cerr))
		}
		return deviceError(err, "starting input stream failed", "device_index", r.cfg.DeviceIndex)
	}

	r.stream = stream
	r.setState(StateStarted)
	go r.consume()

	r.log.Info("recorder started",
		logger.Int("device_index", r.cfg.DeviceIndex),
		logger.String("device_name", device.Name),
		logger.Int("channel_count", r.cfg.ChannelCount),
		logger.Int("sample_rate", r.cfg.SampleRate),
		logger.Int("frames_per_buffer", frames),
		logger.Int("buffer_count", count))
	return nil
}

func (r *AudioRecorder) findDevice(index int) (InputDevice, bool) {
	for _, d := range r.devices {
		if d.Index == index {
			return d, true
		}
	}
	return InputDevice{}, false
}

// Stop shuts the recorder down. It stops driver callbacks and signals the
// consumer, which drains queued deliveries, delivers a final
// RecordingStopped when recording, and exits. Stop does not wait for the
// consumer; use Wait. It is idempotent and may be called from a listener.
func (r *AudioRecorder) Stop() error {
	r.mu.Lock()
	switch r.state {
	case StateStopped:
		r.mu.Unlock()
		return nil
	case StateCreated:
		r.setState(StateStopped)
		close(r.doneCh)
		r.mu.Unlock()
		return nil
	}
	r.setState(StateStopped)
	r.accepting.Store(false)
	stream := r.stream
	r.mu.Unlock()

	err := stream.Stop()
	close(r.stopCh)
	if err != nil {
		r.log.Warn("stopping input stream failed", logger.Error(err))
		return errors.New(err).
			Component(ComponentAudioCore).
			Category(errors.CategoryAudioStream).
			Context("operation", "stop_stream").
			Build()
	}
	return nil
}

// Wait blocks until the recorder has stopped and the consumer has exited,
// or ctx is done. It does not stop the recorder.
func (r *AudioRecorder) Wait(ctx context.Context) error {
	select {
	case <-r.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitTimeout waits up to d and reports whether the recorder stopped.
func (r *AudioRecorder) WaitTimeout(d time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return r.Wait(ctx) == nil
}

// Done is closed once the recorder has fully stopped.
func (r *AudioRecorder) Done() <-chan struct{} { return r.doneCh }

func (r *AudioRecorder) onStreamStop(err error) {
	if !r.accepting.Load() {
		// stop we asked for
		return
	}
	if err == nil {
		err = ErrStreamStopped
	} else {
		err = fmt.Errorf("%w: %w", ErrStreamStopped, err)
	}
	built := errors.New(err).
		Component(ComponentAudioCore).
		Category(errors.CategoryAudioDevice).
		Context("device_index", r.cfg.DeviceIndex).
		Build()
	var stored error = built
	r.failure.CompareAndSwap(nil, &stored)
	r.log.Error("input stream stopped unexpectedly, stopping recorder", logger.Error(built))

	// the driver may hold locks while calling us
	go func() { _ = r.Stop() }()
}

// onInput is the producer. It runs on the driver thread and never blocks.
func (r *AudioRecorder) onInput(samples []byte, frameCount int, captureTime time.Time, inputOverflow bool) {
	if !r.accepting.Load() {
		return
	}
	r.inflight.Add(1)
	defer r.inflight.Add(-1)
	if !r.accepting.Load() {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.counters.droppedCallbacks.Add(1)
			r.metrics.RecordDroppedCallback()
			r.log.Error("input callback panicked, delivery dropped",
				logger.Any("panic", p),
				logger.String("stack", string(debug.Stack())))
		}
	}()

	frameBytes := r.cfg.ChannelCount * SampleSize
	perBuffer := r.cfg.FramesPerBuffer()
	for frameCount > 0 {
		n := min(frameCount, perBuffer)
		chunk := samples[:min(len(samples), n*frameBytes)]
		samples = samples[len(chunk):]
		r.deliver(chunk, n, captureTime, inputOverflow)
		captureTime = captureTime.Add(r.framesDuration(n))
		frameCount -= n
		inputOverflow = false
	}
}

func (r *AudioRecorder) framesDuration(frames int) time.Duration {
	return time.Duration(frames) * time.Second / time.Duration(r.cfg.SampleRate)
}

func (r *AudioRecorder) deliver(samples []byte, frames int, t time.Time, inputOverflow bool) {
	buf, ok := r.pool.TryAcquire()
	if ok {
		buf.fill(samples, frames, r.cfg.ChannelCount*SampleSize, t, inputOverflow)
		if r.send(queueItem{buf: buf, frames: frames, captureTime: t, inputOverflow: inputOverflow}) {
			return
		}
		r.pool.Release(buf)
	}

	r.counters.overflowFrames.Add(uint64(frames))
	r.counters.overflowedDeliveries.Add(1)
	r.metrics.RecordOverflow(frames)

	// Markers may fill at most half the queue, leaving room for every
	// buffer in the pool.
	if len(r.queue) < r.pool.Size() &&
		r.send(queueItem{frames: frames, captureTime: t, inputOverflow: inputOverflow}) {
		return
	}
	r.addPending(frames, t, inputOverflow)
}

// send enqueues item without blocking, attaching any pending overflow run.
func (r *AudioRecorder) send(item queueItem) bool {
	if !r.hasPending.Load() {
		select {
		case r.queue <- item:
			return true
		default:
			return false
		}
	}

	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	item.carried = r.pending
	select {
	case r.queue <- item:
		r.pending = nil
		r.hasPending.Store(false)
		return true
	default:
		return false
	}
}

func (r *AudioRecorder) addPending(frames int, t time.Time, inputOverflow bool) {
	r.pendingMu.Lock()
	r.pending = r.pending.add(r.schedule, frames, t, inputOverflow)
	r.hasPending.Store(true)
	r.pendingMu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// takePendingIfIdle returns the pending overflow run when no earlier
// delivery is still queued.
func (r *AudioRecorder) takePendingIfIdle() (overflowRuns, bool) {
	if !r.hasPending.Load() {
		return nil, false
	}
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	if len(r.queue) > 0 || len(r.pending) == 0 {
		return nil, false
	}
	runs := r.pending
	r.pending = nil
	r.hasPending.Store(false)
	return runs, true
}

// consume is the single consumer goroutine.
func (r *AudioRecorder) consume() {
	defer close(r.doneCh)
	defer r.closeStream()

	for {
		select {
		case item := <-r.queue:
			r.handle(item)
		case <-r.notify:
		case <-r.stopCh:
			r.drain()
			return
		}
		if runs, ok := r.takePendingIfIdle(); ok {
			r.dispatchRuns(runs)
		}
	}
}

// drain delivers everything the producer handed over before Stop.
func (r *AudioRecorder) drain() {
	for r.inflight.Load() > 0 {
		time.Sleep(drainPollInterval)
	}
	for {
		select {
		case item := <-r.queue:
			r.handle(item)
			continue
		default:
		}
		break
	}
	if runs, ok := r.takePendingIfIdle(); ok {
		r.dispatchRuns(runs)
	}
	if r.recording.Load() {
		r.setRecording(false)
		r.fanOut(EventRecordingStopped, func(l Listener) error {
			return l.RecordingStopped(r, r.now())
		})
	}

	stats := r.Stats()
	r.log.Info("recorder stopped",
		logger.Uint64("delivered_buffers", stats.DeliveredBuffers),
		logger.Uint64("overflow_frames", stats.OverflowFrames),
		logger.Uint64("dropped_callbacks", stats.DroppedCallbacks),
		logger.Uint64("listener_failures", stats.ListenerFailures))
}

func (r *AudioRecorder) closeStream() {
	r.mu.Lock()
	stream := r.stream
	r.mu.Unlock()
	if stream == nil {
		return
	}
	if err := stream.Close(); err != nil {
		r.log.Warn("closing input stream failed", logger.Error(err))
	}
}

func (r *AudioRecorder) handle(item queueItem) {
	r.dispatchRuns(item.carried)
	if item.buf == nil {
		r.dispatchOverflow(overflowRun{frames: item.frames, start: item.captureTime, inputOverflow: item.inputOverflow})
		return
	}

	buf := item.buf
	defer func() {
		r.pool.Release(buf)
		r.metrics.SetBuffersInFlight(r.pool.InFlight())
	}()
	r.counters.delivered.Add(1)
	r.metrics.RecordBufferDelivered(buf.frames)

	if !r.gate(buf.captureTime) {
		return
	}
	samples := buf.Samples()
	r.fanOut(EventInputArrived, func(l Listener) error {
		return l.InputArrived(r, buf.captureTime, samples, buf.frames, buf.inputOverflow)
	})
}

func (r *AudioRecorder) dispatchRuns(runs overflowRuns) {
	for _, run := range runs {
		r.dispatchOverflow(run)
	}
}

func (r *AudioRecorder) dispatchOverflow(run overflowRun) {
	if !r.gate(run.start) {
		return
	}
	r.counters.overflowEvents.Add(1)
	r.fanOut(EventInputOverflowed, func(l Listener) error {
		return l.InputOverflowed(r, run.start, run.frames, run.inputOverflow)
	})
}

// gate applies schedule transitions at t and reports whether t is inside a
// recording interval.
func (r *AudioRecorder) gate(t time.Time) bool {
	in := r.schedule.Contains(t)
	switch rec := r.recording.Load(); {
	case in && !rec:
		r.setRecording(true)
		r.counters.recordingSpans.Add(1)
		r.fanOut(EventRecordingStarting, func(l Listener) error { return l.RecordingStarting(r, t) })
		r.fanOut(EventRecordingStarted, func(l Listener) error { return l.RecordingStarted(r, t) })
	case !in && rec:
		r.setRecording(false)
		r.fanOut(EventRecordingStopped, func(l Listener) error { return l.RecordingStopped(r, t) })
	}
	return in
}

func (r *AudioRecorder) setRecording(on bool) {
	r.recording.Store(on)
	r.metrics.SetRecording(on)
}

func (r *AudioRecorder) fanOut(event string, call func(Listener) error) {
	for _, l := range r.listeners {
		r.invoke(l, event, call)
	}
}

func (r *AudioRecorder) invoke(l Listener, event string, call func(Listener) error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.listenerFailed(l, event, fmt.Errorf("panic: %v", p))
		}
		r.metrics.RecordListenerDuration(listenerName(l), event, time.Since(start))
	}()
	if err := call(l); err != nil {
		r.listenerFailed(l, event, err)
	}
}

func (r *AudioRecorder) listenerFailed(l Listener, event string, err error) {
	name := listenerName(l)
	r.counters.listenerFailures.Add(1)
	r.metrics.RecordListenerFailure(name, event)
	r.log.Error("listener callback failed",
		logger.String("listener", name),
		logger.String("event", event),
		logger.Error(err))
}

func listenerName(l Listener) string {
	if n, ok := l.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", l)
}

func (r *AudioRecorder) setState(s State) {
	r.state = s
	r.stateVal.Store(int32(s))
}

// State returns the lifecycle state.
func (r *AudioRecorder) State() State { return State(r.stateVal.Load()) }

// Recording reports whether the recorder is inside a recording span.
func (r *AudioRecorder) Recording() bool { return r.recording.Load() }

// Err returns the failure that stopped the recorder, or nil.
func (r *AudioRecorder) Err() error {
	if p := r.failure.Load(); p != nil {
		return *p
	}
	return nil
}

func (r *AudioRecorder) DeviceIndex() int     { return r.cfg.DeviceIndex }
func (r *AudioRecorder) ChannelCount() int    { return r.cfg.ChannelCount }
func (r *AudioRecorder) SampleRate() int      { return r.cfg.SampleRate }
func (r *AudioRecorder) SampleSize() int      { return SampleSize }
func (r *AudioRecorder) FramesPerBuffer() int { return r.cfg.FramesPerBuffer() }

// BufferDuration returns the duration of one buffer.
func (r *AudioRecorder) BufferDuration() time.Duration {
	return r.framesDuration(r.cfg.FramesPerBuffer())
}

// TotalBufferDuration returns the audio duration the whole pool can hold.
func (r *AudioRecorder) TotalBufferDuration() time.Duration {
	return time.Duration(r.cfg.BufferCount()) * r.BufferDuration()
}

// Schedule returns the recording schedule, possibly nil.
func (r *AudioRecorder) Schedule() *schedule.Schedule { return r.schedule }

// InputDevices returns the devices seen by Start, or queries the driver
// before the recorder has started.
func (r *AudioRecorder) InputDevices() ([]InputDevice, error) {
	r.mu.Lock()
	devices := r.devices
	r.mu.Unlock()
	if devices != nil {
		return devices, nil
	}
	devices, err := r.driver.InputDevices()
	if err != nil {
		return nil, deviceError(err, "listing input devices failed")
	}
	return devices, nil
}

// Stats returns a snapshot of the recorder counters.
func (r *AudioRecorder) Stats() Stats {
	s := r.counters.snapshot()
	r.mu.Lock()
	pool := r.pool
	r.mu.Unlock()
	if pool != nil {
		s.Pool = pool.Stats()
	}
	return s
}
