// Package audiocore implements the capture engine: a fixed pool of sample
// buffers filled by a hardware driver callback, a single FIFO consumer that
// gates recording on a schedule, and fan-out of recording events to
// registered listeners.
//
// # Architecture Overview
//
//	Driver callback -> BufferPool -> queue -> consumer -> schedule gate -> listeners
//
// The driver callback (producer) never blocks. It acquires a buffer with
// BufferPool.TryAcquire, copies the delivered samples into it and hands it to
// the consumer with a non-blocking send. When the pool is exhausted the
// delivery is reported downstream as an overflow of the same length, which
// listeners treat as zero-filled audio.
//
// # Concurrency and Thread Safety
//
//   - The producer runs on the driver's thread and takes no locks on the
//     normal path.
//   - The consumer is one goroutine. It evaluates the schedule and invokes
//     every listener callback, so listeners need no internal locking for
//     state touched only by their callbacks.
//   - Status accessors (Recording, Stats, State, ...) are safe to call from
//     any goroutine.
//   - Stop may be called from any goroutine, including from inside a
//     listener callback.
//
// # Recording Events
//
// For each delivery the consumer evaluates the schedule at the delivery's
// capture time:
//
//  1. Entering an interval: RecordingStarting then RecordingStarted.
//  2. Inside an interval: InputArrived, or InputOverflowed for deliveries
//     that found the pool empty.
//  3. Leaving an interval: RecordingStopped.
//
// Stopping the recorder while recording delivers a final RecordingStopped.
//
// Example:
//
//	rec, err := audiocore.NewAudioRecorder(driver, audiocore.RecorderConfig{
//	    DeviceIndex:     0,
//	    ChannelCount:    1,
//	    SampleRate:      22050,
//	    BufferSize:      0.05,
//	    TotalBufferSize: 60,
//	}, log, audiocore.WithSchedule(sched))
//	if err != nil {
//	    return err
//	}
//	_ = rec.AddListener(writer)
//	if err := rec.Start(); err != nil {
//	    return err
//	}
//	defer rec.Stop()
package audiocore
