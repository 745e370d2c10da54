package audiocore

import (
	"sync/atomic"
	"time"

	"github.com/vesperrec/vesper-recorder/internal/errors"
)

// Buffer is a fixed-capacity block of interleaved samples. It is owned by
// exactly one stage at a time and returned to its pool after the last
// listener has seen it.
type Buffer struct {
	data          []byte
	length        int
	frames        int
	captureTime   time.Time
	inputOverflow bool
	pool          *BufferPool
	held          atomic.Bool
}

// Samples returns the valid bytes of the buffer.
func (b *Buffer) Samples() []byte { return b.data[:b.length] }

// FrameCount returns the number of frames held.
func (b *Buffer) FrameCount() int { return b.frames }

// CaptureTime returns the capture time of the first frame.
func (b *Buffer) CaptureTime() time.Time { return b.captureTime }

// Cap returns the buffer capacity in bytes.
func (b *Buffer) Cap() int { return len(b.data) }

// fill copies samples into the buffer, zero-padding up to frameBytes when
// the driver delivered fewer bytes than frames imply.
func (b *Buffer) fill(samples []byte, frames, frameBytes int, t time.Time, inputOverflow bool) {
	n := min(frames*frameBytes, len(b.data))
	copied := copy(b.data[:n], samples)
	clear(b.data[copied:n])
	b.length = n
	b.frames = frames
	b.captureTime = t
	b.inputOverflow = inputOverflow
}

// BufferPoolStats is a snapshot of pool counters.
type BufferPoolStats struct {
	Size         int    `json:"size"`
	BufferBytes  int    `json:"bufferBytes"`
	InFlight     int    `json:"inFlight"`
	Acquisitions uint64 `json:"acquisitions"`
	Exhaustions  uint64 `json:"exhaustions"`
}

// BufferPool is a fixed set of preallocated buffers. The free list is a
// buffered channel so acquisition and release never block.
type BufferPool struct {
	free         chan *Buffer
	size         int
	bufferBytes  int
	inFlight     atomic.Int64
	acquisitions atomic.Uint64
	exhaustions  atomic.Uint64
}

// NewBufferPool preallocates count buffers of bufferBytes each.
func NewBufferPool(count, bufferBytes int) (*BufferPool, error) {
	if count < 1 || bufferBytes < 1 {
		return nil, errors.Newf("invalid buffer pool dimensions").
			Component(ComponentAudioCore).
			Category(errors.CategoryBuffer).
			Context("count", count).
			Context("buffer_bytes", bufferBytes).
			Build()
	}
	p := &BufferPool{
		free:        make(chan *Buffer, count),
		size:        count,
		bufferBytes: bufferBytes,
	}
	for range count {
		p.free <- &Buffer{data: make([]byte, bufferBytes), pool: p}
	}
	return p, nil
}

// TryAcquire returns a free buffer, or false when every buffer is in flight.
func (p *BufferPool) TryAcquire() (*Buffer, bool) {
	select {
	case b := <-p.free:
		b.held.Store(true)
		p.inFlight.Add(1)
		p.acquisitions.Add(1)
		return b, true
	default:
		p.exhaustions.Add(1)
		return nil, false
	}
}

// Release returns b to the pool. Buffers from another pool and repeated
// releases are ignored.
func (p *BufferPool) Release(b *Buffer) {
	if b == nil || b.pool != p || !b.held.CompareAndSwap(true, false) {
		return
	}
	b.length = 0
	b.frames = 0
	p.inFlight.Add(-1)
	p.free <- b
}

// Size returns the number of buffers in the pool.
func (p *BufferPool) Size() int { return p.size }

// BufferBytes returns the capacity of each buffer.
func (p *BufferPool) BufferBytes() int { return p.bufferBytes }

// InFlight returns the number of acquired, unreleased buffers.
func (p *BufferPool) InFlight() int { return int(p.inFlight.Load()) }

// Stats returns a snapshot of the pool counters.
func (p *BufferPool) Stats() BufferPoolStats {
	return BufferPoolStats{
		Size:         p.size,
		BufferBytes:  p.bufferBytes,
		InFlight:     p.InFlight(),
		Acquisitions: p.acquisitions.Load(),
		Exhaustions:  p.exhaustions.Load(),
	}
}
