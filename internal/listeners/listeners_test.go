package listeners

import (
	"time"

	"github.com/vesperrec/vesper-recorder/internal/schedule"
)

var t0 = time.Date(2024, 5, 1, 22, 0, 0, 0, time.UTC)

// fakeInfo stands in for a running recorder.
type fakeInfo struct {
	channels int
	rate     int
	frames   int
	err      error
}

func (f fakeInfo) DeviceIndex() int             { return 0 }
func (f fakeInfo) ChannelCount() int            { return f.channels }
func (f fakeInfo) SampleRate() int              { return f.rate }
func (f fakeInfo) SampleSize() int              { return 2 }
func (f fakeInfo) FramesPerBuffer() int         { return f.frames }
func (f fakeInfo) Schedule() *schedule.Schedule { return nil }
func (f fakeInfo) Recording() bool              { return true }
func (f fakeInfo) Err() error                   { return f.err }

// pcm encodes samples as 16-bit little-endian bytes.
func pcm(samples ...int16) []byte {
	b := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		b = append(b, byte(uint16(s)), byte(uint16(s)>>8))
	}
	return b
}

func constant(v int16, n int) []byte {
	s := make([]int16, n)
	for i := range s {
		s[i] = v
	}
	return pcm(s...)
}
