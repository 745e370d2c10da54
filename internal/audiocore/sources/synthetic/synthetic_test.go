package synthetic

import (
	"encoding/binary"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vesperrec/vesper-recorder/internal/audiocore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestToneGeneratorAmplitude(t *testing.T) {
	t.Parallel()

	g := newToneGenerator(1000, 0.5, 48000, 2)
	buf := make([]byte, 4800*2*audiocore.SampleSize)
	g.fill(buf)

	var peak int16
	for i := 0; i < len(buf); i += 4 {
		left := int16(binary.LittleEndian.Uint16(buf[i:]))
		right := int16(binary.LittleEndian.Uint16(buf[i+2:]))
		require.Equal(t, left, right)
		if left > peak {
			peak = left
		}
	}
	assert.InDelta(t, 0.5*math.MaxInt16, float64(peak), 2)
}

func TestToneGeneratorIsContinuous(t *testing.T) {
	t.Parallel()

	whole := newToneGenerator(440, 1, 8000, 1)
	a := make([]byte, 200)
	whole.fill(a)

	split := newToneGenerator(440, 1, 8000, 1)
	b := make([]byte, 200)
	split.fill(b[:100])
	split.fill(b[100:])

	assert.Equal(t, a, b)
}

func TestOpenStreamValidation(t *testing.T) {
	t.Parallel()

	d := NewDriver()
	devices, err := d.InputDevices()
	require.NoError(t, err)
	require.Len(t, devices, 1)

	_, err = d.OpenStream(audiocore.StreamConfig{DeviceIndex: 1, ChannelCount: 1, SampleRate: 8000, FramesPerBuffer: 80}, audiocore.StreamCallbacks{})
	require.Error(t, err)
	_, err = d.OpenStream(audiocore.StreamConfig{ChannelCount: 3, SampleRate: 8000, FramesPerBuffer: 80}, audiocore.StreamCallbacks{})
	require.Error(t, err)
}

func TestStreamDeliversOnTick(t *testing.T) {
	t.Parallel()

	ticks := make(chan time.Time)
	stopped := make(chan struct{})
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := &Driver{
		Frequency: 440,
		Amplitude: 0.1,
		Now:       func() time.Time { return base },
		Tick: func(time.Duration) (<-chan time.Time, func()) {
			return ticks, func() { close(stopped) }
		},
	}

	var mu sync.Mutex
	var frames []int
	var stamps []time.Time
	s, err := d.OpenStream(audiocore.StreamConfig{ChannelCount: 1, SampleRate: 1000, FramesPerBuffer: 100}, audiocore.StreamCallbacks{
		Data: func(samples []byte, n int, at time.Time, overflow bool) {
			mu.Lock()
			defer mu.Unlock()
			frames = append(frames, n)
			stamps = append(stamps, at)
		},
	})
	require.NoError(t, err)
	require.NoError(t, s.Start())
	require.Error(t, s.Start())

	ticks <- base
	ticks <- base

	require.NoError(t, s.Stop())
	<-stopped
	require.NoError(t, s.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{100, 100}, frames)
	assert.Equal(t, base.Add(-100*time.Millisecond), stamps[0])
}

func TestStopWhileCallbackRuns(t *testing.T) {
	t.Parallel()

	ticks := make(chan time.Time, 1)
	d := &Driver{
		Tick: func(time.Duration) (<-chan time.Time, func()) { return ticks, func() {} },
	}
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	s, err := d.OpenStream(audiocore.StreamConfig{ChannelCount: 1, SampleRate: 1000, FramesPerBuffer: 10}, audiocore.StreamCallbacks{
		Data: func([]byte, int, time.Time, bool) {
			once.Do(func() {
				close(entered)
				<-release
			})
		},
	})
	require.NoError(t, err)
	require.NoError(t, s.Start())

	ticks <- time.Now()
	<-entered

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop() }()
	// let Stop clear its state while the callback is still running
	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the callback finished")
	}
	require.NoError(t, s.Close())
}
