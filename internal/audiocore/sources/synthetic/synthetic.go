// Package synthetic provides a driver that generates a sine tone in place of
// a soundcard, for machines without capture hardware.
package synthetic

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/vesperrec/vesper-recorder/internal/audiocore"
	"github.com/vesperrec/vesper-recorder/internal/errors"
)

const (
	componentSynthetic = "audiocore.synthetic"

	// DefaultFrequency is the tone frequency in Hz.
	DefaultFrequency = 440.0
	// DefaultAmplitude is the tone amplitude relative to full scale.
	DefaultAmplitude = 0.25
	// MaxChannels is the channel count the synthetic device reports.
	MaxChannels = 2
)

// Driver generates a sine tone at the rate of a real device.
type Driver struct {
	Frequency float64
	Amplitude float64

	// Now and Tick are overridable for tests.
	Now  func() time.Time
	Tick func(d time.Duration) (<-chan time.Time, func())
}

var _ audiocore.Driver = (*Driver)(nil)

// NewDriver returns a driver producing a DefaultFrequency tone.
func NewDriver() *Driver {
	return &Driver{Frequency: DefaultFrequency, Amplitude: DefaultAmplitude}
}

// InputDevices returns the single synthetic device.
func (d *Driver) InputDevices() ([]audiocore.InputDevice, error) {
	return []audiocore.InputDevice{{
		Index:             0,
		Name:              "Synthetic sine tone",
		InputChannelCount: MaxChannels,
		Default:           true,
	}}, nil
}

// OpenStream validates cfg and returns a stream that is not yet running.
func (d *Driver) OpenStream(cfg audiocore.StreamConfig, cb audiocore.StreamCallbacks) (audiocore.Stream, error) {
	if cfg.DeviceIndex != 0 || cfg.ChannelCount < 1 || cfg.ChannelCount > MaxChannels ||
		cfg.SampleRate <= 0 || cfg.FramesPerBuffer <= 0 {
		return nil, errors.Newf("unsupported synthetic stream configuration").
			Component(componentSynthetic).
			Category(errors.CategoryAudioDevice).
			Context("device_index", cfg.DeviceIndex).
			Context("channel_count", cfg.ChannelCount).
			Context("sample_rate", cfg.SampleRate).
			Build()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	tick := d.Tick
	if tick == nil {
		tick = func(p time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(p)
			return t.C, t.Stop
		}
	}
	return &stream{
		cfg:       cfg,
		cb:        cb,
		gen:       newToneGenerator(d.Frequency, d.Amplitude, cfg.SampleRate, cfg.ChannelCount),
		now:       now,
		tick:      tick,
		period:    time.Duration(cfg.FramesPerBuffer) * time.Second / time.Duration(cfg.SampleRate),
		startable: true,
	}, nil
}

type stream struct {
	cfg    audiocore.StreamConfig
	cb     audiocore.StreamCallbacks
	gen    *toneGenerator
	now    func() time.Time
	tick   func(time.Duration) (<-chan time.Time, func())
	period time.Duration

	mu        sync.Mutex
	startable bool
	quit      chan struct{}
	done      chan struct{}
}

func (s *stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.startable {
		return errors.Newf("synthetic stream already started").
			Component(componentSynthetic).
			Category(errors.CategoryState).
			Build()
	}
	s.startable = false
	s.quit = make(chan struct{})
	s.done = make(chan struct{})
	c, stop := s.tick(s.period)
	go s.run(c, stop, s.quit, s.done)
	return nil
}

// run delivers one buffer per tick, stamped with the time its first frame
// would have been captured. It never reads s.quit, which Stop clears.
func (s *stream) run(c <-chan time.Time, stopTicker func(), quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer stopTicker()
	buf := make([]byte, s.cfg.FramesPerBuffer*s.cfg.ChannelCount*audiocore.SampleSize)
	for {
		select {
		case <-quit:
			return
		case <-c:
			s.gen.fill(buf)
			s.cb.Data(buf, s.cfg.FramesPerBuffer, s.now().Add(-s.period), false)
		}
	}
}

// Stop halts delivery and waits for the generator goroutine, so no callback
// runs after it returns.
func (s *stream) Stop() error {
	s.mu.Lock()
	quit, done := s.quit, s.done
	s.quit = nil
	s.mu.Unlock()
	if quit == nil {
		return nil
	}
	close(quit)
	<-done
	return nil
}

func (s *stream) Close() error { return s.Stop() }

// toneGenerator writes a continuous sine wave as 16-bit little-endian PCM,
// the same sample on every channel.
type toneGenerator struct {
	step      float64
	amplitude float64
	channels  int
	phase     float64
}

func newToneGenerator(freq, amplitude float64, sampleRate, channels int) *toneGenerator {
	if freq <= 0 {
		freq = DefaultFrequency
	}
	amplitude = math.Max(0, math.Min(1, amplitude))
	return &toneGenerator{
		step:      2 * math.Pi * freq / float64(sampleRate),
		amplitude: amplitude * math.MaxInt16,
		channels:  channels,
	}
}

func (g *toneGenerator) fill(buf []byte) {
	frameBytes := g.channels * audiocore.SampleSize
	for i := 0; i+frameBytes <= len(buf); i += frameBytes {
		v := uint16(int16(math.Round(g.amplitude * math.Sin(g.phase))))
		for c := range g.channels {
			binary.LittleEndian.PutUint16(buf[i+c*audiocore.SampleSize:], v)
		}
		g.phase = math.Mod(g.phase+g.step, 2*math.Pi)
	}
}
