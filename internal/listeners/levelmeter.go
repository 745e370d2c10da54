package listeners

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/vesperrec/vesper-recorder/internal/audiocore"
	"github.com/vesperrec/vesper-recorder/internal/logger"
)

// MinDBFS is the lowest level reported. Silence would otherwise be -Inf.
const MinDBFS = -120.0

// LevelMeter computes RMS and peak levels per channel over blocks of
// UpdatePeriod seconds.
type LevelMeter struct {
	audiocore.BaseListener

	updatePeriod float64
	log          logger.Logger

	channels  int
	blockSize int
	frames    int
	fullScale float64
	sums      []float64
	peaks     []float64

	mu   sync.RWMutex
	rms  []float64
	peak []float64
}

// LevelMeterView is a snapshot of the latest levels.
type LevelMeterView struct {
	Available    bool      `json:"available"`
	RMS          []float64 `json:"rms,omitempty"`  // dBFS per channel
	Peak         []float64 `json:"peak,omitempty"` // dBFS per channel
	UpdatePeriod float64   `json:"updatePeriod"`   // seconds
}

// NewLevelMeter returns a meter that updates every updatePeriod seconds.
func NewLevelMeter(updatePeriod float64, log logger.Logger) *LevelMeter {
	if log == nil {
		log = logger.Global().Module("listeners")
	}
	return &LevelMeter{updatePeriod: updatePeriod, log: log}
}

func (m *LevelMeter) Name() string { return "level_meter" }

func (m *LevelMeter) RecordingStarting(r audiocore.RecorderInfo, _ time.Time) error {
	m.channels = r.ChannelCount()
	m.blockSize = max(1, int(math.Round(float64(r.SampleRate())*m.updatePeriod)))
	m.frames = 0
	m.fullScale = math.Exp2(float64(r.SampleSize()*8 - 1))
	m.sums = make([]float64, m.channels)
	m.peaks = make([]float64, m.channels)
	return nil
}

func (m *LevelMeter) InputArrived(_ audiocore.RecorderInfo, _ time.Time, samples []byte, frames int, _ bool) error {
	m.accumulate(samples, frames)
	return nil
}

// InputOverflowed counts the lost frames as silence.
func (m *LevelMeter) InputOverflowed(_ audiocore.RecorderInfo, _ time.Time, frames int, _ bool) error {
	m.accumulate(nil, frames)
	return nil
}

func (m *LevelMeter) RecordingStopped(audiocore.RecorderInfo, time.Time) error {
	m.mu.Lock()
	m.rms, m.peak = nil, nil
	m.mu.Unlock()
	return nil
}

// accumulate adds frames of 16-bit little-endian samples. A nil samples
// slice stands for zeros.
func (m *LevelMeter) accumulate(samples []byte, frames int) {
	if m.channels == 0 {
		return
	}
	frameBytes := m.channels * audiocore.SampleSize
	if samples != nil {
		frames = min(frames, len(samples)/frameBytes)
	}
	for i := 0; i < frames; {
		n := min(frames-i, m.blockSize-m.frames)
		if samples != nil {
			block := samples[i*frameBytes : (i+n)*frameBytes]
			for f := 0; f < n; f++ {
				for c := range m.channels {
					off := f*frameBytes + c*audiocore.SampleSize
					v := float64(int16(binary.LittleEndian.Uint16(block[off:])))
					m.sums[c] += v * v
					m.peaks[c] = math.Max(m.peaks[c], math.Abs(v))
				}
			}
		}
		m.frames += n
		i += n
		if m.frames == m.blockSize {
			m.publish()
		}
	}
}

func (m *LevelMeter) publish() {
	rms := make([]float64, m.channels)
	peak := make([]float64, m.channels)
	for c := range m.channels {
		rms[c] = rmsToDBFS(math.Sqrt(m.sums[c]/float64(m.blockSize)), m.fullScale)
		peak[c] = sampleToDBFS(m.peaks[c], m.fullScale)
		m.sums[c], m.peaks[c] = 0, 0
	}
	m.frames = 0

	m.mu.Lock()
	m.rms, m.peak = rms, peak
	m.mu.Unlock()

	m.log.Debug("audio levels",
		logger.Any("rms_dbfs", rms),
		logger.Any("peak_dbfs", peak))
}

// Levels returns the latest RMS and peak levels in dBFS, or ok false when
// none are available.
func (m *LevelMeter) Levels() (rms, peak []float64, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.rms == nil {
		return nil, nil, false
	}
	return append([]float64(nil), m.rms...), append([]float64(nil), m.peak...), true
}

// View returns a snapshot for status reporting.
func (m *LevelMeter) View() LevelMeterView {
	rms, peak, ok := m.Levels()
	return LevelMeterView{Available: ok, RMS: rms, Peak: peak, UpdatePeriod: m.updatePeriod}
}

// rmsToDBFS converts an RMS sample value to dBFS, where a full scale sine
// wave is 0 dBFS.
func rmsToDBFS(rms, fullScale float64) float64 {
	return clampDBFS(20 * math.Log10(rms/(fullScale*math.Sqrt2/2)))
}

// sampleToDBFS converts an absolute sample value to dBFS.
func sampleToDBFS(v, fullScale float64) float64 {
	return clampDBFS(20 * math.Log10(v/fullScale))
}

func clampDBFS(db float64) float64 {
	if math.IsNaN(db) || db < MinDBFS {
		return MinDBFS
	}
	return db
}
