package mqtt

import (
	"time"

	"github.com/vesperrec/vesper-recorder/internal/status"
)

// StatusDTO is the payload of a status message. Field names are part of the
// published message format.
type StatusDTO struct {
	Station        string    `json:"station"`
	Version        string    `json:"version,omitempty"`
	Time           time.Time `json:"time"`
	State          string    `json:"state"`
	Recording      bool      `json:"recording"`
	Error          string    `json:"error,omitempty"`
	RMS            []float64 `json:"rms,omitempty"`  // dBFS per channel
	Peak           []float64 `json:"peak,omitempty"` // dBFS per channel
	Interval       *Interval `json:"interval,omitempty"`
	DeviceName     string    `json:"deviceName,omitempty"`
	SampleRate     int       `json:"sampleRate"`
	ChannelCount   int       `json:"channelCount"`
	OverflowFrames uint64    `json:"overflowFrames"`
	CurrentFile    string    `json:"currentFile,omitempty"`
	FilesWritten   int       `json:"filesWritten,omitempty"`
	FreeBytes      uint64    `json:"freeBytes,omitempty"`
}

// Interval is the current or next recording interval.
type Interval struct {
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewStatusDTO builds the message payload from a snapshot.
func NewStatusDTO(s status.Snapshot) StatusDTO {
	dto := StatusDTO{
		Station:        s.Station.Name,
		Version:        s.Version,
		Time:           s.Time,
		State:          s.State,
		Recording:      s.Recording,
		Error:          s.Error,
		DeviceName:     s.Input.DeviceName,
		SampleRate:     s.Input.SampleRate,
		ChannelCount:   s.Input.ChannelCount,
		OverflowFrames: s.Stats.OverflowFrames,
	}
	if s.Levels != nil && s.Levels.Available {
		dto.RMS = s.Levels.RMS
		dto.Peak = s.Levels.Peak
	}
	if s.Interval != nil {
		dto.Interval = &Interval{Label: s.Interval.Label, Start: s.Interval.Start, End: s.Interval.End}
	}
	if w := s.LocalRecording.FileWriterView; w != nil {
		dto.CurrentFile = w.CurrentFile
		dto.FilesWritten = w.FilesWritten
		dto.FreeBytes = w.FreeBytes
	}
	return dto
}
