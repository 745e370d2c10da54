// Package status assembles point-in-time snapshots of the recorder for the
// status page, the JSON API and the MQTT publisher.
package status

import (
	"time"

	"github.com/vesperrec/vesper-recorder/internal/audiocore"
	"github.com/vesperrec/vesper-recorder/internal/listeners"
	"github.com/vesperrec/vesper-recorder/internal/schedule"
	"github.com/vesperrec/vesper-recorder/internal/suncalc"
)

// Interval status values, relative to the snapshot time.
const (
	IntervalPast    = "Past"
	IntervalCurrent = "Current"
	IntervalFuture  = "Future"
)

// Recorder is the part of the audio recorder a snapshot reads.
type Recorder interface {
	State() audiocore.State
	Recording() bool
	Err() error
	DeviceIndex() int
	ChannelCount() int
	SampleRate() int
	BufferDuration() time.Duration
	TotalBufferDuration() time.Duration
	Schedule() *schedule.Schedule
	InputDevices() ([]audiocore.InputDevice, error)
	Stats() audiocore.Stats
}

// LevelSource provides audio levels.
type LevelSource interface {
	View() listeners.LevelMeterView
}

// FileWriterSource provides local recording state.
type FileWriterSource interface {
	View() listeners.FileWriterView
}

// Station identifies the recording site.
type Station struct {
	Name      string         `json:"name"`
	Latitude  *float64       `json:"latitude"`
	Longitude *float64       `json:"longitude"`
	Location  *time.Location `json:"-"`
}

// Snapshot is the recorder state at one instant.
type Snapshot struct {
	Version        string                    `json:"version"`
	Time           time.Time                 `json:"time"`
	TimeZone       string                    `json:"timeZone"`
	State          string                    `json:"state"`
	Recording      bool                      `json:"recording"`
	Error          string                    `json:"error,omitempty"`
	Levels         *listeners.LevelMeterView `json:"levels,omitempty"`
	Interval       *IntervalView             `json:"interval,omitempty"`
	Station        Station                   `json:"station"`
	Sun            *suncalc.SunEventTimes    `json:"sun,omitempty"`
	Devices        []Device                  `json:"devices"`
	DevicesError   string                    `json:"devicesError,omitempty"`
	Input          Input                     `json:"input"`
	LocalRecording LocalRecording            `json:"localRecording"`
	Stats          audiocore.Stats           `json:"stats"`
	Schedule       []ScheduledRecording      `json:"schedule"`
}

// IntervalView is the current recording interval, or the next one when the
// recorder is between intervals.
type IntervalView struct {
	Label string    `json:"label"` // Current or Next
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Device is an input device row.
type Device struct {
	audiocore.InputDevice
	Selected bool `json:"selected"`
}

// Input describes the configured stream.
type Input struct {
	DeviceIndex     int     `json:"deviceIndex"`
	DeviceName      string  `json:"deviceName,omitempty"`
	DeviceFound     bool    `json:"deviceFound"`
	ChannelCount    int     `json:"channelCount"`
	SampleRate      int     `json:"sampleRate"`
	BufferSize      float64 `json:"bufferSize"`      // seconds
	TotalBufferSize float64 `json:"totalBufferSize"` // seconds
}

// LocalRecording describes the file writer, when enabled.
type LocalRecording struct {
	Enabled bool `json:"enabled"`
	*listeners.FileWriterView
}

// ScheduledRecording is one compiled schedule interval.
type ScheduledRecording struct {
	Index  int       `json:"index"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Status string    `json:"status"`
}

// Source builds snapshots. LevelMeter, FileWriter and Sun may be nil.
type Source struct {
	Version    string
	Station    Station
	Sun        *suncalc.SunCalc
	Recorder   Recorder
	LevelMeter LevelSource
	FileWriter FileWriterSource
	LogTail    func() []string
	Now        func() time.Time
}

// Snapshot returns the current state.
func (s *Source) Snapshot() Snapshot {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	loc := s.Station.Location
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	r := s.Recorder

	snap := Snapshot{
		Version:   s.Version,
		Time:      now,
		TimeZone:  loc.String(),
		State:     r.State().String(),
		Recording: r.Recording(),
		Station:   s.Station,
		Stats:     r.Stats(),
		Input: Input{
			DeviceIndex:     r.DeviceIndex(),
			ChannelCount:    r.ChannelCount(),
			SampleRate:      r.SampleRate(),
			BufferSize:      r.BufferDuration().Seconds(),
			TotalBufferSize: r.TotalBufferDuration().Seconds(),
		},
	}
	if err := r.Err(); err != nil {
		snap.Error = err.Error()
	}
	if s.LevelMeter != nil {
		v := s.LevelMeter.View()
		snap.Levels = &v
	}
	if s.FileWriter != nil {
		v := s.FileWriter.View()
		snap.LocalRecording = LocalRecording{Enabled: true, FileWriterView: &v}
	}

	if s.Sun != nil {
		times := s.Sun.GetSunEventTimes(now.In(s.Sun.Location()))
		snap.Sun = &times
	}

	devices, err := r.InputDevices()
	if err != nil {
		snap.DevicesError = err.Error()
	}
	snap.Devices = make([]Device, 0, len(devices))
	for _, d := range devices {
		selected := d.Index == snap.Input.DeviceIndex
		if selected {
			snap.Input.DeviceName = d.Name
			snap.Input.DeviceFound = true
		}
		snap.Devices = append(snap.Devices, Device{InputDevice: d, Selected: selected})
	}

	sched := r.Schedule()
	snap.Interval = currentOrNext(sched, now, loc)
	snap.Schedule = scheduledRecordings(sched, now, loc)
	return snap
}

// Tail returns recent log lines, oldest first.
func (s *Source) Tail() []string {
	if s.LogTail == nil {
		return nil
	}
	return s.LogTail()
}

func currentOrNext(sched *schedule.Schedule, now time.Time, loc *time.Location) *IntervalView {
	if iv, ok := sched.Current(now); ok {
		return &IntervalView{Label: "Current", Start: iv.Start.In(loc), End: iv.End.In(loc)}
	}
	if iv, ok := sched.Next(now); ok {
		return &IntervalView{Label: "Next", Start: iv.Start.In(loc), End: iv.End.In(loc)}
	}
	return nil
}

func scheduledRecordings(sched *schedule.Schedule, now time.Time, loc *time.Location) []ScheduledRecording {
	rows := make([]ScheduledRecording, 0, sched.Len())
	i := 0
	for iv := range sched.All() {
		rows = append(rows, ScheduledRecording{
			Index:  i,
			Start:  iv.Start.In(loc),
			End:    iv.End.In(loc),
			Status: IntervalStatus(iv, now),
		})
		i++
	}
	return rows
}

// IntervalStatus classifies iv relative to now.
func IntervalStatus(iv schedule.Interval, now time.Time) string {
	switch {
	case !now.Before(iv.End):
		return IntervalPast
	case now.Before(iv.Start):
		return IntervalFuture
	default:
		return IntervalCurrent
	}
}
