package status

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesperrec/vesper-recorder/internal/audiocore"
	"github.com/vesperrec/vesper-recorder/internal/listeners"
	"github.com/vesperrec/vesper-recorder/internal/schedule"
	"github.com/vesperrec/vesper-recorder/internal/suncalc"
)

type fakeRecorder struct {
	recording  bool
	err        error
	devices    []audiocore.InputDevice
	devicesErr error
	sched      *schedule.Schedule
}

func (f *fakeRecorder) State() audiocore.State             { return audiocore.StateStarted }
func (f *fakeRecorder) Recording() bool                    { return f.recording }
func (f *fakeRecorder) Err() error                         { return f.err }
func (f *fakeRecorder) DeviceIndex() int                   { return 1 }
func (f *fakeRecorder) ChannelCount() int                  { return 2 }
func (f *fakeRecorder) SampleRate() int                    { return 22050 }
func (f *fakeRecorder) BufferDuration() time.Duration      { return 50 * time.Millisecond }
func (f *fakeRecorder) TotalBufferDuration() time.Duration { return time.Minute }
func (f *fakeRecorder) Schedule() *schedule.Schedule       { return f.sched }
func (f *fakeRecorder) Stats() audiocore.Stats             { return audiocore.Stats{DeliveredBuffers: 7} }
func (f *fakeRecorder) InputDevices() ([]audiocore.InputDevice, error) {
	return f.devices, f.devicesErr
}

type fixedLevels struct{}

func (fixedLevels) View() listeners.LevelMeterView {
	return listeners.LevelMeterView{Available: true, RMS: []float64{-20}, Peak: []float64{-3}, UpdatePeriod: 1}
}

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testSchedule() *schedule.Schedule {
	return schedule.New([]schedule.Interval{
		{Start: t0.Add(-2 * time.Hour), End: t0.Add(-time.Hour)},
		{Start: t0.Add(-time.Minute), End: t0.Add(time.Minute)},
		{Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour)},
	}, schedule.CoalesceTouching)
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	lat, lon := 42.4, -76.5
	src := &Source{
		Version: "1.2.3",
		Station: Station{Name: "Ithaca", Latitude: &lat, Longitude: &lon, Location: time.UTC},
		Recorder: &fakeRecorder{
			recording: true,
			devices: []audiocore.InputDevice{
				{Index: 0, Name: "Built-in", InputChannelCount: 2, Default: true},
				{Index: 1, Name: "USB", InputChannelCount: 2},
			},
			sched: testSchedule(),
		},
		LevelMeter: fixedLevels{},
		LogTail:    func() []string { return []string{"a", "b"} },
		Now:        func() time.Time { return t0 },
	}

	snap := src.Snapshot()
	assert.Equal(t, "1.2.3", snap.Version)
	assert.Equal(t, t0, snap.Time)
	assert.Equal(t, "UTC", snap.TimeZone)
	assert.True(t, snap.Recording)
	assert.Equal(t, "started", snap.State)
	assert.Empty(t, snap.Error)
	require.NotNil(t, snap.Levels)
	assert.Equal(t, []float64{-20}, snap.Levels.RMS)

	require.Len(t, snap.Devices, 2)
	assert.False(t, snap.Devices[0].Selected)
	assert.True(t, snap.Devices[1].Selected)
	assert.True(t, snap.Input.DeviceFound)
	assert.Equal(t, "USB", snap.Input.DeviceName)
	assert.InDelta(t, 0.05, snap.Input.BufferSize, 1e-9)
	assert.InDelta(t, 60, snap.Input.TotalBufferSize, 1e-9)

	require.NotNil(t, snap.Interval)
	assert.Equal(t, "Current", snap.Interval.Label)
	assert.Equal(t, t0.Add(-time.Minute), snap.Interval.Start)

	require.Len(t, snap.Schedule, 3)
	assert.Equal(t, []string{IntervalPast, IntervalCurrent, IntervalFuture},
		[]string{snap.Schedule[0].Status, snap.Schedule[1].Status, snap.Schedule[2].Status})

	assert.False(t, snap.LocalRecording.Enabled)
	assert.Equal(t, uint64(7), snap.Stats.DeliveredBuffers)
	assert.Equal(t, []string{"a", "b"}, src.Tail())

	_, err := json.Marshal(snap)
	require.NoError(t, err)
}

func TestSnapshotSunTimes(t *testing.T) {
	t.Parallel()

	edt := time.FixedZone("EDT", -4*60*60)
	src := &Source{
		Station:  Station{Name: "Ithaca", Location: edt},
		Recorder: &fakeRecorder{sched: testSchedule()},
		Now:      func() time.Time { return t0 },
	}
	assert.Nil(t, src.Snapshot().Sun)

	src.Sun = suncalc.NewSunCalc(42.4, -76.5, edt)
	snap := src.Snapshot()
	require.NotNil(t, snap.Sun)
	sun := snap.Sun

	y, m, d := sun.Sunrise.In(edt).Date()
	assert.Equal(t, []int{2024, 6, 1}, []int{y, int(m), d}, "times are for the station's local date")
	assert.True(t, sun.CivilDawn.Before(sun.Sunrise))
	assert.True(t, sun.Sunrise.Before(sun.Sunset))
	assert.True(t, sun.Sunset.Before(sun.CivilDusk))
	assert.Equal(t, 5, sun.Sunrise.In(edt).Hour())
	assert.Equal(t, 20, sun.Sunset.In(edt).Hour())

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sunrise":`)
}

func TestSnapshotBetweenIntervalsAndErrors(t *testing.T) {
	t.Parallel()

	src := &Source{
		Recorder: &fakeRecorder{
			err:        errors.New("device vanished"),
			devicesErr: errors.New("no backend"),
			sched:      testSchedule(),
		},
		Now: func() time.Time { return t0.Add(30 * time.Minute) },
	}
	snap := src.Snapshot()
	assert.Equal(t, "device vanished", snap.Error)
	assert.Equal(t, "no backend", snap.DevicesError)
	assert.Empty(t, snap.Devices)
	assert.False(t, snap.Input.DeviceFound)
	assert.Nil(t, snap.Levels)
	assert.Nil(t, src.Tail())

	require.NotNil(t, snap.Interval)
	assert.Equal(t, "Next", snap.Interval.Label)
	assert.Equal(t, t0.Add(time.Hour), snap.Interval.Start)
}

func TestSnapshotEmptySchedule(t *testing.T) {
	t.Parallel()

	src := &Source{Recorder: &fakeRecorder{}, Now: func() time.Time { return t0 }}
	snap := src.Snapshot()
	assert.Nil(t, snap.Interval)
	assert.Empty(t, snap.Schedule)
	assert.NotNil(t, snap.Schedule, "encodes as an empty list")
}

func TestIntervalStatus(t *testing.T) {
	t.Parallel()

	iv := schedule.Interval{Start: t0, End: t0.Add(time.Hour)}
	assert.Equal(t, IntervalFuture, IntervalStatus(iv, t0.Add(-time.Nanosecond)))
	assert.Equal(t, IntervalCurrent, IntervalStatus(iv, t0))
	assert.Equal(t, IntervalCurrent, IntervalStatus(iv, t0.Add(59*time.Minute)))
	assert.Equal(t, IntervalPast, IntervalStatus(iv, t0.Add(time.Hour)), "end is exclusive")
}
