package schedule

import (
	"errors"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utc(hour, minute int) time.Time {
	return time.Date(2024, 1, 1, hour, minute, 0, 0, time.UTC)
}

func TestCompileSingleInterval(t *testing.T) {
	t.Parallel()

	s, err := Compile(map[string]any{
		"start": "2024-01-01T00:00:00Z",
		"end":   "2024-01-01T01:00:00Z",
	}, Options{})
	require.NoError(t, err)

	got := slices.Collect(s.All())
	require.Len(t, got, 1)
	assert.True(t, got[0].Start.Equal(utc(0, 0)))
	assert.True(t, got[0].End.Equal(utc(1, 0)))
}

func TestCoalesceModes(t *testing.T) {
	t.Parallel()

	overlapping := map[string]any{
		"intervals": []any{
			map[string]any{"start": "2024-01-01T10:00:00Z", "end": "2024-01-01T11:00:00Z"},
			map[string]any{"start": "2024-01-01T10:30:00Z", "end": "2024-01-01T11:30:00Z"},
		},
	}
	touching := map[string]any{
		"intervals": []any{
			map[string]any{"start": "2024-01-01T10:00:00Z", "end": "2024-01-01T11:00:00Z"},
			map[string]any{"start": "2024-01-01T11:00:00Z", "end": "2024-01-01T12:00:00Z"},
		},
	}

	tests := []struct {
		name string
		spec map[string]any
		mode CoalesceMode
		want []Interval
	}{
		{"overlap merged in touching mode", overlapping, CoalesceTouching,
			[]Interval{{utc(10, 0), utc(11, 30)}}},
		{"overlap merged in overlapping mode", overlapping, CoalesceOverlapping,
			[]Interval{{utc(10, 0), utc(11, 30)}}},
		{"touching merged in touching mode", touching, CoalesceTouching,
			[]Interval{{utc(10, 0), utc(12, 0)}}},
		{"touching kept in overlapping mode", touching, CoalesceOverlapping,
			[]Interval{{utc(10, 0), utc(11, 0)}, {utc(11, 0), utc(12, 0)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := Compile(tt.spec, Options{Coalesce: tt.mode})
			require.NoError(t, err)
			got := s.Intervals()
			require.Len(t, got, len(tt.want))
			for i := range got {
				assert.True(t, got[i].Start.Equal(tt.want[i].Start), "start %d", i)
				assert.True(t, got[i].End.Equal(tt.want[i].End), "end %d", i)
			}
		})
	}
}

func randomIntervals(r *rand.Rand, n int) []Interval {
	base := utc(0, 0)
	out := make([]Interval, n)
	for i := range out {
		start := base.Add(time.Duration(r.IntN(10_000)) * time.Minute)
		out[i] = Interval{Start: start, End: start.Add(time.Duration(1+r.IntN(300)) * time.Minute)}
	}
	return out
}

func TestIntervalsAscendingAndDisjoint(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewPCG(1, 2))

	for _, mode := range []CoalesceMode{CoalesceTouching, CoalesceOverlapping} {
		for range 50 {
			s := New(randomIntervals(r, 1+r.IntN(40)), mode)
			var prev *Interval
			for iv := range s.All() {
				require.True(t, iv.End.After(iv.Start))
				if prev != nil {
					require.False(t, iv.Start.Before(prev.End), "intervals overlap: %s %s", prev, iv)
					if mode == CoalesceTouching {
						require.True(t, iv.Start.After(prev.End), "touching intervals not merged")
					}
				}
				p := iv
				prev = &p
			}
		}
	}
}

func TestFromYieldsSuffix(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewPCG(3, 4))
	s := New(randomIntervals(r, 30), CoalesceOverlapping)
	all := s.Intervals()
	require.NotEmpty(t, all)

	probes := []time.Time{utc(0, 0).Add(-time.Hour), all[len(all)-1].End.Add(time.Minute)}
	for _, iv := range all {
		probes = append(probes, iv.Start, iv.End, iv.Start.Add(iv.Duration()/2), iv.End.Add(-time.Nanosecond))
	}

	for _, p := range probes {
		var want []Interval
		for _, iv := range all {
			if iv.End.After(p) {
				want = append(want, iv)
			}
		}
		assert.Equal(t, want, slices.Collect(s.From(p)), "probe %s", p)
	}
}

func TestQueriesAreRestartableAndConcurrent(t *testing.T) {
	t.Parallel()
	s := New([]Interval{{utc(1, 0), utc(2, 0)}, {utc(3, 0), utc(4, 0)}}, CoalesceTouching)

	first := slices.Collect(s.All())
	second := slices.Collect(s.All())
	assert.Equal(t, first, second)

	// early break leaves the sequence reusable
	for range s.From(utc(0, 0)) {
		break
	}
	assert.Len(t, slices.Collect(s.From(utc(0, 0))), 2)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 100 {
				assert.Len(t, slices.Collect(s.From(utc(2, 30))), 1)
				assert.True(t, s.Contains(utc(1, 30)))
			}
		})
	}
	wg.Wait()
}

func TestCurrentNextAndContains(t *testing.T) {
	t.Parallel()
	s := New([]Interval{{utc(1, 0), utc(2, 0)}, {utc(3, 0), utc(4, 0)}}, CoalesceTouching)

	assert.False(t, s.Contains(utc(0, 59)))
	assert.True(t, s.Contains(utc(1, 0)))
	assert.False(t, s.Contains(utc(2, 0)), "end is exclusive")

	cur, ok := s.Current(utc(3, 30))
	require.True(t, ok)
	assert.True(t, cur.Start.Equal(utc(3, 0)))

	_, ok = s.Current(utc(2, 30))
	assert.False(t, ok)

	next, ok := s.Next(utc(2, 30))
	require.True(t, ok)
	assert.True(t, next.Start.Equal(utc(3, 0)))

	next, ok = s.Next(utc(1, 30))
	require.True(t, ok)
	assert.True(t, next.Start.Equal(utc(1, 0)), "Next returns the current interval when inside one")

	_, ok = s.Next(utc(4, 0))
	assert.False(t, ok)

	var empty *Schedule
	assert.True(t, empty.Empty())
	assert.False(t, empty.Contains(utc(1, 0)))
	assert.Empty(t, slices.Collect(empty.All()))
}

func TestCompileIntervalForms(t *testing.T) {
	t.Parallel()
	s, err := Compile(map[string]any{
		"interval": map[string]any{"start": "2024-01-01 10:00", "duration": "1 hour 30 minutes"},
		"union": []any{
			map[string]any{"interval": map[string]any{"start": "2024-01-02 00:00:00", "duration": 600}},
		},
	}, Options{TimeZone: "Europe/Helsinki"})
	require.NoError(t, err)

	helsinki, err := time.LoadLocation("Europe/Helsinki")
	require.NoError(t, err)
	got := s.Intervals()
	require.Len(t, got, 2)
	assert.True(t, got[0].Start.Equal(time.Date(2024, 1, 1, 10, 0, 0, 0, helsinki)))
	assert.Equal(t, 90*time.Minute, got[0].Duration())
	assert.Equal(t, 10*time.Minute, got[1].Duration())
	assert.Equal(t, "Europe/Helsinki", s.Location().String())
}

func TestCompileDailyClockTimes(t *testing.T) {
	t.Parallel()
	s, err := Compile(map[string]any{
		"daily": map[string]any{
			"start_date": "2024-11-02",
			"end_date":   "2024-11-04",
			"start_time": "22:00",
			"end_time":   "02:00",
		},
	}, Options{TimeZone: "America/New_York"})
	require.NoError(t, err)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	got := s.Intervals()
	require.Len(t, got, 3)
	for i, day := range []int{2, 3, 4} {
		assert.True(t, got[i].Start.Equal(time.Date(2024, 11, day, 22, 0, 0, 0, ny)))
		assert.True(t, got[i].End.Equal(time.Date(2024, 11, day+1, 2, 0, 0, 0, ny)))
	}
	// the night clocks fall back is an hour longer
	assert.Equal(t, 5*time.Hour, got[0].Duration())
	assert.Equal(t, 4*time.Hour, got[1].Duration())
}

func TestCompileDailySunRelative(t *testing.T) {
	t.Parallel()
	lat, lon := 42.44, -76.50
	s, err := CompileYAML([]byte(`
daily:
  start_date: 2024-06-01
  end_date: 2024-06-07
  start_time: 1 hour after sunset
  end_time: 30 minutes before sunrise
`), Options{Latitude: &lat, Longitude: &lon, TimeZone: "America/New_York"})
	require.NoError(t, err)

	got := s.Intervals()
	require.Len(t, got, 7)
	for _, iv := range got {
		local := iv.Start.In(s.Location())
		assert.GreaterOrEqual(t, local.Hour(), 21, "start should be about an hour after sunset")
		assert.Less(t, iv.Duration(), 9*time.Hour)
		assert.Greater(t, iv.Duration(), 6*time.Hour)
		assert.NotEqual(t, local.Day(), iv.End.In(s.Location()).Day(), "night intervals end the next day")
	}
}

func TestCompileDailySkipsMissingSunEvents(t *testing.T) {
	t.Parallel()
	// Tromsø has no sunset around midsummer
	lat, lon := 69.65, 18.96
	s, err := Compile(map[string]any{
		"daily": map[string]any{
			"start_date": "2024-06-20",
			"end_date":   "2024-06-22",
			"start_time": "sunset",
			"duration":   "1h",
		},
	}, Options{Latitude: &lat, Longitude: &lon, TimeZone: "Europe/Oslo"})
	require.NoError(t, err)
	assert.True(t, s.Empty())
}

func TestCompileErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		spec     map[string]any
		opts     Options
		wantPath string
	}{
		{"sun event without location",
			map[string]any{"daily": map[string]any{
				"start_date": "2024-01-01", "end_date": "2024-01-02",
				"start_time": "sunset", "end_time": "sunrise"}},
			Options{}, "daily.start_time"},
		{"unknown time zone",
			map[string]any{"start": "2024-01-01T00:00:00Z", "end": "2024-01-01T01:00:00Z"},
			Options{TimeZone: "Atlantis/Capital"}, ""},
		{"end before start",
			map[string]any{"start": "2024-01-01T02:00:00Z", "end": "2024-01-01T01:00:00Z"},
			Options{}, ""},
		{"unknown rule",
			map[string]any{"weekly": map[string]any{}},
			Options{}, "weekly"},
		{"intervals not a list",
			map[string]any{"intervals": "tomorrow"},
			Options{}, "intervals"},
		{"bad nested time",
			map[string]any{"union": []any{map[string]any{"daily": map[string]any{
				"start_date": "2024-01-01", "end_date": "2024-01-02",
				"start_time": "teatime", "duration": "1h"}}}},
			Options{}, "union[0].daily.start_time"},
		{"missing end",
			map[string]any{"interval": map[string]any{"start": "2024-01-01T00:00:00Z"}},
			Options{}, "interval"},
		{"end date before start date",
			map[string]any{"daily": map[string]any{
				"start_date": "2024-01-05", "end_date": "2024-01-01",
				"start_time": "10:00", "end_time": "11:00"}},
			Options{}, "daily"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Compile(tt.spec, tt.opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCompilation), "error should match ErrCompilation: %v", err)

			var ce *CompilationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.wantPath, ce.Path)
		})
	}
}

func TestCompileEmpty(t *testing.T) {
	t.Parallel()
	s, err := Compile(map[string]any{}, Options{})
	require.NoError(t, err)
	assert.True(t, s.Empty())

	s, err = CompileYAML(nil, Options{})
	require.NoError(t, err)
	assert.True(t, s.Empty())
}

func TestParseDuration(t *testing.T) {
	t.Parallel()
	tests := map[any]time.Duration{
		"90":                90 * time.Second,
		"1:30":              90 * time.Minute,
		"1:00:30":           time.Hour + 30*time.Second,
		"1h30m":             90 * time.Minute,
		"2 hours":           2 * time.Hour,
		"1 hour 15 minutes": 75 * time.Minute,
		"30 min":            30 * time.Minute,
		"0.5 hours":         30 * time.Minute,
		3600:                time.Hour,
		1.5:                 1500 * time.Millisecond,
	}
	for in, want := range tests {
		got, err := parseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []any{"", "soon", "5 fortnights", "-3", []int{1}} {
		_, err := parseDuration(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want timeOfDay
	}{
		{"21:30", timeOfDay{hour: 21, minute: 30}},
		{"05:00:15", timeOfDay{hour: 5, second: 15}},
		{"noon", timeOfDay{hour: 12}},
		{"midnight", timeOfDay{}},
		{"Sunset", timeOfDay{event: "sunset"}},
		{"1 hour after sunset", timeOfDay{event: "sunset", offset: time.Hour}},
		{"30 minutes before civil dawn", timeOfDay{event: "civil dawn", offset: -30 * time.Minute}},
		{"1:30 after nautical dusk", timeOfDay{event: "nautical dusk", offset: 90 * time.Minute}},
		{"sunrise - 45 minutes", timeOfDay{event: "sunrise", offset: -45 * time.Minute}},
		{"astronomical dusk + 10m", timeOfDay{event: "astronomical dusk", offset: 10 * time.Minute}},
	}
	for _, tt := range tests {
		got, err := parseTimeOfDay(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []any{"25:00", "after sunset", "1 hour after moonrise", 2100} {
		_, err := parseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}
