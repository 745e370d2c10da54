package schedule

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vesperrec/vesper-recorder/internal/errors"
	"github.com/vesperrec/vesper-recorder/internal/suncalc"
)

// maxDailyDays bounds the date range of a daily rule.
const maxDailyDays = 100 * 366

// ErrCompilation is matched by every schedule compilation failure.
var ErrCompilation = errors.NewStd("schedule compilation failed")

// CompilationError describes a rule that could not be compiled.
type CompilationError struct {
	Path string // location of the offending rule, e.g. "union[1].daily.start_time"
	Msg  string
	Err  error
}

func (e *CompilationError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Path == "" {
		return "schedule: " + msg
	}
	return fmt.Sprintf("schedule: %s: %s", e.Path, msg)
}

// Unwrap exposes both ErrCompilation and the underlying cause.
func (e *CompilationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCompilation}
	}
	return []error{ErrCompilation, e.Err}
}

// Options carries the station context a schedule is compiled for.
type Options struct {
	Latitude  *float64
	Longitude *float64
	TimeZone  string // IANA name, UTC when empty
	Coalesce  CoalesceMode
}

// Compile compiles a rule map. Supported top-level keys are "interval",
// "intervals", "daily" and "union"; a bare map with "start" is an interval.
// Several keys form a union. An empty map compiles to an empty schedule.
func Compile(spec map[string]any, opts Options) (*Schedule, error) {
	loc := time.UTC
	if opts.TimeZone != "" {
		var err error
		loc, err = time.LoadLocation(opts.TimeZone)
		if err != nil {
			return nil, compileError(&CompilationError{Msg: fmt.Sprintf("unrecognized time zone %q", opts.TimeZone), Err: err})
		}
	}

	c := &compiler{loc: loc}
	if opts.Latitude != nil && opts.Longitude != nil {
		c.sun = suncalc.NewSunCalc(*opts.Latitude, *opts.Longitude, loc)
	}
	if err := c.rule("", spec); err != nil {
		return nil, compileError(err)
	}
	return &Schedule{intervals: normalize(c.out, opts.Coalesce), loc: loc}, nil
}

// CompileYAML parses a YAML rule document and compiles it.
func CompileYAML(data []byte, opts Options) (*Schedule, error) {
	var spec map[string]any
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, compileError(&CompilationError{Msg: "invalid YAML", Err: err})
	}
	return Compile(spec, opts)
}

func compileError(err error) error {
	var ce *CompilationError
	b := errors.New(err).Component("schedule").Category(errors.CategorySchedule)
	if errors.As(err, &ce) && ce.Path != "" {
		b = b.Context("rule", ce.Path)
	}
	return b.Build()
}

type compiler struct {
	loc *time.Location
	sun *suncalc.SunCalc
	out []Interval
}

func (c *compiler) fail(path, format string, args ...any) error {
	return &CompilationError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

func (c *compiler) wrap(path, msg string, err error) error {
	var ce *CompilationError
	if errors.As(err, &ce) {
		return err
	}
	return &CompilationError{Path: path, Msg: msg, Err: err}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func (c *compiler) rule(path string, spec map[string]any) error {
	if len(spec) == 0 {
		return nil
	}
	if _, ok := spec["start"]; ok {
		return c.interval(path, spec)
	}
	for _, key := range slices.Sorted(maps.Keys(spec)) {
		p := join(path, key)
		value := spec[key]
		var err error
		switch key {
		case "interval":
			var m map[string]any
			if m, err = asMap(p, value); err == nil {
				err = c.interval(p, m)
			}
		case "intervals":
			err = c.each(p, value, c.interval)
		case "daily":
			var m map[string]any
			if m, err = asMap(p, value); err == nil {
				err = c.daily(p, m)
			}
		case "union":
			err = c.each(p, value, c.rule)
		default:
			err = c.fail(p, "unknown rule %q", key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) each(path string, value any, fn func(string, map[string]any) error) error {
	items, ok := value.([]any)
	if !ok {
		return c.fail(path, "must be a list, got %T", value)
	}
	for i, item := range items {
		p := fmt.Sprintf("%s[%d]", path, i)
		m, err := asMap(p, item)
		if err != nil {
			return err
		}
		if err := fn(p, m); err != nil {
			return err
		}
	}
	return nil
}

func asMap(path string, v any) (map[string]any, error) {
	switch m := v.(type) {
	case map[string]any:
		return m, nil
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, nil
	default:
		return nil, &CompilationError{Path: path, Msg: fmt.Sprintf("must be a mapping, got %T", v)}
	}
}

func checkKeys(path string, m map[string]any, allowed ...string) error {
	for key := range m {
		if !slices.Contains(allowed, key) {
			return &CompilationError{Path: join(path, key), Msg: "unknown setting"}
		}
	}
	return nil
}

// interval compiles {start, end} or {start, duration}.
func (c *compiler) interval(path string, m map[string]any) error {
	if err := checkKeys(path, m, "start", "end", "duration"); err != nil {
		return err
	}
	startVal, ok := m["start"]
	if !ok {
		return c.fail(path, "missing start")
	}
	start, err := parseDateTime(startVal, c.loc)
	if err != nil {
		return c.wrap(join(path, "start"), "invalid start", err)
	}

	endVal, hasEnd := m["end"]
	durVal, hasDur := m["duration"]
	var end time.Time
	switch {
	case hasEnd && hasDur:
		return c.fail(path, "specify end or duration, not both")
	case hasEnd:
		if end, err = parseDateTime(endVal, c.loc); err != nil {
			return c.wrap(join(path, "end"), "invalid end", err)
		}
	case hasDur:
		d, err := parseDuration(durVal)
		if err != nil {
			return c.wrap(join(path, "duration"), "invalid duration", err)
		}
		end = start.Add(d)
	default:
		return c.fail(path, "missing end or duration")
	}

	if !end.After(start) {
		return c.fail(path, "end %s is not after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	c.out = append(c.out, Interval{Start: start, End: end})
	return nil
}

// daily compiles a recurrence between two dates, inclusive.
func (c *compiler) daily(path string, m map[string]any) error {
	if err := checkKeys(path, m, "start_date", "end_date", "start_time", "end_time", "duration"); err != nil {
		return err
	}
	for _, key := range []string{"start_date", "end_date", "start_time"} {
		if _, ok := m[key]; !ok {
			return c.fail(path, "missing %s", key)
		}
	}

	startDate, err := parseDate(m["start_date"], c.loc)
	if err != nil {
		return c.wrap(join(path, "start_date"), "invalid start date", err)
	}
	endDate, err := parseDate(m["end_date"], c.loc)
	if err != nil {
		return c.wrap(join(path, "end_date"), "invalid end date", err)
	}
	if endDate.Before(startDate) {
		return c.fail(path, "end_date is before start_date")
	}
	if endDate.Sub(startDate) > maxDailyDays*24*time.Hour {
		return c.fail(path, "date range longer than %d days", maxDailyDays)
	}

	startTime, err := c.timeOfDay(join(path, "start_time"), m["start_time"])
	if err != nil {
		return err
	}

	endVal, hasEnd := m["end_time"]
	durVal, hasDur := m["duration"]
	var (
		endTime  timeOfDay
		duration time.Duration
	)
	switch {
	case hasEnd && hasDur:
		return c.fail(path, "specify end_time or duration, not both")
	case hasEnd:
		if endTime, err = c.timeOfDay(join(path, "end_time"), endVal); err != nil {
			return err
		}
	case hasDur:
		if duration, err = parseDuration(durVal); err != nil {
			return c.wrap(join(path, "duration"), "invalid duration", err)
		}
		if duration == 0 {
			return c.fail(join(path, "duration"), "duration must be positive")
		}
	default:
		return c.fail(path, "missing end_time or duration")
	}

	for day := startDate; !day.After(endDate); day = nextDay(day) {
		start, ok := c.resolve(startTime, day)
		if !ok {
			continue
		}
		var end time.Time
		if hasDur {
			end = start.Add(duration)
		} else {
			if end, ok = c.resolve(endTime, day); !ok {
				continue
			}
			if !end.After(start) {
				// an end at or before the start belongs to the following day
				if end, ok = c.resolve(endTime, nextDay(day)); !ok || !end.After(start) {
					continue
				}
			}
		}
		c.out = append(c.out, Interval{Start: start, End: end})
	}
	return nil
}

func (c *compiler) timeOfDay(path string, v any) (timeOfDay, error) {
	tod, err := parseTimeOfDay(v)
	if err != nil {
		return timeOfDay{}, c.wrap(path, "invalid time", err)
	}
	if tod.sunRelative() && c.sun == nil {
		return timeOfDay{}, c.fail(path, "%s requires station latitude and longitude", tod.event)
	}
	return tod, nil
}

// resolve returns the time of tod on the local date of day, or false when a
// sun event does not occur that day.
func (c *compiler) resolve(tod timeOfDay, day time.Time) (time.Time, bool) {
	if !tod.sunRelative() {
		y, m, d := day.Date()
		return time.Date(y, m, d, tod.hour, tod.minute, tod.second, 0, c.loc), true
	}
	t, err := c.sun.EventTime(tod.event, day)
	if err != nil {
		return time.Time{}, false
	}
	return t.Add(tod.offset), true
}

func nextDay(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, day.Location())
}
