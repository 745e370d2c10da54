package schedule

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/vesperrec/vesper-recorder/internal/suncalc"
)

// timeOfDay is a clock time or a sun event plus a signed offset.
type timeOfDay struct {
	event  suncalc.Event // empty for clock times
	hour   int
	minute int
	second int
	offset time.Duration
}

func (t timeOfDay) sunRelative() bool {
	return t.event != ""
}

var (
	clockRe       = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)
	relativeRe    = regexp.MustCompile(`^(.+?)\s+(before|after)\s+(.+)$`)
	eventOffsetRe = regexp.MustCompile(`^(.+?)\s*([+-])\s*(.+)$`)
	quantityRe    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([a-z]+)`)
)

var unitDurations = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
}

// parseTimeOfDay accepts "HH:MM[:SS]", "noon", "midnight", a sun event,
// "<duration> before|after <event>" and "<event> +|- <duration>".
func parseTimeOfDay(v any) (timeOfDay, error) {
	s, ok := v.(string)
	if !ok {
		return timeOfDay{}, fmt.Errorf("time must be a string, got %T", v)
	}
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))

	switch s {
	case "noon":
		return timeOfDay{hour: 12}, nil
	case "midnight":
		return timeOfDay{}, nil
	}
	if tod, ok := parseClock(s); ok {
		return tod, nil
	}
	if e, ok := suncalc.ParseEvent(s); ok {
		return timeOfDay{event: e}, nil
	}
	if m := relativeRe.FindStringSubmatch(s); m != nil {
		e, ok := suncalc.ParseEvent(m[3])
		if !ok {
			return timeOfDay{}, fmt.Errorf("unknown event %q", m[3])
		}
		d, err := parseDuration(m[1])
		if err != nil {
			return timeOfDay{}, err
		}
		if m[2] == "before" {
			d = -d
		}
		return timeOfDay{event: e, offset: d}, nil
	}
	if m := eventOffsetRe.FindStringSubmatch(s); m != nil {
		if e, ok := suncalc.ParseEvent(m[1]); ok {
			d, err := parseDuration(m[3])
			if err != nil {
				return timeOfDay{}, err
			}
			if m[2] == "-" {
				d = -d
			}
			return timeOfDay{event: e, offset: d}, nil
		}
	}
	return timeOfDay{}, fmt.Errorf("unrecognized time %q", s)
}

func parseClock(s string) (timeOfDay, bool) {
	m := clockRe.FindStringSubmatch(s)
	if m == nil {
		return timeOfDay{}, false
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	sec := 0
	if m[3] != "" {
		sec, _ = strconv.Atoi(m[3])
	}
	if h > 23 || mi > 59 || sec > 59 {
		return timeOfDay{}, false
	}
	return timeOfDay{hour: h, minute: mi, second: sec}, true
}

// parseDuration accepts numbers of seconds, Go durations ("1h30m"),
// "H:MM[:SS]" and unit phrases such as "1 hour 30 minutes".
func parseDuration(v any) (time.Duration, error) {
	switch x := v.(type) {
	case time.Duration:
		return checkDuration(x)
	case int:
		return checkDuration(time.Duration(x) * time.Second)
	case int64:
		return checkDuration(time.Duration(x) * time.Second)
	case uint64:
		if x > math.MaxInt64/uint64(time.Second) {
			return 0, fmt.Errorf("duration %d seconds is too large", x)
		}
		return checkDuration(time.Duration(x) * time.Second)
	case float64:
		return checkDuration(time.Duration(x * float64(time.Second)))
	case string:
		return parseDurationString(x)
	default:
		return 0, fmt.Errorf("duration must be a number of seconds or a string, got %T", v)
	}
}

func parseDurationString(raw string) (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return checkDuration(time.Duration(secs * float64(time.Second)))
	}
	if m := clockRe.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mi, _ := strconv.Atoi(m[2])
		sec := 0
		if m[3] != "" {
			sec, _ = strconv.Atoi(m[3])
		}
		return checkDuration(time.Duration(h)*time.Hour + time.Duration(mi)*time.Minute + time.Duration(sec)*time.Second)
	}
	if d, err := time.ParseDuration(s); err == nil {
		return checkDuration(d)
	}

	matches := quantityRe.FindAllStringSubmatchIndex(s, -1)
	if matches == nil {
		return 0, fmt.Errorf("unrecognized duration %q", raw)
	}
	var total time.Duration
	covered := 0
	for _, m := range matches {
		if strings.TrimSpace(s[covered:m[0]]) != "" {
			return 0, fmt.Errorf("unrecognized duration %q", raw)
		}
		n, _ := strconv.ParseFloat(s[m[2]:m[3]], 64)
		unit, ok := unitDurations[s[m[4]:m[5]]]
		if !ok {
			return 0, fmt.Errorf("unknown duration unit %q in %q", s[m[4]:m[5]], raw)
		}
		total += time.Duration(n * float64(unit))
		covered = m[1]
	}
	if strings.TrimSpace(s[covered:]) != "" {
		return 0, fmt.Errorf("unrecognized duration %q", raw)
	}
	return checkDuration(total)
}

func checkDuration(d time.Duration) (time.Duration, error) {
	if d < 0 {
		return 0, fmt.Errorf("duration %s must not be negative", d)
	}
	return d, nil
}

var dateTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// parseDateTime accepts RFC 3339 timestamps, local "YYYY-MM-DD HH:MM[:SS]"
// in loc, and time.Time values.
func parseDateTime(v any, loc *time.Location) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		s := strings.TrimSpace(x)
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t, nil
		}
		for _, layout := range dateTimeLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized date and time %q", x)
	default:
		return time.Time{}, fmt.Errorf("date and time must be a string, got %T", v)
	}
}

// parseDate returns local midnight of a "YYYY-MM-DD" date in loc.
func parseDate(v any, loc *time.Location) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		y, m, d := x.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	case string:
		t, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(x), loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("unrecognized date %q", x)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("date must be a string, got %T", v)
	}
}
