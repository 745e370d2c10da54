// internal/suncalc/suncalc.go

// Package suncalc resolves sun events (sunrise, sunset and the three
// twilight boundaries) for a station on local calendar dates.
package suncalc

import (
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sj14/astral/pkg/astral"

	"github.com/vesperrec/vesper-recorder/internal/errors"
)

// Event names a sun event.
type Event string

const (
	Sunrise          Event = "sunrise"
	Sunset           Event = "sunset"
	CivilDawn        Event = "civil dawn"
	CivilDusk        Event = "civil dusk"
	NauticalDawn     Event = "nautical dawn"
	NauticalDusk     Event = "nautical dusk"
	AstronomicalDawn Event = "astronomical dawn"
	AstronomicalDusk Event = "astronomical dusk"
)

// Events lists all supported events in the order they occur during a day.
var Events = []Event{
	AstronomicalDawn, NauticalDawn, CivilDawn, Sunrise,
	Sunset, CivilDusk, NauticalDusk, AstronomicalDusk,
}

// solar depression angles in degrees
const (
	depressionNautical     = 12
	depressionAstronomical = 18
)

// ErrNoEvent is returned when an event does not occur on a date at the
// station, as happens near the poles.
var ErrNoEvent = errors.NewStd("sun event does not occur")

// ParseEvent recognizes an event name, case-insensitively and tolerating
// extra whitespace or underscores ("civil_dawn").
func ParseEvent(s string) (Event, bool) {
	name := strings.Join(strings.Fields(strings.ReplaceAll(strings.ToLower(s), "_", " ")), " ")
	for _, e := range Events {
		if string(e) == name {
			return e, true
		}
	}
	return "", false
}

// SunEventTimes holds the sun event times of one local date.
type SunEventTimes struct {
	CivilDawn time.Time `json:"civilDawn,omitzero"`
	Sunrise   time.Time `json:"sunrise,omitzero"`
	Sunset    time.Time `json:"sunset,omitzero"`
	CivilDusk time.Time `json:"civilDusk,omitzero"`
}

type cachedEvent struct {
	t  time.Time
	ok bool
}

// SunCalc calculates sun event times for one observer, caching results per event and date.
type SunCalc struct {
	observer astral.Observer
	loc      *time.Location
	cache    *cache.Cache
}

// NewSunCalc creates a calculator for the given coordinates. Dates and
// results are interpreted in loc (UTC when nil).
func NewSunCalc(latitude, longitude float64, loc *time.Location) *SunCalc {
	if loc == nil {
		loc = time.UTC
	}
	return &SunCalc{
		observer: astral.Observer{Latitude: latitude, Longitude: longitude},
		loc:      loc,
		// entries never change, and no janitor goroutine is needed
		cache: cache.New(cache.NoExpiration, 0),
	}
}

// Location returns the time zone dates are interpreted in.
func (sc *SunCalc) Location() *time.Location {
	return sc.loc
}

// EventTime returns the time of event on the local calendar date of date.
// It returns an error matching ErrNoEvent when the event does not happen that day.
func (sc *SunCalc) EventTime(event Event, date time.Time) (time.Time, error) {
	local := date.In(sc.loc)
	y, m, d := local.Date()
	key := fmt.Sprintf("%s|%04d-%02d-%02d", event, y, m, d)

	if v, found := sc.cache.Get(key); found {
		entry := v.(cachedEvent)
		if !entry.ok {
			return time.Time{}, noEventError(event, y, m, d)
		}
		return entry.t, nil
	}

	t, ok, err := sc.resolve(event, y, m, d)
	if err != nil {
		return time.Time{}, err
	}
	sc.cache.Set(key, cachedEvent{t: t, ok: ok}, cache.DefaultExpiration)
	if !ok {
		return time.Time{}, noEventError(event, y, m, d)
	}
	return t, nil
}

// resolve finds the event whose local date is y-m-d. Astral works on UTC
// calendar days, so the neighbouring days are tried when the UTC-day event
// falls on another local date.
func (sc *SunCalc) resolve(event Event, y int, m time.Month, d int) (time.Time, bool, error) {
	want := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	for _, offset := range []int{0, -1, 1} {
		day := want.AddDate(0, 0, offset)
		t, err := sc.calculate(event, day)
		if err != nil {
			continue
		}
		ly, lm, ld := t.In(sc.loc).Date()
		if ly == y && lm == m && ld == d {
			return t.In(sc.loc), true, nil
		}
	}
	return time.Time{}, false, nil
}

func (sc *SunCalc) calculate(event Event, day time.Time) (time.Time, error) {
	switch event {
	case Sunrise:
		return astral.Sunrise(sc.observer, day)
	case Sunset:
		return astral.Sunset(sc.observer, day)
	case CivilDawn:
		return astral.Dawn(sc.observer, day, astral.DepressionCivil)
	case CivilDusk:
		return astral.Dusk(sc.observer, day, astral.DepressionCivil)
	case NauticalDawn:
		return astral.Dawn(sc.observer, day, depressionNautical)
	case NauticalDusk:
		return astral.Dusk(sc.observer, day, depressionNautical)
	case AstronomicalDawn:
		return astral.Dawn(sc.observer, day, depressionAstronomical)
	case AstronomicalDusk:
		return astral.Dusk(sc.observer, day, depressionAstronomical)
	default:
		return time.Time{}, errors.Newf("unknown sun event %q", event).
			Component("suncalc").
			Category(errors.CategorySunCalc).
			Build()
	}
}

func noEventError(event Event, y int, m time.Month, d int) error {
	return errors.New(fmt.Errorf("%s on %04d-%02d-%02d: %w", event, y, m, d, ErrNoEvent)).
		Component("suncalc").
		Category(errors.CategorySunCalc).
		Context("event", string(event)).
		Build()
}

// GetSunEventTimes returns sunrise, sunset and civil twilight for the local
// date of date. Events that do not occur are left zero.
func (sc *SunCalc) GetSunEventTimes(date time.Time) SunEventTimes {
	get := func(e Event) time.Time {
		t, err := sc.EventTime(e, date)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	return SunEventTimes{
		CivilDawn: get(CivilDawn),
		Sunrise:   get(Sunrise),
		Sunset:    get(Sunset),
		CivilDusk: get(CivilDusk),
	}
}
