// Package schedule compiles declarative recording rules into an ordered,
// non-overlapping sequence of half-open time intervals and answers queries
// against it.
//
// A compiled Schedule is immutable and safe for concurrent use.
package schedule

import (
	"fmt"
	"iter"
	"slices"
	"sort"
	"time"
)

// Interval is the half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies within the interval.
func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

// Duration returns End - Start.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s)", i.Start.Format(time.RFC3339), i.End.Format(time.RFC3339))
}

// CoalesceMode selects which rule-derived intervals are merged.
type CoalesceMode int

const (
	// CoalesceTouching merges intervals that overlap or share an endpoint.
	CoalesceTouching CoalesceMode = iota
	// CoalesceOverlapping merges only strictly overlapping intervals.
	CoalesceOverlapping
)

// ParseCoalesceMode parses "touching" (or "") and "overlapping".
func ParseCoalesceMode(s string) (CoalesceMode, error) {
	switch s {
	case "", "touching":
		return CoalesceTouching, nil
	case "overlapping":
		return CoalesceOverlapping, nil
	default:
		return 0, fmt.Errorf("unknown coalesce mode %q", s)
	}
}

func (m CoalesceMode) String() string {
	if m == CoalesceOverlapping {
		return "overlapping"
	}
	return "touching"
}

// Schedule is an immutable ordered sequence of intervals. A nil *Schedule is empty.
type Schedule struct {
	intervals []Interval
	loc       *time.Location
}

// New builds a schedule from arbitrary intervals, sorting and coalescing
// them. Intervals with End <= Start are discarded.
func New(intervals []Interval, mode CoalesceMode) *Schedule {
	return &Schedule{intervals: normalize(intervals, mode), loc: time.UTC}
}

// normalize sorts intervals and merges them so that the result is
// pairwise non-overlapping.
func normalize(in []Interval, mode CoalesceMode) []Interval {
	ivs := make([]Interval, 0, len(in))
	for _, iv := range in {
		if iv.End.After(iv.Start) {
			ivs = append(ivs, iv)
		}
	}
	slices.SortFunc(ivs, func(a, b Interval) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return a.End.Compare(b.End)
	})

	out := ivs[:0]
	for _, iv := range ivs {
		if n := len(out); n > 0 {
			last := &out[n-1]
			overlaps := last.End.After(iv.Start)
			touches := last.End.Equal(iv.Start)
			if overlaps || (touches && mode == CoalesceTouching) {
				if iv.End.After(last.End) {
					last.End = iv.End
				}
				continue
			}
		}
		out = append(out, iv)
	}
	return slices.Clip(out)
}

// Location returns the time zone the schedule was compiled in.
func (s *Schedule) Location() *time.Location {
	if s == nil || s.loc == nil {
		return time.UTC
	}
	return s.loc
}

// Len returns the number of intervals.
func (s *Schedule) Len() int {
	if s == nil {
		return 0
	}
	return len(s.intervals)
}

// Empty reports whether the schedule has no intervals.
func (s *Schedule) Empty() bool {
	return s.Len() == 0
}

// Intervals returns a copy of the compiled intervals.
func (s *Schedule) Intervals() []Interval {
	if s == nil {
		return nil
	}
	return slices.Clone(s.intervals)
}

// All yields every interval in ascending order.
func (s *Schedule) All() iter.Seq[Interval] {
	return s.yieldFrom(0)
}

// From yields, in ascending order, the intervals whose end is after t.
func (s *Schedule) From(t time.Time) iter.Seq[Interval] {
	return s.yieldFrom(s.search(t))
}

func (s *Schedule) yieldFrom(start int) iter.Seq[Interval] {
	return func(yield func(Interval) bool) {
		if s == nil {
			return
		}
		for _, iv := range s.intervals[start:] {
			if !yield(iv) {
				return
			}
		}
	}
}

// search returns the index of the first interval with End > t.
func (s *Schedule) search(t time.Time) int {
	if s == nil {
		return 0
	}
	return sort.Search(len(s.intervals), func(i int) bool {
		return s.intervals[i].End.After(t)
	})
}

// Contains reports whether t lies within some interval.
func (s *Schedule) Contains(t time.Time) bool {
	_, ok := s.Current(t)
	return ok
}

// Current returns the interval containing t.
func (s *Schedule) Current(t time.Time) (Interval, bool) {
	i := s.search(t)
	if i < s.Len() && s.intervals[i].Contains(t) {
		return s.intervals[i], true
	}
	return Interval{}, false
}

// Next returns the current interval if t is inside one, otherwise the next
// interval to start after t.
func (s *Schedule) Next(t time.Time) (Interval, bool) {
	i := s.search(t)
	if i < s.Len() {
		return s.intervals[i], true
	}
	return Interval{}, false
}
