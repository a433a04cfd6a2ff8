// Package schedule computes free time slots from busy calendar data.
//
// Everything here is pure arithmetic over immutable inputs: no clock, no
// I/O, no shared state. Fetching busy intervals from the calendar source
// is the caller's job (see CalendarSource); the engine only folds what it
// is given.
package schedule

import (
	"context"
	"time"

	"github.com/exchtools/exch/internal/interval"
)

// Busy is one opaque busy interval owned by an account. The subject or
// nature of the appointment is deliberately not carried here.
type Busy struct {
	Owner string         `json:"owner,omitempty"`
	Range interval.Range `json:"range"`
}

// Slot is a free interval that satisfied the policy and duration filter.
type Slot struct {
	Range    interval.Range `json:"range"`
	Duration time.Duration  `json:"duration"`
}

// Policy clips each calendar day to working hours. Hours are in the
// window's time zone; EndHour 17 means slots end no later than 17:00.
type Policy struct {
	StartHour       int  `json:"start_hour"`
	EndHour         int  `json:"end_hour"`
	ExcludeWeekends bool `json:"exclude_weekends"`
}

// CalendarSource supplies busy intervals for an account. Implementations
// own all network concerns; a returned error is terminal for the query.
type CalendarSource interface {
	FetchBusy(ctx context.Context, account string, window interval.Range) ([]Busy, error)
}

// FindSlots returns the free slots inside window, walking it day by day:
// each day is clipped to the policy's working hours, busy time is
// subtracted, and remaining ranges shorter than minDuration are dropped.
// A slot never crosses a day boundary. limit <= 0 means unlimited.
func FindSlots(busy []Busy, window interval.Range, policy Policy, minDuration time.Duration, limit int) []Slot {
	merged := interval.Merge(ranges(busy))
	loc := window.Start.Location()

	var slots []Slot
	for day := dayOf(window.Start, loc); day.Before(window.End); day = day.AddDate(0, 0, 1) {
		if policy.ExcludeWeekends && isWeekend(day) {
			continue
		}

		open := interval.Range{
			Start: day.Add(time.Duration(policy.StartHour) * time.Hour),
			End:   day.Add(time.Duration(policy.EndHour) * time.Hour),
		}
		open = clip(open, window)
		if open.IsZero() {
			continue
		}

		for _, free := range interval.Subtract(open, merged) {
			if free.Duration() < minDuration {
				continue
			}
			slots = append(slots, Slot{Range: free, Duration: free.Duration()})
			if limit > 0 && len(slots) == limit {
				return slots
			}
		}
	}
	return slots
}

func ranges(busy []Busy) []interval.Range {
	rs := make([]interval.Range, len(busy))
	for i, b := range busy {
		rs[i] = b.Range
	}
	return rs
}

// clip intersects two ranges, returning the zero Range when disjoint.
func clip(r, bound interval.Range) interval.Range {
	if r.Start.Before(bound.Start) {
		r.Start = bound.Start
	}
	if r.End.After(bound.End) {
		r.End = bound.End
	}
	if !r.Start.Before(r.End) {
		return interval.Range{}
	}
	return r
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func isWeekend(day time.Time) bool {
	wd := day.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
