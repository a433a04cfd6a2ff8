// Package interval provides algebra over half-open time ranges.
//
// A Range covers [Start, End): the start instant belongs to the range, the
// end instant does not. Two ranges that merely touch do not overlap. All
// operations return results in chronological order with no zero-length
// ranges.
package interval

import (
	"fmt"
	"sort"
	"time"
)

// Range is a half-open time range [Start, End).
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// New constructs a Range, rejecting zero or negative durations.
func New(start, end time.Time) (Range, error) {
	if !start.Before(end) {
		return Range{}, fmt.Errorf("invalid range: start %s is not before end %s",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Range{Start: start, End: end}, nil
}

// MustNew is New for ranges known to be valid, such as test fixtures and
// ranges derived from an already validated range. It panics on a
// degenerate range.
func MustNew(start, end time.Time) Range {
	r, err := New(start, end)
	if err != nil {
		panic(err)
	}
	return r
}

// Duration returns the length of the range.
func (r Range) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Contains reports whether t lies within the half-open range.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Covers reports whether o lies entirely within r.
func (r Range) Covers(o Range) bool {
	return !o.Start.Before(r.Start) && !o.End.After(r.End)
}

// IsZero reports whether the range is the zero value.
func (r Range) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Overlaps reports whether a and b share any instant. Touching endpoints
// do not count: [9,10) and [10,11) are disjoint.
func Overlaps(a, b Range) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Merge sorts the given ranges and coalesces overlapping or touching
// neighbours into single ranges. The input slice is not modified.
func Merge(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}

	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := []Range{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !r.Start.After(last.End) {
			// Overlapping or touching: extend the previous range.
			if r.End.After(last.End) {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// Subtract removes the busy ranges from the universe and returns the free
// complement in chronological order. Busy ranges may overlap each other
// and may extend beyond the universe; an empty busy list returns the
// universe itself as a single range.
func Subtract(universe Range, busy []Range) []Range {
	var free []Range
	cursor := universe.Start

	for _, b := range Merge(busy) {
		if !b.End.After(universe.Start) {
			continue
		}
		if !b.Start.Before(universe.End) {
			break
		}
		if b.Start.After(cursor) {
			end := b.Start
			if end.After(universe.End) {
				end = universe.End
			}
			if end.After(cursor) {
				free = append(free, Range{Start: cursor, End: end})
			}
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}

	if cursor.Before(universe.End) {
		free = append(free, Range{Start: cursor, End: universe.End})
	}
	return free
}

// Intersect returns the pairwise intersection of two chronological range
// lists. The result is chronological and contains no zero-length ranges.
func Intersect(a, b []Range) []Range {
	var out []Range
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		start := a[i].Start
		if b[j].Start.After(start) {
			start = b[j].Start
		}
		end := a[i].End
		if b[j].End.Before(end) {
			end = b[j].End
		}
		if start.Before(end) {
			out = append(out, Range{Start: start, End: end})
		}
		// Advance whichever list finishes first at this point.
		if a[i].End.Before(b[j].End) {
			i++
		} else {
			j++
		}
	}
	return out
}
