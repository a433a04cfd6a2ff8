package schedule

import (
	"errors"
	"sort"
	"time"

	"github.com/exchtools/exch/internal/interval"
)

// ErrInsufficientSubjects is returned when common availability is
// requested for fewer than two people without AllowSingle.
var ErrInsufficientSubjects = errors.New("common availability requires at least two people")

type commonConfig struct {
	allowSingle bool
}

// CommonOption adjusts CommonSlots behavior.
type CommonOption func(*commonConfig)

// AllowSingle permits a single-person query, which degrades to a plain
// FindSlots over that person's calendar.
func AllowSingle() CommonOption {
	return func(c *commonConfig) { c.allowSingle = true }
}

// CommonSlots intersects everyone's free time. Each person's free ranges
// are computed independently under the same window and policy, then
// folded pairwise; the duration filter and limit apply only to the final
// intersection, so a slot long enough for one person but fragmented for
// another never survives.
func CommonSlots(perPerson map[string][]Busy, window interval.Range, policy Policy, minDuration time.Duration, limit int, opts ...CommonOption) ([]Slot, error) {
	var cfg commonConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if len(perPerson) == 0 || (len(perPerson) == 1 && !cfg.allowSingle) {
		return nil, ErrInsufficientSubjects
	}

	people := make([]string, 0, len(perPerson))
	for p := range perPerson {
		people = append(people, p)
	}
	sort.Strings(people)

	var common []interval.Range
	for i, p := range people {
		free := freeRanges(perPerson[p], window, policy)
		if i == 0 {
			common = free
		} else {
			common = interval.Intersect(common, free)
		}
		if len(common) == 0 {
			break
		}
	}

	var slots []Slot
	for _, r := range common {
		if r.Duration() < minDuration {
			continue
		}
		slots = append(slots, Slot{Range: r, Duration: r.Duration()})
		if limit > 0 && len(slots) == limit {
			break
		}
	}
	return slots, nil
}

// freeRanges is FindSlots without the duration filter and limit.
func freeRanges(busy []Busy, window interval.Range, policy Policy) []interval.Range {
	slots := FindSlots(busy, window, policy, 0, 0)
	rs := make([]interval.Range, len(slots))
	for i, s := range slots {
		rs[i] = s.Range
	}
	return rs
}
