package schedule

import (
	"errors"
	"time"

	"github.com/exchtools/exch/internal/dateparse"
	"github.com/exchtools/exch/internal/interval"
)

// ErrDayWindowEvent is returned when a day-only expression ("friday",
// "next week") is used where an event needs a point in time or a range.
var ErrDayWindowEvent = errors.New("expression names a day, not an event time")

// EventSpec is a fully resolved event ready to be created upstream.
type EventSpec struct {
	Title     string         `json:"title"`
	Range     interval.Range `json:"range"`
	Attendees []string       `json:"attendees,omitempty"`
	Location  string         `json:"location,omitempty"`
}

// BuildEvent resolves a parsed expression into an event time. An
// explicit range wins outright; a duration given alongside it is
// silently ignored rather than treated as a conflict. An anchor is
// widened by the explicit duration, or defaultDuration when none was
// given.
func BuildEvent(expr dateparse.Expression, explicit time.Duration, title string, attendees []string, location string, defaultDuration time.Duration) (EventSpec, error) {
	spec := EventSpec{Title: title, Attendees: attendees, Location: location}

	switch expr.Kind {
	case dateparse.KindSpan:
		spec.Range = expr.Span
	case dateparse.KindAnchor:
		d := explicit
		if d <= 0 {
			d = defaultDuration
		}
		spec.Range = interval.Range{Start: expr.Anchor, End: expr.Anchor.Add(d)}
	default:
		return EventSpec{}, ErrDayWindowEvent
	}
	return spec, nil
}
