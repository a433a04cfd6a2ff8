package output

import (
	"io"
	"time"

	ics "github.com/arran4/golang-ical"
)

// Event is the calendar-neutral shape exported to ICS.
type Event struct {
	ID        string
	Subject   string
	Start     time.Time
	End       time.Time
	Location  string
	Organizer string
}

// WriteICS serializes events as an iCalendar document for `cal export`.
func WriteICS(w io.Writer, events []Event) error {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//exchtools//exch//EN")

	for _, e := range events {
		ev := cal.AddEvent(e.ID)
		ev.SetSummary(e.Subject)
		ev.SetStartAt(e.Start)
		ev.SetEndAt(e.End)
		ev.SetDtStampTime(e.Start)
		if e.Location != "" {
			ev.SetLocation(e.Location)
		}
		if e.Organizer != "" {
			ev.SetOrganizer(e.Organizer)
		}
	}
	return cal.SerializeTo(w)
}
