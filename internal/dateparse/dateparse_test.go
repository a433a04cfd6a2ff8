package dateparse

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

// Wednesday, 2026-01-21 10:00 UTC.
var ref = time.Date(2026, time.January, 21, 10, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestParseDayWindows(t *testing.T) {
	tests := []struct {
		name  string
		input string
		now   time.Time
		start time.Time
		end   time.Time
	}{
		{name: "today", input: "today", start: date(2026, time.January, 21), end: date(2026, time.January, 22)},
		{name: "tomorrow", input: "tomorrow", start: date(2026, time.January, 22), end: date(2026, time.January, 23)},
		{name: "german overmorrow", input: "übermorgen", start: date(2026, time.January, 23), end: date(2026, time.January, 24)},
		{name: "positive offset", input: "+2", start: date(2026, time.January, 23), end: date(2026, time.January, 24)},
		{name: "negative offset", input: "-1", start: date(2026, time.January, 20), end: date(2026, time.January, 21)},

		// Bare weekday resolves to the most recent occurrence, today
		// included. Reference day is a Wednesday.
		{name: "bare friday goes backward", input: "friday", start: date(2026, time.January, 16), end: date(2026, time.January, 17)},
		{name: "bare wednesday is today", input: "mittwoch", start: date(2026, time.January, 21), end: date(2026, time.January, 22)},
		{
			name:  "friday on a friday is that day",
			input: "friday",
			now:   time.Date(2026, time.January, 23, 9, 0, 0, 0, time.UTC),
			start: date(2026, time.January, 23),
			end:   date(2026, time.January, 24),
		},
		{name: "next friday", input: "next friday", start: date(2026, time.January, 23), end: date(2026, time.January, 24)},
		{
			name:  "next friday on a friday skips a week",
			input: "next friday",
			now:   time.Date(2026, time.January, 23, 9, 0, 0, 0, time.UTC),
			start: date(2026, time.January, 30),
			end:   date(2026, time.January, 31),
		},
		{name: "this monday", input: "this monday", start: date(2026, time.January, 19), end: date(2026, time.January, 20)},
		{name: "this sunday", input: "this sunday", start: date(2026, time.January, 25), end: date(2026, time.January, 26)},
		{name: "german next wednesday", input: "nächsten mittwoch", start: date(2026, time.January, 28), end: date(2026, time.January, 29)},

		{name: "iso date", input: "2026-01-25", start: date(2026, time.January, 25), end: date(2026, time.January, 26)},
		{name: "slash date", input: "2026/01/25", start: date(2026, time.January, 25), end: date(2026, time.January, 26)},
		{name: "dotted no year", input: "28.01", start: date(2026, time.January, 28), end: date(2026, time.January, 29)},
		{name: "dotted short year", input: "28.01.27", start: date(2027, time.January, 28), end: date(2027, time.January, 29)},
		{
			name:  "month day defaults to current year even when past",
			input: "jan 25",
			now:   time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC),
			start: date(2026, time.January, 25),
			end:   date(2026, time.January, 26),
		},
		{name: "german day month", input: "25. januar", start: date(2026, time.January, 25), end: date(2026, time.January, 26)},
		{name: "month day explicit year", input: "january 25 2027", start: date(2027, time.January, 25), end: date(2027, time.January, 26)},
		{name: "bare day not yet reached", input: "28", start: date(2025, time.December, 28), end: date(2025, time.December, 29)},
		{name: "bare day already passed", input: "15", start: date(2026, time.January, 15), end: date(2026, time.January, 16)},

		// ISO week 30 of 2026 runs Monday Jul 20 through Sunday Jul 26.
		{name: "calendar week", input: "kw30", start: date(2026, time.July, 20), end: date(2026, time.July, 27)},
		{name: "past calendar week rolls to next year", input: "kw2", start: date(2027, time.January, 11), end: date(2027, time.January, 18)},
		{name: "this week", input: "this week", start: date(2026, time.January, 19), end: date(2026, time.January, 26)},
		{name: "next week", input: "next week", start: date(2026, time.January, 26), end: date(2026, time.February, 2)},
		{name: "next month", input: "next month", start: date(2026, time.February, 1), end: date(2026, time.March, 1)},
		{name: "bare month upcoming", input: "august", start: date(2026, time.August, 1), end: date(2026, time.September, 1)},
		{
			name:  "bare month already past rolls over",
			input: "jan",
			now:   time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC),
			start: date(2027, time.January, 1),
			end:   date(2027, time.February, 1),
		},

		{name: "in three days", input: "in 3 days", start: date(2026, time.January, 24), end: date(2026, time.January, 25)},
		{name: "in two weeks", input: "in 2 weeks", start: date(2026, time.February, 4), end: date(2026, time.February, 5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := tt.now
			if now.IsZero() {
				now = ref
			}
			got, err := Parse(tt.input, now, time.UTC)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.input, err)
			}
			if got.Kind != KindDayWindow {
				t.Fatalf("Parse(%q) kind = %v, want KindDayWindow", tt.input, got.Kind)
			}
			if !got.Span.Start.Equal(tt.start) || !got.Span.End.Equal(tt.end) {
				t.Errorf("Parse(%q) = [%v, %v), want [%v, %v)", tt.input, got.Span.Start, got.Span.End, tt.start, tt.end)
			}
		})
	}
}

func TestParseAnchors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
		opts  []Option
	}{
		{name: "24h clock", input: "14:00", want: at(2026, time.January, 21, 14, 0)},
		{name: "pm", input: "2pm", want: at(2026, time.January, 21, 14, 0)},
		{name: "pm with minutes", input: "2:30pm", want: at(2026, time.January, 21, 14, 30)},
		{name: "twelve am is midnight", input: "12am", want: at(2026, time.January, 21, 0, 0)},
		{name: "twelve pm is noon", input: "12pm", want: at(2026, time.January, 21, 12, 0)},
		{name: "german uhr", input: "9 uhr", want: at(2026, time.January, 21, 9, 0)},
		{name: "24h with uhr suffix", input: "14:00 uhr", want: at(2026, time.January, 21, 14, 0)},
		{name: "day then 24h uhr", input: "morgen 14:00 uhr", want: at(2026, time.January, 22, 14, 0)},
		{name: "noon", input: "noon", want: at(2026, time.January, 21, 12, 0)},
		{name: "midnight", input: "midnight", want: at(2026, time.January, 21, 0, 0)},
		{name: "morning default", input: "morning", want: at(2026, time.January, 21, 9, 0)},
		{name: "morning configured", input: "morning", want: at(2026, time.January, 21, 8, 0), opts: []Option{WithMorningHour(8, 0)}},
		{name: "afternoon default", input: "afternoon", want: at(2026, time.January, 21, 14, 0)},
		{name: "day then time", input: "tomorrow 10am", want: at(2026, time.January, 22, 10, 0)},
		{name: "time then day", input: "10am tomorrow", want: at(2026, time.January, 22, 10, 0)},
		{name: "filler words", input: "tomorrow at 10am", want: at(2026, time.January, 22, 10, 0)},
		{name: "noon tomorrow", input: "noon tomorrow", want: at(2026, time.January, 22, 12, 0)},
		{name: "in hours", input: "in 2 hours", want: at(2026, time.January, 21, 12, 0)},
		{name: "in minutes", input: "in 45 min", want: at(2026, time.January, 21, 10, 45)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input, ref, time.UTC, tt.opts...)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.input, err)
			}
			if got.Kind != KindAnchor {
				t.Fatalf("Parse(%q) kind = %v, want KindAnchor", tt.input, got.Kind)
			}
			if !got.Anchor.Equal(tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got.Anchor, tt.want)
			}
		})
	}
}

func TestParseSpans(t *testing.T) {
	tests := []struct {
		name  string
		input string
		start time.Time
		end   time.Time
	}{
		{name: "pm range", input: "2pm-4pm", start: at(2026, time.January, 21, 14, 0), end: at(2026, time.January, 21, 16, 0)},
		{name: "range inherits pm marker", input: "2-4pm", start: at(2026, time.January, 21, 14, 0), end: at(2026, time.January, 21, 16, 0)},
		{name: "am range with minutes", input: "9am-11:30am", start: at(2026, time.January, 21, 9, 0), end: at(2026, time.January, 21, 11, 30)},
		{name: "24h range", input: "14:00-15:30", start: at(2026, time.January, 21, 14, 0), end: at(2026, time.January, 21, 15, 30)},
		{name: "day and range", input: "tomorrow 9am-10am", start: at(2026, time.January, 22, 9, 0), end: at(2026, time.January, 22, 10, 0)},
		{name: "uhr range", input: "9 uhr - 11 uhr", start: at(2026, time.January, 21, 9, 0), end: at(2026, time.January, 21, 11, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input, ref, time.UTC)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.input, err)
			}
			if got.Kind != KindSpan {
				t.Fatalf("Parse(%q) kind = %v, want KindSpan", tt.input, got.Kind)
			}
			if !got.Span.Start.Equal(tt.start) || !got.Span.End.Equal(tt.end) {
				t.Errorf("Parse(%q) = [%v, %v), want [%v, %v)", tt.input, got.Span.Start, got.Span.End, tt.start, tt.end)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		kind  ErrorKind
		token string
	}{
		{name: "empty", input: "", kind: UnknownDate, token: ""},
		{name: "gibberish", input: "xyzzy", kind: UnknownDate, token: "xyzzy"},
		{name: "impossible clock", input: "25:99", kind: UnknownTime, token: "25:99"},
		{name: "inverted range", input: "4pm-2pm", kind: UnknownTime, token: "4pm-2pm"},
		{name: "two day tokens", input: "today tomorrow", kind: Ambiguous, token: "today tomorrow"},
		{name: "impossible calendar date", input: "2026-02-31", kind: UnknownDate, token: "2026-02-31"},
		{name: "week out of range", input: "kw60", kind: UnknownDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input, ref, time.UTC)
			if err == nil {
				t.Fatalf("Parse(%q): expected error", tt.input)
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("Parse(%q) error type %T, want *ParseError", tt.input, err)
			}
			if perr.Kind != tt.kind {
				t.Errorf("Parse(%q) kind = %v, want %v", tt.input, perr.Kind, tt.kind)
			}
			if tt.token != "" && perr.Token != tt.token {
				t.Errorf("Parse(%q) token = %q, want %q", tt.input, perr.Token, tt.token)
			}
		})
	}
}

func TestParseInput(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		opts      []Option
		kind      Kind
		anchor    time.Time
		start     time.Time
		end       time.Time
		title     string
		attendees []string
		duration  time.Duration
	}{
		{
			name:  "range with title",
			input: "friday 2pm-4pm Workshop",
			kind:  KindSpan,
			start: at(2026, time.January, 23, 14, 0),
			end:   at(2026, time.January, 23, 16, 0),
			title: "Workshop",
		},
		{
			name:      "anchor with attendees",
			input:     "tomorrow 10am Sync with alice@example.com and bob@example.com",
			kind:      KindAnchor,
			anchor:    at(2026, time.January, 22, 10, 0),
			title:     "Sync",
			attendees: []string{"alice@example.com", "bob@example.com"},
		},
		{
			name:      "comma separated attendees",
			input:     "tomorrow 10am Sync with alice@example.com, bob@example.com",
			kind:      KindAnchor,
			anchor:    at(2026, time.January, 22, 10, 0),
			title:     "Sync",
			attendees: []string{"alice@example.com", "bob@example.com"},
		},
		{
			name:  "attendee aliases",
			input: "tomorrow 10am Sync with alice und bob",
			opts: []Option{WithAliasResolver(func(alias string) (string, bool) {
				m := map[string]string{"alice": "alice@example.com", "bob": "bob@example.com"}
				email, ok := m[alias]
				return email, ok
			})},
			kind:      KindAnchor,
			anchor:    at(2026, time.January, 22, 10, 0),
			title:     "Sync",
			attendees: []string{"alice@example.com", "bob@example.com"},
		},
		{
			name:  "non-address with clause stays in title",
			input: "tomorrow Lunch with the team",
			kind:  KindDayWindow,
			start: date(2026, time.January, 22),
			end:   date(2026, time.January, 23),
			title: "Lunch with the team",
		},
		{
			name:   "quoted title shields grammar tokens",
			input:  `tomorrow 2pm "Budget 2026 review"`,
			kind:   KindAnchor,
			anchor: at(2026, time.January, 22, 14, 0),
			title:  "Budget 2026 review",
		},
		{
			name:     "explicit duration",
			input:    "tomorrow 10am Sync for 2h",
			kind:     KindAnchor,
			anchor:   at(2026, time.January, 22, 10, 0),
			title:    "Sync",
			duration: 2 * time.Hour,
		},
		{
			name:   "24h uhr leaves no residue in title",
			input:  "morgen 14:00 uhr Standup",
			kind:   KindAnchor,
			anchor: at(2026, time.January, 22, 14, 0),
			title:  "Standup",
		},
		{
			name:     "german duration",
			input:    "morgen 10 uhr Planung dauer 30 min",
			kind:     KindAnchor,
			anchor:   at(2026, time.January, 22, 10, 0),
			title:    "Planung",
			duration: 30 * time.Minute,
		},
		{
			name:   "relative anchor with title",
			input:  "in 2 hours Standup",
			kind:   KindAnchor,
			anchor: at(2026, time.January, 21, 12, 0),
			title:  "Standup",
		},
		{
			name:   "empty title accepted",
			input:  "tomorrow 10am",
			kind:   KindAnchor,
			anchor: at(2026, time.January, 22, 10, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInput(tt.input, ref, time.UTC, tt.opts...)
			if err != nil {
				t.Fatalf("ParseInput(%q): %v", tt.input, err)
			}
			if got.Expr.Kind != tt.kind {
				t.Fatalf("kind = %v, want %v", got.Expr.Kind, tt.kind)
			}
			switch tt.kind {
			case KindAnchor:
				if !got.Expr.Anchor.Equal(tt.anchor) {
					t.Errorf("anchor = %v, want %v", got.Expr.Anchor, tt.anchor)
				}
			default:
				if !got.Expr.Span.Start.Equal(tt.start) || !got.Expr.Span.End.Equal(tt.end) {
					t.Errorf("span = [%v, %v), want [%v, %v)", got.Expr.Span.Start, got.Expr.Span.End, tt.start, tt.end)
				}
			}
			if got.Title != tt.title {
				t.Errorf("title = %q, want %q", got.Title, tt.title)
			}
			if !reflect.DeepEqual(got.Attendees, tt.attendees) {
				t.Errorf("attendees = %v, want %v", got.Attendees, tt.attendees)
			}
			if got.Duration != tt.duration {
				t.Errorf("duration = %v, want %v", got.Duration, tt.duration)
			}
		})
	}
}

func TestParseInputErrors(t *testing.T) {
	if _, err := ParseInput("just a title", ref, time.UTC); err == nil {
		t.Fatal("expected error for input without any date or time token")
	}
	_, err := ParseInput("tomorrow 12:99 kickoff", ref, time.UTC)
	var perr *ParseError
	if !errors.As(err, &perr) || perr.Kind != UnknownTime {
		t.Fatalf("expected UnknownTime, got %v", err)
	}
}

func TestExpressionWindow(t *testing.T) {
	e := Expression{Kind: KindAnchor, Anchor: at(2026, time.January, 22, 10, 0)}
	w := e.Window(30 * time.Minute)
	if !w.Start.Equal(e.Anchor) || !w.End.Equal(e.Anchor.Add(30*time.Minute)) {
		t.Errorf("Window = [%v, %v)", w.Start, w.End)
	}
}

func TestParseDay(t *testing.T) {
	// ParseDay reads bare weekdays backward: "show friday" on a
	// Wednesday means the friday just past.
	got, err := ParseDay("friday", ref, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Span.Start.Equal(date(2026, time.January, 16)) {
		t.Errorf("start = %v, want 2026-01-16", got.Span.Start)
	}

	got, err = ParseDay("kw30", ref, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Span.Start.Equal(date(2026, time.July, 20)) || !got.Span.End.Equal(date(2026, time.July, 27)) {
		t.Errorf("kw30 = [%v, %v), want [2026-07-20, 2026-07-27)", got.Span.Start, got.Span.End)
	}
}
