// Package dateparse interprets natural-language date and time phrases.
//
// A phrase like "next friday 2pm-4pm" resolves against an explicit
// reference instant and time zone to an Expression: a point in time, an
// explicit start-end range, or a whole-day (or week/month) window.
// Parsing is deterministic: the same input, reference time and zone
// always produce the same result. There is no ambient clock anywhere in
// this package.
//
// The grammar is an ordered table of rules tried first-match-wins, with
// explicit dates (ISO, dotted, slash) ahead of the vaguer word rules.
// Weekday semantics are deliberate and subtle:
//
//   - "friday"       nearest occurrence, today included: most recent for
//     date queries (Parse, ParseDay), forthcoming for event
//     phrases (ParseInput)
//   - "next friday"  strictly after today, a full week out when today is a Friday
//   - "this friday"  the occurrence inside the current Monday-Sunday week,
//     forward or backward
package dateparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tj/go-naturaldate"

	"github.com/exchtools/exch/internal/interval"
)

// Kind discriminates the Expression variants.
type Kind int

const (
	// KindAnchor is a single instant; callers apply a default duration.
	KindAnchor Kind = iota
	// KindSpan is an explicit start-end range.
	KindSpan
	// KindDayWindow covers one or more whole days, [00:00, 24:00) each.
	KindDayWindow
)

// Expression is the unambiguous result of parsing a phrase.
type Expression struct {
	Kind   Kind
	Anchor time.Time      // set when Kind == KindAnchor
	Span   interval.Range // set when Kind == KindSpan or KindDayWindow
	Desc   string         // human-readable echo of what was matched
}

// Window returns the expression as a range. Anchors are widened by
// fallback, which callers set to their default event duration.
func (e Expression) Window(fallback time.Duration) interval.Range {
	if e.Kind == KindAnchor {
		return interval.Range{Start: e.Anchor, End: e.Anchor.Add(fallback)}
	}
	return e.Span
}

type config struct {
	morning   clockTime
	afternoon clockTime
	resolver  func(string) (string, bool)
}

// Option adjusts parser defaults.
type Option func(*config)

// WithMorningHour sets the clock time "morning" resolves to.
func WithMorningHour(hour, minute int) Option {
	return func(c *config) { c.morning = clockTime{hour, minute} }
}

// WithAfternoonHour sets the clock time "afternoon" resolves to.
func WithAfternoonHour(hour, minute int) Option {
	return func(c *config) { c.afternoon = clockTime{hour, minute} }
}

// WithAliasResolver supplies a lookup used on attendee tokens that are
// not email addresses (the config [people] table).
func WithAliasResolver(resolve func(alias string) (email string, ok bool)) Option {
	return func(c *config) { c.resolver = resolve }
}

func newConfig(opts []Option) *config {
	cfg := &config{morning: clockTime{9, 0}, afternoon: clockTime{14, 0}}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// "in 2 hours", "in 45 min" resolve relative to now itself, not to a day.
var inDurationRe = regexp.MustCompile(`(?i)^\s*in\s+(\d+)\s*(h|hrs?|hours?|stunden?|m|mins?|minutes?|minuten?)\b`)

// Parse resolves a pure date/time phrase. Unrecognized leftovers are an
// error; use ParseInput for command lines that carry a title.
func Parse(text string, now time.Time, loc *time.Location, opts ...Option) (Expression, error) {
	cfg := newConfig(opts)
	now = now.In(loc)

	s := strings.TrimSpace(text)
	if s == "" {
		return Expression{}, unknownDate("")
	}

	if m := inDurationRe.FindStringSubmatch(s); m != nil {
		if rest := strings.TrimSpace(s[len(m[0]):]); rest != "" {
			return Expression{}, unknownDate(rest)
		}
		return relativeAnchor(m, now), nil
	}

	day, timeTok, rest, err := scan(s, now, loc, cfg, mostRecent)
	if err != nil {
		return Expression{}, err
	}
	if leftover := strings.TrimSpace(rest); leftover != "" {
		// A second day token after the first means the phrase named two
		// conflicting dates ("today tomorrow").
		if day != nil {
			if second, _, _ := resolveDay(leftover, now, loc, mostRecent); second != nil {
				return Expression{}, ambiguous(s)
			}
		}
		// Connectives stranded by token removal ("tomorrow at 10am"
		// leaves an "at") are not unparsed input.
		if !onlyFillers(leftover) {
			return Expression{}, unknownDate(leftover)
		}
	}
	if day == nil && timeTok == nil {
		return Expression{}, unknownDate(s)
	}
	return combine(day, timeTok, now, loc), nil
}

// scan decomposes text into an optional day token and an optional time
// token, returning whatever text neither consumed. The day token is
// looked for before and, failing that, after time extraction, so both
// "friday 2pm" and "2pm friday" decompose the same way.
func scan(text string, now time.Time, loc *time.Location, cfg *config, dir dayDirection) (*dayWindow, *timeToken, string, error) {
	day, rest, err := resolveDay(text, now, loc, dir)
	if err != nil {
		return nil, nil, text, err
	}

	timeTok, rest, err := extractTime(rest, cfg)
	if err != nil {
		return nil, nil, text, err
	}

	if day == nil {
		day, rest, err = resolveDay(rest, now, loc, dir)
		if err != nil {
			return nil, nil, text, err
		}
	}
	return day, timeTok, rest, nil
}

// combine folds the two partial results into the final expression:
//
//	day only          -> DayWindow
//	time only         -> Anchor on today
//	day + single time -> Anchor on that day
//	day + time range  -> Span on that day
//	range, no day     -> Span on today
func combine(day *dayWindow, tok *timeToken, now time.Time, loc *time.Location) Expression {
	if tok == nil {
		return Expression{
			Kind: KindDayWindow,
			Span: interval.Range{Start: day.start, End: day.end()},
			Desc: day.desc,
		}
	}

	base := midnight(now, loc)
	desc := strings.TrimSpace(tok.matched)
	if day != nil {
		base = day.start
		desc = day.desc + " " + desc
	}

	start := base.Add(time.Duration(tok.start.hour)*time.Hour + time.Duration(tok.start.minute)*time.Minute)
	if !tok.hasEnd {
		return Expression{Kind: KindAnchor, Anchor: start, Desc: desc}
	}

	end := base.Add(time.Duration(tok.end.hour)*time.Hour + time.Duration(tok.end.minute)*time.Minute)
	return Expression{
		Kind: KindSpan,
		Span: interval.Range{Start: start, End: end},
		Desc: desc,
	}
}

func relativeAnchor(m []string, now time.Time) Expression {
	n, _ := strconv.Atoi(m[1])
	unit := time.Minute
	low := strings.ToLower(m[2])
	if strings.HasPrefix(low, "h") || strings.HasPrefix(low, "s") {
		unit = time.Hour
	}
	at := now.Add(time.Duration(n) * unit)
	return Expression{Kind: KindAnchor, Anchor: at, Desc: strings.TrimSpace(m[0])}
}

// ParseDay resolves a phrase that must name a day or day span (the "cal
// show friday" / "show kw30" form). Falls back to natural-language
// parsing for phrasings outside the grammar before giving up.
func ParseDay(text string, now time.Time, loc *time.Location) (Expression, error) {
	now = now.In(loc)
	s := strings.TrimSpace(text)
	if s == "" {
		return Expression{}, unknownDate("")
	}

	day, rest, err := resolveDay(s, now, loc, mostRecent)
	if err != nil {
		return Expression{}, err
	}
	if day != nil && strings.TrimSpace(rest) == "" {
		return Expression{
			Kind: KindDayWindow,
			Span: interval.Range{Start: day.start, End: day.end()},
			Desc: day.desc,
		}, nil
	}

	// Grammar miss: let naturaldate have a try ("end of next month").
	if t, nerr := naturaldate.Parse(s, now, naturaldate.WithDirection(naturaldate.Future)); nerr == nil {
		d := midnight(t, loc)
		return Expression{
			Kind: KindDayWindow,
			Span: interval.Range{Start: d, End: d.AddDate(0, 0, 1)},
			Desc: s,
		}, nil
	}

	return Expression{}, unknownDate(s)
}
