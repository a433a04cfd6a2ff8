package dateparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Input is a fully decomposed "cal add" command line: the schedule
// expression plus title, attendees and an optional explicit duration.
type Input struct {
	Expr      Expression
	Title     string
	Attendees []string
	Duration  time.Duration // 0 when the phrase named no duration
}

var (
	// "for 2h", "für 30 min", "dauer 1h", or a bare "90m".
	durationRe = regexp.MustCompile(`(?i)\b(?:(?:for|f(?:ü|ue)r|dauer)\s+)?(\d+(?:\.\d+)?)\s*(h|hrs?|hours?|stunden?|m|mins?|minutes?|minuten?)\b`)

	emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+$`)

	withRe = regexp.MustCompile(`(?i)\s+with\s+`)

	quotedRe = regexp.MustCompile(`"([^"]*)"`)
)

// ParseInput decomposes a natural-language event line such as
//
//	friday 2pm-4pm Workshop with alice@example.com and bob@example.com
//
// Unlike Parse, text the grammar does not recognize becomes the event
// title instead of an error; only a missing or malformed date/time
// component fails. An empty title is accepted.
func ParseInput(text string, now time.Time, loc *time.Location, opts ...Option) (Input, error) {
	cfg := newConfig(opts)
	now = now.In(loc)

	rest, attendees := extractAttendees(text, cfg)

	// A quoted string is always the title, never schedule grammar.
	var title string
	if m := quotedRe.FindStringSubmatchIndex(rest); m != nil {
		title = rest[m[2]:m[3]]
		rest = rest[:m[0]] + rest[m[1]:]
	}

	if m := inDurationRe.FindStringSubmatch(strings.TrimSpace(rest)); m != nil {
		trimmed := strings.TrimSpace(rest)
		if title == "" {
			title = cleanTitle(trimmed[len(m[0]):])
		}
		return Input{
			Expr:      relativeAnchor(m, now),
			Title:     title,
			Attendees: attendees,
		}, nil
	}

	// Event phrases read bare weekdays forward: "friday 2pm Standup"
	// books the coming Friday, not the one just past.
	day, timeTok, rest, err := scan(rest, now, loc, cfg, forthcoming)
	if err != nil {
		return Input{}, err
	}

	duration, rest := extractDuration(rest)

	if day == nil && timeTok == nil {
		return Input{}, unknownDate(strings.TrimSpace(text))
	}

	if title == "" {
		title = cleanTitle(rest)
	}

	return Input{
		Expr:      combine(day, timeTok, now, loc),
		Title:     title,
		Attendees: attendees,
		Duration:  duration,
	}, nil
}

// extractAttendees removes the trailing "with a@x, b@y and c@z" clause.
// Items may be aliases resolvable through the configured resolver; a
// clause containing anything that is neither stays in the title.
func extractAttendees(text string, cfg *config) (string, []string) {
	for _, m := range withRe.FindAllStringIndex(text, -1) {
		tail := text[m[1]:]
		items := splitAttendeeList(tail)
		if len(items) == 0 {
			continue
		}

		emails := make([]string, 0, len(items))
		ok := true
		for _, item := range items {
			switch {
			case emailRe.MatchString(item):
				emails = append(emails, item)
			case cfg.resolver != nil:
				email, found := cfg.resolver(item)
				if !found {
					ok = false
				} else {
					emails = append(emails, email)
				}
			default:
				ok = false
			}
			if !ok {
				break
			}
		}
		if ok {
			return text[:m[0]], dedupe(emails)
		}
	}
	return text, nil
}

var attendeeSplitRe = regexp.MustCompile(`(?i)\s*,\s*|\s+(?:and|und)\s+`)

func splitAttendeeList(s string) []string {
	var items []string
	for _, item := range attendeeSplitRe.Split(strings.TrimSpace(s), -1) {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		key := strings.ToLower(item)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func extractDuration(text string) (time.Duration, string) {
	m := durationRe.FindStringSubmatchIndex(text)
	if m == nil {
		return 0, text
	}
	value, _ := strconv.ParseFloat(text[m[2]:m[3]], 64)
	unit := strings.ToLower(text[m[4]:m[5]])

	minutes := value
	// hour/hrs/stunden; everything else is minutes
	if strings.HasPrefix(unit, "h") || strings.HasPrefix(unit, "s") {
		minutes = value * 60
	}
	return time.Duration(minutes) * time.Minute, text[:m[0]] + text[m[1]:]
}

func cleanTitle(s string) string {
	fields := strings.Fields(s)
	// Leading and trailing connectives are grammar debris, not title.
	for len(fields) > 0 && isFiller(fields[0]) {
		fields = fields[1:]
	}
	for len(fields) > 0 && isFiller(fields[len(fields)-1]) {
		fields = fields[:len(fields)-1]
	}
	return strings.Trim(strings.Join(fields, " "), `"'`)
}

func isFiller(word string) bool {
	switch strings.ToLower(word) {
	case "at", "on", "um", "am", "for", "für", "fuer", "den", "the":
		return true
	}
	return false
}

func onlyFillers(s string) bool {
	for _, word := range strings.Fields(s) {
		if !isFiller(word) {
			return false
		}
	}
	return true
}
