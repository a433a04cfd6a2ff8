package dateparse

import (
	"regexp"
	"strconv"
	"strings"
)

// clockTime is a wall-clock time of day, not yet bound to a date.
type clockTime struct {
	hour, minute int
}

// timeToken is the extracted time component of an expression: either a
// single clock time or a start-end pair on the same day.
type timeToken struct {
	start   clockTime
	end     clockTime
	hasEnd  bool
	matched string
}

var (
	// "2pm-4pm", "9am-11:30am", "14:00-15:30", "2-4pm", "9 uhr - 11 uhr".
	// Validity (at least one am/pm/uhr marker, or minutes on both sides)
	// is checked in code; RE2 has no lookarounds to express it.
	timeRangeRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm|uhr)?\s*[-–]\s*(\d{1,2})(?::(\d{2}))?\s*(am|pm|uhr)?\b`)

	// "14:00", "9:30"
	time24hRe = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)

	// "2pm", "2:30pm", "14 uhr"
	timeAmPmRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm|uhr)\b`)

	// Anything that looks like it was meant as a clock time but failed the
	// strict patterns above, e.g. "25:99". Used for error reporting only.
	timeLikeRe = regexp.MustCompile(`\b\d{1,2}:\d{2,}\b`)
)

// namedTimes maps word tokens to clock times. Morning and afternoon are
// placeholders resolved against the parser defaults.
var namedTimes = []struct {
	word string
	t    clockTime
}{
	{"noon", clockTime{12, 0}},
	{"mittag", clockTime{12, 0}},
	{"midnight", clockTime{0, 0}},
	{"mitternacht", clockTime{0, 0}},
}

// parseClock converts regex groups to a 24h clock time.
// "uhr" is already 24h; am/pm follow the usual 12h conversion.
func parseClock(hourStr, minuteStr, marker string) clockTime {
	hour, _ := strconv.Atoi(hourStr)
	minute := 0
	if minuteStr != "" {
		minute, _ = strconv.Atoi(minuteStr)
	}

	switch strings.ToLower(marker) {
	case "pm":
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	return clockTime{hour: hour, minute: minute}
}

// extractTime pulls the first time or time-range token out of text and
// returns the token plus the text with the match removed. A nil token
// with a nil error means no time component was present.
func extractTime(text string, cfg *config) (*timeToken, string, error) {
	// Time ranges bind tighter than single times.
	for _, m := range timeRangeRe.FindAllStringSubmatchIndex(text, -1) {
		g := func(i int) string {
			if m[2*i] < 0 {
				return ""
			}
			return text[m[2*i]:m[2*i+1]]
		}
		startMin, startMarker := g(2), g(3)
		endMin, endMarker := g(5), g(6)

		// Plain "26-01" style number pairs are date fragments, not times.
		if startMarker == "" && endMarker == "" && (startMin == "" || endMin == "") {
			continue
		}

		start := parseClock(g(1), startMin, startMarker)
		end := parseClock(g(4), endMin, endMarker)

		// "2-4pm": the start inherits pm when that is the only reading
		// with start before end.
		if endMarker != "" && startMarker == "" {
			if raw, _ := strconv.Atoi(g(1)); raw < 12 && raw+12 <= end.hour {
				start.hour = raw + 12
			}
		}

		matched := text[m[0]:m[1]]
		if end.hour < start.hour || (end.hour == start.hour && end.minute <= start.minute) {
			return nil, text, unknownTime(strings.TrimSpace(matched))
		}
		tok := &timeToken{start: start, end: end, hasEnd: true, matched: matched}
		return tok, text[:m[0]] + text[m[1]:], nil
	}

	// The marker rule runs before the bare 24h rule so "14:00 uhr"
	// consumes its suffix instead of stranding "uhr" in the day text.
	if m := timeAmPmRe.FindStringSubmatchIndex(text); m != nil {
		g := func(i int) string {
			if m[2*i] < 0 {
				return ""
			}
			return text[m[2*i]:m[2*i+1]]
		}
		tok := &timeToken{start: parseClock(g(1), g(2), g(3)), matched: text[m[0]:m[1]]}
		return tok, text[:m[0]] + text[m[1]:], nil
	}

	if m := time24hRe.FindStringSubmatchIndex(text); m != nil {
		hour, _ := strconv.Atoi(text[m[2]:m[3]])
		minute, _ := strconv.Atoi(text[m[4]:m[5]])
		tok := &timeToken{start: clockTime{hour, minute}, matched: text[m[0]:m[1]]}
		return tok, text[:m[0]] + text[m[1]:], nil
	}

	lower := strings.ToLower(text)
	for _, nt := range namedTimes {
		if idx := wordIndex(lower, nt.word); idx >= 0 {
			tok := &timeToken{start: nt.t, matched: nt.word}
			return tok, text[:idx] + text[idx+len(nt.word):], nil
		}
	}
	if idx := wordIndex(lower, "morning"); idx >= 0 {
		tok := &timeToken{start: cfg.morning, matched: "morning"}
		return tok, text[:idx] + text[idx+len("morning"):], nil
	}
	if idx := wordIndex(lower, "afternoon"); idx >= 0 {
		tok := &timeToken{start: cfg.afternoon, matched: "afternoon"}
		return tok, text[:idx] + text[idx+len("afternoon"):], nil
	}

	// A malformed clock token is an error, not a title word.
	if bad := timeLikeRe.FindString(text); bad != "" {
		return nil, text, unknownTime(bad)
	}

	return nil, text, nil
}

// wordIndex returns the byte index of word in s when it appears as a
// whole word, or -1.
func wordIndex(s, word string) int {
	idx := 0
	for {
		i := strings.Index(s[idx:], word)
		if i < 0 {
			return -1
		}
		i += idx
		before := i == 0 || isWordBoundary(s[i-1])
		afterIdx := i + len(word)
		after := afterIdx >= len(s) || isWordBoundary(s[afterIdx])
		if before && after {
			return i
		}
		idx = i + len(word)
	}
}

func isWordBoundary(c byte) bool {
	return !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9')
}
