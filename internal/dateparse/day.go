package dateparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dayWindow is the resolved day-level component of an expression: a run
// of whole days starting at midnight in the target zone.
type dayWindow struct {
	start time.Time // midnight of the first day
	days  int
	desc  string
}

func (w dayWindow) end() time.Time {
	return w.start.AddDate(0, 0, w.days)
}

// dayDirection controls how a bare weekday name resolves. Pure date
// queries ("show friday") mean the most recent occurrence, today
// included; event phrases ("friday 2pm Standup") mean the forthcoming
// one, today included. Qualified weekdays ("next friday") ignore it.
type dayDirection int

const (
	mostRecent dayDirection = iota
	forthcoming
)

// dayRule is one entry in the ordered grammar table. Rules are tried in
// sequence against the start of the expression; the first match wins, so
// explicit dates sit above the vaguer word rules.
type dayRule struct {
	re      *regexp.Regexp
	resolve func(groups []string, now time.Time, loc *time.Location, dir dayDirection) (*dayWindow, error)
}

var weekdayNames = map[string]time.Weekday{
	"monday": time.Monday, "mon": time.Monday, "montag": time.Monday, "mo": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday, "dienstag": time.Tuesday, "di": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday, "mittwoch": time.Wednesday, "mi": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "donnerstag": time.Thursday, "do": time.Thursday,
	"friday": time.Friday, "fri": time.Friday, "freitag": time.Friday, "fr": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday, "samstag": time.Saturday, "sa": time.Saturday,
	"sunday": time.Sunday, "sun": time.Sunday, "sonntag": time.Sunday, "so": time.Sunday,
}

var monthNames = map[string]time.Month{
	"january": time.January, "jan": time.January, "januar": time.January,
	"february": time.February, "feb": time.February, "februar": time.February,
	"march": time.March, "mar": time.March, "märz": time.March, "maerz": time.March,
	"april": time.April, "apr": time.April,
	"may": time.May, "mai": time.May,
	"june": time.June, "jun": time.June, "juni": time.June,
	"july": time.July, "jul": time.July, "juli": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October, "okt": time.October, "oktober": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December, "dez": time.December, "dezember": time.December,
}

var relativeDays = map[string]int{
	"today": 0, "heute": 0,
	"tomorrow": 1, "morgen": 1,
	"yesterday": -1, "gestern": -1,
	"overmorrow": 2, "übermorgen": 2, "uebermorgen": 2,
}

const (
	weekdayAlt = `monday|montag|mondays?|mon|mo|tuesday|dienstag|tues|tue|di|wednesday|mittwoch|wed|mi|thursday|donnerstag|thurs|thur|thu|do|friday|freitag|fri|fr|saturday|samstag|sat|sa|sunday|sonntag|sun|so`
	monthAlt   = `january|januar|jan|february|februar|feb|march|m(?:ä|ae)rz|mar|april|apr|may|mai|june|juni|jun|july|juli|jul|august|aug|september|sept|sep|october|oktober|okt|oct|november|nov|december|dezember|dez|dec`
)

// dayRules is the grammar, ordered most specific first.
var dayRules = []dayRule{
	// ISO date: 2026-01-25
	{
		re: regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})\b`),
		resolve: func(g []string, now time.Time, loc *time.Location, dir dayDirection) (*dayWindow, error) {
			return literalDate(g[0], g[1], g[2], g[3], loc)
		},
	},
	// Slash date: 2026/01/25
	{
		re: regexp.MustCompile(`^(\d{4})/(\d{1,2})/(\d{1,2})\b`),
		resolve: func(g []string, now time.Time, loc *time.Location, dir dayDirection) (*dayWindow, error) {
			return literalDate(g[0], g[1], g[2], g[3], loc)
		},
	},
	// German dotted date: 28.01, 28.01.2026, 28.1.26
	{
		re: regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})(?:\.(\d{2,4}))?(\s|$)`),
		resolve: func(g []string, now time.Time, loc *time.Location, dir dayDirection) (*dayWindow, error) {
			day, _ := strconv.Atoi(g[1])
			month, _ := strconv.Atoi(g[2])
			year := now.Year()
			if g[3] != "" {
				year, _ = strconv.Atoi(g[3])
				if year < 100 {
					year += 2000
				}
			}
			d, ok := calendarDate(year, time.Month(month), day, loc)
			if !ok {
				return nil, unknownDate(strings.TrimSpace(g[0]))
			}
			return &dayWindow{start: d, days: 1, desc: d.Format("02.01.2006")}, nil
		},
	},
	// Day offset: +2, -1
	{
		re: regexp.MustCompile(`^([+-])(\d+)\b`),
		resolve: func(g []string, now time.Time, loc *time.Location, dir dayDirection) (*dayWindow, error) {
			n, _ := strconv.Atoi(g[2])
			if g[1] == "-" {
				n = -n
			}
			d := midnight(now, loc).AddDate(0, 0, n)
			return &dayWindow{start: d, days: 1, desc: offsetDesc(n)}, nil
		},
	},
	// Calendar week: kw30, cw 15, week 30, woche 30
	{
		re: regexp.MustCompile(`(?i)^(?:kw|cw|week|woche)\s*(\d{1,2})\b`),
		resolve: func(g []string, now time.Time, loc *time.Location, dir dayDirection) (*dayWindow, error) {
			week, _ := strconv.Atoi(g[1])
			if week < 1 || week > 53 {
				return nil, unknownDate(strings.TrimSpace(g[0]))
			}
			year, current := now.ISOWeek()
			if week < current {
				year++
			}
			start := isoWeekStart(year, week, loc)
			return &dayWindow{start: start, days: 7, desc: fmt.Sprintf("KW%d %d", week, year)}, nil
		},
	},
	// next week / nächste woche
	{
		re: regexp.MustCompile(`(?i)^(?:next\s+week|n(?:ä|ae)chste\s+woche)\b`),
		resolve: func(g []string, now time.Time, loc *time.Location, dir dayDirection) (*dayWindow, error) {
			start := mondayOf(midnight(now, loc)).AddDate(0, 0, 7)
			return &dayWindow{start: start, days: 7, desc: "next week"}, nil
		},
	},
	// this week / diese woche
	{
		re: regexp.MustCompile(`(?i)^(?:this\s+week|diese\s+woche)\b`),
		resolve: func(g []string, now time.Time, loc *time.Location, dir dayDirection) (*dayWindow, error) {
			start := mondayOf(midnight(now, loc))
			return &dayWindow{start: start, days: 7, desc: "this week"}, nil
		},
	},
	// next month / this month
	{
		re: regexp.MustCompile(`(?i)^(next|this)\s+month\b`),
		resolve: func(g []string, now time.Time, loc *time.Location, dir dayDirection) (*dayWindow, error) {
			year, month, _ := now.In(loc).Date()
			start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
			if strings.EqualFold(g[1], "next") {
				start = start.AddDate(0, 1, 0)
			}
			return monthWindow(start, strings.ToLower(g[1])+" month"), nil
		},
	},
	// Relative days: today, tomorrow, übermorgen, ...
	{
		re: regexp.MustCompile(`(?i)^(today|heute|tomorrow|morgen|yesterday|gestern|overmorrow|übermorgen|uebermorgen)\b`),
		resolve: func(g []string, now time.Time, loc *time.Location, dir dayDirection) (*dayWindow, error) {
			word := strings.ToLower(g[1])
			d := midnight(now, loc).AddDate(0, 0, relativeDays[word])
			return &dayWindow{start: d, days: 1, desc: word}, nil
		},
	},
	// in N days / in 2 weeks
	{
		re: regexp.MustCompile(`(?i)^in\s+(\d+)\s*(days?|tagen?|weeks?|wochen?)\b`),
		resolve: func(g []string, now time.Time, loc *time.Location, dir dayDirection) (*dayWindow, error) {
			n, _ := strconv.Atoi(g[1])
			if strings.HasPrefix(strings.ToLower(g[2]), "w") {
				n *= 7
			}
			d := midnight(now, loc).AddDate(0, 0, n)
			return &dayWindow{start: d, days: 1, desc: strings.TrimSpace(g[0])}, nil
		},
	},
	// Qualified weekday: next friday, this monday, nächsten mittwoch
	{
		re: regexp.MustCompile(`(?i)^(next|this|n(?:ä|ae)chsten?|diesen?)\s+(` + weekdayAlt + `)\b`),
		resolve: func(g []string, now time.Time, loc *time.Location, dir dayDirection) (*dayWindow, error) {
			wd, ok := weekdayNames[strings.ToLower(g[2])]
			if !ok {
				return nil, nil
			}
			today := midnight(now, loc)
			qualifier := strings.ToLower(g[1])
			var d time.Time
			if qualifier == "this" || strings.HasPrefix(qualifier, "diese") {
				// Within the current Monday-Sunday week, forward or back.
				d = mondayOf(today).AddDate(0, 0, isoDayOffset(wd))
			} else {
				// Strictly after today; same weekday means a week out.
				diff := (int(wd) - int(today.Weekday()) + 7) % 7
				if diff == 0 {
					diff = 7
				}
				d = today.AddDate(0, 0, diff)
			}
			return &dayWindow{start: d, days: 1, desc: strings.ToLower(g[0])}, nil
		},
	},
	// Bare weekday: nearest occurrence in the direction the caller
	// reads dates, today included either way.
	{
		re: regexp.MustCompile(`(?i)^(` + weekdayAlt + `)\b`),
		resolve: func(g []string, now time.Time, loc *time.Location, dir dayDirection) (*dayWindow, error) {
			wd, ok := weekdayNames[strings.ToLower(g[1])]
			if !ok {
				return nil, nil
			}
			today := midnight(now, loc)
			var d time.Time
			if dir == forthcoming {
				d = today.AddDate(0, 0, (int(wd)-int(today.Weekday())+7)%7)
			} else {
				d = today.AddDate(0, 0, -((int(today.Weekday()) - int(wd) + 7) % 7))
			}
			return &dayWindow{start: d, days: 1, desc: strings.ToLower(g[1])}, nil
		},
	},
	// Month day: "jan 25", "january 25 2027"
	{
		re: regexp.MustCompile(`(?i)^(` + monthAlt + `)\s+(\d{1,2})(?:\s+(\d{4}))?\b`),
		resolve: func(g []string, now time.Time, loc *time.Location, dir dayDirection) (*dayWindow, error) {
			return monthDay(g[1], g[2], g[3], now, loc, g[0])
		},
	},
	// Day month: "25 jan", "25. januar 2027", "11 dezember"
	{
		re: regexp.MustCompile(`(?i)^(\d{1,2})\.?\s+(?:of\s+)?(` + monthAlt + `)(?:\s+(\d{4}))?\b`),
		resolve: func(g []string, now time.Time, loc *time.Location, dir dayDirection) (*dayWindow, error) {
			return monthDay(g[2], g[1], g[3], now, loc, g[0])
		},
	},
	// Bare month name: the whole month, rolling to next year if past.
	{
		re: regexp.MustCompile(`(?i)^(` + monthAlt + `)\b`),
		resolve: func(g []string, now time.Time, loc *time.Location, dir dayDirection) (*dayWindow, error) {
			month, ok := monthNames[strings.ToLower(g[1])]
			if !ok {
				return nil, nil
			}
			year := now.In(loc).Year()
			if month < now.In(loc).Month() {
				year++
			}
			start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
			return monthWindow(start, fmt.Sprintf("%s %d", strings.ToLower(g[1]), year)), nil
		},
	},
	// Bare day number, whole expression only: "28" means the most recent
	// 28th (current month, or last month if not yet reached).
	{
		re: regexp.MustCompile(`^(\d{1,2})\s*$`),
		resolve: func(g []string, now time.Time, loc *time.Location, dir dayDirection) (*dayWindow, error) {
			day, _ := strconv.Atoi(g[1])
			if day < 1 || day > 31 {
				return nil, nil
			}
			year, month, today := now.In(loc).Date()
			if day > today {
				if month == time.January {
					month = time.December
					year--
				} else {
					month--
				}
			}
			d, ok := calendarDate(year, month, day, loc)
			if !ok {
				return nil, unknownDate(g[1])
			}
			return &dayWindow{start: d, days: 1, desc: d.Format("January 2")}, nil
		},
	},
}

func literalDate(full, y, m, d string, loc *time.Location) (*dayWindow, error) {
	year, _ := strconv.Atoi(y)
	month, _ := strconv.Atoi(m)
	day, _ := strconv.Atoi(d)
	date, ok := calendarDate(year, time.Month(month), day, loc)
	if !ok {
		return nil, unknownDate(strings.TrimSpace(full))
	}
	return &dayWindow{start: date, days: 1, desc: date.Format("January 2, 2006")}, nil
}

func monthDay(monthStr, dayStr, yearStr string, now time.Time, loc *time.Location, full string) (*dayWindow, error) {
	month, ok := monthNames[strings.ToLower(monthStr)]
	if !ok {
		return nil, nil
	}
	day, _ := strconv.Atoi(dayStr)
	// Year defaults to the current year, never the previous one. An
	// explicit year always wins.
	year := now.In(loc).Year()
	if yearStr != "" {
		year, _ = strconv.Atoi(yearStr)
	}
	d, ok := calendarDate(year, month, day, loc)
	if !ok {
		return nil, unknownDate(strings.TrimSpace(full))
	}
	return &dayWindow{start: d, days: 1, desc: d.Format("January 2, 2006")}, nil
}

func monthWindow(start time.Time, desc string) *dayWindow {
	days := int(start.AddDate(0, 1, 0).Sub(start).Hours() / 24)
	return &dayWindow{start: start, days: days, desc: desc}
}

// calendarDate builds midnight of a calendar day, rejecting dates that
// time.Date would silently normalize (e.g. Feb 31).
func calendarDate(year int, month time.Month, day int, loc *time.Location) (time.Time, bool) {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, loc)
	if d.Year() != year || d.Month() != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

func midnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// isoDayOffset maps a weekday to its offset from Monday (Mon=0 .. Sun=6).
func isoDayOffset(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

func mondayOf(day time.Time) time.Time {
	return day.AddDate(0, 0, -isoDayOffset(day.Weekday()))
}

// isoWeekStart returns the Monday of ISO week `week` in `year`.
// Jan 4 is always inside week 1.
func isoWeekStart(year, week int, loc *time.Location) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, loc)
	return mondayOf(jan4).AddDate(0, 0, (week-1)*7)
}

func offsetDesc(n int) string {
	switch n {
	case 0:
		return "today"
	case 1:
		return "tomorrow"
	case -1:
		return "yesterday"
	}
	return fmt.Sprintf("%+d days", n)
}

// resolveDay tries the grammar table against the start of text, skipping
// leading filler words. It returns the resolved window (nil when nothing
// matched) and the text with the matched token removed.
func resolveDay(text string, now time.Time, loc *time.Location, dir dayDirection) (*dayWindow, string, error) {
	trimmed, consumed := trimFillers(text)
	for _, rule := range dayRules {
		m := rule.re.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		w, err := rule.resolve(m, now, loc, dir)
		if err != nil {
			return nil, text, err
		}
		if w == nil {
			continue
		}
		rest := text[:len(text)-len(trimmed)-consumed] + trimmed[len(m[0]):]
		return w, rest, nil
	}
	return nil, text, nil
}

var fillerRe = regexp.MustCompile(`(?i)^\s*(at|on|um|am|den)\s+`)

// trimFillers strips leading connective words ("at", German "am") so the
// rules see the token itself. Returns the trimmed text and how many bytes
// of filler were removed beyond leading whitespace.
func trimFillers(text string) (string, int) {
	s := strings.TrimLeft(text, " \t")
	removed := 0
	for {
		m := fillerRe.FindString(s)
		if m == "" {
			break
		}
		s = s[len(m):]
		removed += len(m)
	}
	return s, removed
}
