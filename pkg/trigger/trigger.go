// Package trigger implements the scheduling-trigger grammar: a small
// human-writable text form that round-trips losslessly through a
// structured Trigger value.
//
// Two trigger kinds are supported: interval ("run every N units, optionally
// windowed between a start and end time") and cron (calendar fields, in the
// style of a crontab entry). In the text form, interval units are written
// "<value> <unit>" ("5 min") and cron fields and the start/end/z/delay
// options are written "<key> <value>" ("hr 9"). A leading "interval" or
// "cron" keyword names the kind; without it, a cron-only key selects cron.
package trigger

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind distinguishes the two trigger families a Trigger can hold.
type Kind string

const (
	KindNone     Kind = ""
	KindInterval Kind = "interval"
	KindCron     Kind = "cron"
)

// Trigger is the structured sum type. Only the fields for Kind are
// meaningful; the others are zero.
type Trigger struct {
	Kind     Kind
	Interval IntervalSpec
	Cron     CronSpec
}

// IntervalSpec fires every given duration, optionally confined to a
// start/end time-of-day window, in an optional named timezone, with an
// optional startup jitter delay in seconds.
type IntervalSpec struct {
	Weeks, Days, Hours, Minutes, Seconds int
	Start, End                           string // "HH:MM", empty = unbounded
	TZ                                   string
	Delay                                int
}

// CronSpec mirrors crontab-style calendar fields. Empty string means
// "every" for that field, matching cron's "*".
type CronSpec struct {
	Year, Month, Day, Week, Weekday, Hour, Minute, Second string
	Start, End                                            string
	TZ                                                     string
	Delay                                                  int
}

// interval key aliases, in canonical emission order.
var intervalKeys = []string{"week", "day", "hr", "min", "sec"}
var intervalTail = []string{"start", "end", "z", "delay"}

// cron key aliases, in canonical emission order.
var cronKeys = []string{"year", "month", "day", "week", "weekday", "hr", "min", "sec"}
var cronTail = []string{"start", "end", "z", "delay"}

// cronOnlyKeys distinguishes cron-only keys from the ones interval and
// cron share (day, hr, min, sec) so a bare "3 day" still parses as
// interval unless a cron-only key (year/month/week/weekday) is present.
var cronOnlyKeys = map[string]bool{"year": true, "month": true, "week": true, "weekday": true}

// Trigger2Text renders a Trigger into its canonical text form.
func Trigger2Text(t Trigger) string {
	switch t.Kind {
	case KindInterval:
		return interval2Text(t.Interval)
	case KindCron:
		return cron2Text(t.Cron)
	default:
		return ""
	}
}

func interval2Text(s IntervalSpec) string {
	parts := []string{"interval"}
	unitCount := 0
	vals := map[string]int{"week": s.Weeks, "day": s.Days, "hr": s.Hours, "min": s.Minutes, "sec": s.Seconds}
	for _, k := range intervalKeys {
		if v := vals[k]; v != 0 {
			parts = append(parts, fmt.Sprintf("%d %s", v, k))
			unitCount++
		}
	}
	if unitCount == 0 {
		parts = append(parts, "1 min")
	}
	tail := map[string]string{"start": s.Start, "end": s.End, "z": s.TZ}
	for _, k := range intervalTail[:3] {
		if v := tail[k]; v != "" {
			parts = append(parts, fmt.Sprintf("%s %s", k, v))
		}
	}
	if s.Delay != 0 {
		parts = append(parts, fmt.Sprintf("delay %d", s.Delay))
	}
	return strings.Join(parts, " ")
}

func cron2Text(s CronSpec) string {
	parts := []string{"cron"}
	vals := map[string]string{
		"year": s.Year, "month": s.Month, "day": s.Day, "week": s.Week,
		"weekday": s.Weekday, "hr": s.Hour, "min": s.Minute, "sec": s.Second,
	}
	for _, k := range cronKeys {
		if v := vals[k]; v != "" {
			parts = append(parts, fmt.Sprintf("%s %s", k, v))
		}
	}
	tail := map[string]string{"start": s.Start, "end": s.End, "z": s.TZ}
	for _, k := range cronTail[:3] {
		if v := tail[k]; v != "" {
			parts = append(parts, fmt.Sprintf("%s %s", k, v))
		}
	}
	if s.Delay != 0 {
		parts = append(parts, fmt.Sprintf("delay %d", s.Delay))
	}
	return strings.Join(parts, " ")
}

// Text2Trigger parses the canonical text form back into a Trigger. An
// empty string yields the zero (KindNone) Trigger.
func Text2Trigger(text string) (Trigger, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Trigger{}, nil
	}
	tokens := strings.Fields(text)

	// A leading "interval"/"cron" keyword names the kind explicitly and is
	// consumed before the rest of the token stream is scanned. Its absence
	// falls back to the old auto-detection by cron-only key.
	kind := ""
	switch strings.ToLower(tokens[0]) {
	case "interval":
		kind = "interval"
		tokens = tokens[1:]
	case "cron":
		kind = "cron"
		tokens = tokens[1:]
	}

	if kind == "cron" {
		return parseCronTokens(tokens)
	}
	if kind == "interval" {
		return parseIntervalTokens(tokens)
	}

	isCron := false
	for i := 0; i < len(tokens); i++ {
		if cronOnlyKeys[tokens[i]] {
			isCron = true
			break
		}
	}

	if isCron {
		return parseCronTokens(tokens)
	}
	return parseIntervalTokens(tokens)
}

func parseIntervalTokens(tokens []string) (Trigger, error) {
	s := IntervalSpec{}
	i := 0
	assignUnitless := false
	var pendingNum int
	for i < len(tokens) {
		tok := tokens[i]
		switch tok {
		case "start":
			if i+1 >= len(tokens) {
				return Trigger{}, fmt.Errorf("trigger: start missing value")
			}
			s.Start = tokens[i+1]
			i += 2
			continue
		case "end":
			if i+1 >= len(tokens) {
				return Trigger{}, fmt.Errorf("trigger: end missing value")
			}
			s.End = tokens[i+1]
			i += 2
			continue
		case "z":
			if i+1 >= len(tokens) {
				return Trigger{}, fmt.Errorf("trigger: z missing value")
			}
			s.TZ = tokens[i+1]
			i += 2
			continue
		case "delay":
			if i+1 >= len(tokens) {
				return Trigger{}, fmt.Errorf("trigger: delay missing value")
			}
			n, err := strconv.Atoi(tokens[i+1])
			if err != nil {
				return Trigger{}, fmt.Errorf("trigger: delay value: %w", err)
			}
			s.Delay = n
			i += 2
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			return Trigger{}, fmt.Errorf("trigger: unexpected token %q", tok)
		}
		if i+1 < len(tokens) && isIntervalUnit(tokens[i+1]) {
			unit := tokens[i+1]
			applyIntervalUnit(&s, unit, n)
			i += 2
			continue
		}
		// Trailing bare number with no unit: assume minutes.
		assignUnitless = true
		pendingNum = n
		i++
	}
	if assignUnitless {
		s.Minutes = pendingNum
	}
	return Trigger{Kind: KindInterval, Interval: s}, nil
}

func isIntervalUnit(tok string) bool {
	switch tok {
	case "week", "day", "hr", "min", "sec":
		return true
	}
	return false
}

// applyIntervalUnit sets the unit field to n, overwriting any prior value
// for the same unit key (a repeated key re-defines rather than accumulates,
// matching the grammar's "last value wins" rule).
func applyIntervalUnit(s *IntervalSpec, unit string, n int) {
	switch unit {
	case "week":
		s.Weeks = n
	case "day":
		s.Days = n
	case "hr":
		s.Hours = n
	case "min":
		s.Minutes = n
	case "sec":
		s.Seconds = n
	}
}

func parseCronTokens(tokens []string) (Trigger, error) {
	s := CronSpec{}
	i := 0
	for i < len(tokens) {
		tok := tokens[i]
		if i+1 >= len(tokens) {
			return Trigger{}, fmt.Errorf("trigger: %q missing value", tok)
		}
		val := tokens[i+1]
		switch tok {
		case "year":
			s.Year = val
		case "month":
			s.Month = val
		case "day":
			s.Day = val
		case "week":
			s.Week = val
		case "weekday":
			s.Weekday = val
		case "hr":
			s.Hour = val
		case "min":
			s.Minute = val
		case "sec":
			s.Second = val
		case "start":
			s.Start = val
		case "end":
			s.End = val
		case "z":
			s.TZ = val
		case "delay":
			n, err := strconv.Atoi(val)
			if err != nil {
				return Trigger{}, fmt.Errorf("trigger: delay value: %w", err)
			}
			s.Delay = n
		default:
			return Trigger{}, fmt.Errorf("trigger: unexpected token %q", tok)
		}
		i += 2
	}
	return Trigger{Kind: KindCron, Cron: s}, nil
}

// CronSpecString renders a CronSpec as a robfig/cron v3 spec string
// ("sec min hour day month weekday"), substituting "*" for empty fields.
func (s CronSpec) CronSpecString() string {
	field := func(v string) string {
		if v == "" {
			return "*"
		}
		return v
	}
	weekday := field(s.Weekday)
	return strings.Join([]string{
		field(s.Second), field(s.Minute), field(s.Hour), field(s.Day), field(s.Month), weekday,
	}, " ")
}

// SortedUnits returns the interval unit keys sorted alphabetically. This
// is not the order Trigger2Text emits them in (week, day, hr, min, sec).
func SortedUnits() []string {
	u := append([]string{}, intervalKeys...)
	sort.Strings(u)
	return u
}
