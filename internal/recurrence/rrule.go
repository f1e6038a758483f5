package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Freq int

const (
	Weekly Freq = iota
	Monthly
	Yearly
)

var freqNames = map[Freq]string{
	Weekly:  "WEEKLY",
	Monthly: "MONTHLY",
	Yearly:  "YEARLY",
}

var freqFromName = map[string]Freq{
	"WEEKLY":  Weekly,
	"MONTHLY": Monthly,
	"YEARLY":  Yearly,
}

// Rule is the subset of RFC 5545 RRULE used for bill schedules.
type Rule struct {
	Freq       Freq
	Interval   int        // default 1; 3 with Monthly = quarterly
	ByMonthDay int        // for MONTHLY: day of month (0 = same as start)
	Count      int        // max occurrences (0 = unlimited)
	Until      *time.Time // last allowed date (nil = no limit)
}

// Parse parses an RRULE string like "FREQ=MONTHLY;INTERVAL=3;BYMONTHDAY=15".
// A leading "RRULE:" prefix is accepted.
func Parse(rule string) (Rule, error) {
	rule = strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:")
	if rule == "" {
		return Rule{}, fmt.Errorf("empty rule")
	}

	r := Rule{Interval: 1}
	var hasFreq bool

	for _, part := range strings.Split(rule, ";") {
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			return Rule{}, fmt.Errorf("invalid rule part: %q", part)
		}

		switch strings.ToUpper(key) {
		case "FREQ":
			f, ok := freqFromName[strings.ToUpper(val)]
			if !ok {
				return Rule{}, fmt.Errorf("unsupported frequency: %q", val)
			}
			r.Freq = f
			hasFreq = true

		case "INTERVAL":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				return Rule{}, fmt.Errorf("invalid interval: %q", val)
			}
			r.Interval = n

		case "BYMONTHDAY":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 || n > 31 {
				return Rule{}, fmt.Errorf("invalid BYMONTHDAY: %q", val)
			}
			r.ByMonthDay = n

		case "COUNT":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				return Rule{}, fmt.Errorf("invalid count: %q", val)
			}
			r.Count = n

		case "UNTIL":
			t, err := time.Parse("20060102T150405Z", val)
			if err != nil {
				t, err = time.Parse("20060102", val)
				if err != nil {
					return Rule{}, fmt.Errorf("invalid UNTIL: %q", val)
				}
			}
			r.Until = &t

		default:
			return Rule{}, fmt.Errorf("unsupported rule key: %q", key)
		}
	}

	if !hasFreq {
		return Rule{}, fmt.Errorf("FREQ is required")
	}
	return r, nil
}

// String serializes the rule back to an RRULE string.
func (r Rule) String() string {
	parts := []string{"FREQ=" + freqNames[r.Freq]}
	if r.Interval > 1 {
		parts = append(parts, fmt.Sprintf("INTERVAL=%d", r.Interval))
	}
	if r.ByMonthDay > 0 {
		parts = append(parts, fmt.Sprintf("BYMONTHDAY=%d", r.ByMonthDay))
	}
	if r.Count > 0 {
		parts = append(parts, fmt.Sprintf("COUNT=%d", r.Count))
	}
	if r.Until != nil {
		parts = append(parts, "UNTIL="+r.Until.Format("20060102"))
	}
	return strings.Join(parts, ";")
}

// Describe returns a human-readable description of the rule.
func (r Rule) Describe() string {
	switch r.Freq {
	case Weekly:
		switch r.Interval {
		case 1:
			return "Repeats weekly"
		case 2:
			return "Repeats every 2 weeks"
		}
		return fmt.Sprintf("Repeats every %d weeks", r.Interval)
	case Monthly:
		switch r.Interval {
		case 1:
			return "Repeats monthly"
		case 3:
			return "Repeats quarterly"
		case 6:
			return "Repeats twice a year"
		case 12:
			return "Repeats yearly"
		}
		return fmt.Sprintf("Repeats every %d months", r.Interval)
	case Yearly:
		if r.Interval > 1 {
			return fmt.Sprintf("Repeats every %d years", r.Interval)
		}
		return "Repeats yearly"
	}
	return ""
}

// PerYear returns how many occurrences an unbounded rule produces in a year.
func (r Rule) PerYear() float64 {
	switch r.Freq {
	case Weekly:
		return 52.0 / float64(r.Interval)
	case Monthly:
		return 12.0 / float64(r.Interval)
	case Yearly:
		return 1.0 / float64(r.Interval)
	}
	return 0
}
