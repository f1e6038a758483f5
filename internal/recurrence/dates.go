package recurrence

import "time"

// maxOccurrences bounds iteration for rules without COUNT or UNTIL.
const maxOccurrences = 5000

// Dates returns the occurrence dates of rule anchored at start that fall
// within [from, to). All values are treated as dates; the time of day is
// ignored.
func Dates(rule Rule, start, from, to time.Time) []time.Time {
	start, from, to = dateOf(start), dateOf(from), dateOf(to)
	var out []time.Time
	each(rule, start, func(d time.Time) bool {
		if !d.Before(to) {
			return false
		}
		if !d.Before(from) {
			out = append(out, d)
		}
		return true
	})
	return out
}

// Previous returns the latest occurrence on or before date, or false when
// the first occurrence is still in the future.
func Previous(rule Rule, start, date time.Time) (time.Time, bool) {
	start, date = dateOf(start), dateOf(date)
	var prev time.Time
	found := false
	each(rule, start, func(d time.Time) bool {
		if d.After(date) {
			return false
		}
		prev, found = d, true
		return true
	})
	return prev, found
}

// Next returns the first occurrence strictly after date, or false when the
// rule has ended.
func Next(rule Rule, start, date time.Time) (time.Time, bool) {
	start, date = dateOf(start), dateOf(date)
	var next time.Time
	found := false
	each(rule, start, func(d time.Time) bool {
		if d.After(date) {
			next, found = d, true
			return false
		}
		return true
	})
	return next, found
}

// each calls fn for successive occurrences until fn returns false or the
// rule's COUNT/UNTIL bound is reached.
func each(rule Rule, start time.Time, fn func(time.Time) bool) {
	interval := rule.Interval
	if interval < 1 {
		interval = 1
	}
	day := rule.ByMonthDay
	if day == 0 {
		day = start.Day()
	}

	emitted := 0
	for step := 0; step < maxOccurrences; step++ {
		var d time.Time
		switch rule.Freq {
		case Weekly:
			d = start.AddDate(0, 0, 7*interval*step)
		case Monthly:
			d = monthDay(start.Year(), start.Month()+time.Month(interval*step), day)
		case Yearly:
			d = monthDay(start.Year()+interval*step, start.Month(), day)
		default:
			return
		}
		if step == 0 && d.Before(start) {
			continue
		}
		if rule.Until != nil && d.After(dateOf(*rule.Until)) {
			return
		}
		emitted++
		if rule.Count > 0 && emitted > rule.Count {
			return
		}
		if !fn(d) {
			return
		}
	}
}

// monthDay builds the date, clamping day to the month's last day so a bill
// due on the 31st falls on the 30th in shorter months.
func monthDay(year int, month time.Month, day int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
