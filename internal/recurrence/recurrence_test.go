package recurrence

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParse(t *testing.T) {
	tests := []struct {
		input      string
		freq       Freq
		interval   int
		byMonthDay int
	}{
		{"FREQ=WEEKLY", Weekly, 1, 0},
		{"FREQ=MONTHLY", Monthly, 1, 0},
		{"FREQ=MONTHLY;INTERVAL=3", Monthly, 3, 0},
		{"RRULE:FREQ=MONTHLY;BYMONTHDAY=15", Monthly, 1, 15},
		{"freq=yearly", Yearly, 1, 0},
	}
	for _, tt := range tests {
		r, err := Parse(tt.input)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", tt.input, err)
			continue
		}
		if r.Freq != tt.freq || r.Interval != tt.interval || r.ByMonthDay != tt.byMonthDay {
			t.Errorf("Parse(%q) = %+v", tt.input, r)
		}
	}
}

func TestParseErrors(t *testing.T) {
	bad := []string{
		"",
		"INTERVAL=2",
		"FREQ=DAILY",
		"FREQ=MONTHLY;INTERVAL=0",
		"FREQ=MONTHLY;BYMONTHDAY=32",
		"FREQ=MONTHLY;BYDAY=MO",
		"FREQ=MONTHLY;UNTIL=tomorrow",
		"FREQ",
	}
	for _, s := range bad {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) expected error", s)
		}
	}
}

func TestRuleStringRoundTrip(t *testing.T) {
	for _, s := range []string{
		"FREQ=MONTHLY",
		"FREQ=MONTHLY;INTERVAL=3;BYMONTHDAY=1",
		"FREQ=YEARLY;COUNT=5",
		"FREQ=WEEKLY;INTERVAL=2;UNTIL=20261231",
	} {
		r, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if got := r.String(); got != s {
			t.Errorf("String() = %q, want %q", got, s)
		}
	}
}

func TestDescribe(t *testing.T) {
	tests := map[string]string{
		"FREQ=WEEKLY":             "Repeats weekly",
		"FREQ=WEEKLY;INTERVAL=2":  "Repeats every 2 weeks",
		"FREQ=MONTHLY":            "Repeats monthly",
		"FREQ=MONTHLY;INTERVAL=3": "Repeats quarterly",
		"FREQ=MONTHLY;INTERVAL=6": "Repeats twice a year",
		"FREQ=MONTHLY;INTERVAL=2": "Repeats every 2 months",
		"FREQ=YEARLY":             "Repeats yearly",
		"FREQ=YEARLY;INTERVAL=2":  "Repeats every 2 years",
	}
	for in, want := range tests {
		r, _ := Parse(in)
		if got := r.Describe(); got != want {
			t.Errorf("Describe(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDatesQuarterly(t *testing.T) {
	r, _ := Parse("FREQ=MONTHLY;INTERVAL=3")
	got := Dates(r, date(2026, 1, 15), date(2026, 1, 1), date(2027, 1, 1))
	want := []time.Time{date(2026, 1, 15), date(2026, 4, 15), date(2026, 7, 15), date(2026, 10, 15)}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDatesMonthEndClamps(t *testing.T) {
	r, _ := Parse("FREQ=MONTHLY")
	got := Dates(r, date(2026, 1, 31), date(2026, 1, 1), date(2026, 5, 1))
	want := []int{31, 28, 31, 30}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i, d := range want {
		if got[i].Day() != d {
			t.Errorf("got[%d] = %v, want day %d", i, got[i], d)
		}
	}
}

func TestDatesByMonthDayBeforeStart(t *testing.T) {
	r, _ := Parse("FREQ=MONTHLY;BYMONTHDAY=1")
	got := Dates(r, date(2026, 3, 10), date(2026, 1, 1), date(2026, 6, 1))
	if len(got) != 2 || !got[0].Equal(date(2026, 4, 1)) {
		t.Errorf("got %v, want Apr 1 and May 1", got)
	}
}

func TestDatesCountAndUntil(t *testing.T) {
	r, _ := Parse("FREQ=YEARLY;COUNT=2")
	if got := Dates(r, date(2026, 6, 1), date(2020, 1, 1), date(2040, 1, 1)); len(got) != 2 {
		t.Errorf("count: got %d dates, want 2", len(got))
	}

	r, _ = Parse("FREQ=WEEKLY;UNTIL=20260115")
	if got := Dates(r, date(2026, 1, 1), date(2026, 1, 1), date(2026, 12, 31)); len(got) != 3 {
		t.Errorf("until: got %d dates, want 3", len(got))
	}
}

func TestPreviousAndNext(t *testing.T) {
	r, _ := Parse("FREQ=MONTHLY;INTERVAL=3")
	start := date(2026, 1, 15)

	if _, ok := Previous(r, start, date(2026, 1, 14)); ok {
		t.Error("expected no occurrence before start")
	}
	prev, ok := Previous(r, start, date(2026, 5, 2))
	if !ok || !prev.Equal(date(2026, 4, 15)) {
		t.Errorf("Previous = %v, %v", prev, ok)
	}
	prev, _ = Previous(r, start, date(2026, 4, 15))
	if !prev.Equal(date(2026, 4, 15)) {
		t.Errorf("Previous on due date = %v", prev)
	}
	next, ok := Next(r, start, date(2026, 4, 15))
	if !ok || !next.Equal(date(2026, 7, 15)) {
		t.Errorf("Next = %v, %v", next, ok)
	}

	once, _ := Parse("FREQ=YEARLY;COUNT=1")
	if _, ok := Next(once, start, start); ok {
		t.Error("expected exhausted rule to have no next occurrence")
	}
}

func TestPerYear(t *testing.T) {
	tests := map[string]float64{
		"FREQ=MONTHLY":            12,
		"FREQ=MONTHLY;INTERVAL=3": 4,
		"FREQ=YEARLY":             1,
		"FREQ=WEEKLY;INTERVAL=2":  26,
	}
	for in, want := range tests {
		r, _ := Parse(in)
		if got := r.PerYear(); got != want {
			t.Errorf("PerYear(%q) = %v, want %v", in, got, want)
		}
	}
}
