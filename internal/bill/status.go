package bill

import (
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/recurrence"
)

// DueSoonDays is how far ahead an unpaid due date turns a bill pending.
const DueSoonDays = 7

// ComputeStatus determines a bill's status and the due date the status refers
// to, given the latest recorded bill payment.
func ComputeStatus(b model.RecurringBill, last *model.BillPayment, today time.Time) (string, *time.Time) {
	today = startOfDay(today)
	start, err := time.Parse(model.DateLayout, b.StartDate)
	if err != nil {
		slog.Error("invalid bill start date", "bill_id", b.ID, "start_date", b.StartDate, "error", err)
		return model.BillNotDue, nil
	}

	// No rule: a one-off bill due on its start date.
	if b.RecurrenceRule == "" {
		if last != nil {
			return model.BillPaid, &start
		}
		return classify(start, today, false), &start
	}

	rule, err := recurrence.Parse(b.RecurrenceRule)
	if err != nil {
		slog.Error("invalid recurrence rule", "bill_id", b.ID, "rule", b.RecurrenceRule, "error", err)
		return model.BillNotDue, nil
	}

	prev, hasPrev := recurrence.Previous(rule, start, today)
	if !hasPrev {
		first, ok := recurrence.Next(rule, start, start.AddDate(0, 0, -1))
		if !ok {
			return model.BillNotDue, nil
		}
		return classify(first, today, false), &first
	}

	if !covers(last, prev) && !b.AutoPay {
		return classify(prev, today, false), &prev
	}

	next, ok := recurrence.Next(rule, start, prev)
	if !ok {
		return model.BillPaid, &prev
	}
	return classify(next, today, true), &next
}

// classify maps an unpaid due date to a status. prevPaid reports whether the
// period before due was settled.
func classify(due, today time.Time, prevPaid bool) string {
	switch {
	case due.Before(today):
		return model.BillOverdue
	case !due.After(today.AddDate(0, 0, DueSoonDays)):
		return model.BillPending
	case prevPaid:
		return model.BillPaid
	}
	return model.BillNotDue
}

func covers(last *model.BillPayment, due time.Time) bool {
	return last != nil && last.DueDate >= due.Format(model.DateLayout)
}

// View decorates a bill with its computed status, schedule description and
// annual cost. The account number is masked.
func View(b model.RecurringBill, last *model.BillPayment, today time.Time) model.BillView {
	status, due := ComputeStatus(b, last, today)
	v := model.BillView{RecurringBill: b, Status: status}
	v.AccountNumber = MaskAccount(b.AccountNumber)
	if due != nil {
		v.CurrentDueDate = due.Format(model.DateLayout)
	}
	if rule, err := recurrence.Parse(b.RecurrenceRule); err == nil {
		v.Schedule = rule.Describe()
		v.AnnualCents = int64(math.Round(float64(b.AmountCents) * rule.PerYear()))
	} else {
		v.Schedule = "One time"
		v.AnnualCents = b.AmountCents
	}
	return v
}

// Upcoming returns the views whose unpaid due date falls on or before
// today+days, ordered by due date. Overdue bills are included.
func Upcoming(views []model.BillView, today time.Time, days int) []model.BillView {
	limit := startOfDay(today).AddDate(0, 0, days).Format(model.DateLayout)
	var out []model.BillView
	for _, v := range views {
		if !v.Active || v.CurrentDueDate == "" || v.Status == model.BillPaid {
			continue
		}
		if v.CurrentDueDate <= limit {
			out = append(out, v)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CurrentDueDate < out[j-1].CurrentDueDate; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// ProjectYear returns the total cost of the active bills' occurrences that
// fall within the calendar year.
func ProjectYear(bills []model.RecurringBill, year int) int64 {
	from := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)
	var total int64
	for _, b := range bills {
		if !b.Active {
			continue
		}
		start, err := time.Parse(model.DateLayout, b.StartDate)
		if err != nil {
			continue
		}
		if b.RecurrenceRule == "" {
			if !start.Before(from) && start.Before(to) {
				total += b.AmountCents
			}
			continue
		}
		rule, err := recurrence.Parse(b.RecurrenceRule)
		if err != nil {
			continue
		}
		total += b.AmountCents * int64(len(recurrence.Dates(rule, start, from, to)))
	}
	return total
}

// MaskAccount hides all but the last four characters of an account number.
func MaskAccount(account string) string {
	account = strings.TrimSpace(account)
	if len(account) <= 4 {
		return account
	}
	return strings.Repeat("*", len(account)-4) + account[len(account)-4:]
}

// ValidRule reports whether rule is empty or a supported recurrence rule.
func ValidRule(rule string) bool {
	if rule == "" {
		return true
	}
	_, err := recurrence.Parse(rule)
	return err == nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
