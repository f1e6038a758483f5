package ledger

import (
	"errors"
	"sort"

	"github.com/dukerupert/cabinshare/internal/model"
)

var (
	ErrInvalidAmount = errors.New("amount must be greater than zero")
	ErrOverpaid      = errors.New("amount paid exceeds amount due")
	ErrNegativePaid  = errors.New("amount paid cannot be negative")
)

// PaymentTypes lists the accepted payment types.
var PaymentTypes = []string{
	model.PaymentTypeUseFee,
	model.PaymentTypeCleaningFee,
	model.PaymentTypeDamageDeposit,
	model.PaymentTypeAssessment,
	model.PaymentTypeOther,
}

func ValidType(t string) bool {
	for _, v := range PaymentTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Validate checks a payment's amounts.
func Validate(p *model.Payment) error {
	if p.AmountCents <= 0 {
		return ErrInvalidAmount
	}
	if p.AmountPaidCents < 0 {
		return ErrNegativePaid
	}
	if p.AmountPaidCents > p.AmountCents {
		return ErrOverpaid
	}
	return nil
}

// Status derives a payment's status. today is a YYYY-MM-DD date.
func Status(p model.Payment, today string) string {
	switch {
	case p.Cancelled:
		return model.PaymentCancelled
	case p.AmountPaidCents >= p.AmountCents:
		return model.PaymentPaid
	case p.DueDate != "" && p.DueDate < today:
		return model.PaymentOverdue
	case p.AmountPaidCents > 0:
		return model.PaymentPartial
	}
	return model.PaymentPending
}

// Decorate sets Status on every payment.
func Decorate(payments []model.Payment, today string) {
	for i := range payments {
		payments[i].Status = Status(payments[i], today)
	}
}

// FilterStatus keeps the payments with the given derived status. An empty
// status keeps everything.
func FilterStatus(payments []model.Payment, status string) []model.Payment {
	if status == "" {
		return payments
	}
	var out []model.Payment
	for _, p := range payments {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out
}

// Summarize totals billed, paid and outstanding amounts per family group,
// in the groups' order. Cancelled payments are ignored.
func Summarize(payments []model.Payment, groups []model.FamilyGroup) []model.PaymentSummary {
	byGroup := make(map[int64]*model.PaymentSummary, len(groups))
	out := make([]model.PaymentSummary, len(groups))
	for i, g := range groups {
		out[i] = model.PaymentSummary{FamilyGroupID: g.ID, FamilyGroupName: g.Name}
		byGroup[g.ID] = &out[i]
	}
	for _, p := range payments {
		s, ok := byGroup[p.FamilyGroupID]
		if !ok || p.Cancelled {
			continue
		}
		s.BilledCents += p.AmountCents
		s.PaidCents += p.AmountPaidCents
		s.OutstandingCents += p.Outstanding()
	}
	return out
}

// groupOutstanding collects outstanding payments per family group, ordered
// by due date.
func groupOutstanding(payments []model.Payment) map[int64][]model.Payment {
	out := make(map[int64][]model.Payment)
	for _, p := range payments {
		if p.Outstanding() > 0 {
			out[p.FamilyGroupID] = append(out[p.FamilyGroupID], p)
		}
	}
	for _, ps := range out {
		sort.SliceStable(ps, func(i, j int) bool { return ps[i].DueDate < ps[j].DueDate })
	}
	return out
}
