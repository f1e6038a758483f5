package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/cabinshare/internal/email"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/store"
)

// reminderConcurrency bounds concurrent reminder emails.
const reminderConcurrency = 4

// PaymentMailer sends payment reminder emails.
type PaymentMailer interface {
	SendPaymentReminder(ctx context.Context, to string, r email.PaymentReminder) error
}

// ReminderResult counts the outcome of a bulk reminder run.
type ReminderResult struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Reminders emails family group leads about outstanding payments.
type Reminders struct {
	payments *store.PaymentStore
	groups   *store.FamilyGroupStore
	orgs     *store.OrganizationStore
	mailer   PaymentMailer
	logger   *slog.Logger
}

func NewReminders(payments *store.PaymentStore, groups *store.FamilyGroupStore, orgs *store.OrganizationStore, mailer PaymentMailer, logger *slog.Logger) *Reminders {
	return &Reminders{payments: payments, groups: groups, orgs: orgs, mailer: mailer, logger: logger}
}

// SendBulk emails the lead of every family group with outstanding payments.
// When paymentIDs is non-empty only those payments are included. Groups
// without a lead email are skipped.
func (r *Reminders) SendBulk(ctx context.Context, organizationID int64, paymentIDs []int64) (ReminderResult, error) {
	org, err := r.orgs.GetByID(organizationID)
	if err != nil {
		return ReminderResult{}, err
	}
	if org == nil {
		return ReminderResult{}, fmt.Errorf("organization %d not found", organizationID)
	}
	payments, err := r.payments.List(organizationID, nil)
	if err != nil {
		return ReminderResult{}, err
	}
	if len(paymentIDs) > 0 {
		wanted := make(map[int64]bool, len(paymentIDs))
		for _, id := range paymentIDs {
			wanted[id] = true
		}
		filtered := payments[:0]
		for _, p := range payments {
			if wanted[p.ID] {
				filtered = append(filtered, p)
			}
		}
		payments = filtered
	}
	groups, err := r.groups.List(organizationID)
	if err != nil {
		return ReminderResult{}, err
	}
	byID := make(map[int64]model.FamilyGroup, len(groups))
	for _, g := range groups {
		byID[g.ID] = g
	}

	var sent, failed, skipped atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(reminderConcurrency)
	for groupID, outstanding := range groupOutstanding(payments) {
		fg, ok := byID[groupID]
		if !ok || fg.LeadEmail == "" {
			skipped.Add(1)
			continue
		}
		reminder := email.PaymentReminder{OrganizationName: org.Name, FamilyGroupName: fg.Name}
		for _, p := range outstanding {
			desc := p.Description
			if desc == "" {
				desc = p.PaymentType
			}
			reminder.Lines = append(reminder.Lines, email.ReminderLine{
				Description: desc, DueDate: p.DueDate, OutstandingCents: p.Outstanding(),
			})
		}
		to := fg.LeadEmail
		g.Go(func() error {
			if err := r.mailer.SendPaymentReminder(ctx, to, reminder); err != nil {
				r.logger.Error("payment reminder failed", "organization_id", organizationID, "family_group_id", groupID, "error", err)
				failed.Add(1)
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ReminderResult{}, err
	}

	result := ReminderResult{Sent: int(sent.Load()), Failed: int(failed.Load()), Skipped: int(skipped.Load())}
	r.logger.Info("payment reminders sent", "organization_id", organizationID,
		"sent", result.Sent, "failed", result.Failed, "skipped", result.Skipped)
	return result, nil
}
