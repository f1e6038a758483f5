package push

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/dukerupert/cabinshare/internal/email"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/store"
)

// sentRetention is how long dedupe records are kept.
const sentRetention = 90 * 24 * time.Hour

// Scheduler periodically sends payment-due reminders.
type Scheduler struct {
	mu         sync.RWMutex
	dispatcher *Dispatcher
	push       *store.PushStore
	payments   *store.PaymentStore
	settings   *store.SettingsStore
	logger     *slog.Logger
	interval   time.Duration
	now        func() time.Time
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewScheduler creates a notification scheduler.
func NewScheduler(d *Dispatcher, pushStore *store.PushStore, payments *store.PaymentStore, settings *store.SettingsStore, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		dispatcher: d,
		push:       pushStore,
		payments:   payments,
		settings:   settings,
		logger:     logger,
		interval:   interval,
		now:        time.Now,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if n := s.checkPaymentsDue(ctx); n > 0 {
		s.logger.Info("push scheduler: payment reminders sent", "count", n)
	}
	if err := s.push.CleanupSent(s.now().Add(-sentRetention)); err != nil {
		s.logger.Error("push scheduler: cleanup", "error", err)
	}
}

// checkPaymentsDue reminds family groups of unpaid payments due within the
// organization's lead time. Each payment and due date is announced once.
func (s *Scheduler) checkPaymentsDue(ctx context.Context) int {
	today := s.now().UTC().Format(model.DateLayout)
	payments, err := s.payments.ListOutstanding()
	if err != nil {
		s.logger.Error("push scheduler: list outstanding payments", "error", err)
		return 0
	}

	leadDays := map[int64]int{}
	sent := 0
	for _, p := range payments {
		if p.DueDate == "" {
			continue
		}
		lead, ok := leadDays[p.OrganizationID]
		if !ok {
			lead = s.leadDays(p.OrganizationID)
			leadDays[p.OrganizationID] = lead
		}
		horizon := s.now().UTC().AddDate(0, 0, lead).Format(model.DateLayout)
		if p.DueDate > horizon {
			continue
		}

		refID := fmt.Sprintf("payment-%d-%s", p.ID, p.DueDate)
		already, err := s.push.WasSent(p.OrganizationID, model.NotifTypePaymentDue, refID)
		if err != nil {
			s.logger.Error("push scheduler: check sent", "error", err)
			continue
		}
		if already {
			continue
		}

		s.dispatcher.ToFamilyGroup(ctx, p.OrganizationID, p.FamilyGroupID, model.NotifTypePaymentDue, paymentPayload(p, today))
		if err := s.push.RecordSent(p.OrganizationID, model.NotifTypePaymentDue, refID); err != nil {
			s.logger.Error("push scheduler: record sent", "error", err)
		}
		sent++
	}
	return sent
}

func (s *Scheduler) leadDays(organizationID int64) int {
	v, err := s.settings.Get(organizationID, store.SettingReminderLeadDays)
	if err != nil {
		return 3
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 3
	}
	return n
}

func paymentPayload(p model.Payment, today string) Payload {
	remaining := email.FormatCents(p.AmountCents - p.AmountPaidCents)
	body := fmt.Sprintf("%s of %s is due %s", remaining, p.Description, p.DueDate)
	if p.DueDate < today {
		body = fmt.Sprintf("%s of %s was due %s", remaining, p.Description, p.DueDate)
	}
	return Payload{
		Title: "Payment due",
		Body:  body,
		URL:   "/payments",
		Tag:   fmt.Sprintf("payment-%d", p.ID),
	}
}
