package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/dukerupert/cabinshare/internal/database"
	"github.com/dukerupert/cabinshare/internal/email"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/store"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent map[string]email.PaymentReminder
	fail string
}

func (f *fakeMailer) SendPaymentReminder(_ context.Context, to string, r email.PaymentReminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if to == f.fail {
		return errors.New("mailbox full")
	}
	if f.sent == nil {
		f.sent = map[string]email.PaymentReminder{}
	}
	f.sent[to] = r
	return nil
}

func TestSendBulkReminders(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := store.NewUserStore(db)
	orgs := store.NewOrganizationStore(db)
	groups := store.NewFamilyGroupStore(db)
	payments := store.NewPaymentStore(db)

	u, _ := users.Create("admin@example.com", "Admin")
	org, err := orgs.Create(store.NewOrganization{Name: "Lake Cabin"}, u.ID)
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	mk := func(name, lead string) int64 {
		g, err := groups.Create(&model.FamilyGroup{OrganizationID: org.ID, Name: name, LeadEmail: lead, Color: "#000000", Shares: 1})
		if err != nil {
			t.Fatalf("create group: %v", err)
		}
		return g.ID
	}
	a := mk("A", "a@example.com")
	b := mk("B", "b@example.com")
	c := mk("C", "")
	d := mk("D", "d@example.com")

	add := func(group int64, amount, paid int64) int64 {
		p, err := payments.Create(&model.Payment{OrganizationID: org.ID, FamilyGroupID: group, PaymentType: model.PaymentTypeUseFee, AmountCents: amount, AmountPaidCents: paid})
		if err != nil {
			t.Fatalf("create payment: %v", err)
		}
		return p.ID
	}
	add(a, 1000, 0)
	add(a, 500, 100)
	add(b, 700, 0)
	add(c, 300, 0)
	add(d, 200, 200)

	mailer := &fakeMailer{fail: "b@example.com"}
	r := NewReminders(payments, groups, orgs, mailer, slog.New(slog.NewTextHandler(io.Discard, nil)))

	res, err := r.SendBulk(context.Background(), org.ID, nil)
	if err != nil {
		t.Fatalf("send bulk: %v", err)
	}
	if res != (ReminderResult{Sent: 1, Failed: 1, Skipped: 1}) {
		t.Errorf("result = %+v", res)
	}
	got := mailer.sent["a@example.com"]
	if len(got.Lines) != 2 || got.TotalCents() != 1400 {
		t.Errorf("reminder for A = %+v", got)
	}
	if got.OrganizationName != "Lake Cabin" {
		t.Errorf("organization name = %q", got.OrganizationName)
	}
}
