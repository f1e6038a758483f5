package store

import (
	"testing"

	"github.com/dukerupert/cabinshare/internal/model"
)

func TestPaymentAddPaidNeverExceedsAmount(t *testing.T) {
	f := newFixture(t, "A")
	ps := NewPaymentStore(f.db)

	p, err := ps.Create(&model.Payment{
		OrganizationID: f.orgID, FamilyGroupID: f.groups[0],
		PaymentType: model.PaymentTypeUseFee, AmountCents: 10000, DueDate: "2026-08-01",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err := ps.AddPaid(f.orgID, p.ID, 6000, "2026-07-01", "check")
	if err != nil || !ok {
		t.Fatalf("add paid: ok=%v err=%v", ok, err)
	}
	ok, err = ps.AddPaid(f.orgID, p.ID, 5000, "2026-07-02", "")
	if err != nil {
		t.Fatalf("add paid: %v", err)
	}
	if ok {
		t.Error("expected overpayment to be refused")
	}

	got, _ := ps.GetByID(f.orgID, p.ID)
	if got.AmountPaidCents != 6000 {
		t.Errorf("amount_paid = %d, want 6000", got.AmountPaidCents)
	}
	if got.PaymentMethod != "check" {
		t.Errorf("method = %q, want check", got.PaymentMethod)
	}
	if got.Outstanding() != 4000 {
		t.Errorf("outstanding = %d, want 4000", got.Outstanding())
	}
}

func TestPaymentCheckConstraint(t *testing.T) {
	f := newFixture(t, "A")
	ps := NewPaymentStore(f.db)

	_, err := ps.Create(&model.Payment{
		OrganizationID: f.orgID, FamilyGroupID: f.groups[0],
		PaymentType: model.PaymentTypeOther, AmountCents: 100, AmountPaidCents: 200,
	})
	if err == nil {
		t.Error("expected database to reject amount paid above amount")
	}
}

func TestPaymentListOutstanding(t *testing.T) {
	f := newFixture(t, "A", "B")
	ps := NewPaymentStore(f.db)
	ps.Create(&model.Payment{OrganizationID: f.orgID, FamilyGroupID: f.groups[0], PaymentType: "other", AmountCents: 100})
	ps.Create(&model.Payment{OrganizationID: f.orgID, FamilyGroupID: f.groups[1], PaymentType: "other", AmountCents: 100, AmountPaidCents: 100})
	ps.Create(&model.Payment{OrganizationID: f.orgID, FamilyGroupID: f.groups[1], PaymentType: "other", AmountCents: 100, Cancelled: true})

	out, err := ps.ListOutstanding()
	if err != nil {
		t.Fatalf("list outstanding: %v", err)
	}
	if len(out) != 1 || out[0].FamilyGroupID != f.groups[0] {
		t.Errorf("outstanding = %+v", out)
	}

	mine, _ := ps.List(f.orgID, &f.groups[1])
	if len(mine) != 2 {
		t.Errorf("group B payments = %d, want 2", len(mine))
	}
}
