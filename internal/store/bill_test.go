package store

import (
	"testing"

	"github.com/dukerupert/cabinshare/internal/model"
)

func TestBillPayments(t *testing.T) {
	f := newFixture(t)
	bs := NewBillStore(f.db)

	b, err := bs.Create(&model.RecurringBill{
		OrganizationID: f.orgID, Name: "Electric", Category: "utilities", AmountCents: 12000,
		RecurrenceRule: "FREQ=MONTHLY", StartDate: "2026-01-15", Active: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if last, _ := bs.LastPayment(b.ID); last != nil {
		t.Fatal("expected no payments")
	}

	bs.CreatePayment(b.ID, "2026-02-15", 12000)
	bs.CreatePayment(b.ID, "2026-01-15", 11800)

	last, err := bs.LastPayment(b.ID)
	if err != nil || last == nil {
		t.Fatalf("last payment: %v", err)
	}
	if last.DueDate != "2026-02-15" {
		t.Errorf("last due date = %q, want 2026-02-15", last.DueDate)
	}

	b.Active = false
	bs.Update(b)
	if active, _ := bs.List(f.orgID, true); len(active) != 0 {
		t.Errorf("active bills = %d, want 0", len(active))
	}

	// Deleting the bill cascades to its payments.
	bs.Delete(f.orgID, b.ID)
	if payments, _ := bs.ListPayments(b.ID); len(payments) != 0 {
		t.Errorf("payments after delete = %d, want 0", len(payments))
	}
}

func TestReceiptListRange(t *testing.T) {
	f := newFixture(t, "A")
	rs := NewReceiptStore(f.db)
	for _, d := range []string{"2025-12-31", "2026-03-01", "2026-12-31"} {
		if _, err := rs.Create(&model.Receipt{
			OrganizationID: f.orgID, FamilyGroupID: &f.groups[0], Description: "Propane", AmountCents: 5000, ReceiptDate: d,
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	got, err := rs.List(f.orgID, "2026-01-01", "2027-01-01")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ReceiptDate != "2026-12-31" {
		t.Errorf("receipts = %+v", got)
	}
}
