package store

import (
	"errors"
	"testing"

	"github.com/dukerupert/cabinshare/internal/model"
)

func newReservation(f *fixture, group int, start, end, phase string) *model.Reservation {
	return &model.Reservation{
		OrganizationID: f.orgID,
		FamilyGroupID:  f.groups[group],
		StartDate:      start,
		EndDate:        end,
		Status:         model.ReservationConfirmed,
		SelectionPhase: phase,
		RotationYear:   2026,
		CreatedBy:      &f.userID,
	}
}

func TestReservationOverlap(t *testing.T) {
	f := newFixture(t, "A", "B")
	rs := NewReservationStore(f.db)

	if _, err := rs.Create(newReservation(f, 0, "2026-07-01", "2026-07-05", model.PhaseManual)); err != nil {
		t.Fatalf("create: %v", err)
	}

	tests := []struct {
		name       string
		start, end string
		wantErr    error
	}{
		{"inside", "2026-07-02", "2026-07-03", ErrOverlap},
		{"straddles start", "2026-06-28", "2026-07-02", ErrOverlap},
		{"same dates", "2026-07-01", "2026-07-05", ErrOverlap},
		{"check-in on check-out day", "2026-07-05", "2026-07-08", nil},
		{"check-out on check-in day", "2026-06-25", "2026-07-01", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := rs.Create(newReservation(f, 1, tt.start, tt.end, model.PhaseManual))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if r != nil {
				rs.Delete(f.orgID, r.ID)
			}
		})
	}
}

func TestReservationCancelledDoesNotBlock(t *testing.T) {
	f := newFixture(t, "A", "B")
	rs := NewReservationStore(f.db)

	r, _ := rs.Create(newReservation(f, 0, "2026-07-01", "2026-07-05", model.PhaseManual))
	r.Status = model.ReservationCancelled
	if _, err := rs.Update(r); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := rs.Create(newReservation(f, 1, "2026-07-02", "2026-07-04", model.PhaseManual)); err != nil {
		t.Errorf("create over cancelled reservation: %v", err)
	}
}

func TestReservationAllowanceLifecycle(t *testing.T) {
	f := newFixture(t, "A")
	saveOrder(t, f, 2026, false)
	rs := NewReservationStore(f.db)
	rot := NewRotationStore(f.db)

	r, err := rs.Create(newReservation(f, 0, "2026-07-01", "2026-07-05", model.PhasePrimary))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	u, _ := rot.GetUsage(f.orgID, f.groups[0], 2026)
	if u.TimePeriodsUsed != 1 {
		t.Fatalf("used = %d, want 1", u.TimePeriodsUsed)
	}

	r.Status = model.ReservationCancelled
	if _, err := rs.Update(r); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	u, _ = rot.GetUsage(f.orgID, f.groups[0], 2026)
	if u.TimePeriodsUsed != 0 {
		t.Errorf("used after cancel = %d, want 0", u.TimePeriodsUsed)
	}

	r.Status = model.ReservationConfirmed
	if _, err := rs.Update(r); err != nil {
		t.Fatalf("reinstate: %v", err)
	}
	if err := rs.Delete(f.orgID, r.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	u, _ = rot.GetUsage(f.orgID, f.groups[0], 2026)
	if u.TimePeriodsUsed != 0 {
		t.Errorf("used after delete = %d, want 0", u.TimePeriodsUsed)
	}
}

func TestReservationNoAllowanceRollsBack(t *testing.T) {
	f := newFixture(t, "A")
	saveOrder(t, f, 2026, false)
	rs := NewReservationStore(f.db)

	rs.Create(newReservation(f, 0, "2026-07-01", "2026-07-03", model.PhasePrimary))
	rs.Create(newReservation(f, 0, "2026-07-10", "2026-07-12", model.PhasePrimary))
	_, err := rs.Create(newReservation(f, 0, "2026-07-20", "2026-07-22", model.PhasePrimary))
	if !errors.Is(err, ErrNoAllowance) {
		t.Fatalf("err = %v, want ErrNoAllowance", err)
	}
	list, _ := rs.ListForYear(f.orgID, 2026)
	if len(list) != 2 {
		t.Errorf("reservations = %d, want 2", len(list))
	}
}

func TestReservationListByDateRange(t *testing.T) {
	f := newFixture(t, "A")
	rs := NewReservationStore(f.db)
	rs.Create(newReservation(f, 0, "2026-06-01", "2026-06-05", model.PhaseManual))
	rs.Create(newReservation(f, 0, "2026-07-01", "2026-07-05", model.PhaseManual))
	rs.Create(newReservation(f, 0, "2026-08-01", "2026-08-05", model.PhaseManual))

	got, err := rs.ListByDateRange(f.orgID, "2026-06-04", "2026-07-02", false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d reservations, want 2", len(got))
	}
	if got[0].StartDate != "2026-06-01" || got[0].Nights() != 4 {
		t.Errorf("first = %+v", got[0])
	}
}

func TestReservationReplaceYear(t *testing.T) {
	f := newFixture(t, "A")
	rs := NewReservationStore(f.db)
	rs.Create(newReservation(f, 0, "2026-06-01", "2026-06-05", model.PhaseManual))
	rs.Create(newReservation(f, 0, "2027-06-01", "2027-06-05", model.PhaseManual))

	n, err := rs.ReplaceYear(f.orgID, 2026, []model.Reservation{
		*newReservation(f, 0, "2026-09-01", "2026-09-03", model.PhasePrimary),
	})
	if err != nil {
		t.Fatalf("replace year: %v", err)
	}
	if n != 1 {
		t.Errorf("restored = %d, want 1", n)
	}
	list, _ := rs.ListForYear(f.orgID, 2026)
	if len(list) != 1 || list[0].StartDate != "2026-09-01" {
		t.Errorf("2026 = %+v", list)
	}
	other, _ := rs.ListForYear(f.orgID, 2027)
	if len(other) != 1 {
		t.Errorf("2027 reservations = %d, want 1", len(other))
	}
}
