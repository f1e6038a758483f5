package store

import (
	"errors"
	"testing"

	"github.com/dukerupert/cabinshare/internal/model"
)

func TestFamilyGroupCRUD(t *testing.T) {
	f := newFixture(t)
	gs := NewFamilyGroupStore(f.db)

	g, err := gs.Create(&model.FamilyGroup{
		OrganizationID: f.orgID,
		Name:           "  Smiths ",
		LeadName:       "Ann Smith",
		LeadEmail:      "ann@example.com",
		Color:          "#AA0000",
		Shares:         2,
		HostMembers:    []model.HostMember{{Name: "Ann", CanHost: true}, {Name: "Tom"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if g.Name != "Smiths" {
		t.Errorf("name = %q, want trimmed", g.Name)
	}
	if len(g.HostMembers) != 2 || !g.HostMembers[0].CanHost || g.HostMembers[1].CanHost {
		t.Errorf("host members = %+v", g.HostMembers)
	}

	g.Shares = 3
	g.HostMembers = []model.HostMember{{Name: "Ann", CanHost: true}}
	updated, err := gs.Update(g)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Shares != 3 || len(updated.HostMembers) != 1 {
		t.Errorf("updated = %+v", updated)
	}

	exists, _ := gs.NameExists(f.orgID, "Smiths", 0)
	if !exists {
		t.Error("expected name to exist")
	}
	exists, _ = gs.NameExists(f.orgID, "Smiths", g.ID)
	if exists {
		t.Error("expected own name to be excluded")
	}

	if err := gs.Delete(f.orgID, g.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := gs.GetByID(f.orgID, g.ID); got != nil {
		t.Error("expected nil after delete")
	}
}

func TestFamilyGroupScopedToOrganization(t *testing.T) {
	f := newFixture(t, "Smiths")
	gs := NewFamilyGroupStore(f.db)

	got, err := gs.GetByID(f.orgID+1, f.groups[0])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Error("expected group to be invisible to another organization")
	}
}

func TestFamilyGroupSortOrder(t *testing.T) {
	f := newFixture(t, "A", "B", "C")
	gs := NewFamilyGroupStore(f.db)

	if err := gs.UpdateSortOrder(f.orgID, []int64{f.groups[2], f.groups[0], f.groups[1]}); err != nil {
		t.Fatalf("update sort order: %v", err)
	}
	groups, _ := gs.List(f.orgID)
	if groups[0].Name != "C" || groups[1].Name != "A" || groups[2].Name != "B" {
		t.Errorf("order = %s %s %s, want C A B", groups[0].Name, groups[1].Name, groups[2].Name)
	}
}

func TestFamilyGroupDeleteWithReservations(t *testing.T) {
	f := newFixture(t, "Smiths")
	rs := NewReservationStore(f.db)
	if _, err := rs.Create(&model.Reservation{
		OrganizationID: f.orgID, FamilyGroupID: f.groups[0],
		StartDate: "2026-07-01", EndDate: "2026-07-05",
		Status: model.ReservationConfirmed, SelectionPhase: model.PhaseManual,
	}); err != nil {
		t.Fatalf("create reservation: %v", err)
	}

	err := NewFamilyGroupStore(f.db).Delete(f.orgID, f.groups[0])
	if !errors.Is(err, ErrInUse) {
		t.Errorf("err = %v, want ErrInUse", err)
	}
}
