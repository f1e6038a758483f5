package store

import (
	"testing"
	"time"

	"github.com/dukerupert/cabinshare/internal/model"
)

func TestOrganizationCreateSeedsDefaults(t *testing.T) {
	f := newFixture(t)
	orgs := NewOrganizationStore(f.db)

	org, err := orgs.GetByID(f.orgID)
	if err != nil {
		t.Fatalf("get organization: %v", err)
	}
	if len(org.Code) != 6 {
		t.Errorf("code = %q, want 6 characters", org.Code)
	}
	if org.SubscriptionStatus != model.SubscriptionTrial {
		t.Errorf("subscription_status = %q, want trial", org.SubscriptionStatus)
	}
	if org.TrialEndsAt == nil {
		t.Fatal("expected trial_ends_at")
	}
	days := time.Until(*org.TrialEndsAt).Hours() / 24
	if days < 13 || days > 14.1 {
		t.Errorf("trial days = %.1f, want ~14", days)
	}

	m, err := orgs.GetMember(f.orgID, f.userID)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if m == nil || m.Role != model.RoleAdmin {
		t.Fatalf("creator membership = %+v, want admin", m)
	}

	settings, err := NewSettingsStore(f.db).GetAll(f.orgID)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings[SettingReminderLeadDays] != "3" {
		t.Errorf("reminder lead days = %q, want 3", settings[SettingReminderLeadDays])
	}

	lists, err := NewChecklistStore(f.db).List(f.orgID, "")
	if err != nil {
		t.Fatalf("list checklists: %v", err)
	}
	if len(lists) != 2 {
		t.Errorf("seeded checklists = %d, want 2", len(lists))
	}
}

func TestOrganizationCreateWithTrialCode(t *testing.T) {
	db := openTestDB(t)
	u, _ := NewUserStore(db).Create("a@example.com", "A")
	tcs := NewTrialCodeStore(db)
	if _, err := tcs.Create("EXTENDED", 60, 1, "", nil, u.ID); err != nil {
		t.Fatalf("create trial code: %v", err)
	}
	orgs := NewOrganizationStore(db)

	org, err := orgs.Create(NewOrganization{Name: "Pines", TrialCode: "extended"}, u.ID)
	if err != nil {
		t.Fatalf("create organization: %v", err)
	}
	days := time.Until(*org.TrialEndsAt).Hours() / 24
	if days < 59 || days > 60.1 {
		t.Errorf("trial days = %.1f, want ~60", days)
	}

	// Code is exhausted; the next organization gets the default trial.
	org2, err := orgs.Create(NewOrganization{Name: "Birches", TrialCode: "EXTENDED"}, u.ID)
	if err != nil {
		t.Fatalf("create second organization: %v", err)
	}
	days = time.Until(*org2.TrialEndsAt).Hours() / 24
	if days > 14.1 {
		t.Errorf("trial days = %.1f, want default", days)
	}

	codes, _ := tcs.List()
	if codes[0].Uses != 1 {
		t.Errorf("uses = %d, want 1", codes[0].Uses)
	}
}

func TestOrganizationMembers(t *testing.T) {
	f := newFixture(t, "Smiths")
	orgs := NewOrganizationStore(f.db)
	bob, _ := NewUserStore(f.db).Create("bob@example.com", "Bob")

	m, err := orgs.AddMember(f.orgID, bob.ID, model.RoleMember, &f.groups[0])
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	if m.UserEmail != "bob@example.com" {
		t.Errorf("user_email = %q", m.UserEmail)
	}
	if m.FamilyGroupID == nil || *m.FamilyGroupID != f.groups[0] {
		t.Errorf("family_group_id = %v, want %d", m.FamilyGroupID, f.groups[0])
	}

	if _, err := orgs.UpdateMember(f.orgID, bob.ID, model.RoleTreasurer, nil); err != nil {
		t.Fatalf("update member: %v", err)
	}
	n, _ := orgs.CountAdmins(f.orgID)
	if n != 1 {
		t.Errorf("admins = %d, want 1", n)
	}

	members, _ := orgs.ListMembers(f.orgID)
	if len(members) != 2 {
		t.Fatalf("members = %d, want 2", len(members))
	}

	if err := orgs.RemoveMember(f.orgID, bob.ID); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	if got, _ := orgs.GetMember(f.orgID, bob.ID); got != nil {
		t.Error("expected member to be removed")
	}
}

func TestOrganizationGetByCodeAndList(t *testing.T) {
	f := newFixture(t, "Smiths")
	orgs := NewOrganizationStore(f.db)
	org, _ := orgs.GetByID(f.orgID)

	got, err := orgs.GetByCode(" " + org.Code + " ")
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if got == nil || got.ID != f.orgID {
		t.Fatalf("get by code = %+v", got)
	}

	all, err := orgs.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 || all[0].MemberCount != 1 || all[0].FamilyGroupCount != 1 {
		t.Errorf("summary = %+v", all)
	}
}
