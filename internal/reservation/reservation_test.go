package reservation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dukerupert/cabinshare/internal/auth"
	"github.com/dukerupert/cabinshare/internal/database"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/selection"
	"github.com/dukerupert/cabinshare/internal/store"
)

func TestValidate(t *testing.T) {
	order := &model.RotationOrder{MaxNights: 7}
	tests := []struct {
		name  string
		start string
		end   string
		order *model.RotationOrder
		want  error
	}{
		{"ok", "2027-06-01", "2027-06-08", order, nil},
		{"no order", "2027-06-01", "2027-06-30", nil, nil},
		{"same day", "2027-06-01", "2027-06-01", order, ErrInvalidDates},
		{"reversed", "2027-06-08", "2027-06-01", order, ErrInvalidDates},
		{"malformed", "06/01/2027", "2027-06-08", order, ErrInvalidDates},
		{"too long", "2027-06-01", "2027-06-09", order, ErrTooManyNights},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &model.Reservation{StartDate: tt.start, EndDate: tt.end, Status: model.ReservationConfirmed, SelectionPhase: model.PhaseManual}
			err := Validate(r, tt.order)
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate = %v, want %v", err, tt.want)
			}
		})
	}

	r := &model.Reservation{StartDate: "2027-06-01", EndDate: "2027-06-02", Status: "maybe", SelectionPhase: model.PhaseManual}
	if err := Validate(r, nil); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("status err = %v", err)
	}
	r = &model.Reservation{StartDate: "2027-06-01", EndDate: "2027-06-02", Status: model.ReservationConfirmed, SelectionPhase: "third"}
	if err := Validate(r, nil); !errors.Is(err, ErrInvalidPhase) {
		t.Errorf("phase err = %v", err)
	}
}

func TestHistory(t *testing.T) {
	groups := []model.FamilyGroup{{ID: 1, Name: "Anderson"}, {ID: 2, Name: "Baker"}, {ID: 3, Name: "Carter"}}
	reservations := []model.Reservation{
		{ID: 1, FamilyGroupID: 2, StartDate: "2027-06-01", EndDate: "2027-06-05", Status: model.ReservationConfirmed},
		{ID: 2, FamilyGroupID: 1, StartDate: "2027-07-01", EndDate: "2027-07-03", Status: model.ReservationConfirmed},
		{ID: 3, FamilyGroupID: 2, StartDate: "2027-08-01", EndDate: "2027-08-08", Status: model.ReservationTentative},
		{ID: 4, FamilyGroupID: 3, StartDate: "2027-09-01", EndDate: "2027-09-08", Status: model.ReservationCancelled},
		{ID: 5, FamilyGroupID: 99, StartDate: "2027-09-10", EndDate: "2027-09-12", Status: model.ReservationConfirmed},
	}
	got := History(groups, reservations)
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
	if got[0].FamilyGroupName != "Anderson" || got[0].Nights != 2 {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].FamilyGroupName != "Baker" || got[1].Nights != 11 || len(got[1].Reservations) != 2 {
		t.Errorf("second = %+v", got[1])
	}
}

type env struct {
	svc    *Service
	orgID  int64
	groups []int64
}

func setup(t *testing.T) *env {
	t.Helper()
	return setupSlots(t, 1)
}

func setupSlots(t *testing.T, slots int) *env {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	u, err := store.NewUserStore(db).Create("admin@example.com", "Admin")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	org, err := store.NewOrganizationStore(db).Create(store.NewOrganization{Name: "Lake Cabin"}, u.ID)
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	e := &env{orgID: org.ID}
	groups := store.NewFamilyGroupStore(db)
	for _, name := range []string{"Anderson", "Baker"} {
		g, err := groups.Create(&model.FamilyGroup{OrganizationID: org.ID, Name: name, Color: "#336699", Shares: 1})
		if err != nil {
			t.Fatalf("create group: %v", err)
		}
		e.groups = append(e.groups, g.ID)
	}
	rotations := store.NewRotationStore(db)
	if _, err := rotations.SaveOrder(&model.RotationOrder{
		OrganizationID: org.ID,
		RotationYear:   2027,
		Order:          e.groups,
		MaxTimeSlots:   slots,
		MaxNights:      7,
	}); err != nil {
		t.Fatalf("save order: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reservations := store.NewReservationStore(db)
	sel := selection.NewService(rotations, reservations, nil, nil, logger)
	e.svc = NewService(reservations, rotations, groups, sel, logger)
	if _, err := sel.Start(context.Background(), org.ID, 2027, model.PhasePrimary); err != nil {
		t.Fatalf("start selection: %v", err)
	}
	return e
}

func (e *env) ctx(role string, group int64) context.Context {
	ac := auth.AuthContext{UserID: 1, OrganizationID: e.orgID, Role: role}
	if group != 0 {
		ac.FamilyGroupID = &group
	}
	return auth.WithAuth(context.Background(), ac)
}

func TestCreateAsCalendarKeeper(t *testing.T) {
	e := setup(t)
	ctx := e.ctx(model.RoleCalendarKeeper, 0)

	r, err := e.svc.Create(ctx, &model.Reservation{FamilyGroupID: e.groups[1], StartDate: "2027-05-01", EndDate: "2027-05-04"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.SelectionPhase != model.PhaseManual || r.RotationYear != 2027 || r.Status != model.ReservationConfirmed {
		t.Errorf("created = %+v", r)
	}
	if r.CreatedBy == nil || *r.CreatedBy != 1 {
		t.Errorf("created_by = %v", r.CreatedBy)
	}

	_, err = e.svc.Create(ctx, &model.Reservation{FamilyGroupID: e.groups[0], StartDate: "2027-05-03", EndDate: "2027-05-05"})
	if !errors.Is(err, ErrOverlap) {
		t.Errorf("overlap err = %v", err)
	}
	_, err = e.svc.Create(ctx, &model.Reservation{FamilyGroupID: e.groups[0], StartDate: "2027-05-04", EndDate: "2027-05-06"})
	if err != nil {
		t.Errorf("touching stay: %v", err)
	}
	_, err = e.svc.Create(ctx, &model.Reservation{FamilyGroupID: 9999, StartDate: "2027-10-01", EndDate: "2027-10-02"})
	if !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("unknown group err = %v", err)
	}
}

func TestCreateAsMemberFollowsTurn(t *testing.T) {
	e := setup(t)

	_, err := e.svc.Create(e.ctx(model.RoleMember, e.groups[0]), &model.Reservation{FamilyGroupID: e.groups[1], StartDate: "2027-06-01", EndDate: "2027-06-03"})
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("other group err = %v", err)
	}
	_, err = e.svc.Create(e.ctx(model.RoleMember, e.groups[1]), &model.Reservation{StartDate: "2027-06-01", EndDate: "2027-06-03"})
	if !errors.Is(err, ErrPhaseUnavailable) {
		t.Errorf("out of turn err = %v", err)
	}
	if _, err := e.svc.Create(e.ctx(model.RoleMember, 0), &model.Reservation{StartDate: "2027-06-01", EndDate: "2027-06-03"}); !errors.Is(err, ErrNoFamilyGroup) {
		t.Errorf("no group err = %v", err)
	}

	r, err := e.svc.Create(e.ctx(model.RoleMember, e.groups[0]), &model.Reservation{StartDate: "2027-06-01", EndDate: "2027-06-03"})
	if err != nil {
		t.Fatalf("member create: %v", err)
	}
	if r.SelectionPhase != model.PhasePrimary || r.FamilyGroupID != e.groups[0] {
		t.Errorf("created = %+v", r)
	}

	// The single period is used, so the turn passed to Baker.
	if _, err := e.svc.Create(e.ctx(model.RoleMember, e.groups[1]), &model.Reservation{StartDate: "2027-07-01", EndDate: "2027-07-03"}); err != nil {
		t.Errorf("next group create: %v", err)
	}
}

func TestUpdateCancelDelete(t *testing.T) {
	e := setup(t)
	keeper := e.ctx(model.RoleCalendarKeeper, 0)
	r, err := e.svc.Create(keeper, &model.Reservation{FamilyGroupID: e.groups[0], StartDate: "2027-05-01", EndDate: "2027-05-04"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	member := e.ctx(model.RoleMember, e.groups[1])
	if _, err := e.svc.Update(member, &model.Reservation{ID: r.ID, StartDate: "2027-05-01", EndDate: "2027-05-02"}); !errors.Is(err, ErrForbidden) {
		t.Errorf("foreign update err = %v", err)
	}

	owner := e.ctx(model.RoleMember, e.groups[0])
	updated, err := e.svc.Update(owner, &model.Reservation{ID: r.ID, StartDate: "2027-05-01", EndDate: "2027-05-03", GuestCount: 6})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.EndDate != "2027-05-03" || updated.GuestCount != 6 || updated.Status != model.ReservationConfirmed {
		t.Errorf("updated = %+v", updated)
	}
	if _, err := e.svc.Update(owner, &model.Reservation{ID: r.ID, StartDate: "2027-05-01", EndDate: "2027-05-20"}); !errors.Is(err, ErrTooManyNights) {
		t.Errorf("long update err = %v", err)
	}

	cancelled, err := e.svc.Cancel(owner, r.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != model.ReservationCancelled {
		t.Errorf("status = %q", cancelled.Status)
	}

	list, err := e.svc.Calendar(keeper, "2027-05-01", "2027-06-01", false)
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("calendar = %d reservations, want 0", len(list))
	}
	if _, err := e.svc.Calendar(keeper, "2027-06-01", "2027-05-01", false); !errors.Is(err, ErrInvalidDates) {
		t.Errorf("reversed range err = %v", err)
	}

	ok, err := e.svc.Delete(keeper, r.ID)
	if err != nil || !ok {
		t.Fatalf("delete = %v, %v", ok, err)
	}
	if ok, _ := e.svc.Delete(keeper, r.ID); ok {
		t.Error("second delete reported success")
	}
}

func TestStayHistory(t *testing.T) {
	e := setup(t)
	keeper := e.ctx(model.RoleAdmin, 0)
	for _, d := range [][2]string{{"2027-05-01", "2027-05-04"}, {"2027-08-01", "2027-08-03"}} {
		if _, err := e.svc.Create(keeper, &model.Reservation{FamilyGroupID: e.groups[1], StartDate: d[0], EndDate: d[1]}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	hist, err := e.svc.StayHistory(keeper, 2027)
	if err != nil {
		t.Fatalf("stay history: %v", err)
	}
	if len(hist) != 1 || hist[0].FamilyGroupID != e.groups[1] || hist[0].Nights != 5 {
		t.Errorf("history = %+v", hist)
	}
}

func TestMemberCannotReinstateOutOfTurn(t *testing.T) {
	e := setup(t)
	anderson := e.ctx(model.RoleMember, e.groups[0])

	r, err := e.svc.Create(anderson, &model.Reservation{StartDate: "2027-06-01", EndDate: "2027-06-03"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.svc.Cancel(anderson, r.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := e.svc.Create(anderson, &model.Reservation{StartDate: "2027-07-01", EndDate: "2027-07-05"}); !errors.Is(err, ErrPhaseUnavailable) {
		t.Errorf("create out of turn err = %v", err)
	}

	_, err = e.svc.Update(anderson, &model.Reservation{ID: r.ID, Status: model.ReservationConfirmed, StartDate: "2027-07-01", EndDate: "2027-07-05"})
	if !errors.Is(err, ErrPhaseUnavailable) {
		t.Fatalf("reinstate out of turn err = %v", err)
	}
	got, _ := e.svc.Get(anderson, r.ID)
	if got.Status != model.ReservationCancelled {
		t.Errorf("status = %q, want cancelled", got.Status)
	}

	// Baker holds the turn and still has its period.
	if _, err := e.svc.Create(e.ctx(model.RoleMember, e.groups[1]), &model.Reservation{StartDate: "2027-07-01", EndDate: "2027-07-05"}); err != nil {
		t.Errorf("baker create: %v", err)
	}
}

func TestReinstateHandsOffTurn(t *testing.T) {
	e := setupSlots(t, 2)
	anderson := e.ctx(model.RoleMember, e.groups[0])

	first, err := e.svc.Create(anderson, &model.Reservation{StartDate: "2027-06-01", EndDate: "2027-06-03"})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	if _, err := e.svc.Cancel(anderson, first.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := e.svc.Create(anderson, &model.Reservation{StartDate: "2027-06-10", EndDate: "2027-06-12"}); err != nil {
		t.Fatalf("create second: %v", err)
	}

	// Reinstating during its own turn uses Anderson's last period.
	updated, err := e.svc.Update(anderson, &model.Reservation{ID: first.ID, Status: model.ReservationConfirmed, StartDate: "2027-06-01", EndDate: "2027-06-03"})
	if err != nil {
		t.Fatalf("reinstate: %v", err)
	}
	if updated.Status != model.ReservationConfirmed {
		t.Errorf("status = %q", updated.Status)
	}

	cur, err := e.svc.selection.CurrentGroup(e.orgID, 2027, model.PhasePrimary)
	if err != nil {
		t.Fatalf("current group: %v", err)
	}
	if cur != e.groups[1] {
		t.Errorf("current group = %d, want %d", cur, e.groups[1])
	}
}
