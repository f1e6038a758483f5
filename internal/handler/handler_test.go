package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/dukerupert/cabinshare/internal/auth"
	"github.com/dukerupert/cabinshare/internal/config"
	"github.com/dukerupert/cabinshare/internal/database"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/objectstore"
	"github.com/dukerupert/cabinshare/internal/store"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type testEnv struct {
	db     *sql.DB
	orgID  int64
	userID int64
	groups []int64
	events *recordingBroadcaster
}

type recordingBroadcaster struct {
	events []string
}

func (b *recordingBroadcaster) Changed(_ int64, entity, action string, _ int64) {
	b.events = append(b.events, entity+":"+action)
}

func setupEnv(t *testing.T, groupNames ...string) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	u, err := store.NewUserStore(db).Create("admin@example.com", "Admin")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	org, err := store.NewOrganizationStore(db).Create(store.NewOrganization{Name: "Lake Cabin"}, u.ID)
	if err != nil {
		t.Fatalf("create organization: %v", err)
	}
	env := &testEnv{db: db, orgID: org.ID, userID: u.ID, events: &recordingBroadcaster{}}

	gs := store.NewFamilyGroupStore(db)
	for _, name := range groupNames {
		g, err := gs.Create(&model.FamilyGroup{OrganizationID: org.ID, Name: name, Color: "#112233", Shares: 1})
		if err != nil {
			t.Fatalf("create family group %q: %v", name, err)
		}
		env.groups = append(env.groups, g.ID)
	}
	return env
}

// request builds a request carrying the admin's auth context.
func (e *testEnv) request(method, target string, body any, pathValues ...string) *http.Request {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	for i := 0; i+1 < len(pathValues); i += 2 {
		req.SetPathValue(pathValues[i], pathValues[i+1])
	}
	ctx := auth.WithAuth(req.Context(), auth.AuthContext{
		UserID:         e.userID,
		OrganizationID: e.orgID,
		Role:           model.RoleAdmin,
	})
	return req.WithContext(ctx)
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func TestFamilyGroupCreateValidation(t *testing.T) {
	env := setupEnv(t)
	h := NewFamilyGroupHandler(store.NewFamilyGroupStore(env.db), env.events, testLogger)

	tests := []struct {
		name string
		body familyGroupRequest
		want int
	}{
		{"missing name", familyGroupRequest{Name: "  "}, http.StatusBadRequest},
		{"bad color", familyGroupRequest{Name: "Smiths", Color: "red"}, http.StatusBadRequest},
		{"bad lead email", familyGroupRequest{Name: "Smiths", LeadEmail: "not-an-email"}, http.StatusBadRequest},
		{"valid", familyGroupRequest{Name: "Smiths", LeadEmail: "Lead@Example.com"}, http.StatusCreated},
		{"duplicate", familyGroupRequest{Name: "Smiths"}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Create(rec, env.request("POST", "/api/family-groups", tt.body))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
			if rec.Code == http.StatusCreated {
				g := decodeBody[model.FamilyGroup](t, rec)
				if g.Shares != 1 || g.Color != defaultGroupColor {
					t.Errorf("defaults not applied: shares=%d color=%q", g.Shares, g.Color)
				}
				if g.LeadEmail != "lead@example.com" {
					t.Errorf("lead email = %q, want normalized", g.LeadEmail)
				}
			}
		})
	}
	if len(env.events.events) != 1 || env.events.events[0] != "family_group:created" {
		t.Errorf("events = %v", env.events.events)
	}
}

func TestFamilyGroupDeleteWithReservations(t *testing.T) {
	env := setupEnv(t, "Smiths")
	_, err := store.NewReservationStore(env.db).Create(&model.Reservation{
		OrganizationID: env.orgID,
		FamilyGroupID:  env.groups[0],
		StartDate:      "2026-07-01",
		EndDate:        "2026-07-05",
		Status:         model.ReservationConfirmed,
		SelectionPhase: model.PhaseManual,
	})
	if err != nil {
		t.Fatalf("create reservation: %v", err)
	}

	h := NewFamilyGroupHandler(store.NewFamilyGroupStore(env.db), nil, testLogger)
	rec := httptest.NewRecorder()
	h.Delete(rec, env.request("DELETE", "/", nil, "id", strconv.FormatInt(env.groups[0], 10)))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestPaymentRecordRejectsOverpayment(t *testing.T) {
	env := setupEnv(t, "Smiths")
	ps := store.NewPaymentStore(env.db)
	p, err := ps.Create(&model.Payment{
		OrganizationID: env.orgID,
		FamilyGroupID:  env.groups[0],
		PaymentType:    model.PaymentTypeUseFee,
		AmountCents:    10000,
		DueDate:        "2099-06-01",
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	h := NewPaymentHandler(ps, store.NewFamilyGroupStore(env.db), nil, testLogger)
	id := strconv.FormatInt(p.ID, 10)

	rec := httptest.NewRecorder()
	h.Record(rec, env.request("POST", "/", recordPaymentRequest{AmountCents: 4000, PaidDate: "2026-05-01"}, "id", id))
	if rec.Code != http.StatusOK {
		t.Fatalf("partial payment status = %d (body %s)", rec.Code, rec.Body.String())
	}
	got := decodeBody[model.Payment](t, rec)
	if got.AmountPaidCents != 4000 || got.Status != model.PaymentPartial {
		t.Errorf("after partial: paid=%d status=%q", got.AmountPaidCents, got.Status)
	}

	rec = httptest.NewRecorder()
	h.Record(rec, env.request("POST", "/", recordPaymentRequest{AmountCents: 6001}, "id", id))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("overpayment status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = httptest.NewRecorder()
	h.Record(rec, env.request("POST", "/", recordPaymentRequest{AmountCents: 6000}, "id", id))
	if rec.Code != http.StatusOK {
		t.Fatalf("final payment status = %d", rec.Code)
	}
	if got := decodeBody[model.Payment](t, rec); got.Status != model.PaymentPaid {
		t.Errorf("status = %q, want %q", got.Status, model.PaymentPaid)
	}
}

func TestBillAccountNumberMasked(t *testing.T) {
	env := setupEnv(t)
	bs := store.NewBillStore(env.db)
	h := NewBillHandler(bs, nil, testLogger)

	rec := httptest.NewRecorder()
	h.Create(rec, env.request("POST", "/api/bills", billRequest{
		Name:           "Electric",
		Category:       "utilities",
		AccountNumber:  "1234567890",
		AmountCents:    8500,
		RecurrenceRule: "FREQ=MONTHLY;INTERVAL=1",
		StartDate:      "2026-01-15",
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d (body %s)", rec.Code, rec.Body.String())
	}
	created := decodeBody[model.BillView](t, rec)
	if created.AccountNumber != "******7890" {
		t.Errorf("account number = %q, want masked", created.AccountNumber)
	}

	// Echoing the masked number back keeps the stored one.
	rec = httptest.NewRecorder()
	h.Update(rec, env.request("PUT", "/", billRequest{
		Name:           "Electric",
		Category:       "utilities",
		AccountNumber:  created.AccountNumber,
		AmountCents:    9000,
		RecurrenceRule: "FREQ=MONTHLY;INTERVAL=1",
		StartDate:      "2026-01-15",
	}, "id", strconv.FormatInt(created.ID, 10)))
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d (body %s)", rec.Code, rec.Body.String())
	}
	stored, err := bs.GetByID(env.orgID, created.ID)
	if err != nil || stored == nil {
		t.Fatalf("get bill: %v", err)
	}
	if stored.AccountNumber != "1234567890" || stored.AmountCents != 9000 {
		t.Errorf("stored = %q/%d", stored.AccountNumber, stored.AmountCents)
	}
}

func TestBillCreateRejectsBadRule(t *testing.T) {
	env := setupEnv(t)
	h := NewBillHandler(store.NewBillStore(env.db), nil, testLogger)
	rec := httptest.NewRecorder()
	h.Create(rec, env.request("POST", "/api/bills", billRequest{
		Name:           "Tax",
		AmountCents:    100,
		RecurrenceRule: "FREQ=FORTNIGHTLY",
		StartDate:      "2026-01-01",
	}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRotationNextYear(t *testing.T) {
	env := setupEnv(t, "A", "B", "C")
	rs := store.NewRotationStore(env.db)
	h := NewRotationHandler(rs, store.NewFamilyGroupStore(env.db), nil, nil, testLogger)

	rec := httptest.NewRecorder()
	h.SaveOrder(rec, env.request("PUT", "/", rotationOrderRequest{
		Order:        env.groups,
		MaxTimeSlots: 2,
		MaxNights:    7,
	}, "year", "2026"))
	if rec.Code != http.StatusOK {
		t.Fatalf("save status = %d (body %s)", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.NextYear(rec, env.request("POST", "/", nil, "year", "2026"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("next-year status = %d (body %s)", rec.Code, rec.Body.String())
	}
	next := decodeBody[model.RotationOrder](t, rec)
	want := []int64{env.groups[1], env.groups[2], env.groups[0]}
	if next.RotationYear != 2027 || len(next.Order) != 3 {
		t.Fatalf("next = %+v", next)
	}
	for i := range want {
		if next.Order[i] != want[i] {
			t.Errorf("order = %v, want %v", next.Order, want)
			break
		}
	}
	if next.MaxTimeSlots != 2 || next.MaxNights != 7 {
		t.Errorf("settings not carried over: %+v", next)
	}

	rec = httptest.NewRecorder()
	h.NextYear(rec, env.request("POST", "/", nil, "year", "2026"))
	if rec.Code != http.StatusConflict {
		t.Errorf("second next-year status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestRotationSaveOrderRejectsForeignGroup(t *testing.T) {
	env := setupEnv(t, "A")
	h := NewRotationHandler(store.NewRotationStore(env.db), store.NewFamilyGroupStore(env.db), nil, nil, testLogger)
	rec := httptest.NewRecorder()
	h.SaveOrder(rec, env.request("PUT", "/", rotationOrderRequest{
		Order:        []int64{env.groups[0], 9999},
		MaxTimeSlots: 1,
	}, "year", "2026"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRotationReorderDuringSelection(t *testing.T) {
	env := setupEnv(t, "A", "B", "C")
	rs := store.NewRotationStore(env.db)
	h := NewRotationHandler(rs, store.NewFamilyGroupStore(env.db), nil, nil, testLogger)

	save := func(order []int64) int {
		rec := httptest.NewRecorder()
		h.SaveOrder(rec, env.request("PUT", "/", rotationOrderRequest{Order: order, MaxTimeSlots: 1}, "year", "2026"))
		return rec.Code
	}
	if code := save(env.groups); code != http.StatusOK {
		t.Fatalf("save status = %d", code)
	}
	if _, err := rs.StartPhase(env.orgID, 2026, model.PhasePrimary, store.Cursor{FamilyGroupID: &env.groups[0], Index: 0}); err != nil {
		t.Fatalf("start phase: %v", err)
	}
	if code := save([]int64{env.groups[2], env.groups[1], env.groups[0]}); code != http.StatusConflict {
		t.Errorf("reorder status = %d, want %d", code, http.StatusConflict)
	}
}

func TestImageDeleteInUse(t *testing.T) {
	env := setupEnv(t)
	mem := objectstore.NewMemory()
	objects := objectstore.NewWithClient(mem, "test-bucket")
	is := store.NewImageStore(env.db)

	key := objectstore.Key(env.orgID, "images", "dock.png")
	if err := objects.Put(context.Background(), key, strings.NewReader("png"), 3, "image/png"); err != nil {
		t.Fatalf("put object: %v", err)
	}
	img, err := is.Create(env.orgID, "dock.png", key, "image/png", 3)
	if err != nil {
		t.Fatalf("create image: %v", err)
	}
	if _, err := store.NewChecklistStore(env.db).Create(env.orgID, "arrival", "Arrival", []model.ChecklistItem{
		{Text: "Check the dock", ImageID: &img.ID},
	}); err != nil {
		t.Fatalf("create checklist: %v", err)
	}

	h := NewImageHandler(is, objects, env.events, testLogger)
	id := strconv.FormatInt(img.ID, 10)

	rec := httptest.NewRecorder()
	h.Delete(rec, env.request("DELETE", "/api/images/"+id, nil, "id", id))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if !mem.Has(key) {
		t.Fatal("object removed for a refused delete")
	}

	rec = httptest.NewRecorder()
	h.Delete(rec, env.request("DELETE", "/api/images/"+id+"?force=true", nil, "id", id))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("forced status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if mem.Has(key) {
		t.Error("object still stored after forced delete")
	}
}

func TestImageUploadWithoutStorage(t *testing.T) {
	env := setupEnv(t)
	h := NewImageHandler(store.NewImageStore(env.db), objectstore.New(config.S3Config{}), nil, testLogger)
	rec := httptest.NewRecorder()
	h.Upload(rec, env.request("POST", "/api/images", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestSettingsUpdateValidation(t *testing.T) {
	env := setupEnv(t)
	h := NewSettingsHandler(store.NewSettingsStore(env.db), env.events, testLogger)

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"unknown key", map[string]string{"theme": "dark"}, http.StatusBadRequest},
		{"latitude out of range", map[string]string{"weather_latitude": "91"}, http.StatusBadRequest},
		{"bad units", map[string]string{"weather_units": "kelvin"}, http.StatusBadRequest},
		{"bad checkin time", map[string]string{"checkin_time": "25:00"}, http.StatusBadRequest},
		{"valid", map[string]string{"cabin_name": "Pine Lodge", "weather_units": "celsius"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Update(rec, env.request("PUT", "/api/settings", tt.body))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestNoteListPurgesExpired(t *testing.T) {
	env := setupEnv(t)
	h := NewNoteHandler(store.NewNoteStore(env.db), nil, testLogger)

	rec := httptest.NewRecorder()
	h.Create(rec, env.request("POST", "/api/notes", map[string]any{
		"title":      "Old",
		"body":       "expired",
		"expires_at": "2000-01-01T00:00:00Z",
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d (body %s)", rec.Code, rec.Body.String())
	}
	rec = httptest.NewRecorder()
	h.Create(rec, env.request("POST", "/api/notes", map[string]any{"title": "Firewood", "priority": "urgent"}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d (body %s)", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.List(rec, env.request("GET", "/api/notes", nil))
	notes := decodeBody[[]model.SharedNote](t, rec)
	if len(notes) != 1 || notes[0].Title != "Firewood" {
		t.Errorf("notes = %+v, want only the unexpired note", notes)
	}
}

func TestUpdateMemberKeepsFamilyGroup(t *testing.T) {
	env := setupEnv(t, "Anderson")
	orgs := store.NewOrganizationStore(env.db)
	h := NewOrganizationHandler(orgs, store.NewSessionStore(env.db), store.NewFamilyGroupStore(env.db), env.events, testLogger)

	u, err := store.NewUserStore(env.db).Create("member@example.com", "Member")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := orgs.AddMember(env.orgID, u.ID, model.RoleMember, &env.groups[0]); err != nil {
		t.Fatalf("add member: %v", err)
	}
	userID := strconv.FormatInt(u.ID, 10)

	rec := httptest.NewRecorder()
	h.UpdateMember(rec, env.request("PUT", "/", map[string]any{"role": model.RoleTreasurer}, "user_id", userID))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	m := decodeBody[model.OrganizationMember](t, rec)
	if m.Role != model.RoleTreasurer {
		t.Errorf("role = %q, want treasurer", m.Role)
	}
	if m.FamilyGroupID == nil || *m.FamilyGroupID != env.groups[0] {
		t.Errorf("family_group_id = %v, want %d", m.FamilyGroupID, env.groups[0])
	}

	rec = httptest.NewRecorder()
	h.UpdateMember(rec, env.request("PUT", "/", map[string]any{"clear_family_group": true}, "user_id", userID))
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d, body %s", rec.Code, rec.Body.String())
	}
	m = decodeBody[model.OrganizationMember](t, rec)
	if m.FamilyGroupID != nil || m.Role != model.RoleTreasurer {
		t.Errorf("after clear = role %q group %v", m.Role, m.FamilyGroupID)
	}
}
