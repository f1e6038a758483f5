package functions

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"testing"

	"github.com/dukerupert/cabinshare/internal/auth"
	"github.com/dukerupert/cabinshare/internal/backup"
	"github.com/dukerupert/cabinshare/internal/checklist"
	"github.com/dukerupert/cabinshare/internal/ledger"
	"github.com/dukerupert/cabinshare/internal/model"
)

type fakes struct {
	reminderOrg  int64
	reminderIDs  []int64
	renotified   string
	backupOrg    int64
	restoredYear int
	imported     []byte
}

func (f *fakes) SendBulk(_ context.Context, org int64, ids []int64) (ledger.ReminderResult, error) {
	f.reminderOrg, f.reminderIDs = org, ids
	return ledger.ReminderResult{Sent: len(ids)}, nil
}

func (f *fakes) Renotify(_ context.Context, org int64, year int, phase string) (*model.SelectionStatus, error) {
	f.renotified = phase
	return &model.SelectionStatus{OrganizationID: org, RotationYear: year, Phase: model.PhasePrimary}, nil
}

func (f *fakes) Create(_ context.Context, org int64, kind string) (*model.Backup, error) {
	f.backupOrg = org
	return &model.Backup{ID: 1, OrganizationID: org}, nil
}

func (f *fakes) RestoreStayHistory(_ context.Context, id int64, year int) (*backup.RestoreResult, error) {
	f.restoredYear = year
	return &backup.RestoreResult{Restored: 3}, nil
}

func (f *fakes) Import(_ context.Context, org int64, typ, title string, docx []byte) (*checklist.ImportResult, error) {
	f.imported = docx
	return &checklist.ImportResult{Source: "paragraphs"}, nil
}

func newRegistry() (*Registry, *fakes) {
	f := &fakes{}
	r := NewRegistry(nil, slog.Default())
	RegisterDefaults(r, Deps{Reminders: f, Selection: f, Backups: f, Checklists: f})
	return r, f
}

func as(role string, supervisor bool) context.Context {
	return auth.WithAuth(context.Background(), auth.AuthContext{UserID: 1, OrganizationID: 7, Role: role, IsSupervisor: supervisor})
}

func status(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Status
	}
	return 0
}

func TestUnknownFunction(t *testing.T) {
	r, _ := newRegistry()
	if _, err := r.Call(as(model.RoleAdmin, false), "nope", nil); !errors.Is(err, ErrUnknownFunction) {
		t.Errorf("err = %v", err)
	}
	if got := len(r.Names()); got != 5 {
		t.Errorf("registered = %d, want 5", got)
	}
}

func TestBulkPaymentReminders(t *testing.T) {
	r, f := newRegistry()
	out, err := r.Call(as(model.RoleTreasurer, false), SendBulkPaymentReminders, json.RawMessage(`{"payment_ids":[4,5]}`))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if f.reminderOrg != 7 || len(f.reminderIDs) != 2 {
		t.Errorf("org %d ids %v", f.reminderOrg, f.reminderIDs)
	}
	if res := out.(ledger.ReminderResult); res.Sent != 2 {
		t.Errorf("result = %+v", res)
	}

	_, err = r.Call(as(model.RoleMember, false), SendBulkPaymentReminders, nil)
	if status(err) != http.StatusForbidden {
		t.Errorf("member err = %v", err)
	}
	_, err = r.Call(as(model.RoleAdmin, false), SendBulkPaymentReminders, json.RawMessage(`{"payment_ids":"x"}`))
	if status(err) != http.StatusBadRequest {
		t.Errorf("bad body err = %v", err)
	}
}

func TestSelectionTurnNotification(t *testing.T) {
	r, f := newRegistry()
	if _, err := r.Call(as(model.RoleCalendarKeeper, false), SendSelectionTurnNotification, json.RawMessage(`{"phase":"primary"}`)); status(err) != http.StatusBadRequest {
		t.Errorf("missing year err = %v", err)
	}
	if _, err := r.Call(as(model.RoleCalendarKeeper, false), SendSelectionTurnNotification, json.RawMessage(`{"rotation_year":2027,"phase":"secondary"}`)); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if f.renotified != "secondary" {
		t.Errorf("phase = %q", f.renotified)
	}
}

func TestOrganizationBackupPermissions(t *testing.T) {
	r, f := newRegistry()

	if _, err := r.Call(as(model.RoleAdmin, false), CreateOrganizationBackup, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("admin own org: %v", err)
	}
	if f.backupOrg != 7 {
		t.Errorf("backup org = %d, want 7", f.backupOrg)
	}
	if _, err := r.Call(as(model.RoleAdmin, false), CreateOrganizationBackup, json.RawMessage(`{"organization_id":9}`)); status(err) != http.StatusForbidden {
		t.Errorf("admin other org err = %v", err)
	}
	if _, err := r.Call(as(model.RoleMember, true), CreateOrganizationBackup, json.RawMessage(`{"organization_id":9}`)); err != nil {
		t.Fatalf("supervisor: %v", err)
	}
	if f.backupOrg != 9 {
		t.Errorf("backup org = %d, want 9", f.backupOrg)
	}
}

func TestRestoreStayHistory(t *testing.T) {
	r, f := newRegistry()
	if _, err := r.Call(as(model.RoleAdmin, false), RestoreStayHistorySnapshot, json.RawMessage(`{"backup_id":1,"rotation_year":2026}`)); status(err) != http.StatusForbidden {
		t.Errorf("admin err = %v", err)
	}
	out, err := r.Call(as(model.RoleMember, true), RestoreStayHistorySnapshot, json.RawMessage(`{"backup_id":1,"rotation_year":2026}`))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if f.restoredYear != 2026 || out.(*backup.RestoreResult).Restored != 3 {
		t.Errorf("year %d out %+v", f.restoredYear, out)
	}
}

func TestWordToChecklist(t *testing.T) {
	r, f := newRegistry()
	encoded := base64.StdEncoding.EncodeToString([]byte("PK fake docx"))
	body, _ := json.Marshal(map[string]string{
		"checklist_type": model.ChecklistDeparture,
		"file_base64":    "data:application/vnd.openxmlformats-officedocument.wordprocessingml.document;base64," + encoded,
	})
	if _, err := r.Call(as(model.RoleAdmin, false), ProcessWordToChecklist, body); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(f.imported) != "PK fake docx" {
		t.Errorf("imported = %q", f.imported)
	}
	if _, err := r.Call(as(model.RoleAdmin, false), ProcessWordToChecklist, json.RawMessage(`{"file_base64":"!!"}`)); status(err) != http.StatusBadRequest {
		t.Errorf("bad base64 err = %v", err)
	}
}
