// Package functions dispatches named JSON functions.
package functions

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/dukerupert/cabinshare/internal/auth"
	"github.com/dukerupert/cabinshare/internal/backup"
	"github.com/dukerupert/cabinshare/internal/checklist"
	"github.com/dukerupert/cabinshare/internal/ledger"
	"github.com/dukerupert/cabinshare/internal/metrics"
	"github.com/dukerupert/cabinshare/internal/model"
)

// Function names.
const (
	SendBulkPaymentReminders      = "send-bulk-payment-reminders"
	SendSelectionTurnNotification = "send-selection-turn-notification"
	CreateOrganizationBackup      = "create-organization-backup"
	RestoreStayHistorySnapshot    = "restore-stay-history-snapshot"
	ProcessWordToChecklist        = "process-word-to-checklist"
)

const maxDocxBytes = 10 << 20

var ErrUnknownFunction = errors.New("unknown function")

// Error is a function failure with an HTTP status.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

func badRequest(format string, args ...any) error {
	return &Error{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

var errForbidden = &Error{Status: http.StatusForbidden, Message: "forbidden"}

// Func handles one call. input is the raw JSON request body.
type Func func(ctx context.Context, input json.RawMessage) (any, error)

// Registry maps function names to handlers.
type Registry struct {
	funcs   map[string]Func
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewRegistry(m *metrics.Metrics, logger *slog.Logger) *Registry {
	return &Registry{funcs: make(map[string]Func), metrics: m, logger: logger}
}

// Register adds or replaces a function.
func (r *Registry) Register(name string, fn Func) {
	r.funcs[name] = fn
}

// Names returns the registered function names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call runs the named function.
func (r *Registry) Call(ctx context.Context, name string, input json.RawMessage) (any, error) {
	fn, ok := r.funcs[name]
	if !ok {
		return nil, ErrUnknownFunction
	}
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	out, err := fn(ctx, input)
	r.metrics.FunctionCalled(name, err)
	if err != nil {
		r.logger.Warn("function failed", "function", name, "organization_id", auth.OrganizationID(ctx), "error", err)
	}
	return out, err
}

func decode(input json.RawMessage, v any) error {
	if err := json.Unmarshal(input, v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

// ReminderSender sends bulk payment reminders.
type ReminderSender interface {
	SendBulk(ctx context.Context, organizationID int64, paymentIDs []int64) (ledger.ReminderResult, error)
}

// TurnNotifier re-sends the current selection turn notification.
type TurnNotifier interface {
	Renotify(ctx context.Context, organizationID int64, year int, phase string) (*model.SelectionStatus, error)
}

// Backups creates backups and restores stay history from them.
type Backups interface {
	Create(ctx context.Context, organizationID int64, kind string) (*model.Backup, error)
	RestoreStayHistory(ctx context.Context, backupID int64, year int) (*backup.RestoreResult, error)
}

// ChecklistImporter builds checklists from Word documents.
type ChecklistImporter interface {
	Import(ctx context.Context, organizationID int64, checklistType, title string, docx []byte) (*checklist.ImportResult, error)
}

// Deps are the services behind the built-in functions.
type Deps struct {
	Reminders  ReminderSender
	Selection  TurnNotifier
	Backups    Backups
	Checklists ChecklistImporter
}

// RegisterDefaults registers the built-in functions.
func RegisterDefaults(r *Registry, d Deps) {
	r.Register(SendBulkPaymentReminders, bulkPaymentReminders(d.Reminders))
	r.Register(SendSelectionTurnNotification, selectionTurnNotification(d.Selection))
	r.Register(CreateOrganizationBackup, organizationBackup(d.Backups))
	r.Register(RestoreStayHistorySnapshot, restoreStayHistory(d.Backups))
	r.Register(ProcessWordToChecklist, wordToChecklist(d.Checklists))
}

func bulkPaymentReminders(reminders ReminderSender) Func {
	return func(ctx context.Context, input json.RawMessage) (any, error) {
		if !auth.CanManageMoney(ctx) {
			return nil, errForbidden
		}
		var req struct {
			PaymentIDs []int64 `json:"payment_ids"`
		}
		if err := decode(input, &req); err != nil {
			return nil, err
		}
		return reminders.SendBulk(ctx, auth.OrganizationID(ctx), req.PaymentIDs)
	}
}

func selectionTurnNotification(sel TurnNotifier) Func {
	return func(ctx context.Context, input json.RawMessage) (any, error) {
		if !auth.CanManageCalendar(ctx) {
			return nil, errForbidden
		}
		var req struct {
			RotationYear int    `json:"rotation_year"`
			Phase        string `json:"phase"`
		}
		if err := decode(input, &req); err != nil {
			return nil, err
		}
		if req.RotationYear == 0 {
			return nil, badRequest("rotation_year is required")
		}
		st, err := sel.Renotify(ctx, auth.OrganizationID(ctx), req.RotationYear, req.Phase)
		if err != nil {
			return nil, err
		}
		return map[string]any{"status": st}, nil
	}
}

func organizationBackup(backups Backups) Func {
	return func(ctx context.Context, input json.RawMessage) (any, error) {
		var req struct {
			OrganizationID int64 `json:"organization_id"`
		}
		if err := decode(input, &req); err != nil {
			return nil, err
		}
		orgID := req.OrganizationID
		switch {
		case auth.IsSupervisor(ctx):
			if orgID == 0 {
				orgID = auth.OrganizationID(ctx)
			}
		case auth.IsAdmin(ctx) && (orgID == 0 || orgID == auth.OrganizationID(ctx)):
			orgID = auth.OrganizationID(ctx)
		default:
			return nil, errForbidden
		}
		if orgID == 0 {
			return nil, badRequest("organization_id is required")
		}
		b, err := backups.Create(ctx, orgID, backup.KindManual)
		if err != nil {
			return nil, err
		}
		return map[string]any{"backup": b}, nil
	}
}

func restoreStayHistory(backups Backups) Func {
	return func(ctx context.Context, input json.RawMessage) (any, error) {
		if !auth.IsSupervisor(ctx) {
			return nil, errForbidden
		}
		var req struct {
			BackupID     int64 `json:"backup_id"`
			RotationYear int   `json:"rotation_year"`
		}
		if err := decode(input, &req); err != nil {
			return nil, err
		}
		if req.BackupID == 0 || req.RotationYear == 0 {
			return nil, badRequest("backup_id and rotation_year are required")
		}
		return backups.RestoreStayHistory(ctx, req.BackupID, req.RotationYear)
	}
}

func wordToChecklist(importer ChecklistImporter) Func {
	return func(ctx context.Context, input json.RawMessage) (any, error) {
		if !auth.CanManageCalendar(ctx) {
			return nil, errForbidden
		}
		var req struct {
			ChecklistType string `json:"checklist_type"`
			Title         string `json:"title"`
			FileBase64    string `json:"file_base64"`
		}
		if err := decode(input, &req); err != nil {
			return nil, err
		}
		if req.FileBase64 == "" {
			return nil, badRequest("file_base64 is required")
		}
		encoded := req.FileBase64
		if i := strings.Index(encoded, ","); i >= 0 && strings.HasPrefix(encoded, "data:") {
			encoded = encoded[i+1:]
		}
		if base64.StdEncoding.DecodedLen(len(encoded)) > maxDocxBytes {
			return nil, badRequest("file is too large")
		}
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, badRequest("file_base64 is not valid base64")
		}
		return importer.Import(ctx, auth.OrganizationID(ctx), req.ChecklistType, req.Title, data)
	}
}
