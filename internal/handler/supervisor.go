package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/cabinshare/internal/auth"
	"github.com/dukerupert/cabinshare/internal/backup"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/store"
)

var trialCodeRegexp = regexp.MustCompile(`^[A-Z0-9-]{4,32}$`)

// SupervisorHandler serves the cross-organization administration endpoints.
type SupervisorHandler struct {
	orgStore   *store.OrganizationStore
	trialCodes *store.TrialCodeStore
	backups    *backup.Manager
	logger     *slog.Logger
}

func NewSupervisorHandler(ogs *store.OrganizationStore, tcs *store.TrialCodeStore, backups *backup.Manager, logger *slog.Logger) *SupervisorHandler {
	return &SupervisorHandler{orgStore: ogs, trialCodes: tcs, backups: backups, logger: logger}
}

func (h *SupervisorHandler) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.orgStore.List()
	if err != nil {
		h.logger.Error("list organizations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list organizations")
		return
	}
	if orgs == nil {
		orgs = []model.OrganizationSummary{}
	}
	writeJSON(w, http.StatusOK, orgs)
}

func (h *SupervisorHandler) DeleteOrganization(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	org, err := h.orgStore.GetByID(id)
	if err != nil {
		h.logger.Error("get organization", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get organization")
		return
	}
	if org == nil {
		writeError(w, http.StatusNotFound, "organization not found")
		return
	}
	if err := h.orgStore.Delete(id); err != nil {
		h.logger.Error("delete organization", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete organization")
		return
	}

	h.logger.Warn("organization deleted", "organization_id", id, "name", org.Name, "by", auth.UserID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

type trialCodeRequest struct {
	Code      string     `json:"code"`
	TrialDays int        `json:"trial_days"`
	MaxUses   int        `json:"max_uses"`
	Notes     string     `json:"notes"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func newTrialCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

func (h *SupervisorHandler) ListTrialCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := h.trialCodes.List()
	if err != nil {
		h.logger.Error("list trial codes", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list trial codes")
		return
	}
	if codes == nil {
		codes = []model.TrialCode{}
	}
	writeJSON(w, http.StatusOK, codes)
}

// CreateTrialCode handles POST /api/supervisor/trial-codes. Without a code
// a random one is generated.
func (h *SupervisorHandler) CreateTrialCode(w http.ResponseWriter, r *http.Request) {
	var req trialCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	if req.Code == "" {
		req.Code = newTrialCode()
	}
	if !trialCodeRegexp.MatchString(req.Code) {
		writeError(w, http.StatusBadRequest, "code must be 4-32 letters, digits or dashes")
		return
	}
	if req.TrialDays == 0 {
		req.TrialDays = store.DefaultTrialDays
	}
	if req.TrialDays < 1 || req.TrialDays > 365 {
		writeError(w, http.StatusBadRequest, "trial_days must be 1-365")
		return
	}
	if req.MaxUses < 0 {
		writeError(w, http.StatusBadRequest, "max_uses must not be negative")
		return
	}
	if req.ExpiresAt != nil && req.ExpiresAt.Before(time.Now()) {
		writeError(w, http.StatusBadRequest, "expires_at must be in the future")
		return
	}

	tc, err := h.trialCodes.Create(req.Code, req.TrialDays, req.MaxUses, strings.TrimSpace(req.Notes), req.ExpiresAt, auth.UserID(r.Context()))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			writeError(w, http.StatusConflict, fmt.Sprintf("trial code %s already exists", req.Code))
			return
		}
		h.logger.Error("create trial code", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create trial code")
		return
	}
	writeJSON(w, http.StatusCreated, tc)
}

// DeactivateTrialCode handles POST /api/supervisor/trial-codes/{id}/deactivate.
func (h *SupervisorHandler) DeactivateTrialCode(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	tc, err := h.trialCodes.GetByID(id)
	if err != nil {
		h.logger.Error("get trial code", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get trial code")
		return
	}
	if tc == nil {
		writeError(w, http.StatusNotFound, "trial code not found")
		return
	}
	if err := h.trialCodes.Deactivate(id); err != nil {
		h.logger.Error("deactivate trial code", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to deactivate trial code")
		return
	}
	tc.Active = false
	writeJSON(w, http.StatusOK, tc)
}

// ListBackups handles GET /api/supervisor/backups?organization_id=&limit=.
func (h *SupervisorHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var orgID int64
	if s := q.Get("organization_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid organization_id")
			return
		}
		orgID = id
	}
	limit := 50
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be 1-500")
			return
		}
		limit = n
	}

	backups, err := h.backups.List(orgID, limit)
	if err != nil {
		h.logger.Error("list backups", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list backups")
		return
	}
	if backups == nil {
		backups = []model.Backup{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  h.backups.Status(),
		"backups": backups,
	})
}

// DownloadBackup handles GET /api/supervisor/backups/{id}/download. The
// object is served still encrypted.
func (h *SupervisorHandler) DownloadBackup(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	body, record, err := h.backups.Download(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err, "failed to download backup")
		return
	}
	stream(w, body, "application/octet-stream", record.Filename, false)
}
