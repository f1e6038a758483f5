package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/cabinshare/internal/auth"
	"github.com/dukerupert/cabinshare/internal/checklist"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/store"
)

type ChecklistHandler struct {
	checklistStore *store.ChecklistStore
	importer       *checklist.Importer
	events         Broadcaster
	logger         *slog.Logger
}

func NewChecklistHandler(cs *store.ChecklistStore, importer *checklist.Importer, events Broadcaster, logger *slog.Logger) *ChecklistHandler {
	return &ChecklistHandler{checklistStore: cs, importer: importer, events: orNop(events), logger: logger}
}

type checklistRequest struct {
	ChecklistType string `json:"checklist_type"`
	Title         string `json:"title"`
	Items         []struct {
		Text    string `json:"text"`
		ImageID *int64 `json:"image_id"`
	} `json:"items"`
}

// List handles GET /api/checklists?type=.
func (h *ChecklistHandler) List(w http.ResponseWriter, r *http.Request) {
	typ := r.URL.Query().Get("type")
	if typ != "" && !checklist.ValidType(typ) {
		writeError(w, http.StatusBadRequest, checklist.ErrInvalidType.Error())
		return
	}
	lists, err := h.checklistStore.List(auth.OrganizationID(r.Context()), typ)
	if err != nil {
		h.logger.Error("list checklists", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list checklists")
		return
	}
	if lists == nil {
		lists = []model.Checklist{}
	}
	writeJSON(w, http.StatusOK, lists)
}

func (h *ChecklistHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	c, err := h.checklistStore.GetByID(auth.OrganizationID(r.Context()), id)
	if err != nil {
		h.logger.Error("get checklist", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get checklist")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "checklist not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ChecklistHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	var req checklistRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !checklist.ValidType(req.ChecklistType) {
		writeError(w, http.StatusBadRequest, checklist.ErrInvalidType.Error())
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	items := make([]model.ChecklistItem, 0, len(req.Items))
	for _, it := range req.Items {
		text := strings.TrimSpace(it.Text)
		if text == "" {
			writeError(w, http.StatusBadRequest, "item text is required")
			return
		}
		items = append(items, model.ChecklistItem{Text: text, ImageID: it.ImageID})
	}

	c, err := h.checklistStore.Create(orgID, req.ChecklistType, title, items)
	if err != nil {
		writeDomainError(w, h.logger, err, "failed to create checklist")
		return
	}

	h.events.Changed(orgID, "checklist", "created", c.ID)
	writeJSON(w, http.StatusCreated, c)
}

func (h *ChecklistHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req checklistRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !checklist.ValidType(req.ChecklistType) {
		writeError(w, http.StatusBadRequest, checklist.ErrInvalidType.Error())
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	c, err := h.checklistStore.Update(orgID, id, req.ChecklistType, title)
	if err != nil {
		h.logger.Error("update checklist", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update checklist")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "checklist not found")
		return
	}

	h.events.Changed(orgID, "checklist", "updated", id)
	writeJSON(w, http.StatusOK, c)
}

func (h *ChecklistHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	existing, err := h.checklistStore.GetByID(orgID, id)
	if err != nil {
		h.logger.Error("get checklist", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get checklist")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "checklist not found")
		return
	}
	if err := h.checklistStore.Delete(orgID, id); err != nil {
		h.logger.Error("delete checklist", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete checklist")
		return
	}

	h.events.Changed(orgID, "checklist", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// Import handles POST /api/checklists/import (multipart: file, checklist_type,
// title).
func (h *ChecklistHandler) Import(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := auth.OrganizationID(ctx)
	up, err := readUpload(w, r, "file", maxImageBytes)
	if err != nil {
		writeUploadError(w, err)
		return
	}

	res, err := h.importer.Import(ctx, orgID, r.FormValue("checklist_type"), r.FormValue("title"), up.Data)
	if err != nil {
		writeDomainError(w, h.logger, err, "failed to import checklist")
		return
	}
	h.logger.Info("checklist imported", "organization_id", orgID, "items", len(res.Checklist.Items), "source", res.Source)

	h.events.Changed(orgID, "checklist", "created", res.Checklist.ID)
	writeJSON(w, http.StatusCreated, res)
}

type checklistItemRequest struct {
	Text    string `json:"text"`
	ImageID *int64 `json:"image_id"`
}

// AddItem handles POST /api/checklists/{id}/items.
func (h *ChecklistHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req checklistItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	it, err := h.checklistStore.AddItem(orgID, id, text, req.ImageID)
	if err != nil {
		writeDomainError(w, h.logger, err, "failed to add item")
		return
	}
	if it == nil {
		writeError(w, http.StatusNotFound, "checklist not found")
		return
	}

	h.events.Changed(orgID, "checklist", "updated", id)
	writeJSON(w, http.StatusCreated, it)
}

// UpdateItem handles PUT /api/checklist-items/{id}.
func (h *ChecklistHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req checklistItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	it, err := h.checklistStore.UpdateItem(orgID, id, text, req.ImageID)
	if err != nil {
		writeDomainError(w, h.logger, err, "failed to update item")
		return
	}
	if it == nil {
		writeError(w, http.StatusNotFound, "checklist item not found")
		return
	}

	h.events.Changed(orgID, "checklist", "updated", it.ChecklistID)
	writeJSON(w, http.StatusOK, it)
}

// DeleteItem handles DELETE /api/checklist-items/{id}.
func (h *ChecklistHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.checklistStore.DeleteItem(orgID, id); err != nil {
		h.logger.Error("delete checklist item", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete item")
		return
	}

	h.events.Changed(orgID, "checklist_item", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// ReorderItems handles PUT /api/checklists/{id}/items/order {ids}.
func (h *ChecklistHandler) ReorderItems(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	c, err := h.checklistStore.GetByID(orgID, id)
	if err != nil {
		h.logger.Error("get checklist", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get checklist")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "checklist not found")
		return
	}
	known := make(map[int64]bool, len(c.Items))
	for _, it := range c.Items {
		known[it.ID] = true
	}
	for _, itemID := range req.IDs {
		if !known[itemID] {
			writeError(w, http.StatusBadRequest, "unknown checklist item id")
			return
		}
	}

	if err := h.checklistStore.ReorderItems(id, req.IDs); err != nil {
		h.logger.Error("reorder checklist items", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reorder items")
		return
	}

	h.events.Changed(orgID, "checklist", "updated", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type checkinSessionRequest struct {
	FamilyGroupID *int64         `json:"family_group_id"`
	ChecklistID   *int64         `json:"checklist_id"`
	SessionType   string         `json:"session_type"`
	CheckDate     string         `json:"check_date"`
	Responses     map[int64]bool `json:"responses"`
	Notes         string         `json:"notes"`
}

// applySession validates req and fills cs. Members always record sessions
// for their own family group.
func (h *ChecklistHandler) applySession(r *http.Request, req *checkinSessionRequest, cs *model.CheckinSession) (string, error) {
	ctx := r.Context()
	orgID := auth.OrganizationID(ctx)
	if !checklist.ValidType(req.SessionType) {
		return checklist.ErrInvalidType.Error(), nil
	}
	if req.CheckDate == "" {
		req.CheckDate = today()
	}
	if !validDate(req.CheckDate) {
		return "check_date must be YYYY-MM-DD", nil
	}
	if req.ChecklistID != nil {
		c, err := h.checklistStore.GetByID(orgID, *req.ChecklistID)
		if err != nil {
			return "", err
		}
		if c == nil {
			return "checklist not found", nil
		}
	}
	if !auth.CanManageCalendar(ctx) {
		own, ok := auth.FamilyGroupID(ctx)
		if !ok {
			req.FamilyGroupID = nil
		} else {
			req.FamilyGroupID = &own
		}
	}

	cs.OrganizationID = orgID
	cs.FamilyGroupID = req.FamilyGroupID
	cs.ChecklistID = req.ChecklistID
	cs.SessionType = req.SessionType
	cs.CheckDate = req.CheckDate
	cs.Responses = req.Responses
	cs.Notes = req.Notes
	return "", nil
}

// ListSessions handles GET /api/checkin-sessions?family_group_id=.
func (h *ChecklistHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	var groupID *int64
	if s := r.URL.Query().Get("family_group_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid family_group_id")
			return
		}
		groupID = &id
	}
	sessions, err := h.checklistStore.ListSessions(auth.OrganizationID(r.Context()), groupID)
	if err != nil {
		h.logger.Error("list checkin sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []model.CheckinSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *ChecklistHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	cs, err := h.checklistStore.GetSession(auth.OrganizationID(r.Context()), id)
	if err != nil {
		h.logger.Error("get checkin session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	if cs == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (h *ChecklistHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req checkinSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	cs := &model.CheckinSession{}
	msg, err := h.applySession(r, &req, cs)
	if err != nil {
		h.logger.Error("validate checkin session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save session")
		return
	}
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if uid := auth.UserID(ctx); uid != 0 {
		cs.UserID = &uid
	}

	saved, err := h.checklistStore.SaveSession(cs)
	if err != nil {
		h.logger.Error("save checkin session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save session")
		return
	}

	h.events.Changed(saved.OrganizationID, "checkin_session", "created", saved.ID)
	writeJSON(w, http.StatusCreated, saved)
}

func (h *ChecklistHandler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	existing, err := h.checklistStore.GetSession(orgID, id)
	if err != nil {
		h.logger.Error("get checkin session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	var req checkinSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	msg, err := h.applySession(r, &req, existing)
	if err != nil {
		h.logger.Error("validate checkin session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save session")
		return
	}
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	saved, err := h.checklistStore.SaveSession(existing)
	if err != nil {
		h.logger.Error("save checkin session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save session")
		return
	}

	h.events.Changed(orgID, "checkin_session", "updated", id)
	writeJSON(w, http.StatusOK, saved)
}

func (h *ChecklistHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.checklistStore.DeleteSession(orgID, id); err != nil {
		h.logger.Error("delete checkin session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}

	h.events.Changed(orgID, "checkin_session", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}
