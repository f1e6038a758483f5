package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/dukerupert/cabinshare/internal/auth"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/store"
)

var hexColorRegexp = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

const defaultGroupColor = "#3B82F6"

type FamilyGroupHandler struct {
	store  *store.FamilyGroupStore
	events Broadcaster
	logger *slog.Logger
}

func NewFamilyGroupHandler(s *store.FamilyGroupStore, events Broadcaster, logger *slog.Logger) *FamilyGroupHandler {
	return &FamilyGroupHandler{store: s, events: orNop(events), logger: logger}
}

type familyGroupRequest struct {
	Name        string             `json:"name"`
	LeadName    string             `json:"lead_name"`
	LeadEmail   string             `json:"lead_email"`
	LeadPhone   string             `json:"lead_phone"`
	Color       string             `json:"color"`
	Shares      int                `json:"shares"`
	HostMembers []model.HostMember `json:"host_members"`
}

// validate normalizes req and returns a client error message, or "".
func (req *familyGroupRequest) validate() string {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return "name is required"
	}
	if req.Color == "" {
		req.Color = defaultGroupColor
	}
	if !hexColorRegexp.MatchString(req.Color) {
		return "color must be a hex color (e.g. #FF0000)"
	}
	if req.Shares == 0 {
		req.Shares = 1
	}
	if req.Shares < 1 {
		return "shares must be at least 1"
	}
	if req.LeadEmail = strings.TrimSpace(req.LeadEmail); req.LeadEmail != "" {
		addr, ok := normalizeEmail(req.LeadEmail)
		if !ok {
			return "lead_email is not a valid email"
		}
		req.LeadEmail = addr
	}
	for i := range req.HostMembers {
		req.HostMembers[i].Name = strings.TrimSpace(req.HostMembers[i].Name)
		if req.HostMembers[i].Name == "" {
			return "host member name is required"
		}
	}
	return ""
}

func (req *familyGroupRequest) apply(g *model.FamilyGroup) {
	g.Name = req.Name
	g.LeadName = strings.TrimSpace(req.LeadName)
	g.LeadEmail = req.LeadEmail
	g.LeadPhone = strings.TrimSpace(req.LeadPhone)
	g.Color = req.Color
	g.Shares = req.Shares
	g.HostMembers = req.HostMembers
}

func (h *FamilyGroupHandler) List(w http.ResponseWriter, r *http.Request) {
	groups, err := h.store.List(auth.OrganizationID(r.Context()))
	if err != nil {
		h.logger.Error("list family groups", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list family groups")
		return
	}
	if groups == nil {
		groups = []model.FamilyGroup{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *FamilyGroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	g, err := h.store.GetByID(auth.OrganizationID(r.Context()), id)
	if err != nil {
		h.logger.Error("get family group", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get family group")
		return
	}
	if g == nil {
		writeError(w, http.StatusNotFound, "family group not found")
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *FamilyGroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	var req familyGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	exists, err := h.store.NameExists(orgID, req.Name, 0)
	if err != nil {
		h.logger.Error("check family group name", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check name")
		return
	}
	if exists {
		writeError(w, http.StatusConflict, "a family group with that name already exists")
		return
	}

	g := &model.FamilyGroup{OrganizationID: orgID}
	req.apply(g)
	created, err := h.store.Create(g)
	if err != nil {
		h.logger.Error("create family group", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create family group")
		return
	}

	h.events.Changed(orgID, "family_group", "created", created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (h *FamilyGroupHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.store.GetByID(orgID, id)
	if err != nil {
		h.logger.Error("get family group", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get family group")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "family group not found")
		return
	}

	var req familyGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	exists, err := h.store.NameExists(orgID, req.Name, id)
	if err != nil {
		h.logger.Error("check family group name", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check name")
		return
	}
	if exists {
		writeError(w, http.StatusConflict, "a family group with that name already exists")
		return
	}

	req.apply(existing)
	updated, err := h.store.Update(existing)
	if err != nil {
		h.logger.Error("update family group", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update family group")
		return
	}

	h.events.Changed(orgID, "family_group", "updated", id)
	writeJSON(w, http.StatusOK, updated)
}

func (h *FamilyGroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.store.GetByID(orgID, id)
	if err != nil {
		h.logger.Error("get family group", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get family group")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "family group not found")
		return
	}

	if err := h.store.Delete(orgID, id); err != nil {
		if errors.Is(err, store.ErrInUse) {
			writeError(w, http.StatusConflict, "family group still has reservations")
			return
		}
		h.logger.Error("delete family group", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete family group")
		return
	}

	h.events.Changed(orgID, "family_group", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// UpdateSortOrder handles PUT /api/family-groups/sort.
func (h *FamilyGroupHandler) UpdateSortOrder(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}

	known, err := h.store.IDs(orgID)
	if err != nil {
		h.logger.Error("list family group ids", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update sort order")
		return
	}
	for _, id := range req.IDs {
		if !known[id] {
			writeError(w, http.StatusBadRequest, "unknown family group id")
			return
		}
	}

	if err := h.store.UpdateSortOrder(orgID, req.IDs); err != nil {
		h.logger.Error("update sort order", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update sort order")
		return
	}

	h.events.Changed(orgID, "family_group", "reordered", 0)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
