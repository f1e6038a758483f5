package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/cabinshare/internal/auth"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/store"
)

type OrganizationHandler struct {
	orgStore         *store.OrganizationStore
	sessionStore     *store.SessionStore
	familyGroupStore *store.FamilyGroupStore
	events           Broadcaster
	logger           *slog.Logger
}

func NewOrganizationHandler(ogs *store.OrganizationStore, ss *store.SessionStore, fgs *store.FamilyGroupStore, events Broadcaster, logger *slog.Logger) *OrganizationHandler {
	return &OrganizationHandler{orgStore: ogs, sessionStore: ss, familyGroupStore: fgs, events: orNop(events), logger: logger}
}

type organizationRequest struct {
	Name                string `json:"name"`
	AdminEmail          string `json:"admin_email"`
	TreasurerEmail      string `json:"treasurer_email"`
	CalendarKeeperEmail string `json:"calendar_keeper_email"`
	TrialCode           string `json:"trial_code"`
}

func (req *organizationRequest) normalize() string {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return "name is required"
	}
	for _, e := range []*string{&req.AdminEmail, &req.TreasurerEmail, &req.CalendarKeeperEmail} {
		if strings.TrimSpace(*e) == "" {
			*e = ""
			continue
		}
		addr, ok := normalizeEmail(*e)
		if !ok {
			return "invalid email: " + *e
		}
		*e = addr
	}
	return ""
}

// Create handles POST /api/organizations. The creator becomes admin and the
// session switches to the new organization.
func (h *OrganizationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	var req organizationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.normalize(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	org, err := h.orgStore.Create(store.NewOrganization{
		Name:                req.Name,
		AdminEmail:          req.AdminEmail,
		TreasurerEmail:      req.TreasurerEmail,
		CalendarKeeperEmail: req.CalendarKeeperEmail,
		TrialCode:           req.TrialCode,
	}, ac.UserID)
	if err != nil {
		h.logger.Error("create organization", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create organization")
		return
	}
	if err := h.sessionStore.UpdateOrganizationID(ac.SessionID, org.ID); err != nil {
		h.logger.Error("switch to new organization", "error", err)
	}

	h.logger.Info("organization created", "organization_id", org.ID, "user_id", ac.UserID)
	writeJSON(w, http.StatusCreated, org)
}

// Get handles GET /api/organization.
func (h *OrganizationHandler) Get(w http.ResponseWriter, r *http.Request) {
	org, err := h.orgStore.GetByID(auth.OrganizationID(r.Context()))
	if err != nil {
		h.logger.Error("get organization", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get organization")
		return
	}
	if org == nil {
		writeError(w, http.StatusNotFound, "organization not found")
		return
	}
	writeJSON(w, http.StatusOK, org)
}

// Update handles PUT /api/organization.
func (h *OrganizationHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	var req organizationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.normalize(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	org, err := h.orgStore.Update(orgID, req.Name, req.AdminEmail, req.TreasurerEmail, req.CalendarKeeperEmail)
	if err != nil {
		h.logger.Error("update organization", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update organization")
		return
	}
	h.events.Changed(orgID, "organization", "updated", orgID)
	writeJSON(w, http.StatusOK, org)
}

// Join handles POST /api/organizations/join.
func (h *OrganizationHandler) Join(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	org, err := h.orgStore.GetByCode(code)
	if err != nil {
		h.logger.Error("join lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if org == nil {
		writeError(w, http.StatusNotFound, "no organization with that code")
		return
	}

	member, err := h.orgStore.GetMember(org.ID, ac.UserID)
	if err != nil {
		h.logger.Error("join member lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if member == nil {
		member, err = h.orgStore.AddMember(org.ID, ac.UserID, model.RoleMember, nil)
		if err != nil {
			h.logger.Error("join organization", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to join organization")
			return
		}
		h.events.Changed(org.ID, "member", "created", ac.UserID)
	}
	if err := h.sessionStore.UpdateOrganizationID(ac.SessionID, org.ID); err != nil {
		h.logger.Error("switch to joined organization", "error", err)
	}
	writeJSON(w, http.StatusOK, member)
}

// ListMembers handles GET /api/organization/members.
func (h *OrganizationHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.orgStore.ListMembers(auth.OrganizationID(r.Context()))
	if err != nil {
		h.logger.Error("list members", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list members")
		return
	}
	if members == nil {
		members = []model.OrganizationMember{}
	}
	writeJSON(w, http.StatusOK, members)
}

type memberRequest struct {
	Role             string `json:"role"`
	FamilyGroupID    *int64 `json:"family_group_id"`
	ClearFamilyGroup bool   `json:"clear_family_group"`
}

// UpdateMember handles PUT /api/organization/members/{user_id}. Omitted
// fields keep their value; clear_family_group removes the member from their
// family group. The last admin cannot be demoted.
func (h *OrganizationHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	userID, err := parseInt64Param(r, "user_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req memberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	existing, err := h.orgStore.GetMember(orgID, userID)
	if err != nil {
		h.logger.Error("get member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get member")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}
	if req.Role == "" {
		req.Role = existing.Role
	}
	if !validRoles[req.Role] {
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	}
	switch {
	case req.ClearFamilyGroup:
		req.FamilyGroupID = nil
	case req.FamilyGroupID == nil:
		req.FamilyGroupID = existing.FamilyGroupID
	default:
		g, err := h.familyGroupStore.GetByID(orgID, *req.FamilyGroupID)
		if err != nil {
			h.logger.Error("member group lookup", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if g == nil {
			writeError(w, http.StatusBadRequest, "family group not found")
			return
		}
	}
	if existing.Role == model.RoleAdmin && req.Role != model.RoleAdmin {
		if ok := h.hasOtherAdmin(w, orgID); !ok {
			return
		}
	}

	member, err := h.orgStore.UpdateMember(orgID, userID, req.Role, req.FamilyGroupID)
	if err != nil {
		h.logger.Error("update member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update member")
		return
	}
	h.events.Changed(orgID, "member", "updated", userID)
	writeJSON(w, http.StatusOK, member)
}

// hasOtherAdmin writes a 409 and returns false when the organization has a
// single admin.
func (h *OrganizationHandler) hasOtherAdmin(w http.ResponseWriter, orgID int64) bool {
	n, err := h.orgStore.CountAdmins(orgID)
	if err != nil {
		h.logger.Error("count admins", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return false
	}
	if n <= 1 {
		writeError(w, http.StatusConflict, "an organization needs at least one admin")
		return false
	}
	return true
}

// RemoveMember handles DELETE /api/organization/members/{user_id}.
func (h *OrganizationHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	userID, err := parseInt64Param(r, "user_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	existing, err := h.orgStore.GetMember(orgID, userID)
	if err != nil {
		h.logger.Error("get member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get member")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}
	if existing.Role == model.RoleAdmin {
		if ok := h.hasOtherAdmin(w, orgID); !ok {
			return
		}
	}

	if err := h.orgStore.RemoveMember(orgID, userID); err != nil {
		h.logger.Error("remove member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove member")
		return
	}
	h.events.Changed(orgID, "member", "deleted", userID)
	w.WriteHeader(http.StatusNoContent)
}
