package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/dukerupert/cabinshare/internal/auth"
	"github.com/dukerupert/cabinshare/internal/middleware"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/store"
)

// AuthMailer sends the emails of the sign-in and invitation flows.
type AuthMailer interface {
	SendLoginCode(ctx context.Context, to, code, purpose string) error
	SendInvite(ctx context.Context, to, orgName, groupName, token string) error
}

type AuthHandler struct {
	userStore        *store.UserStore
	sessionStore     *store.SessionStore
	magicLinkStore   *store.MagicLinkStore
	orgStore         *store.OrganizationStore
	familyGroupStore *store.FamilyGroupStore
	invites          *auth.Invites
	mailer           AuthMailer
	logger           *slog.Logger
}

func NewAuthHandler(us *store.UserStore, ss *store.SessionStore, mls *store.MagicLinkStore, ogs *store.OrganizationStore, fgs *store.FamilyGroupStore, invites *auth.Invites, mailer AuthMailer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		userStore:        us,
		sessionStore:     ss,
		magicLinkStore:   mls,
		orgStore:         ogs,
		familyGroupStore: fgs,
		invites:          invites,
		mailer:           mailer,
		logger:           logger,
	}
}

func normalizeEmail(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "", false
	}
	return s, true
}

var codeSent = map[string]string{"status": "code_sent"}

// sendCode issues a fresh sign-in code. Failures are logged only so the
// response never reveals whether the address is known.
func (h *AuthHandler) sendCode(ctx context.Context, emailAddr, purpose string) {
	ml, err := h.magicLinkStore.Create(emailAddr, purpose)
	if err != nil {
		h.logger.Error("create auth code", "error", err)
		return
	}
	if err := h.mailer.SendLoginCode(ctx, emailAddr, ml.Token, purpose); err != nil {
		h.logger.Error("send auth code", "purpose", purpose, "error", err)
	}
}

type loginRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Login handles POST /login. Unknown addresses get the same response as
// known ones.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	emailAddr, ok := normalizeEmail(req.Email)
	if !ok {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	user, err := h.userStore.GetByEmail(emailAddr)
	if err != nil {
		h.logger.Error("login lookup", "error", err)
	}
	if user != nil {
		h.sendCode(r.Context(), emailAddr, "login")
	} else {
		h.logger.Info("login for unknown email")
	}
	writeJSON(w, http.StatusOK, codeSent)
}

// Register handles POST /register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	emailAddr, ok := normalizeEmail(req.Email)
	if !ok {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	existing, err := h.userStore.GetByEmail(emailAddr)
	if err != nil {
		h.logger.Error("register lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing != nil {
		h.sendCode(r.Context(), emailAddr, "login")
		writeJSON(w, http.StatusOK, codeSent)
		return
	}

	if _, err := h.userStore.Create(emailAddr, name); err != nil {
		h.logger.Error("create user", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.sendCode(r.Context(), emailAddr, "register")
	writeJSON(w, http.StatusOK, codeSent)
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// Verify handles POST /auth/verify. A matching code starts a session bound
// to the user's first organization.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	emailAddr, ok := normalizeEmail(req.Email)
	code := strings.TrimSpace(req.Code)
	if !ok || code == "" {
		writeError(w, http.StatusBadRequest, "email and code are required")
		return
	}

	valid, err := h.magicLinkStore.Verify(emailAddr, code)
	if err != nil {
		h.logger.Error("verify code", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !valid {
		writeError(w, http.StatusUnauthorized, "invalid or expired code")
		return
	}

	user, err := h.userStore.GetByEmail(emailAddr)
	if err != nil || user == nil {
		h.logger.Error("verify user lookup", "error", err)
		writeError(w, http.StatusUnauthorized, "invalid or expired code")
		return
	}

	orgs, err := h.orgStore.ListForUser(user.ID)
	if err != nil {
		h.logger.Error("verify organizations", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	var orgID int64
	if len(orgs) > 0 {
		orgID = orgs[0].ID
	}

	sess, err := h.sessionStore.Create(user.ID, orgID)
	if err != nil {
		h.logger.Error("create session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	setSessionCookie(w, r, sess.Token)

	h.logger.Info("user signed in", "user_id", user.ID, "organization_id", orgID)
	writeJSON(w, http.StatusOK, map[string]any{
		"user":            user,
		"organization_id": orgID,
	})
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(store.SessionDuration / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
}

// Logout handles POST /logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if ac, ok := auth.FromContext(r.Context()); ok && ac.SessionID != 0 {
		if err := h.sessionStore.Delete(ac.SessionID); err != nil {
			h.logger.Error("delete session", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}

type membership struct {
	Organization  model.Organization `json:"organization"`
	Role          string             `json:"role"`
	FamilyGroupID *int64             `json:"family_group_id"`
}

// Me handles GET /api/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	user, err := h.userStore.GetByID(ac.UserID)
	if err != nil || user == nil {
		h.logger.Error("me lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	orgs, err := h.orgStore.ListForUser(ac.UserID)
	if err != nil {
		h.logger.Error("me organizations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load organizations")
		return
	}

	memberships := make([]membership, 0, len(orgs))
	for _, o := range orgs {
		m, err := h.orgStore.GetMember(o.ID, ac.UserID)
		if err != nil || m == nil {
			continue
		}
		memberships = append(memberships, membership{Organization: o, Role: m.Role, FamilyGroupID: m.FamilyGroupID})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":                   user,
		"memberships":            memberships,
		"active_organization_id": ac.OrganizationID,
		"role":                   ac.Role,
		"family_group_id":        ac.FamilyGroupID,
	})
}

// SwitchOrganization handles POST /api/organizations/switch.
func (h *AuthHandler) SwitchOrganization(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	var req struct {
		OrganizationID int64 `json:"organization_id"`
	}
	if err := decodeJSON(r, &req); err != nil || req.OrganizationID == 0 {
		writeError(w, http.StatusBadRequest, "organization_id is required")
		return
	}

	member, err := h.orgStore.GetMember(req.OrganizationID, ac.UserID)
	if err != nil {
		h.logger.Error("switch lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if member == nil {
		writeError(w, http.StatusForbidden, "not a member of this organization")
		return
	}
	if err := h.sessionStore.UpdateOrganizationID(ac.SessionID, req.OrganizationID); err != nil {
		h.logger.Error("switch organization", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, member)
}

type inviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

var validRoles = map[string]bool{
	model.RoleAdmin:          true,
	model.RoleCalendarKeeper: true,
	model.RoleTreasurer:      true,
	model.RoleMember:         true,
}

// Invite handles POST /api/family-groups/{id}/invite.
func (h *AuthHandler) Invite(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	groupID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	emailAddr, ok := normalizeEmail(req.Email)
	if !ok {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if req.Role == "" {
		req.Role = model.RoleMember
	}
	if !validRoles[req.Role] {
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	}

	group, err := h.familyGroupStore.GetByID(orgID, groupID)
	if err != nil {
		h.logger.Error("invite group lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if group == nil {
		writeError(w, http.StatusNotFound, "family group not found")
		return
	}
	org, err := h.orgStore.GetByID(orgID)
	if err != nil || org == nil {
		h.logger.Error("invite organization lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	token, err := h.invites.Issue(orgID, groupID, emailAddr, req.Role)
	if err != nil {
		h.logger.Error("issue invite", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create invitation")
		return
	}
	if err := h.mailer.SendInvite(r.Context(), emailAddr, org.Name, group.Name, token); err != nil {
		h.logger.Error("send invite email", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to send invitation")
		return
	}

	h.logger.Info("invitation sent", "organization_id", orgID, "family_group_id", groupID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// AcceptInvite handles POST /invite/accept. The invitation must be addressed
// to the signed-in user.
func (h *AuthHandler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	claims, err := h.invites.Verify(req.Token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidInvite) {
			writeError(w, http.StatusBadRequest, auth.ErrInvalidInvite.Error())
			return
		}
		h.logger.Error("verify invite", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user, err := h.userStore.GetByID(ac.UserID)
	if err != nil || user == nil {
		h.logger.Error("accept invite user lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !strings.EqualFold(user.Email, claims.Email) {
		writeError(w, http.StatusForbidden, "this invitation is for a different email address")
		return
	}

	group, err := h.familyGroupStore.GetByID(claims.OrganizationID, claims.FamilyGroupID)
	if err != nil {
		h.logger.Error("accept invite group lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if group == nil {
		writeError(w, http.StatusGone, "the family group no longer exists")
		return
	}

	fg := claims.FamilyGroupID
	member, err := h.orgStore.AddMember(claims.OrganizationID, user.ID, claims.Role, &fg)
	if err != nil {
		h.logger.Error("add invite member", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.sessionStore.UpdateOrganizationID(ac.SessionID, claims.OrganizationID); err != nil {
		h.logger.Error("switch to invited organization", "error", err)
	}

	h.logger.Info("invitation accepted", "organization_id", claims.OrganizationID, "user_id", user.ID)
	writeJSON(w, http.StatusOK, member)
}
