package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/dukerupert/cabinshare/internal/auth"
	"github.com/dukerupert/cabinshare/internal/store"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "cabinshare_session"

// RequireAuth validates the session cookie and populates AuthContext. A
// session whose organization membership is gone keeps working without an
// active organization.
func RequireAuth(sessions *store.SessionStore, users *store.UserStore, orgs *store.OrganizationStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			sess, err := sessions.GetByToken(cookie.Value)
			if err != nil || sess == nil {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			user, err := users.GetByID(sess.UserID)
			if err != nil || user == nil {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			ac := auth.AuthContext{
				UserID:       user.ID,
				SessionID:    sess.ID,
				IsSupervisor: user.IsSupervisor,
			}
			if sess.OrganizationID != 0 {
				member, err := orgs.GetMember(sess.OrganizationID, user.ID)
				if err != nil {
					writeError(w, http.StatusInternalServerError, "load membership")
					return
				}
				if member != nil {
					ac.OrganizationID = member.OrganizationID
					ac.Role = member.Role
					ac.FamilyGroupID = member.FamilyGroupID
				}
			}

			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireOrganization rejects requests without an active organization.
func RequireOrganization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.OrganizationID(r.Context()) == 0 {
			writeError(w, http.StatusForbidden, "no active organization")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Require rejects requests for which allowed returns false.
func Require(allowed func(r *http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allowed(r) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin checks that the authenticated user has the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return Require(func(r *http.Request) bool { return auth.IsAdmin(r.Context()) })(next)
}

// RequireCalendarKeeper allows admins and calendar keepers.
func RequireCalendarKeeper(next http.Handler) http.Handler {
	return Require(func(r *http.Request) bool { return auth.CanManageCalendar(r.Context()) })(next)
}

// RequireTreasurer allows admins and treasurers.
func RequireTreasurer(next http.Handler) http.Handler {
	return Require(func(r *http.Request) bool { return auth.CanManageMoney(r.Context()) })(next)
}

// RequireSupervisor allows users with the supervisor flag.
func RequireSupervisor(next http.Handler) http.Handler {
	return Require(func(r *http.Request) bool { return auth.IsSupervisor(r.Context()) })(next)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
