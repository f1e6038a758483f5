package auth

import (
	"context"

	"github.com/dukerupert/cabinshare/internal/model"
)

type contextKey struct{}

type AuthContext struct {
	UserID         int64
	OrganizationID int64
	Role           string
	FamilyGroupID  *int64
	SessionID      int64
	IsSupervisor   bool
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func OrganizationID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.OrganizationID
}

func UserID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.UserID
}

// FamilyGroupID returns the family group the user belongs to in the active
// organization, if any.
func FamilyGroupID(ctx context.Context) (int64, bool) {
	ac, ok := FromContext(ctx)
	if !ok || ac.FamilyGroupID == nil {
		return 0, false
	}
	return *ac.FamilyGroupID, true
}

func IsAdmin(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Role == model.RoleAdmin
}

// CanManageCalendar reports whether the user may edit any reservation and
// steer the selection rotation.
func CanManageCalendar(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Role == model.RoleAdmin || ac.Role == model.RoleCalendarKeeper
}

// CanManageMoney reports whether the user may edit payments, bills and
// receipts of the organization.
func CanManageMoney(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Role == model.RoleAdmin || ac.Role == model.RoleTreasurer
}

func IsSupervisor(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	return ok && ac.IsSupervisor
}
