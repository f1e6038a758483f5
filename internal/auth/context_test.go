package auth

import (
	"context"
	"testing"

	"github.com/dukerupert/cabinshare/internal/model"
)

func TestWithAuthAndFromContext(t *testing.T) {
	group := int64(5)
	ac := AuthContext{
		UserID:         1,
		OrganizationID: 2,
		Role:           model.RoleAdmin,
		FamilyGroupID:  &group,
		SessionID:      3,
	}

	ctx := WithAuth(context.Background(), ac)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got.UserID != 1 {
		t.Errorf("UserID = %d, want 1", got.UserID)
	}
	if got.OrganizationID != 2 {
		t.Errorf("OrganizationID = %d, want 2", got.OrganizationID)
	}
	if got.Role != model.RoleAdmin {
		t.Errorf("Role = %q, want %q", got.Role, model.RoleAdmin)
	}
	if got.SessionID != 3 {
		t.Errorf("SessionID = %d, want 3", got.SessionID)
	}
	if id, ok := FamilyGroupID(ctx); !ok || id != 5 {
		t.Errorf("FamilyGroupID = %d, %v, want 5, true", id, ok)
	}
}

func TestFromContextMissing(t *testing.T) {
	ctx := context.Background()
	if _, ok := FromContext(ctx); ok {
		t.Error("expected false for missing AuthContext")
	}
	if OrganizationID(ctx) != 0 || UserID(ctx) != 0 {
		t.Error("expected zero ids for missing context")
	}
	if _, ok := FamilyGroupID(ctx); ok {
		t.Error("expected no family group for missing context")
	}
	if IsAdmin(ctx) || CanManageCalendar(ctx) || CanManageMoney(ctx) || IsSupervisor(ctx) {
		t.Error("expected no permissions for missing context")
	}
}

func TestRolePermissions(t *testing.T) {
	tests := []struct {
		role     string
		admin    bool
		calendar bool
		money    bool
	}{
		{model.RoleAdmin, true, true, true},
		{model.RoleCalendarKeeper, false, true, false},
		{model.RoleTreasurer, false, false, true},
		{model.RoleMember, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			ctx := WithAuth(context.Background(), AuthContext{Role: tt.role})
			if got := IsAdmin(ctx); got != tt.admin {
				t.Errorf("IsAdmin = %v, want %v", got, tt.admin)
			}
			if got := CanManageCalendar(ctx); got != tt.calendar {
				t.Errorf("CanManageCalendar = %v, want %v", got, tt.calendar)
			}
			if got := CanManageMoney(ctx); got != tt.money {
				t.Errorf("CanManageMoney = %v, want %v", got, tt.money)
			}
		})
	}
}

func TestIsSupervisor(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{Role: model.RoleMember, IsSupervisor: true})
	if !IsSupervisor(ctx) {
		t.Error("expected IsSupervisor = true")
	}
}
