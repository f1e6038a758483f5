package model

import "time"

// Organization roles.
const (
	RoleAdmin          = "admin"
	RoleCalendarKeeper = "calendar_keeper"
	RoleTreasurer      = "treasurer"
	RoleMember         = "member"
)

// Subscription states.
const (
	SubscriptionTrial    = "trial"
	SubscriptionActive   = "active"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
)

type Organization struct {
	ID                  int64      `json:"id"`
	Name                string     `json:"name"`
	Code                string     `json:"code"`
	AdminEmail          string     `json:"admin_email"`
	TreasurerEmail      string     `json:"treasurer_email"`
	CalendarKeeperEmail string     `json:"calendar_keeper_email"`
	SubscriptionStatus  string     `json:"subscription_status"`
	TrialEndsAt         *time.Time `json:"trial_ends_at"`
	StripeCustomerID    string     `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

type OrganizationMember struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	UserID         int64     `json:"user_id"`
	Role           string    `json:"role"`
	FamilyGroupID  *int64    `json:"family_group_id"`
	UserEmail      string    `json:"user_email,omitempty"`
	UserName       string    `json:"user_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// OrganizationSummary is the supervisor view of an organization.
type OrganizationSummary struct {
	Organization
	MemberCount      int `json:"member_count"`
	FamilyGroupCount int `json:"family_group_count"`
	ReservationCount int `json:"reservation_count"`
}

type TrialCode struct {
	ID        int64      `json:"id"`
	Code      string     `json:"code"`
	TrialDays int        `json:"trial_days"`
	MaxUses   int        `json:"max_uses"`
	Uses      int        `json:"uses"`
	Active    bool       `json:"active"`
	Notes     string     `json:"notes"`
	ExpiresAt *time.Time `json:"expires_at"`
	CreatedBy *int64     `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
}
