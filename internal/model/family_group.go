package model

import "time"

type FamilyGroup struct {
	ID             int64        `json:"id"`
	OrganizationID int64        `json:"organization_id"`
	Name           string       `json:"name"`
	LeadName       string       `json:"lead_name"`
	LeadEmail      string       `json:"lead_email"`
	LeadPhone      string       `json:"lead_phone"`
	Color          string       `json:"color"`
	Shares         int          `json:"shares"`
	SortOrder      int          `json:"sort_order"`
	HostMembers    []HostMember `json:"host_members"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

type HostMember struct {
	ID            int64     `json:"id"`
	FamilyGroupID int64     `json:"family_group_id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	CanHost       bool      `json:"can_host"`
	CreatedAt     time.Time `json:"created_at"`
}
