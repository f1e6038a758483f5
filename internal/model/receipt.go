package model

import "time"

type Receipt struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	FamilyGroupID  *int64    `json:"family_group_id"`
	Description    string    `json:"description"`
	AmountCents    int64     `json:"amount_cents"`
	ReceiptDate    string    `json:"receipt_date"`
	Category       string    `json:"category"`
	ImageKey       string    `json:"image_key"`
	CreatedBy      *int64    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Balance struct {
	FamilyGroupID   int64  `json:"family_group_id"`
	FamilyGroupName string `json:"family_group_name"`
	Shares          int    `json:"shares"`
	PaidCents       int64  `json:"paid_cents"`
	OwedCents       int64  `json:"owed_cents"`
	NetCents        int64  `json:"net_cents"`
}

// Transfer settles part of a balance: From pays To.
type Transfer struct {
	FromFamilyGroupID int64 `json:"from_family_group_id"`
	ToFamilyGroupID   int64 `json:"to_family_group_id"`
	AmountCents       int64 `json:"amount_cents"`
}
