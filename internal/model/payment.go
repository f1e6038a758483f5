package model

import "time"

// Payment types.
const (
	PaymentTypeUseFee        = "use_fee"
	PaymentTypeCleaningFee   = "cleaning_fee"
	PaymentTypeDamageDeposit = "damage_deposit"
	PaymentTypeAssessment    = "assessment"
	PaymentTypeOther         = "other"
)

// Derived payment statuses.
const (
	PaymentPaid      = "paid"
	PaymentPartial   = "partial"
	PaymentOverdue   = "overdue"
	PaymentPending   = "pending"
	PaymentCancelled = "cancelled"
)

type Payment struct {
	ID              int64     `json:"id"`
	OrganizationID  int64     `json:"organization_id"`
	FamilyGroupID   int64     `json:"family_group_id"`
	ReservationID   *int64    `json:"reservation_id"`
	PaymentType     string    `json:"payment_type"`
	Description     string    `json:"description"`
	AmountCents     int64     `json:"amount_cents"`
	AmountPaidCents int64     `json:"amount_paid_cents"`
	DueDate         string    `json:"due_date"`
	PaidDate        string    `json:"paid_date"`
	PaymentMethod   string    `json:"payment_method"`
	Notes           string    `json:"notes"`
	Cancelled       bool      `json:"cancelled"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Outstanding returns the unpaid remainder.
func (p *Payment) Outstanding() int64 {
	if p.Cancelled {
		return 0
	}
	return p.AmountCents - p.AmountPaidCents
}

type PaymentSummary struct {
	FamilyGroupID    int64  `json:"family_group_id"`
	FamilyGroupName  string `json:"family_group_name"`
	BilledCents      int64  `json:"billed_cents"`
	PaidCents        int64  `json:"paid_cents"`
	OutstandingCents int64  `json:"outstanding_cents"`
}
