package model

import "time"

// Bill statuses.
const (
	BillPending = "pending"
	BillPaid    = "paid"
	BillOverdue = "overdue"
	BillNotDue  = "not_due"
)

type RecurringBill struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	Category       string    `json:"category"`
	Provider       string    `json:"provider"`
	AccountNumber  string    `json:"account_number"`
	AmountCents    int64     `json:"amount_cents"`
	RecurrenceRule string    `json:"recurrence_rule"`
	StartDate      string    `json:"start_date"`
	AutoPay        bool      `json:"auto_pay"`
	Notes          string    `json:"notes"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type BillPayment struct {
	ID          int64     `json:"id"`
	BillID      int64     `json:"bill_id"`
	DueDate     string    `json:"due_date"`
	AmountCents int64     `json:"amount_cents"`
	PaidAt      time.Time `json:"paid_at"`
}

// BillView is a bill decorated with its computed status.
type BillView struct {
	RecurringBill
	Status         string `json:"status"`
	CurrentDueDate string `json:"current_due_date"`
	Schedule       string `json:"schedule"`
	AnnualCents    int64  `json:"annual_cents"`
}
