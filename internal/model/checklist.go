package model

import "time"

// Checklist types.
const (
	ChecklistArrival   = "arrival"
	ChecklistDaily     = "daily"
	ChecklistDeparture = "departure"
	ChecklistOpening   = "opening"
	ChecklistClosing   = "closing"
)

type Checklist struct {
	ID             int64           `json:"id"`
	OrganizationID int64           `json:"organization_id"`
	ChecklistType  string          `json:"checklist_type"`
	Title          string          `json:"title"`
	Items          []ChecklistItem `json:"items"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type ChecklistItem struct {
	ID          int64     `json:"id"`
	ChecklistID int64     `json:"checklist_id"`
	Text        string    `json:"text"`
	ImageID     *int64    `json:"image_id"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
}

type CheckinSession struct {
	ID             int64          `json:"id"`
	OrganizationID int64          `json:"organization_id"`
	FamilyGroupID  *int64         `json:"family_group_id"`
	ChecklistID    *int64         `json:"checklist_id"`
	SessionType    string         `json:"session_type"`
	CheckDate      string         `json:"check_date"`
	Responses      map[int64]bool `json:"responses"`
	Notes          string         `json:"notes"`
	Completed      bool           `json:"completed"`
	CompletedAt    *time.Time     `json:"completed_at"`
	UserID         *int64         `json:"user_id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
