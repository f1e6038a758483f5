package model

import "time"

type SharedNote struct {
	ID             int64      `json:"id"`
	OrganizationID int64      `json:"organization_id"`
	Title          string     `json:"title"`
	Body           string     `json:"body"`
	Category       string     `json:"category"`
	Priority       string     `json:"priority"`
	Pinned         bool       `json:"pinned"`
	AuthorID       *int64     `json:"author_id"`
	ExpiresAt      *time.Time `json:"expires_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
