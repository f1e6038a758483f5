package model

import "time"

// Reservation statuses.
const (
	ReservationConfirmed = "confirmed"
	ReservationTentative = "tentative"
	ReservationCancelled = "cancelled"
)

// DateLayout is the layout of date-only fields.
const DateLayout = "2006-01-02"

type Reservation struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	FamilyGroupID  int64     `json:"family_group_id"`
	HostName       string    `json:"host_name"`
	StartDate      string    `json:"start_date"`
	EndDate        string    `json:"end_date"`
	GuestCount     int       `json:"guest_count"`
	Notes          string    `json:"notes"`
	Status         string    `json:"status"`
	SelectionPhase string    `json:"selection_phase"`
	RotationYear   int       `json:"rotation_year"`
	CreatedBy      *int64    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Nights returns the number of nights between start and end dates, or 0 when
// either date is malformed.
func (r *Reservation) Nights() int {
	start, err := time.Parse(DateLayout, r.StartDate)
	if err != nil {
		return 0
	}
	end, err := time.Parse(DateLayout, r.EndDate)
	if err != nil {
		return 0
	}
	return int(end.Sub(start).Hours() / 24)
}

type StayHistoryEntry struct {
	FamilyGroupID   int64         `json:"family_group_id"`
	FamilyGroupName string        `json:"family_group_name"`
	Nights          int           `json:"nights"`
	Reservations    []Reservation `json:"reservations"`
}
