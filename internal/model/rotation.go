package model

import "time"

// Selection phases. PhaseManual marks reservations made outside the rotation.
const (
	PhasePrimary   = "primary"
	PhaseSecondary = "secondary"
	PhaseManual    = "manual"
)

type RotationOrder struct {
	ID                  int64     `json:"id"`
	OrganizationID      int64     `json:"organization_id"`
	RotationYear        int       `json:"rotation_year"`
	Order               []int64   `json:"order"`
	MaxTimeSlots        int       `json:"max_time_slots"`
	MaxNights           int       `json:"max_nights"`
	SelectionDays       int       `json:"selection_days"`
	SecondaryEnabled    bool      `json:"secondary_enabled"`
	SecondaryMaxPeriods int       `json:"secondary_max_periods"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// TimePeriodUsage tracks one family group's allowance for a rotation year.
type TimePeriodUsage struct {
	ID                      int64     `json:"id"`
	OrganizationID          int64     `json:"organization_id"`
	FamilyGroupID           int64     `json:"family_group_id"`
	RotationYear            int       `json:"rotation_year"`
	TimePeriodsUsed         int       `json:"time_periods_used"`
	TimePeriodsAllowed      int       `json:"time_periods_allowed"`
	SecondaryPeriodsUsed    int       `json:"secondary_periods_used"`
	SecondaryPeriodsAllowed int       `json:"secondary_periods_allowed"`
	TurnCompleted           bool      `json:"turn_completed"`
	SecondaryTurnCompleted  bool      `json:"secondary_turn_completed"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// Used returns the periods used in the given phase.
func (u *TimePeriodUsage) Used(phase string) int {
	if phase == PhaseSecondary {
		return u.SecondaryPeriodsUsed
	}
	return u.TimePeriodsUsed
}

// Allowed returns the periods allowed in the given phase.
func (u *TimePeriodUsage) Allowed(phase string) int {
	if phase == PhaseSecondary {
		return u.SecondaryPeriodsAllowed
	}
	return u.TimePeriodsAllowed
}

// Completed reports whether the group finished its turn in the given phase.
func (u *TimePeriodUsage) Completed(phase string) bool {
	if phase == PhaseSecondary {
		return u.SecondaryTurnCompleted
	}
	return u.TurnCompleted
}

// SelectionStatus is the persisted turn cursor for one phase of a year.
type SelectionStatus struct {
	ID                   int64      `json:"id"`
	OrganizationID       int64      `json:"organization_id"`
	RotationYear         int        `json:"rotation_year"`
	Phase                string     `json:"phase"`
	CurrentFamilyGroupID *int64     `json:"current_family_group_id"`
	CurrentGroupIndex    int        `json:"current_group_index"`
	TurnCompleted        bool       `json:"turn_completed"`
	RoundEnded           bool       `json:"round_ended"`
	StartedAt            *time.Time `json:"started_at"`
	DeadlineAt           *time.Time `json:"deadline_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Active reports whether a group currently holds the turn.
func (s *SelectionStatus) Active() bool {
	return s != nil && !s.RoundEnded && s.CurrentFamilyGroupID != nil
}
