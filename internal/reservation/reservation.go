// Package reservation applies calendar rules and permissions on top of the
// reservation store.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/cabinshare/internal/auth"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/selection"
	"github.com/dukerupert/cabinshare/internal/store"
)

var (
	ErrOverlap          = store.ErrOverlap
	ErrInvalidDates     = errors.New("end date must be after start date")
	ErrTooManyNights    = errors.New("reservation exceeds the maximum number of nights")
	ErrInvalidStatus    = errors.New("status must be confirmed, tentative or cancelled")
	ErrInvalidPhase     = errors.New("selection phase must be primary, secondary or manual")
	ErrUnknownGroup     = errors.New("family group not found")
	ErrForbidden        = errors.New("not allowed to book for this family group")
	ErrNoFamilyGroup    = errors.New("user has no family group in this organization")
	ErrGuestCount       = errors.New("guest count must not be negative")
	ErrPhaseUnavailable = errors.New("this family group may not book right now")
)

type Service struct {
	reservations *store.ReservationStore
	rotations    *store.RotationStore
	groups       *store.FamilyGroupStore
	selection    *selection.Service
	logger       *slog.Logger
}

func NewService(reservations *store.ReservationStore, rotations *store.RotationStore, groups *store.FamilyGroupStore, sel *selection.Service, logger *slog.Logger) *Service {
	return &Service{
		reservations: reservations,
		rotations:    rotations,
		groups:       groups,
		selection:    sel,
		logger:       logger,
	}
}

// Validate checks the calendar invariants of r. order may be nil when the
// year has no rotation order.
func Validate(r *model.Reservation, order *model.RotationOrder) error {
	r.HostName = strings.TrimSpace(r.HostName)
	start, err := time.Parse(model.DateLayout, r.StartDate)
	if err != nil {
		return fmt.Errorf("%w: bad start date %q", ErrInvalidDates, r.StartDate)
	}
	end, err := time.Parse(model.DateLayout, r.EndDate)
	if err != nil {
		return fmt.Errorf("%w: bad end date %q", ErrInvalidDates, r.EndDate)
	}
	if !end.After(start) {
		return ErrInvalidDates
	}
	if r.GuestCount < 0 {
		return ErrGuestCount
	}
	switch r.Status {
	case model.ReservationConfirmed, model.ReservationTentative, model.ReservationCancelled:
	default:
		return ErrInvalidStatus
	}
	switch r.SelectionPhase {
	case model.PhasePrimary, model.PhaseSecondary, model.PhaseManual:
	default:
		return ErrInvalidPhase
	}
	if order != nil && order.MaxNights > 0 && r.Nights() > order.MaxNights {
		return fmt.Errorf("%w (%d)", ErrTooManyNights, order.MaxNights)
	}
	return nil
}

// RotationYear is the year a reservation counts against: the year of its
// start date.
func RotationYear(startDate string) int {
	t, err := time.Parse(model.DateLayout, startDate)
	if err != nil {
		return 0
	}
	return t.Year()
}

func (s *Service) prepare(r *model.Reservation) (*model.RotationOrder, error) {
	if r.Status == "" {
		r.Status = model.ReservationConfirmed
	}
	if r.RotationYear == 0 {
		r.RotationYear = RotationYear(r.StartDate)
	}
	g, err := s.groups.GetByID(r.OrganizationID, r.FamilyGroupID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrUnknownGroup
	}
	return s.rotations.GetOrder(r.OrganizationID, r.RotationYear)
}

// Create books the cabin. Admins and calendar keepers book freely, outside
// the rotation unless they name a phase. Members book for their own family
// group in whichever phase currently gives it the turn.
func (s *Service) Create(ctx context.Context, r *model.Reservation) (*model.Reservation, error) {
	r.OrganizationID = auth.OrganizationID(ctx)
	if !auth.CanManageCalendar(ctx) {
		own, ok := auth.FamilyGroupID(ctx)
		if !ok {
			return nil, ErrNoFamilyGroup
		}
		if r.FamilyGroupID == 0 {
			r.FamilyGroupID = own
		}
		if r.FamilyGroupID != own {
			return nil, ErrForbidden
		}
		r.SelectionPhase = ""
	} else if r.SelectionPhase == "" {
		r.SelectionPhase = model.PhaseManual
	}

	order, err := s.prepare(r)
	if err != nil {
		return nil, err
	}

	if r.SelectionPhase == "" {
		phase, err := s.memberPhase(r)
		if err != nil {
			return nil, err
		}
		r.SelectionPhase = phase
	}
	if err := Validate(r, order); err != nil {
		return nil, err
	}
	if uid := auth.UserID(ctx); uid != 0 {
		r.CreatedBy = &uid
	}

	var created *model.Reservation
	if r.SelectionPhase == model.PhaseManual || r.Status == model.ReservationCancelled {
		created, err = s.reservations.Create(r)
	} else {
		created, err = s.selection.RecordSelection(ctx, r)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("reservation created", "organization_id", created.OrganizationID, "reservation_id", created.ID,
		"family_group_id", created.FamilyGroupID, "phase", created.SelectionPhase)
	return created, nil
}

// memberPhase finds the phase in which r's family group holds the turn.
func (s *Service) memberPhase(r *model.Reservation) (string, error) {
	var last error
	for _, phase := range []string{model.PhaseSecondary, model.PhasePrimary} {
		err := s.selection.CanSelect(r.OrganizationID, r.RotationYear, phase, r.FamilyGroupID)
		if err == nil {
			return phase, nil
		}
		if !errors.Is(err, selection.ErrNotStarted) && !errors.Is(err, selection.ErrNotYourTurn) &&
			!errors.Is(err, selection.ErrNoAllowance) {
			return "", err
		}
		last = err
	}
	return "", fmt.Errorf("%w: %v", ErrPhaseUnavailable, last)
}

func (s *Service) Get(ctx context.Context, id int64) (*model.Reservation, error) {
	return s.reservations.GetByID(auth.OrganizationID(ctx), id)
}

func (s *Service) authorize(ctx context.Context, r *model.Reservation) error {
	if auth.CanManageCalendar(ctx) {
		return nil
	}
	own, ok := auth.FamilyGroupID(ctx)
	if !ok || own != r.FamilyGroupID {
		return ErrForbidden
	}
	return nil
}

// Update edits host, dates, guests, notes and status. The family group,
// phase and year of a booking never change.
func (s *Service) Update(ctx context.Context, r *model.Reservation) (*model.Reservation, error) {
	r.OrganizationID = auth.OrganizationID(ctx)
	prev, err := s.reservations.GetByID(r.OrganizationID, r.ID)
	if err != nil || prev == nil {
		return nil, err
	}
	if err := s.authorize(ctx, prev); err != nil {
		return nil, err
	}
	r.FamilyGroupID = prev.FamilyGroupID
	r.SelectionPhase = prev.SelectionPhase
	r.RotationYear = prev.RotationYear
	if r.Status == "" {
		r.Status = prev.Status
	}
	order, err := s.rotations.GetOrder(r.OrganizationID, r.RotationYear)
	if err != nil {
		return nil, err
	}
	if err := Validate(r, order); err != nil {
		return nil, err
	}

	reinstated := prev.Status == model.ReservationCancelled && r.Status != model.ReservationCancelled &&
		(prev.SelectionPhase == model.PhasePrimary || prev.SelectionPhase == model.PhaseSecondary)
	if reinstated && !auth.CanManageCalendar(ctx) {
		if err := s.selection.CanSelect(r.OrganizationID, prev.RotationYear, prev.SelectionPhase, prev.FamilyGroupID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPhaseUnavailable, err)
		}
	}

	updated, err := s.reservations.Update(r)
	if err != nil || updated == nil || !reinstated {
		return updated, err
	}
	if err := s.selection.HandOffIfExhausted(ctx, updated); err != nil {
		s.logger.Error("hand off turn after reinstating", "organization_id", updated.OrganizationID,
			"reservation_id", updated.ID, "error", err)
	}
	return updated, nil
}

// Cancel marks a reservation cancelled and returns its rotation allowance.
func (s *Service) Cancel(ctx context.Context, id int64) (*model.Reservation, error) {
	r, err := s.reservations.GetByID(auth.OrganizationID(ctx), id)
	if err != nil || r == nil {
		return nil, err
	}
	if err := s.authorize(ctx, r); err != nil {
		return nil, err
	}
	return s.selection.ReleaseSelection(ctx, r)
}

// Delete removes a reservation for good.
func (s *Service) Delete(ctx context.Context, id int64) (bool, error) {
	orgID := auth.OrganizationID(ctx)
	r, err := s.reservations.GetByID(orgID, id)
	if err != nil || r == nil {
		return false, err
	}
	if err := s.authorize(ctx, r); err != nil {
		return false, err
	}
	if err := s.reservations.Delete(orgID, id); err != nil {
		return false, err
	}
	s.logger.Info("reservation deleted", "organization_id", orgID, "reservation_id", id)
	return true, nil
}

// Calendar returns the reservations overlapping [from, to).
func (s *Service) Calendar(ctx context.Context, from, to string, includeCancelled bool) ([]model.Reservation, error) {
	if _, err := time.Parse(model.DateLayout, from); err != nil {
		return nil, fmt.Errorf("%w: bad from date %q", ErrInvalidDates, from)
	}
	if _, err := time.Parse(model.DateLayout, to); err != nil {
		return nil, fmt.Errorf("%w: bad to date %q", ErrInvalidDates, to)
	}
	if to <= from {
		return nil, ErrInvalidDates
	}
	return s.reservations.ListByDateRange(auth.OrganizationID(ctx), from, to, includeCancelled)
}

// StayHistory groups the year's reservations by family group, in the
// organization's family group order.
func (s *Service) StayHistory(ctx context.Context, year int) ([]model.StayHistoryEntry, error) {
	orgID := auth.OrganizationID(ctx)
	groups, err := s.groups.List(orgID)
	if err != nil {
		return nil, err
	}
	reservations, err := s.reservations.ListForYear(orgID, year)
	if err != nil {
		return nil, err
	}
	return History(groups, reservations), nil
}

// History builds stay history entries, one per group, skipping groups
// without stays.
func History(groups []model.FamilyGroup, reservations []model.Reservation) []model.StayHistoryEntry {
	byGroup := make(map[int64]*model.StayHistoryEntry, len(groups))
	var out []model.StayHistoryEntry
	for _, g := range groups {
		byGroup[g.ID] = &model.StayHistoryEntry{FamilyGroupID: g.ID, FamilyGroupName: g.Name}
	}
	for _, r := range reservations {
		if r.Status == model.ReservationCancelled {
			continue
		}
		e, ok := byGroup[r.FamilyGroupID]
		if !ok {
			continue
		}
		e.Nights += r.Nights()
		e.Reservations = append(e.Reservations, r)
	}
	for _, g := range groups {
		if e := byGroup[g.ID]; len(e.Reservations) > 0 {
			out = append(out, *e)
		}
	}
	return out
}
