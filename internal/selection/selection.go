// Package selection runs the turn-based reservation selection for a
// rotation year on top of the persisted cursor in selection_status.
package selection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/cabinshare/internal/metrics"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/rotation"
	"github.com/dukerupert/cabinshare/internal/store"
)

var (
	ErrNoRotationOrder   = errors.New("no rotation order for this year")
	ErrInvalidPhase      = errors.New("phase must be primary or secondary")
	ErrNotStarted        = errors.New("selection is not in progress")
	ErrNotYourTurn       = errors.New("it is not this family group's turn")
	ErrPrimaryNotEnded   = errors.New("primary selection has not ended")
	ErrSecondaryDisabled = errors.New("secondary selection is not enabled for this year")
	ErrDeadlineInPast    = errors.New("deadline must be in the future")
	ErrNoAllowance       = store.ErrNoAllowance
	ErrStaleTurn         = store.ErrStaleTurn
)

// Reasons a turn changes hands.
const (
	ReasonStarted   = "started"
	ReasonCompleted = "completed"
	ReasonExpired   = "expired"
	ReasonExhausted = "allowance_used"
)

// TurnEvent describes a change of the current turn.
type TurnEvent struct {
	OrganizationID        int64      `json:"organization_id"`
	RotationYear          int        `json:"rotation_year"`
	Phase                 string     `json:"phase"`
	Reason                string     `json:"reason"`
	FamilyGroupID         *int64     `json:"family_group_id"`
	PreviousFamilyGroupID *int64     `json:"previous_family_group_id"`
	RoundEnded            bool       `json:"round_ended"`
	DeadlineAt            *time.Time `json:"deadline_at"`
}

// Notifier is told about every turn change.
type Notifier interface {
	SelectionTurnChanged(ctx context.Context, ev TurnEvent)
}

type Service struct {
	rotations    *store.RotationStore
	reservations *store.ReservationStore
	notifier     Notifier
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          func() time.Time
}

func NewService(rotations *store.RotationStore, reservations *store.ReservationStore, notifier Notifier, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		rotations:    rotations,
		reservations: reservations,
		notifier:     notifier,
		metrics:      m,
		logger:       logger,
		now:          time.Now,
	}
}

func validPhase(phase string) bool {
	return phase == model.PhasePrimary || phase == model.PhaseSecondary
}

func (s *Service) deadline(order *model.RotationOrder, from time.Time) *time.Time {
	if order.SelectionDays <= 0 {
		return nil
	}
	d := from.Add(time.Duration(order.SelectionDays) * 24 * time.Hour).UTC()
	return &d
}

// Start puts the first eligible group of the phase on the clock. Restarting a
// phase clears its completed turns. The secondary phase needs the primary
// round to have ended.
func (s *Service) Start(ctx context.Context, organizationID int64, year int, phase string) (*model.SelectionStatus, error) {
	if !validPhase(phase) {
		return nil, ErrInvalidPhase
	}
	order, err := s.rotations.GetOrder(organizationID, year)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrNoRotationOrder
	}
	if phase == model.PhaseSecondary {
		if !order.SecondaryEnabled {
			return nil, ErrSecondaryDisabled
		}
		primary, err := s.rotations.GetStatus(organizationID, year, model.PhasePrimary)
		if err != nil {
			return nil, err
		}
		if primary == nil || !primary.RoundEnded {
			return nil, ErrPrimaryNotEnded
		}
	}

	usage, err := s.rotations.ListUsage(organizationID, year)
	if err != nil {
		return nil, err
	}
	// Completed flags are cleared by StartPhase, so only allowance counts.
	hasAllowance := func(id int64) bool {
		u, ok := usage[id]
		return ok && rotation.Remaining(u.Used(phase), u.Allowed(phase)) > 0
	}

	now := s.now().UTC()
	cursor := store.Cursor{StartedAt: &now}
	idx, groupID, err := rotation.Next(order.Order, phase, -1, hasAllowance)
	switch {
	case errors.Is(err, rotation.ErrRoundEnded):
		cursor.Index = -1
		cursor.RoundEnded = true
	case err != nil:
		return nil, err
	default:
		cursor.Index = idx
		cursor.FamilyGroupID = &groupID
		cursor.DeadlineAt = s.deadline(order, now)
	}

	st, err := s.rotations.StartPhase(organizationID, year, phase, cursor)
	if err != nil {
		return nil, err
	}
	s.logger.Info("selection phase started", "organization_id", organizationID, "year", year, "phase", phase,
		"family_group_id", groupID, "round_ended", cursor.RoundEnded)
	s.metrics.TurnAdvanced(phase, ReasonStarted)
	s.emit(ctx, st, nil, ReasonStarted)

	if st.RoundEnded {
		s.maybeStartSecondary(ctx, order, phase)
	}
	return st, nil
}

// YearStatus is the selection state of a rotation year.
type YearStatus struct {
	RotationYear int                      `json:"rotation_year"`
	Order        *model.RotationOrder     `json:"order"`
	Primary      *model.SelectionStatus   `json:"primary"`
	Secondary    *model.SelectionStatus   `json:"secondary"`
	Usage        []*model.TimePeriodUsage `json:"usage"`
}

// ActivePhase returns the phase whose turn is running, or "".
func (y *YearStatus) ActivePhase() string {
	switch {
	case y.Secondary.Active():
		return model.PhaseSecondary
	case y.Primary.Active():
		return model.PhasePrimary
	}
	return ""
}

// Status returns both phases of a year plus usage in rotation order.
func (s *Service) Status(organizationID int64, year int) (*YearStatus, error) {
	order, err := s.rotations.GetOrder(organizationID, year)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrNoRotationOrder
	}
	out := &YearStatus{RotationYear: year, Order: order}
	if out.Primary, err = s.rotations.GetStatus(organizationID, year, model.PhasePrimary); err != nil {
		return nil, err
	}
	if out.Secondary, err = s.rotations.GetStatus(organizationID, year, model.PhaseSecondary); err != nil {
		return nil, err
	}
	usage, err := s.rotations.ListUsage(organizationID, year)
	if err != nil {
		return nil, err
	}
	for _, id := range order.Order {
		if u, ok := usage[id]; ok {
			out.Usage = append(out.Usage, u)
		}
	}
	return out, nil
}

// resolvePhase picks the running phase when phase is empty.
func (s *Service) resolvePhase(organizationID int64, year int, phase string) (string, *model.SelectionStatus, error) {
	if phase != "" {
		if !validPhase(phase) {
			return "", nil, ErrInvalidPhase
		}
		st, err := s.rotations.GetStatus(organizationID, year, phase)
		if err != nil {
			return "", nil, err
		}
		if !st.Active() {
			return "", nil, ErrNotStarted
		}
		return phase, st, nil
	}
	for _, p := range []string{model.PhaseSecondary, model.PhasePrimary} {
		st, err := s.rotations.GetStatus(organizationID, year, p)
		if err != nil {
			return "", nil, err
		}
		if st.Active() {
			return p, st, nil
		}
	}
	return "", nil, ErrNotStarted
}

// CompleteTurn ends familyGroupID's turn and passes it on. An empty phase
// means whichever phase is running.
func (s *Service) CompleteTurn(ctx context.Context, organizationID int64, year int, phase string, familyGroupID int64) (*model.SelectionStatus, error) {
	phase, st, err := s.resolvePhase(organizationID, year, phase)
	if err != nil {
		return nil, err
	}
	if *st.CurrentFamilyGroupID != familyGroupID {
		return nil, ErrNotYourTurn
	}
	return s.advance(ctx, organizationID, year, phase, st, ReasonCompleted)
}

// CurrentGroup returns the family group holding the running turn.
func (s *Service) CurrentGroup(organizationID int64, year int, phase string) (int64, error) {
	_, st, err := s.resolvePhase(organizationID, year, phase)
	if err != nil {
		return 0, err
	}
	return *st.CurrentFamilyGroupID, nil
}

// advance completes the current turn of st and moves the cursor to the next
// eligible group. The move is conditional on the cursor not having changed
// since st was read.
func (s *Service) advance(ctx context.Context, organizationID int64, year int, phase string, st *model.SelectionStatus, reason string) (*model.SelectionStatus, error) {
	order, err := s.rotations.GetOrder(organizationID, year)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrNoRotationOrder
	}
	usage, err := s.rotations.ListUsage(organizationID, year)
	if err != nil {
		return nil, err
	}
	completed := *st.CurrentFamilyGroupID
	eligible := rotation.Eligible(usage, phase)

	now := s.now().UTC()
	next := store.Cursor{StartedAt: &now}
	idx, groupID, err := rotation.Next(order.Order, phase, st.CurrentGroupIndex, func(id int64) bool {
		return id != completed && eligible(id)
	})
	switch {
	case errors.Is(err, rotation.ErrRoundEnded):
		next.Index = st.CurrentGroupIndex
		next.RoundEnded = true
	case err != nil:
		return nil, err
	default:
		next.Index = idx
		next.FamilyGroupID = &groupID
		next.DeadlineAt = s.deadline(order, now)
	}

	updated, err := s.rotations.Advance(organizationID, year, phase, st.CurrentGroupIndex, completed, next)
	if err != nil {
		return nil, err
	}
	s.logger.Info("selection turn advanced", "organization_id", organizationID, "year", year, "phase", phase,
		"reason", reason, "from", completed, "to", groupID, "round_ended", next.RoundEnded)
	s.metrics.TurnAdvanced(phase, reason)
	s.emit(ctx, updated, &completed, reason)

	if updated.RoundEnded {
		s.maybeStartSecondary(ctx, order, phase)
	}
	return updated, nil
}

func (s *Service) maybeStartSecondary(ctx context.Context, order *model.RotationOrder, endedPhase string) {
	if endedPhase != model.PhasePrimary || !order.SecondaryEnabled {
		return
	}
	if _, err := s.Start(ctx, order.OrganizationID, order.RotationYear, model.PhaseSecondary); err != nil {
		s.logger.Error("auto-start secondary selection", "organization_id", order.OrganizationID,
			"year", order.RotationYear, "error", err)
	}
}

func (s *Service) emit(ctx context.Context, st *model.SelectionStatus, previous *int64, reason string) {
	if s.notifier == nil || st == nil {
		return
	}
	s.notifier.SelectionTurnChanged(ctx, TurnEvent{
		OrganizationID:        st.OrganizationID,
		RotationYear:          st.RotationYear,
		Phase:                 st.Phase,
		Reason:                reason,
		FamilyGroupID:         st.CurrentFamilyGroupID,
		PreviousFamilyGroupID: previous,
		RoundEnded:            st.RoundEnded,
		DeadlineAt:            st.DeadlineAt,
	})
}

// Renotify re-sends the current turn notification of a phase.
func (s *Service) Renotify(ctx context.Context, organizationID int64, year int, phase string) (*model.SelectionStatus, error) {
	_, st, err := s.resolvePhase(organizationID, year, phase)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, st, nil, ReasonStarted)
	return st, nil
}

// ExtendTurn moves the deadline of the running turn.
func (s *Service) ExtendTurn(ctx context.Context, organizationID int64, year int, phase string, until time.Time) (*model.SelectionStatus, error) {
	if !until.After(s.now()) {
		return nil, ErrDeadlineInPast
	}
	phase, _, err := s.resolvePhase(organizationID, year, phase)
	if err != nil {
		return nil, err
	}
	st, err := s.rotations.ExtendDeadline(organizationID, year, phase, until)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, ErrNotStarted
	}
	s.logger.Info("selection turn extended", "organization_id", organizationID, "year", year, "phase", phase, "until", until)
	return st, nil
}

// AdvanceExpired completes every running turn whose deadline has passed and
// returns how many turns moved. A cursor moved concurrently by someone else
// is skipped.
func (s *Service) AdvanceExpired(ctx context.Context) (int, error) {
	expired, err := s.rotations.ListExpired(s.now())
	if err != nil {
		return 0, err
	}
	advanced := 0
	for i := range expired {
		st := &expired[i]
		_, err := s.advance(ctx, st.OrganizationID, st.RotationYear, st.Phase, st, ReasonExpired)
		switch {
		case errors.Is(err, ErrStaleTurn):
			s.logger.Debug("expired turn already moved", "organization_id", st.OrganizationID, "year", st.RotationYear, "phase", st.Phase)
		case err != nil:
			s.logger.Error("advance expired turn", "organization_id", st.OrganizationID, "year", st.RotationYear, "phase", st.Phase, "error", err)
		default:
			advanced++
		}
	}
	return advanced, nil
}

// CanSelect reports whether familyGroupID may book in the phase right now.
func (s *Service) CanSelect(organizationID int64, year int, phase string, familyGroupID int64) error {
	if !validPhase(phase) {
		return ErrInvalidPhase
	}
	st, err := s.rotations.GetStatus(organizationID, year, phase)
	if err != nil {
		return err
	}
	if !st.Active() {
		return ErrNotStarted
	}
	if *st.CurrentFamilyGroupID != familyGroupID {
		return ErrNotYourTurn
	}
	u, err := s.rotations.GetUsage(organizationID, familyGroupID, year)
	if err != nil {
		return err
	}
	if u == nil || rotation.Remaining(u.Used(phase), u.Allowed(phase)) == 0 {
		return ErrNoAllowance
	}
	return nil
}

// RecordSelection saves a reservation made during a selection phase. The
// reservation consumes one period of the group's allowance; using the last
// period completes the group's turn.
func (s *Service) RecordSelection(ctx context.Context, r *model.Reservation) (*model.Reservation, error) {
	if !validPhase(r.SelectionPhase) {
		return nil, ErrInvalidPhase
	}
	created, err := s.reservations.Create(r)
	if err != nil {
		return nil, err
	}
	return created, s.HandOffIfExhausted(ctx, created)
}

// HandOffIfExhausted passes the turn on when r's group holds it and has no
// allowance left in r's phase.
func (s *Service) HandOffIfExhausted(ctx context.Context, r *model.Reservation) error {
	if !validPhase(r.SelectionPhase) {
		return nil
	}
	u, err := s.rotations.GetUsage(r.OrganizationID, r.FamilyGroupID, r.RotationYear)
	if err != nil || u == nil || rotation.Remaining(u.Used(r.SelectionPhase), u.Allowed(r.SelectionPhase)) > 0 {
		return err
	}
	st, err := s.rotations.GetStatus(r.OrganizationID, r.RotationYear, r.SelectionPhase)
	if err != nil {
		return err
	}
	if st.Active() && *st.CurrentFamilyGroupID == r.FamilyGroupID {
		if _, err := s.advance(ctx, r.OrganizationID, r.RotationYear, r.SelectionPhase, st, ReasonExhausted); err != nil && !errors.Is(err, ErrStaleTurn) {
			return fmt.Errorf("advance after selection: %w", err)
		}
	}
	return nil
}

// ReleaseSelection cancels a reservation made during a selection phase and
// returns its period to the group's allowance.
func (s *Service) ReleaseSelection(ctx context.Context, r *model.Reservation) (*model.Reservation, error) {
	if r.Status == model.ReservationCancelled {
		return r, nil
	}
	cancelled := *r
	cancelled.Status = model.ReservationCancelled
	updated, err := s.reservations.Update(&cancelled)
	if err != nil {
		return nil, err
	}
	s.logger.Info("selection released", "organization_id", r.OrganizationID, "reservation_id", r.ID,
		"family_group_id", r.FamilyGroupID, "phase", r.SelectionPhase)
	return updated, nil
}
