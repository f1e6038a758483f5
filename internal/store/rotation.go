package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/cabinshare/internal/model"
)

type RotationStore struct {
	db *sql.DB
}

func NewRotationStore(db *sql.DB) *RotationStore {
	return &RotationStore{db: db}
}

// usageColumns maps a phase to its used, allowed and completed columns.
func usageColumns(phase string) (used, allowed, completed string) {
	if phase == model.PhaseSecondary {
		return "secondary_periods_used", "secondary_periods_allowed", "secondary_turn_completed"
	}
	return "time_periods_used", "time_periods_allowed", "turn_completed"
}

func scanRotationOrder(scanner interface{ Scan(...any) error }) (*model.RotationOrder, error) {
	var o model.RotationOrder
	var order string
	var secondary int
	err := scanner.Scan(
		&o.ID, &o.OrganizationID, &o.RotationYear, &order, &o.MaxTimeSlots, &o.MaxNights,
		&o.SelectionDays, &secondary, &o.SecondaryMaxPeriods, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.SecondaryEnabled = secondary != 0
	if err := json.Unmarshal([]byte(order), &o.Order); err != nil {
		return nil, fmt.Errorf("decode group order: %w", err)
	}
	if o.Order == nil {
		o.Order = []int64{}
	}
	return &o, nil
}

const rotationOrderCols = `id, organization_id, rotation_year, group_order, max_time_slots, max_nights,
	selection_days, secondary_enabled, secondary_max_periods, created_at, updated_at`

// SaveOrder upserts the rotation order for its year and (re)initializes the
// usage rows of every group in it. Usage already recorded is preserved. The
// group order cannot change while a turn of that year is running, since the
// selection cursor is a position in it.
func (s *RotationStore) SaveOrder(o *model.RotationOrder) (*model.RotationOrder, error) {
	order, err := json.Marshal(o.Order)
	if err != nil {
		return nil, fmt.Errorf("encode group order: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRow(
		`SELECT group_order FROM rotation_orders WHERE organization_id = ? AND rotation_year = ?`,
		o.OrganizationID, o.RotationYear,
	).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, fmt.Errorf("get group order: %w", err)
	case existing != string(order):
		var running int
		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM selection_status
			 WHERE organization_id = ? AND rotation_year = ? AND round_ended = 0 AND current_family_group_id IS NOT NULL`,
			o.OrganizationID, o.RotationYear,
		).Scan(&running); err != nil {
			return nil, fmt.Errorf("check selection status: %w", err)
		}
		if running > 0 {
			return nil, ErrSelectionRunning
		}
	}

	_, err = tx.Exec(
		`INSERT INTO rotation_orders (organization_id, rotation_year, group_order, max_time_slots, max_nights,
		   selection_days, secondary_enabled, secondary_max_periods)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(organization_id, rotation_year) DO UPDATE SET
		   group_order = excluded.group_order,
		   max_time_slots = excluded.max_time_slots,
		   max_nights = excluded.max_nights,
		   selection_days = excluded.selection_days,
		   secondary_enabled = excluded.secondary_enabled,
		   secondary_max_periods = excluded.secondary_max_periods,
		   updated_at = CURRENT_TIMESTAMP`,
		o.OrganizationID, o.RotationYear, string(order), o.MaxTimeSlots, o.MaxNights,
		o.SelectionDays, boolToInt(o.SecondaryEnabled), o.SecondaryMaxPeriods,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert rotation order: %w", err)
	}

	secondaryAllowed := 0
	if o.SecondaryEnabled {
		secondaryAllowed = o.SecondaryMaxPeriods
	}
	if _, err := tx.Exec(
		`DELETE FROM time_period_usage WHERE organization_id = ? AND rotation_year = ?
		 AND family_group_id NOT IN (SELECT value FROM json_each(?))`,
		o.OrganizationID, o.RotationYear, string(order),
	); err != nil {
		return nil, fmt.Errorf("prune usage: %w", err)
	}
	for _, groupID := range o.Order {
		if _, err := tx.Exec(
			`INSERT INTO time_period_usage (organization_id, family_group_id, rotation_year,
			   time_periods_allowed, secondary_periods_allowed)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(organization_id, family_group_id, rotation_year) DO UPDATE SET
			   time_periods_allowed = excluded.time_periods_allowed,
			   secondary_periods_allowed = excluded.secondary_periods_allowed,
			   updated_at = CURRENT_TIMESTAMP`,
			o.OrganizationID, groupID, o.RotationYear, o.MaxTimeSlots, secondaryAllowed,
		); err != nil {
			return nil, fmt.Errorf("init usage for group %d: %w", groupID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetOrder(o.OrganizationID, o.RotationYear)
}

func (s *RotationStore) GetOrder(organizationID int64, year int) (*model.RotationOrder, error) {
	row := s.db.QueryRow(
		`SELECT `+rotationOrderCols+` FROM rotation_orders WHERE organization_id = ? AND rotation_year = ?`,
		organizationID, year,
	)
	o, err := scanRotationOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rotation order: %w", err)
	}
	return o, nil
}

func (s *RotationStore) ListOrders(organizationID int64) ([]model.RotationOrder, error) {
	rows, err := s.db.Query(
		`SELECT `+rotationOrderCols+` FROM rotation_orders WHERE organization_id = ? ORDER BY rotation_year DESC`,
		organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list rotation orders: %w", err)
	}
	defer rows.Close()

	var orders []model.RotationOrder
	for rows.Next() {
		o, err := scanRotationOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rotation order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func scanUsage(scanner interface{ Scan(...any) error }) (*model.TimePeriodUsage, error) {
	var u model.TimePeriodUsage
	var completed, secondaryCompleted int
	err := scanner.Scan(
		&u.ID, &u.OrganizationID, &u.FamilyGroupID, &u.RotationYear,
		&u.TimePeriodsUsed, &u.TimePeriodsAllowed, &u.SecondaryPeriodsUsed, &u.SecondaryPeriodsAllowed,
		&completed, &secondaryCompleted, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.TurnCompleted = completed != 0
	u.SecondaryTurnCompleted = secondaryCompleted != 0
	return &u, nil
}

const usageCols = `id, organization_id, family_group_id, rotation_year, time_periods_used, time_periods_allowed,
	secondary_periods_used, secondary_periods_allowed, turn_completed, secondary_turn_completed, updated_at`

// ListUsage returns the usage rows of a year keyed by family group id.
func (s *RotationStore) ListUsage(organizationID int64, year int) (map[int64]*model.TimePeriodUsage, error) {
	rows, err := s.db.Query(
		`SELECT `+usageCols+` FROM time_period_usage WHERE organization_id = ? AND rotation_year = ?`,
		organizationID, year,
	)
	if err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}
	defer rows.Close()

	usage := make(map[int64]*model.TimePeriodUsage)
	for rows.Next() {
		u, err := scanUsage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		usage[u.FamilyGroupID] = u
	}
	return usage, rows.Err()
}

func (s *RotationStore) GetUsage(organizationID, familyGroupID int64, year int) (*model.TimePeriodUsage, error) {
	row := s.db.QueryRow(
		`SELECT `+usageCols+` FROM time_period_usage WHERE organization_id = ? AND family_group_id = ? AND rotation_year = ?`,
		organizationID, familyGroupID, year,
	)
	u, err := scanUsage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get usage: %w", err)
	}
	return u, nil
}

func scanSelectionStatus(scanner interface{ Scan(...any) error }) (*model.SelectionStatus, error) {
	var st model.SelectionStatus
	var groupID sql.NullInt64
	var completed, ended int
	var startedAt, deadlineAt sql.NullTime
	err := scanner.Scan(
		&st.ID, &st.OrganizationID, &st.RotationYear, &st.Phase, &groupID, &st.CurrentGroupIndex,
		&completed, &ended, &startedAt, &deadlineAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	st.CurrentFamilyGroupID = int64Ptr(groupID)
	st.TurnCompleted = completed != 0
	st.RoundEnded = ended != 0
	st.StartedAt = timePtr(startedAt)
	st.DeadlineAt = timePtr(deadlineAt)
	return &st, nil
}

const selectionStatusCols = `id, organization_id, rotation_year, phase, current_family_group_id, current_group_index,
	turn_completed, round_ended, started_at, deadline_at, updated_at`

func (s *RotationStore) GetStatus(organizationID int64, year int, phase string) (*model.SelectionStatus, error) {
	row := s.db.QueryRow(
		`SELECT `+selectionStatusCols+` FROM selection_status WHERE organization_id = ? AND rotation_year = ? AND phase = ?`,
		organizationID, year, phase,
	)
	st, err := scanSelectionStatus(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get selection status: %w", err)
	}
	return st, nil
}

// ListExpired returns active cursors whose deadline is at or before now.
func (s *RotationStore) ListExpired(now time.Time) ([]model.SelectionStatus, error) {
	rows, err := s.db.Query(
		`SELECT ` + selectionStatusCols + ` FROM selection_status
		 WHERE round_ended = 0 AND current_family_group_id IS NOT NULL AND deadline_at IS NOT NULL`,
	)
	if err != nil {
		return nil, fmt.Errorf("list active selection status: %w", err)
	}
	defer rows.Close()

	var out []model.SelectionStatus
	for rows.Next() {
		st, err := scanSelectionStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("scan selection status: %w", err)
		}
		if !st.DeadlineAt.After(now) {
			out = append(out, *st)
		}
	}
	return out, rows.Err()
}

// ListActive returns every cursor of the organization that has not ended.
func (s *RotationStore) ListActive(organizationID int64) ([]model.SelectionStatus, error) {
	rows, err := s.db.Query(
		`SELECT `+selectionStatusCols+` FROM selection_status
		 WHERE organization_id = ? AND round_ended = 0 AND current_family_group_id IS NOT NULL
		 ORDER BY rotation_year, phase`,
		organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list active selection status: %w", err)
	}
	defer rows.Close()

	var out []model.SelectionStatus
	for rows.Next() {
		st, err := scanSelectionStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("scan selection status: %w", err)
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

// Cursor describes where a selection phase moves to.
type Cursor struct {
	FamilyGroupID *int64
	Index         int
	RoundEnded    bool
	StartedAt     *time.Time
	DeadlineAt    *time.Time
}

// StartPhase (re)creates the cursor of a phase and clears the phase's turn
// completion flags.
func (s *RotationStore) StartPhase(organizationID int64, year int, phase string, c Cursor) (*model.SelectionStatus, error) {
	_, _, completedCol := usageColumns(phase)

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE time_period_usage SET `+completedCol+` = 0 WHERE organization_id = ? AND rotation_year = ?`,
		organizationID, year,
	); err != nil {
		return nil, fmt.Errorf("reset turn flags: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO selection_status (organization_id, rotation_year, phase, current_family_group_id,
		   current_group_index, turn_completed, round_ended, started_at, deadline_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)
		 ON CONFLICT(organization_id, rotation_year, phase) DO UPDATE SET
		   current_family_group_id = excluded.current_family_group_id,
		   current_group_index = excluded.current_group_index,
		   turn_completed = 0,
		   round_ended = excluded.round_ended,
		   started_at = excluded.started_at,
		   deadline_at = excluded.deadline_at,
		   updated_at = CURRENT_TIMESTAMP`,
		organizationID, year, phase, nullInt64(c.FamilyGroupID), c.Index,
		boolToInt(c.RoundEnded), nullTime(c.StartedAt), nullTime(c.DeadlineAt),
	); err != nil {
		return nil, fmt.Errorf("upsert selection status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetStatus(organizationID, year, phase)
}

// Advance marks completedGroupID's turn done and moves the cursor, provided
// the cursor still sits at expectedIndex. Otherwise it returns ErrStaleTurn
// and changes nothing.
func (s *RotationStore) Advance(organizationID int64, year int, phase string, expectedIndex int, completedGroupID int64, next Cursor) (*model.SelectionStatus, error) {
	_, _, completedCol := usageColumns(phase)

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE selection_status SET current_family_group_id = ?, current_group_index = ?, turn_completed = 0,
		   round_ended = ?, started_at = ?, deadline_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE organization_id = ? AND rotation_year = ? AND phase = ?
		   AND current_group_index = ? AND round_ended = 0`,
		nullInt64(next.FamilyGroupID), next.Index, boolToInt(next.RoundEnded),
		nullTime(next.StartedAt), nullTime(next.DeadlineAt),
		organizationID, year, phase, expectedIndex,
	)
	if err != nil {
		return nil, fmt.Errorf("advance selection status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrStaleTurn
	}
	if _, err := tx.Exec(
		`UPDATE time_period_usage SET `+completedCol+` = 1, updated_at = CURRENT_TIMESTAMP
		 WHERE organization_id = ? AND family_group_id = ? AND rotation_year = ?`,
		organizationID, completedGroupID, year,
	); err != nil {
		return nil, fmt.Errorf("mark turn completed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetStatus(organizationID, year, phase)
}

func (s *RotationStore) ExtendDeadline(organizationID int64, year int, phase string, until time.Time) (*model.SelectionStatus, error) {
	result, err := s.db.Exec(
		`UPDATE selection_status SET deadline_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE organization_id = ? AND rotation_year = ? AND phase = ? AND round_ended = 0`,
		until.UTC(), organizationID, year, phase,
	)
	if err != nil {
		return nil, fmt.Errorf("extend deadline: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, nil
	}
	return s.GetStatus(organizationID, year, phase)
}

// consumeAllowance uses one period of the group's allowance in the phase.
func consumeAllowance(q queryer, organizationID, familyGroupID int64, year int, phase string) error {
	usedCol, allowedCol, _ := usageColumns(phase)
	result, err := q.Exec(
		`UPDATE time_period_usage SET `+usedCol+` = `+usedCol+` + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE organization_id = ? AND family_group_id = ? AND rotation_year = ? AND `+usedCol+` < `+allowedCol,
		organizationID, familyGroupID, year,
	)
	if err != nil {
		return fmt.Errorf("consume allowance: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNoAllowance
	}
	return nil
}

// releaseAllowance returns one period to the group's allowance in the phase.
func releaseAllowance(q queryer, organizationID, familyGroupID int64, year int, phase string) error {
	usedCol, _, _ := usageColumns(phase)
	_, err := q.Exec(
		`UPDATE time_period_usage SET `+usedCol+` = `+usedCol+` - 1, updated_at = CURRENT_TIMESTAMP
		 WHERE organization_id = ? AND family_group_id = ? AND rotation_year = ? AND `+usedCol+` > 0`,
		organizationID, familyGroupID, year,
	)
	if err != nil {
		return fmt.Errorf("release allowance: %w", err)
	}
	return nil
}
