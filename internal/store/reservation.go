package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/cabinshare/internal/model"
)

type ReservationStore struct {
	db *sql.DB
}

func NewReservationStore(db *sql.DB) *ReservationStore {
	return &ReservationStore{db: db}
}

func scanReservation(scanner interface{ Scan(...any) error }) (*model.Reservation, error) {
	var r model.Reservation
	var createdBy sql.NullInt64
	err := scanner.Scan(
		&r.ID, &r.OrganizationID, &r.FamilyGroupID, &r.HostName, &r.StartDate, &r.EndDate,
		&r.GuestCount, &r.Notes, &r.Status, &r.SelectionPhase, &r.RotationYear, &createdBy,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.CreatedBy = int64Ptr(createdBy)
	return &r, nil
}

const reservationCols = `id, organization_id, family_group_id, host_name, start_date, end_date, guest_count,
	notes, status, selection_phase, rotation_year, created_by, created_at, updated_at`

func collectReservations(rows *sql.Rows) ([]model.Reservation, error) {
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// overlaps reports whether [start, end) intersects another non-cancelled
// reservation of the organization. Touching days do not overlap.
func overlaps(q queryer, organizationID int64, start, end string, excludeID int64) (bool, error) {
	var n int
	err := q.QueryRow(
		`SELECT COUNT(*) FROM reservations
		 WHERE organization_id = ? AND status != ? AND id != ?
		   AND start_date < ? AND end_date > ?`,
		organizationID, model.ReservationCancelled, excludeID, end, start,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check overlap: %w", err)
	}
	return n > 0, nil
}

// consumesAllowance reports whether a reservation counts against rotation
// allowance.
func consumesAllowance(r *model.Reservation) bool {
	return r.Status != model.ReservationCancelled &&
		(r.SelectionPhase == model.PhasePrimary || r.SelectionPhase == model.PhaseSecondary)
}

// Create inserts a reservation after checking for overlaps. Primary and
// secondary reservations consume one period of the group's allowance in the
// same transaction.
func (s *ReservationStore) Create(r *model.Reservation) (*model.Reservation, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if r.Status != model.ReservationCancelled {
		clash, err := overlaps(tx, r.OrganizationID, r.StartDate, r.EndDate, 0)
		if err != nil {
			return nil, err
		}
		if clash {
			return nil, ErrOverlap
		}
	}
	if consumesAllowance(r) {
		if err := consumeAllowance(tx, r.OrganizationID, r.FamilyGroupID, r.RotationYear, r.SelectionPhase); err != nil {
			return nil, err
		}
	}

	result, err := tx.Exec(
		`INSERT INTO reservations (organization_id, family_group_id, host_name, start_date, end_date, guest_count,
		   notes, status, selection_phase, rotation_year, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.OrganizationID, r.FamilyGroupID, r.HostName, r.StartDate, r.EndDate, r.GuestCount,
		r.Notes, r.Status, r.SelectionPhase, r.RotationYear, nullInt64(r.CreatedBy),
	)
	if err != nil {
		return nil, fmt.Errorf("insert reservation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(r.OrganizationID, id)
}

func (s *ReservationStore) GetByID(organizationID, id int64) (*model.Reservation, error) {
	row := s.db.QueryRow(
		`SELECT `+reservationCols+` FROM reservations WHERE id = ? AND organization_id = ?`,
		id, organizationID,
	)
	r, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return r, nil
}

// ListByDateRange returns reservations intersecting [from, to). Empty bounds
// are open.
func (s *ReservationStore) ListByDateRange(organizationID int64, from, to string, includeCancelled bool) ([]model.Reservation, error) {
	query := `SELECT ` + reservationCols + ` FROM reservations WHERE organization_id = ?`
	args := []any{organizationID}
	if to != "" {
		query += ` AND start_date < ?`
		args = append(args, to)
	}
	if from != "" {
		query += ` AND end_date > ?`
		args = append(args, from)
	}
	if !includeCancelled {
		query += ` AND status != ?`
		args = append(args, model.ReservationCancelled)
	}
	query += ` ORDER BY start_date ASC, id ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reservations by date range: %w", err)
	}
	return collectReservations(rows)
}

func (s *ReservationStore) ListByFamilyGroup(organizationID, familyGroupID int64) ([]model.Reservation, error) {
	rows, err := s.db.Query(
		`SELECT `+reservationCols+` FROM reservations WHERE organization_id = ? AND family_group_id = ?
		 ORDER BY start_date ASC`,
		organizationID, familyGroupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reservations by family group: %w", err)
	}
	return collectReservations(rows)
}

// ListUpcoming returns non-cancelled reservations ending after today.
func (s *ReservationStore) ListUpcoming(organizationID int64, today string, limit int) ([]model.Reservation, error) {
	rows, err := s.db.Query(
		`SELECT `+reservationCols+` FROM reservations
		 WHERE organization_id = ? AND status != ? AND end_date > ?
		 ORDER BY start_date ASC LIMIT ?`,
		organizationID, model.ReservationCancelled, today, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list upcoming reservations: %w", err)
	}
	return collectReservations(rows)
}

// Update rewrites the editable fields, rechecking overlaps. Allowance is
// released when a rotation reservation becomes cancelled and consumed again
// when it is reinstated.
func (s *ReservationStore) Update(r *model.Reservation) (*model.Reservation, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	prev, err := scanReservation(tx.QueryRow(
		`SELECT `+reservationCols+` FROM reservations WHERE id = ? AND organization_id = ?`,
		r.ID, r.OrganizationID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}

	if r.Status != model.ReservationCancelled {
		clash, err := overlaps(tx, r.OrganizationID, r.StartDate, r.EndDate, r.ID)
		if err != nil {
			return nil, err
		}
		if clash {
			return nil, ErrOverlap
		}
	}

	// Phase, year and group stay with the original booking.
	r.SelectionPhase = prev.SelectionPhase
	r.RotationYear = prev.RotationYear
	r.FamilyGroupID = prev.FamilyGroupID

	switch {
	case consumesAllowance(prev) && !consumesAllowance(r):
		if err := releaseAllowance(tx, prev.OrganizationID, prev.FamilyGroupID, prev.RotationYear, prev.SelectionPhase); err != nil {
			return nil, err
		}
	case !consumesAllowance(prev) && consumesAllowance(r):
		if err := consumeAllowance(tx, r.OrganizationID, r.FamilyGroupID, r.RotationYear, r.SelectionPhase); err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec(
		`UPDATE reservations SET host_name = ?, start_date = ?, end_date = ?, guest_count = ?, notes = ?, status = ?,
		   updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND organization_id = ?`,
		r.HostName, r.StartDate, r.EndDate, r.GuestCount, r.Notes, r.Status, r.ID, r.OrganizationID,
	); err != nil {
		return nil, fmt.Errorf("update reservation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(r.OrganizationID, r.ID)
}

// Delete removes a reservation and returns its allowance.
func (s *ReservationStore) Delete(organizationID, id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	prev, err := scanReservation(tx.QueryRow(
		`SELECT `+reservationCols+` FROM reservations WHERE id = ? AND organization_id = ?`,
		id, organizationID,
	))
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get reservation: %w", err)
	}
	if consumesAllowance(prev) {
		if err := releaseAllowance(tx, organizationID, prev.FamilyGroupID, prev.RotationYear, prev.SelectionPhase); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`DELETE FROM reservations WHERE id = ? AND organization_id = ?`, id, organizationID); err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	return tx.Commit()
}

// ListForYear returns non-cancelled reservations starting in the year.
func (s *ReservationStore) ListForYear(organizationID int64, year int) ([]model.Reservation, error) {
	from := fmt.Sprintf("%04d-01-01", year)
	to := fmt.Sprintf("%04d-01-01", year+1)
	rows, err := s.db.Query(
		`SELECT `+reservationCols+` FROM reservations
		 WHERE organization_id = ? AND status != ? AND start_date >= ? AND start_date < ?
		 ORDER BY start_date ASC`,
		organizationID, model.ReservationCancelled, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("list reservations for year: %w", err)
	}
	return collectReservations(rows)
}

// ReplaceYear deletes the reservations starting in the year and inserts the
// given ones in a single transaction. Rotation allowance is not touched.
func (s *ReservationStore) ReplaceYear(organizationID int64, year int, reservations []model.Reservation) (int, error) {
	from := fmt.Sprintf("%04d-01-01", year)
	to := fmt.Sprintf("%04d-01-01", year+1)

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM reservations WHERE organization_id = ? AND start_date >= ? AND start_date < ?`,
		organizationID, from, to,
	); err != nil {
		return 0, fmt.Errorf("clear year: %w", err)
	}
	for _, r := range reservations {
		if _, err := tx.Exec(
			`INSERT INTO reservations (organization_id, family_group_id, host_name, start_date, end_date, guest_count,
			   notes, status, selection_phase, rotation_year)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			organizationID, r.FamilyGroupID, r.HostName, r.StartDate, r.EndDate, r.GuestCount,
			r.Notes, r.Status, r.SelectionPhase, r.RotationYear,
		); err != nil {
			return 0, fmt.Errorf("restore reservation %s: %w", r.StartDate, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(reservations), nil
}
