package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/cabinshare/internal/model"
)

type PaymentStore struct {
	db *sql.DB
}

func NewPaymentStore(db *sql.DB) *PaymentStore {
	return &PaymentStore{db: db}
}

func scanPayment(scanner interface{ Scan(...any) error }) (*model.Payment, error) {
	var p model.Payment
	var reservationID sql.NullInt64
	var cancelled int
	err := scanner.Scan(
		&p.ID, &p.OrganizationID, &p.FamilyGroupID, &reservationID, &p.PaymentType, &p.Description,
		&p.AmountCents, &p.AmountPaidCents, &p.DueDate, &p.PaidDate, &p.PaymentMethod, &p.Notes,
		&cancelled, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.ReservationID = int64Ptr(reservationID)
	p.Cancelled = cancelled != 0
	return &p, nil
}

const paymentCols = `id, organization_id, family_group_id, reservation_id, payment_type, description,
	amount_cents, amount_paid_cents, due_date, paid_date, payment_method, notes, cancelled, created_at, updated_at`

func collectPayments(rows *sql.Rows) ([]model.Payment, error) {
	defer rows.Close()
	var out []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *PaymentStore) Create(p *model.Payment) (*model.Payment, error) {
	result, err := s.db.Exec(
		`INSERT INTO payments (organization_id, family_group_id, reservation_id, payment_type, description,
		   amount_cents, amount_paid_cents, due_date, paid_date, payment_method, notes, cancelled)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.OrganizationID, p.FamilyGroupID, nullInt64(p.ReservationID), p.PaymentType, p.Description,
		p.AmountCents, p.AmountPaidCents, p.DueDate, p.PaidDate, p.PaymentMethod, p.Notes, boolToInt(p.Cancelled),
	)
	if err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(p.OrganizationID, id)
}

func (s *PaymentStore) GetByID(organizationID, id int64) (*model.Payment, error) {
	row := s.db.QueryRow(
		`SELECT `+paymentCols+` FROM payments WHERE id = ? AND organization_id = ?`,
		id, organizationID,
	)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// List returns payments of the organization, optionally for one family group.
func (s *PaymentStore) List(organizationID int64, familyGroupID *int64) ([]model.Payment, error) {
	query := `SELECT ` + paymentCols + ` FROM payments WHERE organization_id = ?`
	args := []any{organizationID}
	if familyGroupID != nil {
		query += ` AND family_group_id = ?`
		args = append(args, *familyGroupID)
	}
	query += ` ORDER BY CASE WHEN due_date = '' THEN 1 ELSE 0 END, due_date ASC, id ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return collectPayments(rows)
}

// ListForYear returns the payments due in the year. Payments without a due
// date count in the year they were created.
func (s *PaymentStore) ListForYear(organizationID int64, year int) ([]model.Payment, error) {
	rows, err := s.db.Query(
		`SELECT `+paymentCols+` FROM payments
		 WHERE organization_id = ? AND substr(COALESCE(NULLIF(due_date, ''), created_at), 1, 4) = ?
		 ORDER BY due_date ASC, id ASC`,
		organizationID, fmt.Sprintf("%04d", year),
	)
	if err != nil {
		return nil, fmt.Errorf("list payments for year: %w", err)
	}
	return collectPayments(rows)
}

// ListOutstanding returns non-cancelled payments with an unpaid remainder
// across all organizations.
func (s *PaymentStore) ListOutstanding() ([]model.Payment, error) {
	rows, err := s.db.Query(
		`SELECT ` + paymentCols + ` FROM payments
		 WHERE cancelled = 0 AND amount_paid_cents < amount_cents
		 ORDER BY organization_id, due_date`,
	)
	if err != nil {
		return nil, fmt.Errorf("list outstanding payments: %w", err)
	}
	return collectPayments(rows)
}

func (s *PaymentStore) Update(p *model.Payment) (*model.Payment, error) {
	_, err := s.db.Exec(
		`UPDATE payments SET family_group_id = ?, reservation_id = ?, payment_type = ?, description = ?,
		   amount_cents = ?, amount_paid_cents = ?, due_date = ?, paid_date = ?, payment_method = ?, notes = ?,
		   cancelled = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND organization_id = ?`,
		p.FamilyGroupID, nullInt64(p.ReservationID), p.PaymentType, p.Description,
		p.AmountCents, p.AmountPaidCents, p.DueDate, p.PaidDate, p.PaymentMethod, p.Notes,
		boolToInt(p.Cancelled), p.ID, p.OrganizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("update payment: %w", err)
	}
	return s.GetByID(p.OrganizationID, p.ID)
}

// AddPaid adds amount to amount_paid_cents unless that would exceed the
// amount due. ok is false when the payment would be overpaid.
func (s *PaymentStore) AddPaid(organizationID, id, amount int64, paidDate, method string) (ok bool, err error) {
	result, err := s.db.Exec(
		`UPDATE payments SET amount_paid_cents = amount_paid_cents + ?, paid_date = ?,
		   payment_method = CASE WHEN ? = '' THEN payment_method ELSE ? END,
		   updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND organization_id = ? AND cancelled = 0 AND amount_paid_cents + ? <= amount_cents`,
		amount, paidDate, method, method, id, organizationID, amount,
	)
	if err != nil {
		return false, fmt.Errorf("record payment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *PaymentStore) Delete(organizationID, id int64) error {
	_, err := s.db.Exec(`DELETE FROM payments WHERE id = ? AND organization_id = ?`, id, organizationID)
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	return nil
}
