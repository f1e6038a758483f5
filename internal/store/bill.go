package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/cabinshare/internal/model"
)

type BillStore struct {
	db *sql.DB
}

func NewBillStore(db *sql.DB) *BillStore {
	return &BillStore{db: db}
}

func scanBill(scanner interface{ Scan(...any) error }) (*model.RecurringBill, error) {
	var b model.RecurringBill
	var autoPay, active int
	err := scanner.Scan(
		&b.ID, &b.OrganizationID, &b.Name, &b.Category, &b.Provider, &b.AccountNumber, &b.AmountCents,
		&b.RecurrenceRule, &b.StartDate, &autoPay, &b.Notes, &active, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.AutoPay = autoPay != 0
	b.Active = active != 0
	return &b, nil
}

const billCols = `id, organization_id, name, category, provider, account_number, amount_cents,
	recurrence_rule, start_date, auto_pay, notes, active, created_at, updated_at`

func (s *BillStore) Create(b *model.RecurringBill) (*model.RecurringBill, error) {
	result, err := s.db.Exec(
		`INSERT INTO recurring_bills (organization_id, name, category, provider, account_number, amount_cents,
		   recurrence_rule, start_date, auto_pay, notes, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.OrganizationID, b.Name, b.Category, b.Provider, b.AccountNumber, b.AmountCents,
		b.RecurrenceRule, b.StartDate, boolToInt(b.AutoPay), b.Notes, boolToInt(b.Active),
	)
	if err != nil {
		return nil, fmt.Errorf("insert bill: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(b.OrganizationID, id)
}

func (s *BillStore) GetByID(organizationID, id int64) (*model.RecurringBill, error) {
	row := s.db.QueryRow(`SELECT `+billCols+` FROM recurring_bills WHERE id = ? AND organization_id = ?`, id, organizationID)
	b, err := scanBill(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bill: %w", err)
	}
	return b, nil
}

func (s *BillStore) List(organizationID int64, activeOnly bool) ([]model.RecurringBill, error) {
	query := `SELECT ` + billCols + ` FROM recurring_bills WHERE organization_id = ?`
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY name ASC`
	rows, err := s.db.Query(query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	defer rows.Close()

	var bills []model.RecurringBill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		bills = append(bills, *b)
	}
	return bills, rows.Err()
}

func (s *BillStore) Update(b *model.RecurringBill) (*model.RecurringBill, error) {
	_, err := s.db.Exec(
		`UPDATE recurring_bills SET name = ?, category = ?, provider = ?, account_number = ?, amount_cents = ?,
		   recurrence_rule = ?, start_date = ?, auto_pay = ?, notes = ?, active = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND organization_id = ?`,
		b.Name, b.Category, b.Provider, b.AccountNumber, b.AmountCents,
		b.RecurrenceRule, b.StartDate, boolToInt(b.AutoPay), b.Notes, boolToInt(b.Active),
		b.ID, b.OrganizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("update bill: %w", err)
	}
	return s.GetByID(b.OrganizationID, b.ID)
}

func (s *BillStore) Delete(organizationID, id int64) error {
	_, err := s.db.Exec(`DELETE FROM recurring_bills WHERE id = ? AND organization_id = ?`, id, organizationID)
	if err != nil {
		return fmt.Errorf("delete bill: %w", err)
	}
	return nil
}

func (s *BillStore) CreatePayment(billID int64, dueDate string, amountCents int64) (*model.BillPayment, error) {
	result, err := s.db.Exec(
		`INSERT INTO bill_payments (bill_id, due_date, amount_cents) VALUES (?, ?, ?)`,
		billID, dueDate, amountCents,
	)
	if err != nil {
		return nil, fmt.Errorf("insert bill payment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	var p model.BillPayment
	err = s.db.QueryRow(
		`SELECT id, bill_id, due_date, amount_cents, paid_at FROM bill_payments WHERE id = ?`, id,
	).Scan(&p.ID, &p.BillID, &p.DueDate, &p.AmountCents, &p.PaidAt)
	if err != nil {
		return nil, fmt.Errorf("get bill payment: %w", err)
	}
	return &p, nil
}

func (s *BillStore) ListPayments(billID int64) ([]model.BillPayment, error) {
	rows, err := s.db.Query(
		`SELECT id, bill_id, due_date, amount_cents, paid_at FROM bill_payments WHERE bill_id = ? ORDER BY due_date DESC`,
		billID,
	)
	if err != nil {
		return nil, fmt.Errorf("list bill payments: %w", err)
	}
	defer rows.Close()

	var out []model.BillPayment
	for rows.Next() {
		var p model.BillPayment
		if err := rows.Scan(&p.ID, &p.BillID, &p.DueDate, &p.AmountCents, &p.PaidAt); err != nil {
			return nil, fmt.Errorf("scan bill payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LastPayment returns the bill payment with the latest due date, or nil.
func (s *BillStore) LastPayment(billID int64) (*model.BillPayment, error) {
	var p model.BillPayment
	err := s.db.QueryRow(
		`SELECT id, bill_id, due_date, amount_cents, paid_at FROM bill_payments WHERE bill_id = ?
		 ORDER BY due_date DESC LIMIT 1`,
		billID,
	).Scan(&p.ID, &p.BillID, &p.DueDate, &p.AmountCents, &p.PaidAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last bill payment: %w", err)
	}
	return &p, nil
}
