package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/cabinshare/internal/model"
)

type ReceiptStore struct {
	db *sql.DB
}

func NewReceiptStore(db *sql.DB) *ReceiptStore {
	return &ReceiptStore{db: db}
}

func scanReceipt(scanner interface{ Scan(...any) error }) (*model.Receipt, error) {
	var r model.Receipt
	var groupID, createdBy sql.NullInt64
	err := scanner.Scan(
		&r.ID, &r.OrganizationID, &groupID, &r.Description, &r.AmountCents, &r.ReceiptDate,
		&r.Category, &r.ImageKey, &createdBy, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.FamilyGroupID = int64Ptr(groupID)
	r.CreatedBy = int64Ptr(createdBy)
	return &r, nil
}

const receiptCols = `id, organization_id, family_group_id, description, amount_cents, receipt_date,
	category, image_key, created_by, created_at, updated_at`

func (s *ReceiptStore) Create(r *model.Receipt) (*model.Receipt, error) {
	result, err := s.db.Exec(
		`INSERT INTO receipts (organization_id, family_group_id, description, amount_cents, receipt_date,
		   category, image_key, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.OrganizationID, nullInt64(r.FamilyGroupID), r.Description, r.AmountCents, r.ReceiptDate,
		r.Category, r.ImageKey, nullInt64(r.CreatedBy),
	)
	if err != nil {
		return nil, fmt.Errorf("insert receipt: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(r.OrganizationID, id)
}

func (s *ReceiptStore) GetByID(organizationID, id int64) (*model.Receipt, error) {
	row := s.db.QueryRow(`SELECT `+receiptCols+` FROM receipts WHERE id = ? AND organization_id = ?`, id, organizationID)
	r, err := scanReceipt(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	return r, nil
}

// List returns receipts dated within [from, to). Empty bounds are open.
func (s *ReceiptStore) List(organizationID int64, from, to string) ([]model.Receipt, error) {
	query := `SELECT ` + receiptCols + ` FROM receipts WHERE organization_id = ?`
	args := []any{organizationID}
	if from != "" {
		query += ` AND receipt_date >= ?`
		args = append(args, from)
	}
	if to != "" {
		query += ` AND receipt_date < ?`
		args = append(args, to)
	}
	query += ` ORDER BY receipt_date DESC, id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer rows.Close()

	var out []model.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *ReceiptStore) Update(r *model.Receipt) (*model.Receipt, error) {
	_, err := s.db.Exec(
		`UPDATE receipts SET family_group_id = ?, description = ?, amount_cents = ?, receipt_date = ?, category = ?,
		   image_key = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND organization_id = ?`,
		nullInt64(r.FamilyGroupID), r.Description, r.AmountCents, r.ReceiptDate, r.Category, r.ImageKey,
		r.ID, r.OrganizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("update receipt: %w", err)
	}
	return s.GetByID(r.OrganizationID, r.ID)
}

func (s *ReceiptStore) Delete(organizationID, id int64) error {
	_, err := s.db.Exec(`DELETE FROM receipts WHERE id = ? AND organization_id = ?`, id, organizationID)
	if err != nil {
		return fmt.Errorf("delete receipt: %w", err)
	}
	return nil
}
