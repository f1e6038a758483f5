package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/cabinshare/internal/model"
)

type TrialCodeStore struct {
	db *sql.DB
}

func NewTrialCodeStore(db *sql.DB) *TrialCodeStore {
	return &TrialCodeStore{db: db}
}

func scanTrialCode(scanner interface{ Scan(...any) error }) (*model.TrialCode, error) {
	var c model.TrialCode
	var active int
	var expiresAt sql.NullTime
	var createdBy sql.NullInt64
	err := scanner.Scan(
		&c.ID, &c.Code, &c.TrialDays, &c.MaxUses, &c.Uses, &active,
		&c.Notes, &expiresAt, &createdBy, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Active = active != 0
	c.ExpiresAt = timePtr(expiresAt)
	c.CreatedBy = int64Ptr(createdBy)
	return &c, nil
}

const trialCodeCols = `id, code, trial_days, max_uses, uses, active, notes, expires_at, created_by, created_at`

func (s *TrialCodeStore) Create(code string, trialDays, maxUses int, notes string, expiresAt *time.Time, createdBy int64) (*model.TrialCode, error) {
	result, err := s.db.Exec(
		`INSERT INTO trial_codes (code, trial_days, max_uses, notes, expires_at, created_by) VALUES (?, ?, ?, ?, ?, ?)`,
		strings.ToUpper(code), trialDays, maxUses, notes, nullTime(expiresAt), createdBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert trial code: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *TrialCodeStore) GetByID(id int64) (*model.TrialCode, error) {
	row := s.db.QueryRow(`SELECT `+trialCodeCols+` FROM trial_codes WHERE id = ?`, id)
	c, err := scanTrialCode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trial code: %w", err)
	}
	return c, nil
}

func (s *TrialCodeStore) List() ([]model.TrialCode, error) {
	rows, err := s.db.Query(`SELECT ` + trialCodeCols + ` FROM trial_codes ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list trial codes: %w", err)
	}
	defer rows.Close()

	var codes []model.TrialCode
	for rows.Next() {
		c, err := scanTrialCode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trial code: %w", err)
		}
		codes = append(codes, *c)
	}
	return codes, rows.Err()
}

func (s *TrialCodeStore) Deactivate(id int64) error {
	_, err := s.db.Exec(`UPDATE trial_codes SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate trial code: %w", err)
	}
	return nil
}

// consumeTrialCode uses one redemption of an active, unexpired code and
// returns its trial length. ok is false when the code cannot be redeemed.
func consumeTrialCode(tx *sql.Tx, code string) (days int, ok bool, err error) {
	var id int64
	var expiresAt sql.NullTime
	err = tx.QueryRow(
		`SELECT id, trial_days, expires_at FROM trial_codes WHERE code = ? AND active = 1 AND uses < max_uses`,
		code,
	).Scan(&id, &days, &expiresAt)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup trial code: %w", err)
	}
	if expiresAt.Valid && !expiresAt.Time.After(time.Now()) {
		return 0, false, nil
	}
	if _, err := tx.Exec(`UPDATE trial_codes SET uses = uses + 1 WHERE id = ?`, id); err != nil {
		return 0, false, fmt.Errorf("consume trial code: %w", err)
	}
	return days, true, nil
}
