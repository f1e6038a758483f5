package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/cabinshare/internal/model"
)

type NoteStore struct {
	db *sql.DB
}

func NewNoteStore(db *sql.DB) *NoteStore {
	return &NoteStore{db: db}
}

func scanNote(scanner interface{ Scan(...any) error }) (*model.SharedNote, error) {
	var n model.SharedNote
	var authorID sql.NullInt64
	var expiresAt sql.NullTime
	var pinned int

	err := scanner.Scan(
		&n.ID, &n.OrganizationID, &n.Title, &n.Body, &n.Category, &n.Priority, &pinned,
		&authorID, &expiresAt, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.Pinned = pinned != 0
	n.AuthorID = int64Ptr(authorID)
	n.ExpiresAt = timePtr(expiresAt)
	return &n, nil
}

const noteCols = `id, organization_id, title, body, category, priority, pinned, author_id, expires_at, created_at, updated_at`

const notePriorityOrder = `CASE priority WHEN 'urgent' THEN 0 WHEN 'normal' THEN 1 WHEN 'low' THEN 2 ELSE 3 END`

func (s *NoteStore) Create(n *model.SharedNote) (*model.SharedNote, error) {
	result, err := s.db.Exec(
		`INSERT INTO shared_notes (organization_id, title, body, category, priority, pinned, author_id, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.OrganizationID, n.Title, n.Body, n.Category, n.Priority, boolToInt(n.Pinned),
		nullInt64(n.AuthorID), nullTime(n.ExpiresAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert note: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(n.OrganizationID, id)
}

func (s *NoteStore) GetByID(organizationID, id int64) (*model.SharedNote, error) {
	row := s.db.QueryRow(`SELECT `+noteCols+` FROM shared_notes WHERE id = ? AND organization_id = ?`, id, organizationID)
	n, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get note: %w", err)
	}
	return n, nil
}

// List returns non-expired notes ordered by pinned DESC, priority (urgent > normal > low), created_at DESC.
// It lazily cleans up expired notes before querying.
func (s *NoteStore) List(organizationID int64) ([]model.SharedNote, error) {
	if _, err := s.DeleteExpired(organizationID, time.Now()); err != nil {
		return nil, err
	}
	return s.query(
		`SELECT `+noteCols+` FROM shared_notes WHERE organization_id = ?
		 ORDER BY pinned DESC, `+notePriorityOrder+`, created_at DESC`,
		organizationID,
	)
}

// ListPinned returns pinned, non-expired notes for the dashboard.
func (s *NoteStore) ListPinned(organizationID int64) ([]model.SharedNote, error) {
	notes, err := s.query(
		`SELECT `+noteCols+` FROM shared_notes WHERE organization_id = ? AND pinned = 1
		 ORDER BY `+notePriorityOrder+`, created_at DESC`,
		organizationID,
	)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	live := notes[:0]
	for _, n := range notes {
		if n.ExpiresAt == nil || n.ExpiresAt.After(now) {
			live = append(live, n)
		}
	}
	return live, nil
}

func (s *NoteStore) query(query string, args ...any) ([]model.SharedNote, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var notes []model.SharedNote
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, *n)
	}
	return notes, rows.Err()
}

func (s *NoteStore) Update(n *model.SharedNote) (*model.SharedNote, error) {
	_, err := s.db.Exec(
		`UPDATE shared_notes SET title = ?, body = ?, category = ?, priority = ?, pinned = ?, expires_at = ?,
		   updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND organization_id = ?`,
		n.Title, n.Body, n.Category, n.Priority, boolToInt(n.Pinned), nullTime(n.ExpiresAt),
		n.ID, n.OrganizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("update note: %w", err)
	}
	return s.GetByID(n.OrganizationID, n.ID)
}

func (s *NoteStore) TogglePinned(organizationID, id int64) (*model.SharedNote, error) {
	result, err := s.db.Exec(
		`UPDATE shared_notes SET pinned = 1 - pinned, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND organization_id = ?`,
		id, organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("toggle pinned: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, nil
	}
	return s.GetByID(organizationID, id)
}

func (s *NoteStore) Delete(organizationID, id int64) error {
	_, err := s.db.Exec(`DELETE FROM shared_notes WHERE id = ? AND organization_id = ?`, id, organizationID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

// DeleteExpired removes the organization's notes that expired at or before
// now and returns the number deleted.
func (s *NoteStore) DeleteExpired(organizationID int64, now time.Time) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM shared_notes WHERE organization_id = ? AND expires_at IS NOT NULL AND expires_at <= ?`,
		organizationID, now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
