package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/cabinshare/internal/model"
)

// ErrImageNotFound is returned when a checklist item references an image
// outside the organization.
var ErrImageNotFound = errors.New("image not found")

type ChecklistStore struct {
	db *sql.DB
}

func NewChecklistStore(db *sql.DB) *ChecklistStore {
	return &ChecklistStore{db: db}
}

func scanChecklist(scanner interface{ Scan(...any) error }) (*model.Checklist, error) {
	var c model.Checklist
	err := scanner.Scan(&c.ID, &c.OrganizationID, &c.ChecklistType, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanChecklistItem(scanner interface{ Scan(...any) error }) (*model.ChecklistItem, error) {
	var it model.ChecklistItem
	var imageID sql.NullInt64
	err := scanner.Scan(&it.ID, &it.ChecklistID, &it.Text, &imageID, &it.SortOrder, &it.CreatedAt)
	if err != nil {
		return nil, err
	}
	it.ImageID = int64Ptr(imageID)
	return &it, nil
}

const checklistCols = `id, organization_id, checklist_type, title, created_at, updated_at`
const checklistItemCols = `id, checklist_id, text, image_id, sort_order, created_at`

// adjustImageUsage moves an image's usage count by delta. The image must
// belong to the organization.
func adjustImageUsage(q queryer, organizationID, imageID int64, delta int) error {
	result, err := q.Exec(
		`UPDATE images SET usage_count = MAX(usage_count + ?, 0) WHERE id = ? AND organization_id = ?`,
		delta, imageID, organizationID,
	)
	if err != nil {
		return fmt.Errorf("adjust image usage: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 && delta > 0 {
		return ErrImageNotFound
	}
	return nil
}

// Create inserts a checklist with its items in one transaction.
func (s *ChecklistStore) Create(organizationID int64, checklistType, title string, items []model.ChecklistItem) (*model.Checklist, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO checklists (organization_id, checklist_type, title) VALUES (?, ?, ?)`,
		organizationID, checklistType, title,
	)
	if err != nil {
		return nil, fmt.Errorf("insert checklist: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	for i, it := range items {
		if _, err := insertItem(tx, organizationID, id, it.Text, it.ImageID, i); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(organizationID, id)
}

func (s *ChecklistStore) GetByID(organizationID, id int64) (*model.Checklist, error) {
	row := s.db.QueryRow(`SELECT `+checklistCols+` FROM checklists WHERE id = ? AND organization_id = ?`, id, organizationID)
	c, err := scanChecklist(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checklist: %w", err)
	}
	items, err := s.ListItems(id)
	if err != nil {
		return nil, err
	}
	c.Items = items
	return c, nil
}

// List returns the organization's checklists, optionally of one type, with items.
func (s *ChecklistStore) List(organizationID int64, checklistType string) ([]model.Checklist, error) {
	query := `SELECT ` + checklistCols + ` FROM checklists WHERE organization_id = ?`
	args := []any{organizationID}
	if checklistType != "" {
		query += ` AND checklist_type = ?`
		args = append(args, checklistType)
	}
	query += ` ORDER BY checklist_type, title`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list checklists: %w", err)
	}
	var lists []model.Checklist
	for rows.Next() {
		c, err := scanChecklist(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan checklist: %w", err)
		}
		lists = append(lists, *c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range lists {
		items, err := s.ListItems(lists[i].ID)
		if err != nil {
			return nil, err
		}
		lists[i].Items = items
	}
	return lists, nil
}

func (s *ChecklistStore) Update(organizationID, id int64, checklistType, title string) (*model.Checklist, error) {
	_, err := s.db.Exec(
		`UPDATE checklists SET checklist_type = ?, title = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND organization_id = ?`,
		checklistType, title, id, organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("update checklist: %w", err)
	}
	return s.GetByID(organizationID, id)
}

// Delete removes a checklist and releases the images its items referenced.
func (s *ChecklistStore) Delete(organizationID, id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE images SET usage_count = MAX(usage_count - (
		   SELECT COUNT(*) FROM checklist_items ci WHERE ci.checklist_id = ? AND ci.image_id = images.id
		 ), 0)
		 WHERE organization_id = ? AND id IN (SELECT image_id FROM checklist_items WHERE checklist_id = ?)`,
		id, organizationID, id,
	); err != nil {
		return fmt.Errorf("release checklist images: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM checklists WHERE id = ? AND organization_id = ?`, id, organizationID); err != nil {
		return fmt.Errorf("delete checklist: %w", err)
	}
	return tx.Commit()
}

func (s *ChecklistStore) ListItems(checklistID int64) ([]model.ChecklistItem, error) {
	rows, err := s.db.Query(
		`SELECT `+checklistItemCols+` FROM checklist_items WHERE checklist_id = ? ORDER BY sort_order ASC, id ASC`,
		checklistID,
	)
	if err != nil {
		return nil, fmt.Errorf("list checklist items: %w", err)
	}
	defer rows.Close()

	items := []model.ChecklistItem{}
	for rows.Next() {
		it, err := scanChecklistItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checklist item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func insertItem(tx *sql.Tx, organizationID, checklistID int64, text string, imageID *int64, sortOrder int) (int64, error) {
	if imageID != nil {
		if err := adjustImageUsage(tx, organizationID, *imageID, 1); err != nil {
			return 0, err
		}
	}
	result, err := tx.Exec(
		`INSERT INTO checklist_items (checklist_id, text, image_id, sort_order) VALUES (?, ?, ?, ?)`,
		checklistID, text, nullInt64(imageID), sortOrder,
	)
	if err != nil {
		return 0, fmt.Errorf("insert checklist item: %w", err)
	}
	return result.LastInsertId()
}

// getItem loads an item, verifying that its checklist belongs to the organization.
func getItem(q queryer, organizationID, itemID int64) (*model.ChecklistItem, error) {
	row := q.QueryRow(
		`SELECT ci.id, ci.checklist_id, ci.text, ci.image_id, ci.sort_order, ci.created_at
		 FROM checklist_items ci JOIN checklists c ON c.id = ci.checklist_id
		 WHERE ci.id = ? AND c.organization_id = ?`,
		itemID, organizationID,
	)
	it, err := scanChecklistItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checklist item: %w", err)
	}
	return it, nil
}

// AddItem appends an item to the checklist. A referenced image gains one use.
func (s *ChecklistStore) AddItem(organizationID, checklistID int64, text string, imageID *int64) (*model.ChecklistItem, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var owner int64
	err = tx.QueryRow(`SELECT organization_id FROM checklists WHERE id = ?`, checklistID).Scan(&owner)
	if err == sql.ErrNoRows || (err == nil && owner != organizationID) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checklist: %w", err)
	}
	var next int
	if err := tx.QueryRow(
		`SELECT COALESCE(MAX(sort_order), -1) + 1 FROM checklist_items WHERE checklist_id = ?`, checklistID,
	).Scan(&next); err != nil {
		return nil, fmt.Errorf("next sort order: %w", err)
	}
	id, err := insertItem(tx, organizationID, checklistID, text, imageID, next)
	if err != nil {
		return nil, err
	}
	it, err := getItem(tx, organizationID, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return it, nil
}

// UpdateItem changes an item's text and image, moving one use from the old
// image to the new one.
func (s *ChecklistStore) UpdateItem(organizationID, itemID int64, text string, imageID *int64) (*model.ChecklistItem, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	prev, err := getItem(tx, organizationID, itemID)
	if err != nil || prev == nil {
		return nil, err
	}
	if !sameImage(prev.ImageID, imageID) {
		if prev.ImageID != nil {
			if err := adjustImageUsage(tx, organizationID, *prev.ImageID, -1); err != nil {
				return nil, err
			}
		}
		if imageID != nil {
			if err := adjustImageUsage(tx, organizationID, *imageID, 1); err != nil {
				return nil, err
			}
		}
	}
	if _, err := tx.Exec(
		`UPDATE checklist_items SET text = ?, image_id = ? WHERE id = ?`,
		text, nullInt64(imageID), itemID,
	); err != nil {
		return nil, fmt.Errorf("update checklist item: %w", err)
	}
	it, err := getItem(tx, organizationID, itemID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return it, nil
}

// DeleteItem removes an item and releases its image.
func (s *ChecklistStore) DeleteItem(organizationID, itemID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	prev, err := getItem(tx, organizationID, itemID)
	if err != nil || prev == nil {
		return err
	}
	if prev.ImageID != nil {
		if err := adjustImageUsage(tx, organizationID, *prev.ImageID, -1); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`DELETE FROM checklist_items WHERE id = ?`, itemID); err != nil {
		return fmt.Errorf("delete checklist item: %w", err)
	}
	return tx.Commit()
}

// ReorderItems sets sort_order to the position of each id in ids.
func (s *ChecklistStore) ReorderItems(checklistID int64, ids []int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for i, id := range ids {
		if _, err := tx.Exec(
			`UPDATE checklist_items SET sort_order = ? WHERE id = ? AND checklist_id = ?`,
			i, id, checklistID,
		); err != nil {
			return fmt.Errorf("reorder checklist items: %w", err)
		}
	}
	return tx.Commit()
}

func sameImage(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func scanCheckinSession(scanner interface{ Scan(...any) error }) (*model.CheckinSession, error) {
	var cs model.CheckinSession
	var groupID, checklistID, userID sql.NullInt64
	var responses string
	var completed int
	var completedAt sql.NullTime
	err := scanner.Scan(
		&cs.ID, &cs.OrganizationID, &groupID, &checklistID, &cs.SessionType, &cs.CheckDate,
		&responses, &cs.Notes, &completed, &completedAt, &userID, &cs.CreatedAt, &cs.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	cs.FamilyGroupID = int64Ptr(groupID)
	cs.ChecklistID = int64Ptr(checklistID)
	cs.UserID = int64Ptr(userID)
	cs.Completed = completed != 0
	cs.CompletedAt = timePtr(completedAt)
	cs.Responses = map[int64]bool{}
	if err := json.Unmarshal([]byte(responses), &cs.Responses); err != nil {
		return nil, fmt.Errorf("decode responses: %w", err)
	}
	return &cs, nil
}

const checkinSessionCols = `id, organization_id, family_group_id, checklist_id, session_type, check_date,
	responses, notes, completed, completed_at, user_id, created_at, updated_at`

// SaveSession inserts or updates a check-in session. It is marked completed
// once every item of its checklist is checked.
func (s *ChecklistStore) SaveSession(cs *model.CheckinSession) (*model.CheckinSession, error) {
	if cs.Responses == nil {
		cs.Responses = map[int64]bool{}
	}
	responses, err := json.Marshal(cs.Responses)
	if err != nil {
		return nil, fmt.Errorf("encode responses: %w", err)
	}

	completed := false
	if cs.ChecklistID != nil {
		items, err := s.ListItems(*cs.ChecklistID)
		if err != nil {
			return nil, err
		}
		completed = len(items) > 0
		for _, it := range items {
			if !cs.Responses[it.ID] {
				completed = false
				break
			}
		}
	}
	var completedAt *time.Time
	if completed {
		now := time.Now().UTC()
		completedAt = &now
	}

	if cs.ID == 0 {
		result, err := s.db.Exec(
			`INSERT INTO checkin_sessions (organization_id, family_group_id, checklist_id, session_type, check_date,
			   responses, notes, completed, completed_at, user_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			cs.OrganizationID, nullInt64(cs.FamilyGroupID), nullInt64(cs.ChecklistID), cs.SessionType, cs.CheckDate,
			string(responses), cs.Notes, boolToInt(completed), nullTime(completedAt), nullInt64(cs.UserID),
		)
		if err != nil {
			return nil, fmt.Errorf("insert checkin session: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("last insert id: %w", err)
		}
		return s.GetSession(cs.OrganizationID, id)
	}

	_, err = s.db.Exec(
		`UPDATE checkin_sessions SET family_group_id = ?, checklist_id = ?, session_type = ?, check_date = ?,
		   responses = ?, notes = ?, completed = ?,
		   completed_at = CASE WHEN ? = 1 THEN COALESCE(completed_at, ?) ELSE NULL END,
		   updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND organization_id = ?`,
		nullInt64(cs.FamilyGroupID), nullInt64(cs.ChecklistID), cs.SessionType, cs.CheckDate,
		string(responses), cs.Notes, boolToInt(completed), boolToInt(completed), nullTime(completedAt),
		cs.ID, cs.OrganizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("update checkin session: %w", err)
	}
	return s.GetSession(cs.OrganizationID, cs.ID)
}

func (s *ChecklistStore) GetSession(organizationID, id int64) (*model.CheckinSession, error) {
	row := s.db.QueryRow(
		`SELECT `+checkinSessionCols+` FROM checkin_sessions WHERE id = ? AND organization_id = ?`,
		id, organizationID,
	)
	cs, err := scanCheckinSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkin session: %w", err)
	}
	return cs, nil
}

func (s *ChecklistStore) ListSessions(organizationID int64, familyGroupID *int64) ([]model.CheckinSession, error) {
	query := `SELECT ` + checkinSessionCols + ` FROM checkin_sessions WHERE organization_id = ?`
	args := []any{organizationID}
	if familyGroupID != nil {
		query += ` AND family_group_id = ?`
		args = append(args, *familyGroupID)
	}
	query += ` ORDER BY check_date DESC, id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list checkin sessions: %w", err)
	}
	defer rows.Close()

	var out []model.CheckinSession
	for rows.Next() {
		cs, err := scanCheckinSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkin session: %w", err)
		}
		out = append(out, *cs)
	}
	return out, rows.Err()
}

func (s *ChecklistStore) DeleteSession(organizationID, id int64) error {
	_, err := s.db.Exec(`DELETE FROM checkin_sessions WHERE id = ? AND organization_id = ?`, id, organizationID)
	if err != nil {
		return fmt.Errorf("delete checkin session: %w", err)
	}
	return nil
}
