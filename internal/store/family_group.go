package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/cabinshare/internal/model"
)

type FamilyGroupStore struct {
	db *sql.DB
}

func NewFamilyGroupStore(db *sql.DB) *FamilyGroupStore {
	return &FamilyGroupStore{db: db}
}

func scanFamilyGroup(scanner interface{ Scan(...any) error }) (*model.FamilyGroup, error) {
	var g model.FamilyGroup
	err := scanner.Scan(
		&g.ID, &g.OrganizationID, &g.Name, &g.LeadName, &g.LeadEmail, &g.LeadPhone,
		&g.Color, &g.Shares, &g.SortOrder, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

const familyGroupCols = `id, organization_id, name, lead_name, lead_email, lead_phone, color, shares, sort_order, created_at, updated_at`

func (s *FamilyGroupStore) Create(g *model.FamilyGroup) (*model.FamilyGroup, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var maxSort int
	if err := tx.QueryRow(
		`SELECT COALESCE(MAX(sort_order), -1) FROM family_groups WHERE organization_id = ?`,
		g.OrganizationID,
	).Scan(&maxSort); err != nil {
		return nil, fmt.Errorf("max sort order: %w", err)
	}

	result, err := tx.Exec(
		`INSERT INTO family_groups (organization_id, name, lead_name, lead_email, lead_phone, color, shares, sort_order)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.OrganizationID, strings.TrimSpace(g.Name), g.LeadName, g.LeadEmail, g.LeadPhone,
		g.Color, g.Shares, maxSort+1,
	)
	if err != nil {
		return nil, fmt.Errorf("insert family group: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	if err := replaceHostMembers(tx, id, g.HostMembers); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(g.OrganizationID, id)
}

func (s *FamilyGroupStore) GetByID(organizationID, id int64) (*model.FamilyGroup, error) {
	row := s.db.QueryRow(
		`SELECT `+familyGroupCols+` FROM family_groups WHERE id = ? AND organization_id = ?`,
		id, organizationID,
	)
	g, err := scanFamilyGroup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family group: %w", err)
	}
	hosts, err := s.listHostMembers(id)
	if err != nil {
		return nil, err
	}
	g.HostMembers = hosts
	return g, nil
}

// List returns the organization's family groups in sort order, host members
// included.
func (s *FamilyGroupStore) List(organizationID int64) ([]model.FamilyGroup, error) {
	rows, err := s.db.Query(
		`SELECT `+familyGroupCols+` FROM family_groups WHERE organization_id = ? ORDER BY sort_order ASC, id ASC`,
		organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list family groups: %w", err)
	}
	var groups []model.FamilyGroup
	for rows.Next() {
		g, err := scanFamilyGroup(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan family group: %w", err)
		}
		groups = append(groups, *g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range groups {
		hosts, err := s.listHostMembers(groups[i].ID)
		if err != nil {
			return nil, err
		}
		groups[i].HostMembers = hosts
	}
	return groups, nil
}

func (s *FamilyGroupStore) Update(g *model.FamilyGroup) (*model.FamilyGroup, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`UPDATE family_groups SET name = ?, lead_name = ?, lead_email = ?, lead_phone = ?, color = ?, shares = ?,
		 updated_at = CURRENT_TIMESTAMP WHERE id = ? AND organization_id = ?`,
		strings.TrimSpace(g.Name), g.LeadName, g.LeadEmail, g.LeadPhone, g.Color, g.Shares,
		g.ID, g.OrganizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("update family group: %w", err)
	}
	if g.HostMembers != nil {
		if err := replaceHostMembers(tx, g.ID, g.HostMembers); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(g.OrganizationID, g.ID)
}

// Delete removes a family group. It returns ErrInUse while reservations
// still reference the group.
func (s *FamilyGroupStore) Delete(organizationID, id int64) error {
	var n int
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM reservations WHERE family_group_id = ? AND organization_id = ?`,
		id, organizationID,
	).Scan(&n); err != nil {
		return fmt.Errorf("count reservations: %w", err)
	}
	if n > 0 {
		return ErrInUse
	}
	_, err := s.db.Exec(`DELETE FROM family_groups WHERE id = ? AND organization_id = ?`, id, organizationID)
	if err != nil {
		return fmt.Errorf("delete family group: %w", err)
	}
	return nil
}

// UpdateSortOrder sets sort_order to the position of each id in ids.
func (s *FamilyGroupStore) UpdateSortOrder(organizationID int64, ids []int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for i, id := range ids {
		if _, err := tx.Exec(
			`UPDATE family_groups SET sort_order = ? WHERE id = ? AND organization_id = ?`,
			i, id, organizationID,
		); err != nil {
			return fmt.Errorf("update sort order: %w", err)
		}
	}
	return tx.Commit()
}

// NameExists checks whether another group of the organization already uses name.
func (s *FamilyGroupStore) NameExists(organizationID int64, name string, excludeID int64) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM family_groups WHERE organization_id = ? AND name = ? AND id != ?`,
		organizationID, strings.TrimSpace(name), excludeID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check name exists: %w", err)
	}
	return n > 0, nil
}

// IDs returns the set of family group ids owned by the organization.
func (s *FamilyGroupStore) IDs(organizationID int64) (map[int64]bool, error) {
	rows, err := s.db.Query(`SELECT id FROM family_groups WHERE organization_id = ?`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list family group ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan family group id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

func (s *FamilyGroupStore) listHostMembers(familyGroupID int64) ([]model.HostMember, error) {
	rows, err := s.db.Query(
		`SELECT id, family_group_id, name, email, phone, can_host, created_at
		 FROM host_members WHERE family_group_id = ? ORDER BY id ASC`,
		familyGroupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list host members: %w", err)
	}
	defer rows.Close()

	hosts := []model.HostMember{}
	for rows.Next() {
		var h model.HostMember
		var canHost int
		if err := rows.Scan(&h.ID, &h.FamilyGroupID, &h.Name, &h.Email, &h.Phone, &canHost, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan host member: %w", err)
		}
		h.CanHost = canHost != 0
		hosts = append(hosts, h)
	}
	return hosts, rows.Err()
}

func replaceHostMembers(tx *sql.Tx, familyGroupID int64, hosts []model.HostMember) error {
	if _, err := tx.Exec(`DELETE FROM host_members WHERE family_group_id = ?`, familyGroupID); err != nil {
		return fmt.Errorf("clear host members: %w", err)
	}
	for _, h := range hosts {
		if strings.TrimSpace(h.Name) == "" {
			continue
		}
		if _, err := tx.Exec(
			`INSERT INTO host_members (family_group_id, name, email, phone, can_host) VALUES (?, ?, ?, ?, ?)`,
			familyGroupID, strings.TrimSpace(h.Name), h.Email, h.Phone, boolToInt(h.CanHost),
		); err != nil {
			return fmt.Errorf("insert host member: %w", err)
		}
	}
	return nil
}
