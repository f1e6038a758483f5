package store

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/dukerupert/cabinshare/internal/model"
)

// DefaultTrialDays applies when an organization is created without a trial code.
const DefaultTrialDays = 14

const joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

type OrganizationStore struct {
	db *sql.DB
}

func NewOrganizationStore(db *sql.DB) *OrganizationStore {
	return &OrganizationStore{db: db}
}

func scanOrganization(scanner interface{ Scan(...any) error }) (*model.Organization, error) {
	var o model.Organization
	var trialEndsAt sql.NullTime
	err := scanner.Scan(
		&o.ID, &o.Name, &o.Code, &o.AdminEmail, &o.TreasurerEmail, &o.CalendarKeeperEmail,
		&o.SubscriptionStatus, &trialEndsAt, &o.StripeCustomerID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.TrialEndsAt = timePtr(trialEndsAt)
	return &o, nil
}

func scanOrganizationMember(scanner interface{ Scan(...any) error }) (*model.OrganizationMember, error) {
	var m model.OrganizationMember
	var groupID sql.NullInt64
	err := scanner.Scan(
		&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &groupID,
		&m.UserEmail, &m.UserName, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.FamilyGroupID = int64Ptr(groupID)
	return &m, nil
}

const organizationCols = `id, name, code, admin_email, treasurer_email, calendar_keeper_email,
	subscription_status, trial_ends_at, stripe_customer_id, created_at, updated_at`

const organizationMemberSelect = `SELECT om.id, om.organization_id, om.user_id, om.role, om.family_group_id,
	u.email, u.name, om.created_at, om.updated_at
	FROM organization_members om JOIN users u ON u.id = om.user_id`

// NewOrganization holds the fields accepted when creating an organization.
type NewOrganization struct {
	Name                string
	AdminEmail          string
	TreasurerEmail      string
	CalendarKeeperEmail string
	TrialCode           string
}

func generateJoinCode() (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(joinCodeAlphabet)))
	for range 6 {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate join code: %w", err)
		}
		b.WriteByte(joinCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// Create inserts the organization, makes creatorID its admin, consumes the
// trial code when given and seeds default settings and checklists, all in one
// transaction. An unknown or exhausted trial code falls back to the default
// trial.
func (s *OrganizationStore) Create(in NewOrganization, creatorID int64) (*model.Organization, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	trialDays := DefaultTrialDays
	if code := strings.ToUpper(strings.TrimSpace(in.TrialCode)); code != "" {
		days, ok, err := consumeTrialCode(tx, code)
		if err != nil {
			return nil, err
		}
		if ok {
			trialDays = days
		}
	}
	trialEndsAt := time.Now().UTC().AddDate(0, 0, trialDays)

	var id int64
	for attempt := 0; ; attempt++ {
		code, err := generateJoinCode()
		if err != nil {
			return nil, err
		}
		result, err := tx.Exec(
			`INSERT INTO organizations (name, code, admin_email, treasurer_email, calendar_keeper_email, subscription_status, trial_ends_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			strings.TrimSpace(in.Name), code, in.AdminEmail, in.TreasurerEmail, in.CalendarKeeperEmail,
			model.SubscriptionTrial, trialEndsAt,
		)
		if err != nil {
			if attempt < 5 && strings.Contains(err.Error(), "UNIQUE") {
				continue
			}
			return nil, fmt.Errorf("insert organization: %w", err)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("last insert id: %w", err)
		}
		break
	}

	if _, err := tx.Exec(
		`INSERT INTO organization_members (organization_id, user_id, role) VALUES (?, ?, ?)`,
		id, creatorID, model.RoleAdmin,
	); err != nil {
		return nil, fmt.Errorf("add creator: %w", err)
	}
	if err := seedDefaults(tx, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

// seedDefaults inserts default settings and empty checklists for a new
// organization.
func seedDefaults(tx *sql.Tx, organizationID int64) error {
	for _, d := range defaultSettings {
		if _, err := tx.Exec(
			`INSERT INTO settings (organization_id, key, value) VALUES (?, ?, ?)`,
			organizationID, d.key, d.value,
		); err != nil {
			return fmt.Errorf("seed setting %q: %w", d.key, err)
		}
	}

	checklists := []struct {
		kind  string
		title string
	}{
		{model.ChecklistArrival, "Arrival"},
		{model.ChecklistDeparture, "Departure"},
	}
	for _, c := range checklists {
		if _, err := tx.Exec(
			`INSERT INTO checklists (organization_id, checklist_type, title) VALUES (?, ?, ?)`,
			organizationID, c.kind, c.title,
		); err != nil {
			return fmt.Errorf("seed checklist %q: %w", c.title, err)
		}
	}
	return nil
}

func (s *OrganizationStore) GetByID(id int64) (*model.Organization, error) {
	row := s.db.QueryRow(`SELECT `+organizationCols+` FROM organizations WHERE id = ?`, id)
	o, err := scanOrganization(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return o, nil
}

func (s *OrganizationStore) GetByCode(code string) (*model.Organization, error) {
	row := s.db.QueryRow(
		`SELECT `+organizationCols+` FROM organizations WHERE code = ?`,
		strings.ToUpper(strings.TrimSpace(code)),
	)
	o, err := scanOrganization(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get organization by code: %w", err)
	}
	return o, nil
}

func (s *OrganizationStore) GetByStripeCustomer(customerID string) (*model.Organization, error) {
	row := s.db.QueryRow(`SELECT `+organizationCols+` FROM organizations WHERE stripe_customer_id = ?`, customerID)
	o, err := scanOrganization(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get organization by stripe customer: %w", err)
	}
	return o, nil
}

func (s *OrganizationStore) Update(id int64, name, adminEmail, treasurerEmail, calendarKeeperEmail string) (*model.Organization, error) {
	_, err := s.db.Exec(
		`UPDATE organizations SET name = ?, admin_email = ?, treasurer_email = ?, calendar_keeper_email = ?,
		 updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		strings.TrimSpace(name), adminEmail, treasurerEmail, calendarKeeperEmail, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update organization: %w", err)
	}
	return s.GetByID(id)
}

func (s *OrganizationStore) SetStripeCustomer(id int64, customerID string) error {
	_, err := s.db.Exec(`UPDATE organizations SET stripe_customer_id = ? WHERE id = ?`, customerID, id)
	if err != nil {
		return fmt.Errorf("set stripe customer: %w", err)
	}
	return nil
}

func (s *OrganizationStore) SetSubscriptionStatus(id int64, status string) error {
	_, err := s.db.Exec(
		`UPDATE organizations SET subscription_status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("set subscription status: %w", err)
	}
	return nil
}

func (s *OrganizationStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM organizations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	return nil
}

// List returns every organization with member, family group and reservation
// counts.
func (s *OrganizationStore) List() ([]model.OrganizationSummary, error) {
	rows, err := s.db.Query(
		`SELECT ` + organizationCols + `,
		   (SELECT COUNT(*) FROM organization_members m WHERE m.organization_id = organizations.id),
		   (SELECT COUNT(*) FROM family_groups g WHERE g.organization_id = organizations.id),
		   (SELECT COUNT(*) FROM reservations r WHERE r.organization_id = organizations.id)
		 FROM organizations ORDER BY name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var out []model.OrganizationSummary
	for rows.Next() {
		var o model.OrganizationSummary
		var trialEndsAt sql.NullTime
		if err := rows.Scan(
			&o.ID, &o.Name, &o.Code, &o.AdminEmail, &o.TreasurerEmail, &o.CalendarKeeperEmail,
			&o.SubscriptionStatus, &trialEndsAt, &o.StripeCustomerID, &o.CreatedAt, &o.UpdatedAt,
			&o.MemberCount, &o.FamilyGroupCount, &o.ReservationCount,
		); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		o.TrialEndsAt = timePtr(trialEndsAt)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *OrganizationStore) ListIDs() ([]int64, error) {
	rows, err := s.db.Query(`SELECT id FROM organizations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list organization ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan organization id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *OrganizationStore) ListForUser(userID int64) ([]model.Organization, error) {
	rows, err := s.db.Query(
		`SELECT o.id, o.name, o.code, o.admin_email, o.treasurer_email, o.calendar_keeper_email,
		   o.subscription_status, o.trial_ends_at, o.stripe_customer_id, o.created_at, o.updated_at
		 FROM organizations o
		 JOIN organization_members om ON o.id = om.organization_id
		 WHERE om.user_id = ?
		 ORDER BY om.created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list organizations for user: %w", err)
	}
	defer rows.Close()

	var orgs []model.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		orgs = append(orgs, *o)
	}
	return orgs, rows.Err()
}

func (s *OrganizationStore) AddMember(organizationID, userID int64, role string, familyGroupID *int64) (*model.OrganizationMember, error) {
	_, err := s.db.Exec(
		`INSERT INTO organization_members (organization_id, user_id, role, family_group_id) VALUES (?, ?, ?, ?)
		 ON CONFLICT(organization_id, user_id) DO UPDATE SET
		   family_group_id = COALESCE(excluded.family_group_id, organization_members.family_group_id),
		   updated_at = CURRENT_TIMESTAMP`,
		organizationID, userID, role, nullInt64(familyGroupID),
	)
	if err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	return s.GetMember(organizationID, userID)
}

func (s *OrganizationStore) GetMember(organizationID, userID int64) (*model.OrganizationMember, error) {
	row := s.db.QueryRow(
		organizationMemberSelect+` WHERE om.organization_id = ? AND om.user_id = ?`,
		organizationID, userID,
	)
	m, err := scanOrganizationMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (s *OrganizationStore) ListMembers(organizationID int64) ([]model.OrganizationMember, error) {
	rows, err := s.db.Query(
		organizationMemberSelect+` WHERE om.organization_id = ? ORDER BY om.created_at ASC`,
		organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.OrganizationMember
	for rows.Next() {
		m, err := scanOrganizationMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *OrganizationStore) CountAdmins(organizationID int64) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM organization_members WHERE organization_id = ? AND role = ?`,
		organizationID, model.RoleAdmin,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return n, nil
}

func (s *OrganizationStore) UpdateMember(organizationID, userID int64, role string, familyGroupID *int64) (*model.OrganizationMember, error) {
	_, err := s.db.Exec(
		`UPDATE organization_members SET role = ?, family_group_id = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE organization_id = ? AND user_id = ?`,
		role, nullInt64(familyGroupID), organizationID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update member: %w", err)
	}
	return s.GetMember(organizationID, userID)
}

func (s *OrganizationStore) RemoveMember(organizationID, userID int64) error {
	_, err := s.db.Exec(
		`DELETE FROM organization_members WHERE organization_id = ? AND user_id = ?`,
		organizationID, userID,
	)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}
