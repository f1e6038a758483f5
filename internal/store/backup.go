package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/cabinshare/internal/model"
)

type BackupStore struct {
	db *sql.DB
}

func NewBackupStore(db *sql.DB) *BackupStore {
	return &BackupStore{db: db}
}

func scanBackup(scanner interface{ Scan(...any) error }) (*model.Backup, error) {
	b := &model.Backup{}
	var errMsg sql.NullString
	var startedAt, completedAt sql.NullTime
	err := scanner.Scan(
		&b.ID, &b.OrganizationID, &b.Kind, &b.Filename, &b.ObjectKey, &b.SizeBytes, &b.Status,
		&errMsg, &startedAt, &completedAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.ErrorMessage = errMsg.String
	b.StartedAt = timePtr(startedAt)
	b.CompletedAt = timePtr(completedAt)
	return b, nil
}

const backupCols = `id, organization_id, kind, filename, object_key, size_bytes, status, error_message,
	started_at, completed_at, created_at, updated_at`

func (s *BackupStore) Create(organizationID int64, kind, filename, objectKey string) (*model.Backup, error) {
	now := time.Now().UTC()
	result, err := s.db.Exec(
		`INSERT INTO backup_metadata (organization_id, kind, filename, object_key, status, started_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		organizationID, kind, filename, objectKey, model.BackupStatusPending, now, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create backup: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &model.Backup{
		ID:             id,
		OrganizationID: organizationID,
		Kind:           kind,
		Filename:       filename,
		ObjectKey:      objectKey,
		Status:         model.BackupStatusPending,
		StartedAt:      &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// GetByID returns a backup regardless of organization; callers restricted to
// one organization check OrganizationID themselves.
func (s *BackupStore) GetByID(id int64) (*model.Backup, error) {
	row := s.db.QueryRow(`SELECT `+backupCols+` FROM backup_metadata WHERE id = ?`, id)
	b, err := scanBackup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get backup %d: %w", id, err)
	}
	return b, nil
}

// List returns the newest backups, for one organization when organizationID
// is non-zero.
func (s *BackupStore) List(organizationID int64, limit int) ([]model.Backup, error) {
	query := `SELECT ` + backupCols + ` FROM backup_metadata`
	args := []any{}
	if organizationID != 0 {
		query += ` WHERE organization_id = ?`
		args = append(args, organizationID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	var backups []model.Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		backups = append(backups, *b)
	}
	return backups, rows.Err()
}

func (s *BackupStore) UpdateStatus(id int64, status model.BackupStatus, errorMsg string) error {
	var errPtr *string
	if errorMsg != "" {
		errPtr = &errorMsg
	}
	_, err := s.db.Exec(
		`UPDATE backup_metadata SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		status, errPtr, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update backup status: %w", err)
	}
	return nil
}

func (s *BackupStore) UpdateCompleted(id, sizeBytes int64) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE backup_metadata SET status = ?, size_bytes = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		model.BackupStatusCompleted, sizeBytes, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("update backup completed: %w", err)
	}
	return nil
}

// DeleteOlderThan deletes backups older than the given time and returns the object keys of deleted backups.
func (s *BackupStore) DeleteOlderThan(organizationID int64, before time.Time) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT object_key FROM backup_metadata WHERE organization_id = ? AND created_at < ?`,
		organizationID, before.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("select old backups: %w", err)
	}
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan object key: %w", err)
		}
		keys = append(keys, key)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	_, err = s.db.Exec(
		`DELETE FROM backup_metadata WHERE organization_id = ? AND created_at < ?`,
		organizationID, before.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("delete old backups: %w", err)
	}
	return keys, nil
}

func (s *BackupStore) LatestCompleted(organizationID int64) (*model.Backup, error) {
	row := s.db.QueryRow(
		`SELECT `+backupCols+` FROM backup_metadata WHERE organization_id = ? AND status = ?
		 ORDER BY completed_at DESC LIMIT 1`,
		organizationID, model.BackupStatusCompleted,
	)
	b, err := scanBackup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest completed backup: %w", err)
	}
	return b, nil
}
