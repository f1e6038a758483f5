// Package backup exports an organization's rows as encrypted JSON snapshots
// kept in object storage, and restores parts of them.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/dukerupert/cabinshare/internal/metrics"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/objectstore"
	"github.com/dukerupert/cabinshare/internal/store"
)

// Backup kinds.
const (
	KindManual    = "manual"
	KindScheduled = "scheduled"
)

// SnapshotVersion is written into every snapshot.
const SnapshotVersion = 1

var (
	ErrNoPassphrase    = errors.New("backup passphrase not configured")
	ErrNotFound        = errors.New("backup not found")
	ErrNotCompleted    = errors.New("backup has not completed")
	ErrUnsupportedData = errors.New("unsupported snapshot version")
)

// State represents the backup manager state.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

// Status holds the current backup manager status.
type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	Error      string     `json:"error,omitempty"`
	InProgress bool       `json:"in_progress"`
}

// StatusCallback is called whenever the backup state changes.
type StatusCallback func(Status)

// Snapshot is the decrypted content of a backup.
type Snapshot struct {
	Version        int                          `json:"version"`
	OrganizationID int64                        `json:"organization_id"`
	CreatedAt      time.Time                    `json:"created_at"`
	Tables         map[string][]json.RawMessage `json:"tables"`
}

// Rows returns the number of rows of a table in the snapshot.
func (s *Snapshot) Rows(table string) int {
	return len(s.Tables[table])
}

type Stores struct {
	Backups       *store.BackupStore
	Exports       *store.ExportStore
	Settings      *store.SettingsStore
	Organizations *store.OrganizationStore
	Reservations  *store.ReservationStore
	FamilyGroups  *store.FamilyGroupStore
}

// Manager creates, lists and restores encrypted organization backups.
type Manager struct {
	mu       sync.RWMutex
	status   Status
	callback StatusCallback

	stores     Stores
	objects    *objectstore.Store
	passphrase string
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a new backup manager.
func NewManager(stores Stores, objects *objectstore.Store, passphrase string, m *metrics.Metrics, logger *slog.Logger, callback StatusCallback) *Manager {
	mgr := &Manager{
		stores:     stores,
		objects:    objects,
		passphrase: passphrase,
		metrics:    m,
		logger:     logger,
		callback:   callback,
		now:        time.Now,
		status:     Status{State: StateDisabled},
	}
	if objects.Configured() && passphrase != "" {
		mgr.status.State = StateIdle
	}
	return mgr
}

// Status returns the current backup status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
	if m.callback != nil {
		m.callback(s)
	}
}

func (m *Manager) ready() error {
	if !m.objects.Configured() {
		return objectstore.ErrNotConfigured
	}
	if m.passphrase == "" {
		return ErrNoPassphrase
	}
	return nil
}

// Create exports the organization, encrypts the export and uploads it.
func (m *Manager) Create(ctx context.Context, organizationID int64, kind string) (*model.Backup, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	now := m.now().UTC()
	filename := fmt.Sprintf("backup-%s.json.enc", now.Format("2006-01-02T150405Z"))
	key := fmt.Sprintf("orgs/%d/backups/%s", organizationID, filename)

	record, err := m.stores.Backups.Create(organizationID, kind, filename, key)
	if err != nil {
		return nil, fmt.Errorf("create backup record: %w", err)
	}
	m.setStatus(Status{State: StateRunning, InProgress: true})

	size, err := m.upload(ctx, record, now)
	if err != nil {
		if uerr := m.stores.Backups.UpdateStatus(record.ID, model.BackupStatusFailed, err.Error()); uerr != nil {
			m.logger.Error("mark backup failed", "backup_id", record.ID, "error", uerr)
		}
		m.setStatus(Status{State: StateError, Error: err.Error()})
		m.metrics.Backup(err)
		return nil, err
	}
	if err := m.stores.Backups.UpdateCompleted(record.ID, size); err != nil {
		return nil, err
	}
	m.setStatus(Status{State: StateIdle, LastBackup: &now})
	m.metrics.Backup(nil)
	m.logger.Info("backup completed", "organization_id", organizationID, "backup_id", record.ID, "kind", kind, "bytes", size)
	return m.stores.Backups.GetByID(record.ID)
}

func (m *Manager) upload(ctx context.Context, record *model.Backup, now time.Time) (int64, error) {
	tables, err := m.stores.Exports.Organization(record.OrganizationID)
	if err != nil {
		return 0, err
	}
	plaintext, err := json.Marshal(struct {
		Version        int                         `json:"version"`
		OrganizationID int64                       `json:"organization_id"`
		CreatedAt      time.Time                   `json:"created_at"`
		Tables         map[string][]map[string]any `json:"tables"`
	}{SnapshotVersion, record.OrganizationID, now, tables})
	if err != nil {
		return 0, fmt.Errorf("marshal snapshot: %w", err)
	}
	sealed, err := Encrypt(plaintext, m.passphrase)
	if err != nil {
		return 0, fmt.Errorf("encrypt: %w", err)
	}
	if err := m.stores.Backups.UpdateStatus(record.ID, model.BackupStatusUploading, ""); err != nil {
		return 0, err
	}
	if err := m.objects.Put(ctx, record.ObjectKey, bytes.NewReader(sealed), int64(len(sealed)), "application/octet-stream"); err != nil {
		return 0, err
	}
	return int64(len(sealed)), nil
}

// List returns the newest backups, for one organization when organizationID
// is non-zero.
func (m *Manager) List(organizationID int64, limit int) ([]model.Backup, error) {
	if limit <= 0 {
		limit = 50
	}
	return m.stores.Backups.List(organizationID, limit)
}

func (m *Manager) completed(backupID int64) (*model.Backup, error) {
	record, err := m.stores.Backups.GetByID(backupID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNotFound
	}
	if record.Status != model.BackupStatusCompleted {
		return nil, ErrNotCompleted
	}
	return record, nil
}

// Download streams the encrypted object of a backup.
func (m *Manager) Download(ctx context.Context, backupID int64) (io.ReadCloser, *model.Backup, error) {
	record, err := m.completed(backupID)
	if err != nil {
		return nil, nil, err
	}
	body, err := m.objects.Get(ctx, record.ObjectKey)
	if err != nil {
		return nil, nil, err
	}
	return body, record, nil
}

// Load downloads and decrypts a backup.
func (m *Manager) Load(ctx context.Context, backupID int64) (*Snapshot, *model.Backup, error) {
	if err := m.ready(); err != nil {
		return nil, nil, err
	}
	body, record, err := m.Download(ctx, backupID)
	if err != nil {
		return nil, nil, err
	}
	defer body.Close()
	sealed, err := io.ReadAll(body)
	if err != nil {
		return nil, nil, fmt.Errorf("read backup: %w", err)
	}
	plaintext, err := Decrypt(sealed, m.passphrase)
	if err != nil {
		return nil, nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(plaintext, &snap); err != nil {
		return nil, nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != SnapshotVersion {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedData, snap.Version)
	}
	return &snap, record, nil
}

// reservationRow holds the restorable columns of an exported reservation.
type reservationRow struct {
	FamilyGroupID  int64  `json:"family_group_id"`
	HostName       string `json:"host_name"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	GuestCount     int    `json:"guest_count"`
	Notes          string `json:"notes"`
	Status         string `json:"status"`
	SelectionPhase string `json:"selection_phase"`
	RotationYear   int    `json:"rotation_year"`
}

func (r reservationRow) reservation() model.Reservation {
	return model.Reservation{
		FamilyGroupID:  r.FamilyGroupID,
		HostName:       r.HostName,
		StartDate:      r.StartDate,
		EndDate:        r.EndDate,
		GuestCount:     r.GuestCount,
		Notes:          r.Notes,
		Status:         r.Status,
		SelectionPhase: r.SelectionPhase,
		RotationYear:   r.RotationYear,
	}
}

// RestoreResult reports what a stay history restore did.
type RestoreResult struct {
	Restored int `json:"restored"`
	Skipped  int `json:"skipped"`
}

// RestoreStayHistory replaces the reservations starting in year with those
// in the backup. Reservations of family groups that no longer exist are
// skipped. Rotation allowance is left alone.
func (m *Manager) RestoreStayHistory(ctx context.Context, backupID int64, year int) (*RestoreResult, error) {
	snap, record, err := m.Load(ctx, backupID)
	if err != nil {
		return nil, err
	}
	known, err := m.stores.FamilyGroups.IDs(record.OrganizationID)
	if err != nil {
		return nil, err
	}

	prefix := strconv.Itoa(year) + "-"
	result := &RestoreResult{}
	var keep []model.Reservation
	for _, raw := range snap.Tables["reservations"] {
		var row reservationRow
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("decode reservation: %w", err)
		}
		r := row.reservation()
		if len(r.StartDate) < len(prefix) || r.StartDate[:len(prefix)] != prefix {
			continue
		}
		if !known[r.FamilyGroupID] {
			result.Skipped++
			continue
		}
		keep = append(keep, r)
	}

	n, err := m.stores.Reservations.ReplaceYear(record.OrganizationID, year, keep)
	if err != nil {
		return nil, err
	}
	result.Restored = n
	m.logger.Info("stay history restored", "organization_id", record.OrganizationID, "backup_id", backupID,
		"year", year, "restored", result.Restored, "skipped", result.Skipped)
	return result, nil
}

// Cleanup deletes backups older than the retention period.
func (m *Manager) Cleanup(ctx context.Context, organizationID int64, retentionDays int) error {
	before := m.now().UTC().AddDate(0, 0, -retentionDays)
	keys, err := m.stores.Backups.DeleteOlderThan(organizationID, before)
	if err != nil {
		return fmt.Errorf("delete old backups: %w", err)
	}
	for _, key := range keys {
		if err := m.objects.Delete(ctx, key); err != nil {
			m.logger.Warn("delete backup object", "key", key, "error", err)
		}
	}
	return nil
}

// Start begins the scheduled backup loop.
func (m *Manager) Start(ctx context.Context, interval time.Duration) {
	m.mu.Lock()
	if m.status.State == StateDisabled {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkSchedule(ctx)
			}
		}
	}()
}

// Stop gracefully stops the backup manager.
func (m *Manager) Stop() {
	m.mu.RLock()
	cancel := m.cancel
	done := m.done
	m.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// checkSchedule backs up every organization with backups enabled whose
// scheduled hour has come and that has no completed backup yet today.
func (m *Manager) checkSchedule(ctx context.Context) {
	now := m.now().UTC()
	ids, err := m.stores.Organizations.ListIDs()
	if err != nil {
		m.logger.Error("backup schedule: list organizations", "error", err)
		return
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		settings, err := m.stores.Settings.GetBackupSettings(id)
		if err != nil {
			m.logger.Error("backup schedule: settings", "organization_id", id, "error", err)
			continue
		}
		if settings[store.SettingBackupEnabled] != "true" {
			continue
		}
		hour, _ := strconv.Atoi(settings[store.SettingBackupHour])
		if now.Hour() < hour {
			continue
		}
		latest, err := m.stores.Backups.LatestCompleted(id)
		if err != nil {
			m.logger.Error("backup schedule: latest backup", "organization_id", id, "error", err)
			continue
		}
		if latest != nil && latest.CompletedAt != nil && sameDay(*latest.CompletedAt, now) {
			continue
		}

		if _, err := m.Create(ctx, id, KindScheduled); err != nil {
			m.logger.Error("scheduled backup failed", "organization_id", id, "error", err)
			continue
		}
		retention, _ := strconv.Atoi(settings[store.SettingBackupRetention])
		if retention <= 0 {
			retention = 30
		}
		if err := m.Cleanup(ctx, id, retention); err != nil {
			m.logger.Error("backup cleanup failed", "organization_id", id, "error", err)
		}
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
