package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Setting keys.
const (
	SettingWeatherLatitude  = "weather_latitude"
	SettingWeatherLongitude = "weather_longitude"
	SettingWeatherUnits     = "weather_units"
	SettingReminderLeadDays = "payment_reminder_lead_days"
	SettingBackupEnabled    = "backup_enabled"
	SettingBackupHour       = "backup_schedule_hour"
	SettingBackupRetention  = "backup_retention_days"
	SettingCabinName        = "cabin_name"
	SettingCheckinTime      = "checkin_time"
	SettingCheckoutTime     = "checkout_time"
)

var defaultSettings = []struct {
	key   string
	value string
}{
	{SettingCabinName, ""},
	{SettingCheckinTime, "15:00"},
	{SettingCheckoutTime, "11:00"},
	{SettingWeatherLatitude, ""},
	{SettingWeatherLongitude, ""},
	{SettingWeatherUnits, "fahrenheit"},
	{SettingReminderLeadDays, "3"},
	{SettingBackupEnabled, "false"},
	{SettingBackupHour, "3"},
	{SettingBackupRetention, "30"},
}

var weatherKeys = []string{
	SettingWeatherLatitude,
	SettingWeatherLongitude,
	SettingWeatherUnits,
}

var backupKeys = []string{
	SettingBackupEnabled,
	SettingBackupHour,
	SettingBackupRetention,
}

type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(organizationID int64, key string) (string, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM settings WHERE organization_id = ? AND key = ?`,
		organizationID, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("setting %q not found", key)
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

func (s *SettingsStore) GetAll(organizationID int64) (map[string]string, error) {
	rows, err := s.db.Query(
		`SELECT key, value FROM settings WHERE organization_id = ? ORDER BY key`,
		organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("get all settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

func (s *SettingsStore) Set(organizationID int64, key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (organization_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(organization_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		organizationID, key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

func (s *SettingsStore) subset(organizationID int64, keys []string) (map[string]string, error) {
	settings := make(map[string]string)
	for _, key := range keys {
		var value string
		err := s.db.QueryRow(
			`SELECT value FROM settings WHERE organization_id = ? AND key = ?`,
			organizationID, key,
		).Scan(&value)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get setting %q: %w", key, err)
		}
		settings[key] = value
	}
	return settings, nil
}

func (s *SettingsStore) GetWeatherSettings(organizationID int64) (map[string]string, error) {
	return s.subset(organizationID, weatherKeys)
}

func (s *SettingsStore) GetBackupSettings(organizationID int64) (map[string]string, error) {
	return s.subset(organizationID, backupKeys)
}
