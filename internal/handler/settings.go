package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"

	"github.com/dukerupert/cabinshare/internal/auth"
	"github.com/dukerupert/cabinshare/internal/store"
)

var timeFormatRegexp = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

type SettingsHandler struct {
	settingsStore *store.SettingsStore
	events        Broadcaster
	logger        *slog.Logger
}

func NewSettingsHandler(ss *store.SettingsStore, events Broadcaster, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{settingsStore: ss, events: orNop(events), logger: logger}
}

// Get handles GET /api/settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settingsStore.GetAll(auth.OrganizationID(r.Context()))
	if err != nil {
		h.logger.Error("get settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// Update handles PUT /api/settings with a partial key/value map.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	var req map[string]string
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := validateSettings(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	for key, value := range req {
		if err := h.settingsStore.Set(orgID, key, value); err != nil {
			h.logger.Error("save setting", "key", key, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
	}

	h.events.Changed(orgID, "settings", "updated", 0)

	settings, err := h.settingsStore.GetAll(orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func validateSettings(settings map[string]string) error {
	for key, value := range settings {
		switch key {
		case store.SettingCabinName:
			if len(value) > 100 {
				return fmt.Errorf("cabin_name must be at most 100 characters")
			}
		case store.SettingWeatherLatitude:
			if err := validateCoordinate(key, value, 90); err != nil {
				return err
			}
		case store.SettingWeatherLongitude:
			if err := validateCoordinate(key, value, 180); err != nil {
				return err
			}
		case store.SettingWeatherUnits:
			if value != "fahrenheit" && value != "celsius" {
				return fmt.Errorf("weather_units must be fahrenheit or celsius")
			}
		case store.SettingReminderLeadDays:
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 || n > 30 {
				return fmt.Errorf("%s must be 0-30", key)
			}
		case store.SettingBackupEnabled:
			if value != "true" && value != "false" {
				return fmt.Errorf("%s must be \"true\" or \"false\"", key)
			}
		case store.SettingBackupHour:
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 || n > 23 {
				return fmt.Errorf("%s must be 0-23", key)
			}
		case store.SettingBackupRetention:
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 || n > 365 {
				return fmt.Errorf("%s must be 1-365", key)
			}
		case store.SettingCheckinTime, store.SettingCheckoutTime:
			if !timeFormatRegexp.MatchString(value) {
				return fmt.Errorf("%s must be HH:MM format", key)
			}
		default:
			return fmt.Errorf("unknown setting: %s", key)
		}
	}
	return nil
}

func validateCoordinate(key, value string, limit float64) error {
	if value == "" {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f < -limit || f > limit {
		return fmt.Errorf("%s must be between %g and %g", key, -limit, limit)
	}
	return nil
}
