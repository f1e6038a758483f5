package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/cabinshare/internal/auth"
	"github.com/dukerupert/cabinshare/internal/bill"
	"github.com/dukerupert/cabinshare/internal/ledger"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/store"
	"github.com/dukerupert/cabinshare/internal/weather"
)

const (
	dashboardReservations = 10
	dashboardBillDays     = 14
)

// DashboardStores are the stores the dashboard reads.
type DashboardStores struct {
	Reservations *store.ReservationStore
	Rotations    *store.RotationStore
	Notes        *store.NoteStore
	Payments     *store.PaymentStore
	Groups       *store.FamilyGroupStore
	Settings     *store.SettingsStore
}

type DashboardHandler struct {
	stores  DashboardStores
	bills   *BillHandler
	weather *weather.Service
	logger  *slog.Logger
}

func NewDashboardHandler(stores DashboardStores, bills *BillHandler, ws *weather.Service, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{stores: stores, bills: bills, weather: ws, logger: logger}
}

type dashboard struct {
	UpcomingReservations []model.Reservation     `json:"upcoming_reservations"`
	CurrentTurns         []model.SelectionStatus `json:"current_turns"`
	PinnedNotes          []model.SharedNote      `json:"pinned_notes"`
	OutstandingCents     int64                   `json:"outstanding_cents"`
	BillsDue             []model.BillView        `json:"bills_due"`
	Weather              weather.WeatherData     `json:"weather"`
}

// Get handles GET /api/dashboard.
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := auth.OrganizationID(ctx)
	d, err := h.load(ctx, orgID, time.Now())
	if err != nil {
		h.logger.Error("load dashboard", "organization_id", orgID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *DashboardHandler) load(ctx context.Context, orgID int64, now time.Time) (*dashboard, error) {
	today := now.Format(model.DateLayout)
	d := &dashboard{}
	var err error

	if d.UpcomingReservations, err = h.stores.Reservations.ListUpcoming(orgID, today, dashboardReservations); err != nil {
		return nil, err
	}
	if d.CurrentTurns, err = h.stores.Rotations.ListActive(orgID); err != nil {
		return nil, err
	}
	if d.PinnedNotes, err = h.stores.Notes.ListPinned(orgID); err != nil {
		return nil, err
	}

	payments, err := h.stores.Payments.List(orgID, nil)
	if err != nil {
		return nil, err
	}
	groups, err := h.stores.Groups.List(orgID)
	if err != nil {
		return nil, err
	}
	for _, s := range ledger.Summarize(payments, groups) {
		d.OutstandingCents += s.OutstandingCents
	}

	views, err := h.bills.Views(orgID, true)
	if err != nil {
		return nil, err
	}
	d.BillsDue = bill.Upcoming(views, now, dashboardBillDays)

	ws, err := h.stores.Settings.GetWeatherSettings(orgID)
	if err != nil {
		return nil, err
	}
	d.Weather = h.weather.GetWeather(ctx, weather.Location{
		Latitude:        ws[store.SettingWeatherLatitude],
		Longitude:       ws[store.SettingWeatherLongitude],
		TemperatureUnit: ws[store.SettingWeatherUnits],
	})

	if d.UpcomingReservations == nil {
		d.UpcomingReservations = []model.Reservation{}
	}
	if d.CurrentTurns == nil {
		d.CurrentTurns = []model.SelectionStatus{}
	}
	if d.PinnedNotes == nil {
		d.PinnedNotes = []model.SharedNote{}
	}
	if d.BillsDue == nil {
		d.BillsDue = []model.BillView{}
	}
	return d, nil
}

// Weather handles GET /api/weather.
func (h *DashboardHandler) Weather(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	ws, err := h.stores.Settings.GetWeatherSettings(orgID)
	if err != nil {
		h.logger.Error("get weather settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get weather")
		return
	}
	writeJSON(w, http.StatusOK, h.weather.GetWeather(r.Context(), weather.Location{
		Latitude:        ws[store.SettingWeatherLatitude],
		Longitude:       ws[store.SettingWeatherLongitude],
		TemperatureUnit: ws[store.SettingWeatherUnits],
	}))
}
