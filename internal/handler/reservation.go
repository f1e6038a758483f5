package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/cabinshare/internal/auth"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/reservation"
	"github.com/dukerupert/cabinshare/internal/store"
)

// ReservationNotifier announces calendar changes to the organization.
type ReservationNotifier interface {
	ReservationChanged(ctx context.Context, r *model.Reservation, action string, actorID int64)
}

type ReservationHandler struct {
	service *reservation.Service
	store   *store.ReservationStore
	notify  ReservationNotifier
	logger  *slog.Logger
}

func NewReservationHandler(svc *reservation.Service, rs *store.ReservationStore, notifier ReservationNotifier, logger *slog.Logger) *ReservationHandler {
	return &ReservationHandler{service: svc, store: rs, notify: notifier, logger: logger}
}

func (h *ReservationHandler) changed(ctx context.Context, r *model.Reservation, action string) {
	if h.notify != nil {
		h.notify.ReservationChanged(ctx, r, action, auth.UserID(ctx))
	}
}

type reservationRequest struct {
	FamilyGroupID  int64  `json:"family_group_id"`
	HostName       string `json:"host_name"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	GuestCount     int    `json:"guest_count"`
	Notes          string `json:"notes"`
	Status         string `json:"status"`
	SelectionPhase string `json:"selection_phase"`
}

// List handles GET /api/reservations. With family_group_id it lists that
// group's bookings, otherwise the range given by from and to (default: the
// current year).
func (h *ReservationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if fg := q.Get("family_group_id"); fg != "" {
		groupID, err := strconv.ParseInt(fg, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid family_group_id")
			return
		}
		list, err := h.store.ListByFamilyGroup(auth.OrganizationID(ctx), groupID)
		if err != nil {
			h.logger.Error("list reservations by group", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list reservations")
			return
		}
		writeReservations(w, list)
		return
	}

	year := time.Now().Year()
	from, to := q.Get("from"), q.Get("to")
	if from == "" {
		from = time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).Format(model.DateLayout)
	}
	if to == "" {
		to = time.Date(year+1, 1, 1, 0, 0, 0, 0, time.UTC).Format(model.DateLayout)
	}
	list, err := h.service.Calendar(ctx, from, to, q.Get("include_cancelled") == "true")
	if err != nil {
		writeDomainError(w, h.logger, err, "failed to list reservations")
		return
	}
	writeReservations(w, list)
}

func writeReservations(w http.ResponseWriter, list []model.Reservation) {
	if list == nil {
		list = []model.Reservation{}
	}
	writeJSON(w, http.StatusOK, list)
}

// Calendar handles GET /api/calendar?from=&to=.
func (h *ReservationHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	list, err := h.service.Calendar(r.Context(), from, to, false)
	if err != nil {
		writeDomainError(w, h.logger, err, "failed to load calendar")
		return
	}
	writeReservations(w, list)
}

func (h *ReservationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	res, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("get reservation", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get reservation")
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "reservation not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req reservationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	created, err := h.service.Create(ctx, &model.Reservation{
		OrganizationID: auth.OrganizationID(ctx),
		FamilyGroupID:  req.FamilyGroupID,
		HostName:       req.HostName,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		GuestCount:     req.GuestCount,
		Notes:          req.Notes,
		Status:         req.Status,
		SelectionPhase: req.SelectionPhase,
	})
	if err != nil {
		writeDomainError(w, h.logger, err, "failed to create reservation")
		return
	}

	h.changed(ctx, created, "created")
	writeJSON(w, http.StatusCreated, created)
}

func (h *ReservationHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req reservationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	updated, err := h.service.Update(ctx, &model.Reservation{
		ID:         id,
		HostName:   req.HostName,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		GuestCount: req.GuestCount,
		Notes:      req.Notes,
		Status:     req.Status,
	})
	if err != nil {
		writeDomainError(w, h.logger, err, "failed to update reservation")
		return
	}
	if updated == nil {
		writeError(w, http.StatusNotFound, "reservation not found")
		return
	}

	h.changed(ctx, updated, "updated")
	writeJSON(w, http.StatusOK, updated)
}

// Cancel handles POST /api/reservations/{id}/cancel.
func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	res, err := h.service.Cancel(ctx, id)
	if err != nil {
		writeDomainError(w, h.logger, err, "failed to cancel reservation")
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "reservation not found")
		return
	}

	h.changed(ctx, res, "cancelled")
	writeJSON(w, http.StatusOK, res)
}

func (h *ReservationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	existing, err := h.service.Get(ctx, id)
	if err != nil {
		h.logger.Error("get reservation", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get reservation")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "reservation not found")
		return
	}

	if _, err := h.service.Delete(ctx, id); err != nil {
		writeDomainError(w, h.logger, err, "failed to delete reservation")
		return
	}

	h.changed(ctx, existing, "deleted")
	w.WriteHeader(http.StatusNoContent)
}

// StayHistory handles GET /api/reports/stay-history?year=.
func (h *ReservationHandler) StayHistory(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	history, err := h.service.StayHistory(r.Context(), year)
	if err != nil {
		writeDomainError(w, h.logger, err, "failed to load stay history")
		return
	}
	if history == nil {
		history = []model.StayHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rotation_year": year,
		"family_groups": history,
	})
}
