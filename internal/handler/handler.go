// Package handler holds the JSON HTTP handlers. Every org-scoped handler
// reads the active organization from the auth context; routing and role
// checks live in internal/server.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/cabinshare/internal/backup"
	"github.com/dukerupert/cabinshare/internal/billing"
	"github.com/dukerupert/cabinshare/internal/checklist"
	"github.com/dukerupert/cabinshare/internal/ledger"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/objectstore"
	"github.com/dukerupert/cabinshare/internal/reservation"
	"github.com/dukerupert/cabinshare/internal/rotation"
	"github.com/dukerupert/cabinshare/internal/selection"
	"github.com/dukerupert/cabinshare/internal/store"
)

// Broadcaster publishes change events to the organization's websocket
// clients.
type Broadcaster interface {
	Changed(organizationID int64, entity, action string, id int64)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Changed(int64, string, string, int64) {}

func orNop(b Broadcaster) Broadcaster {
	if b == nil {
		return nopBroadcaster{}
	}
	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func parseInt64Param(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

// parseYear reads a rotation year from the path value or query parameter
// "year", defaulting to the current year when both are absent.
func parseYear(r *http.Request) (int, error) {
	s := r.PathValue("year")
	if s == "" {
		s = r.URL.Query().Get("year")
	}
	if s == "" {
		return time.Now().Year(), nil
	}
	year, err := strconv.Atoi(s)
	if err != nil || year < 2000 || year > 2200 {
		return 0, errors.New("invalid year")
	}
	return year, nil
}

func today() string {
	return time.Now().Format(model.DateLayout)
}

// statusFor maps domain errors to HTTP statuses. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrOverlap),
		errors.Is(err, store.ErrStaleTurn),
		errors.Is(err, store.ErrInUse),
		errors.Is(err, store.ErrSelectionRunning):
		return http.StatusConflict
	case errors.Is(err, reservation.ErrForbidden),
		errors.Is(err, reservation.ErrNoFamilyGroup),
		errors.Is(err, reservation.ErrPhaseUnavailable),
		errors.Is(err, selection.ErrNotYourTurn),
		errors.Is(err, selection.ErrNoAllowance):
		return http.StatusForbidden
	case errors.Is(err, reservation.ErrInvalidDates),
		errors.Is(err, reservation.ErrTooManyNights),
		errors.Is(err, reservation.ErrInvalidStatus),
		errors.Is(err, reservation.ErrInvalidPhase),
		errors.Is(err, reservation.ErrUnknownGroup),
		errors.Is(err, reservation.ErrGuestCount),
		errors.Is(err, selection.ErrInvalidPhase),
		errors.Is(err, selection.ErrNotStarted),
		errors.Is(err, selection.ErrPrimaryNotEnded),
		errors.Is(err, selection.ErrSecondaryDisabled),
		errors.Is(err, selection.ErrDeadlineInPast),
		errors.Is(err, rotation.ErrEmptyOrder),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrOverpaid),
		errors.Is(err, ledger.ErrNegativePaid),
		errors.Is(err, store.ErrImageNotFound),
		errors.Is(err, checklist.ErrInvalidType),
		errors.Is(err, checklist.ErrNoItems),
		errors.Is(err, checklist.ErrNotDocx),
		errors.Is(err, backup.ErrNotCompleted):
		return http.StatusBadRequest
	case errors.Is(err, selection.ErrNoRotationOrder),
		errors.Is(err, backup.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, objectstore.ErrNotConfigured),
		errors.Is(err, billing.ErrNotConfigured),
		errors.Is(err, backup.ErrNoPassphrase):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeDomainError writes err with the status statusFor picks. Server errors
// are logged and replaced by fallback.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error, fallback string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(fallback, "error", err)
		writeError(w, status, fallback)
		return
	}
	writeError(w, status, err.Error())
}
