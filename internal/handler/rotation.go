package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/cabinshare/internal/auth"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/rotation"
	"github.com/dukerupert/cabinshare/internal/selection"
	"github.com/dukerupert/cabinshare/internal/store"
)

// RotationHandler serves rotation orders and the selection turn endpoints.
type RotationHandler struct {
	rotationStore    *store.RotationStore
	familyGroupStore *store.FamilyGroupStore
	selection        *selection.Service
	events           Broadcaster
	logger           *slog.Logger
}

func NewRotationHandler(rs *store.RotationStore, fgs *store.FamilyGroupStore, sel *selection.Service, events Broadcaster, logger *slog.Logger) *RotationHandler {
	return &RotationHandler{rotationStore: rs, familyGroupStore: fgs, selection: sel, events: orNop(events), logger: logger}
}

type rotationOrderRequest struct {
	Order               []int64 `json:"order"`
	MaxTimeSlots        int     `json:"max_time_slots"`
	MaxNights           int     `json:"max_nights"`
	SelectionDays       int     `json:"selection_days"`
	SecondaryEnabled    bool    `json:"secondary_enabled"`
	SecondaryMaxPeriods int     `json:"secondary_max_periods"`
}

func (req *rotationOrderRequest) validate() string {
	switch {
	case req.MaxTimeSlots < 1:
		return "max_time_slots must be at least 1"
	case req.MaxNights < 0:
		return "max_nights must not be negative"
	case req.SelectionDays < 0:
		return "selection_days must not be negative"
	case req.SecondaryEnabled && req.SecondaryMaxPeriods < 1:
		return "secondary_max_periods must be at least 1 when secondary selection is enabled"
	}
	return ""
}

func (h *RotationHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.rotationStore.ListOrders(auth.OrganizationID(r.Context()))
	if err != nil {
		h.logger.Error("list rotation orders", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list rotation orders")
		return
	}
	if orders == nil {
		orders = []model.RotationOrder{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *RotationHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	o, err := h.rotationStore.GetOrder(auth.OrganizationID(r.Context()), year)
	if err != nil {
		h.logger.Error("get rotation order", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get rotation order")
		return
	}
	if o == nil {
		writeError(w, http.StatusNotFound, "rotation order not found")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// SaveOrder handles PUT /api/rotation-orders/{year}.
func (h *RotationHandler) SaveOrder(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	year, err := parseYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req rotationOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	saved, ok := h.save(w, &model.RotationOrder{
		OrganizationID:      orgID,
		RotationYear:        year,
		Order:               req.Order,
		MaxTimeSlots:        req.MaxTimeSlots,
		MaxNights:           req.MaxNights,
		SelectionDays:       req.SelectionDays,
		SecondaryEnabled:    req.SecondaryEnabled,
		SecondaryMaxPeriods: req.SecondaryMaxPeriods,
	})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *RotationHandler) save(w http.ResponseWriter, o *model.RotationOrder) (*model.RotationOrder, bool) {
	known, err := h.familyGroupStore.IDs(o.OrganizationID)
	if err != nil {
		h.logger.Error("list family group ids", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save rotation order")
		return nil, false
	}
	if err := rotation.Validate(o.Order, known); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	saved, err := h.rotationStore.SaveOrder(o)
	if errors.Is(err, store.ErrSelectionRunning) {
		writeError(w, http.StatusConflict, err.Error())
		return nil, false
	}
	if err != nil {
		h.logger.Error("save rotation order", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save rotation order")
		return nil, false
	}
	h.logger.Info("rotation order saved", "organization_id", o.OrganizationID, "year", o.RotationYear, "groups", len(o.Order))
	h.events.Changed(o.OrganizationID, "rotation_order", "updated", saved.ID)
	return saved, true
}

// NextYear handles POST /api/rotation-orders/{year}/next-year: the following
// year gets the same settings with the order rotated left by one.
func (h *RotationHandler) NextYear(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	year, err := parseYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	current, err := h.rotationStore.GetOrder(orgID, year)
	if err != nil {
		h.logger.Error("get rotation order", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get rotation order")
		return
	}
	if current == nil {
		writeError(w, http.StatusNotFound, "rotation order not found")
		return
	}
	existing, err := h.rotationStore.GetOrder(orgID, year+1)
	if err != nil {
		h.logger.Error("get next rotation order", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get rotation order")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "a rotation order for the next year already exists")
		return
	}

	next := *current
	next.ID = 0
	next.RotationYear = year + 1
	next.Order = rotation.NextYear(current.Order)
	saved, ok := h.save(w, &next)
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// SelectionStatus handles GET /api/selection/{year}.
func (h *RotationHandler) SelectionStatus(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := h.selection.Status(auth.OrganizationID(r.Context()), year)
	if err != nil {
		writeDomainError(w, h.logger, err, "failed to get selection status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rotation_year": st.RotationYear,
		"order":         st.Order,
		"primary":       st.Primary,
		"secondary":     st.Secondary,
		"usage":         st.Usage,
		"active_phase":  st.ActivePhase(),
	})
}

type selectionRequest struct {
	Phase         string     `json:"phase"`
	FamilyGroupID int64      `json:"family_group_id"`
	Until         *time.Time `json:"until"`
}

// StartSelection handles POST /api/selection/{year}/start.
func (h *RotationHandler) StartSelection(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req selectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Phase == "" {
		req.Phase = model.PhasePrimary
	}
	st, err := h.selection.Start(r.Context(), auth.OrganizationID(r.Context()), year, req.Phase)
	if err != nil {
		writeDomainError(w, h.logger, err, "failed to start selection")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// CompleteTurn handles POST /api/selection/{year}/complete. Members finish
// their own group's turn; admins and calendar keepers may finish the turn
// of whichever group holds it.
func (h *RotationHandler) CompleteTurn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := auth.OrganizationID(ctx)
	year, err := parseYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req selectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	groupID := req.FamilyGroupID
	if auth.CanManageCalendar(ctx) {
		if groupID == 0 {
			if groupID, err = h.selection.CurrentGroup(orgID, year, req.Phase); err != nil {
				writeDomainError(w, h.logger, err, "failed to complete turn")
				return
			}
		}
	} else {
		own, ok := auth.FamilyGroupID(ctx)
		if !ok {
			writeError(w, http.StatusForbidden, "user has no family group in this organization")
			return
		}
		if groupID != 0 && groupID != own {
			writeError(w, http.StatusForbidden, selection.ErrNotYourTurn.Error())
			return
		}
		groupID = own
	}

	st, err := h.selection.CompleteTurn(ctx, orgID, year, req.Phase, groupID)
	if err != nil {
		writeDomainError(w, h.logger, err, "failed to complete turn")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ExtendTurn handles POST /api/selection/{year}/extend.
func (h *RotationHandler) ExtendTurn(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req selectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Until == nil {
		writeError(w, http.StatusBadRequest, "until is required")
		return
	}
	st, err := h.selection.ExtendTurn(r.Context(), auth.OrganizationID(r.Context()), year, req.Phase, *req.Until)
	if err != nil {
		writeDomainError(w, h.logger, err, "failed to extend turn")
		return
	}
	h.events.Changed(st.OrganizationID, "selection", "extended", st.ID)
	writeJSON(w, http.StatusOK, st)
}
