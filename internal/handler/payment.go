package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/cabinshare/internal/auth"
	"github.com/dukerupert/cabinshare/internal/ledger"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/store"
)

type PaymentHandler struct {
	paymentStore     *store.PaymentStore
	familyGroupStore *store.FamilyGroupStore
	events           Broadcaster
	logger           *slog.Logger
}

func NewPaymentHandler(ps *store.PaymentStore, fgs *store.FamilyGroupStore, events Broadcaster, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{paymentStore: ps, familyGroupStore: fgs, events: orNop(events), logger: logger}
}

type paymentRequest struct {
	FamilyGroupID   int64  `json:"family_group_id"`
	ReservationID   *int64 `json:"reservation_id"`
	PaymentType     string `json:"payment_type"`
	Description     string `json:"description"`
	AmountCents     int64  `json:"amount_cents"`
	AmountPaidCents int64  `json:"amount_paid_cents"`
	DueDate         string `json:"due_date"`
	PaidDate        string `json:"paid_date"`
	PaymentMethod   string `json:"payment_method"`
	Notes           string `json:"notes"`
	Cancelled       bool   `json:"cancelled"`
}

func validDate(s string) bool {
	if s == "" {
		return true
	}
	_, err := time.Parse(model.DateLayout, s)
	return err == nil
}

// build validates req against the organization and fills p.
func (h *PaymentHandler) build(orgID int64, req *paymentRequest, p *model.Payment) (string, error) {
	if req.PaymentType == "" {
		req.PaymentType = model.PaymentTypeUseFee
	}
	if !ledger.ValidType(req.PaymentType) {
		return "invalid payment_type", nil
	}
	if !validDate(req.DueDate) || !validDate(req.PaidDate) {
		return "dates must be YYYY-MM-DD", nil
	}
	g, err := h.familyGroupStore.GetByID(orgID, req.FamilyGroupID)
	if err != nil {
		return "", err
	}
	if g == nil {
		return "family group not found", nil
	}

	p.OrganizationID = orgID
	p.FamilyGroupID = req.FamilyGroupID
	p.ReservationID = req.ReservationID
	p.PaymentType = req.PaymentType
	p.Description = strings.TrimSpace(req.Description)
	p.AmountCents = req.AmountCents
	p.AmountPaidCents = req.AmountPaidCents
	p.DueDate = req.DueDate
	p.PaidDate = req.PaidDate
	p.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	p.Notes = req.Notes
	p.Cancelled = req.Cancelled
	if err := ledger.Validate(p); err != nil {
		return err.Error(), nil
	}
	return "", nil
}

// List handles GET /api/payments?family_group_id=&status=.
func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	q := r.URL.Query()
	var groupID *int64
	if s := q.Get("family_group_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid family_group_id")
			return
		}
		groupID = &id
	}

	payments, err := h.paymentStore.List(orgID, groupID)
	if err != nil {
		h.logger.Error("list payments", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list payments")
		return
	}
	ledger.Decorate(payments, today())
	payments = ledger.FilterStatus(payments, q.Get("status"))
	if payments == nil {
		payments = []model.Payment{}
	}
	writeJSON(w, http.StatusOK, payments)
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	p, err := h.paymentStore.GetByID(auth.OrganizationID(r.Context()), id)
	if err != nil {
		h.logger.Error("get payment", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get payment")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "payment not found")
		return
	}
	p.Status = ledger.Status(*p, today())
	writeJSON(w, http.StatusOK, p)
}

func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	p := &model.Payment{}
	msg, err := h.build(orgID, &req, p)
	if err != nil {
		h.logger.Error("validate payment", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create payment")
		return
	}
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	created, err := h.paymentStore.Create(p)
	if err != nil {
		h.logger.Error("create payment", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create payment")
		return
	}
	created.Status = ledger.Status(*created, today())

	h.events.Changed(orgID, "payment", "created", created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (h *PaymentHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	existing, err := h.paymentStore.GetByID(orgID, id)
	if err != nil {
		h.logger.Error("get payment", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get payment")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "payment not found")
		return
	}

	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	msg, err := h.build(orgID, &req, existing)
	if err != nil {
		h.logger.Error("validate payment", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update payment")
		return
	}
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	updated, err := h.paymentStore.Update(existing)
	if err != nil {
		h.logger.Error("update payment", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update payment")
		return
	}
	updated.Status = ledger.Status(*updated, today())

	h.events.Changed(orgID, "payment", "updated", id)
	writeJSON(w, http.StatusOK, updated)
}

type recordPaymentRequest struct {
	AmountCents   int64  `json:"amount_cents"`
	PaidDate      string `json:"paid_date"`
	PaymentMethod string `json:"payment_method"`
}

// Record handles POST /api/payments/{id}/record, adding a (partial) payment.
func (h *PaymentHandler) Record(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req recordPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.AmountCents <= 0 {
		writeError(w, http.StatusBadRequest, ledger.ErrInvalidAmount.Error())
		return
	}
	if req.PaidDate == "" {
		req.PaidDate = today()
	}
	if !validDate(req.PaidDate) {
		writeError(w, http.StatusBadRequest, "paid_date must be YYYY-MM-DD")
		return
	}

	existing, err := h.paymentStore.GetByID(orgID, id)
	if err != nil {
		h.logger.Error("get payment", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get payment")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "payment not found")
		return
	}
	if existing.Cancelled {
		writeError(w, http.StatusBadRequest, "payment is cancelled")
		return
	}

	ok, err := h.paymentStore.AddPaid(orgID, id, req.AmountCents, req.PaidDate, strings.TrimSpace(req.PaymentMethod))
	if err != nil {
		h.logger.Error("record payment", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record payment")
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, ledger.ErrOverpaid.Error())
		return
	}

	updated, err := h.paymentStore.GetByID(orgID, id)
	if err != nil || updated == nil {
		h.logger.Error("reload payment", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get payment")
		return
	}
	updated.Status = ledger.Status(*updated, today())

	h.events.Changed(orgID, "payment", "updated", id)
	writeJSON(w, http.StatusOK, updated)
}

func (h *PaymentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	existing, err := h.paymentStore.GetByID(orgID, id)
	if err != nil {
		h.logger.Error("get payment", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get payment")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "payment not found")
		return
	}
	if err := h.paymentStore.Delete(orgID, id); err != nil {
		h.logger.Error("delete payment", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete payment")
		return
	}

	h.events.Changed(orgID, "payment", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// Summary handles GET /api/payments/summary.
func (h *PaymentHandler) Summary(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	payments, err := h.paymentStore.List(orgID, nil)
	if err != nil {
		h.logger.Error("list payments", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to summarize payments")
		return
	}
	groups, err := h.familyGroupStore.List(orgID)
	if err != nil {
		h.logger.Error("list family groups", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to summarize payments")
		return
	}
	writeJSON(w, http.StatusOK, ledger.Summarize(payments, groups))
}
