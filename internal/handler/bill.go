package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/cabinshare/internal/auth"
	"github.com/dukerupert/cabinshare/internal/bill"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/store"
)

var validBillCategories = map[string]bool{
	"utilities":   true,
	"insurance":   true,
	"tax":         true,
	"maintenance": true,
	"service":     true,
	"other":       true,
}

type BillHandler struct {
	billStore *store.BillStore
	events    Broadcaster
	logger    *slog.Logger
	now       func() time.Time
}

func NewBillHandler(bs *store.BillStore, events Broadcaster, logger *slog.Logger) *BillHandler {
	return &BillHandler{billStore: bs, events: orNop(events), logger: logger, now: time.Now}
}

type billRequest struct {
	Name           string `json:"name"`
	Category       string `json:"category"`
	Provider       string `json:"provider"`
	AccountNumber  string `json:"account_number"`
	AmountCents    int64  `json:"amount_cents"`
	RecurrenceRule string `json:"recurrence_rule"`
	StartDate      string `json:"start_date"`
	AutoPay        bool   `json:"auto_pay"`
	Notes          string `json:"notes"`
	Active         *bool  `json:"active"`
}

func (req *billRequest) apply(b *model.RecurringBill) string {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return "name is required"
	}
	if req.Category == "" {
		req.Category = "other"
	}
	if !validBillCategories[req.Category] {
		return "invalid category"
	}
	if req.AmountCents <= 0 {
		return "amount_cents must be greater than zero"
	}
	req.RecurrenceRule = strings.TrimSpace(req.RecurrenceRule)
	if !bill.ValidRule(req.RecurrenceRule) {
		return "invalid recurrence_rule"
	}
	if req.StartDate == "" || !validDate(req.StartDate) {
		return "start_date must be YYYY-MM-DD"
	}

	b.Name = req.Name
	b.Category = req.Category
	b.Provider = strings.TrimSpace(req.Provider)
	// A masked number echoed back from a response keeps the stored one.
	if !strings.Contains(req.AccountNumber, "*") {
		b.AccountNumber = strings.TrimSpace(req.AccountNumber)
	}
	b.AmountCents = req.AmountCents
	b.RecurrenceRule = req.RecurrenceRule
	b.StartDate = req.StartDate
	b.AutoPay = req.AutoPay
	b.Notes = req.Notes
	if req.Active != nil {
		b.Active = *req.Active
	}
	return ""
}

func (h *BillHandler) view(b model.RecurringBill) (model.BillView, error) {
	last, err := h.billStore.LastPayment(b.ID)
	if err != nil {
		return model.BillView{}, err
	}
	return bill.View(b, last, h.now()), nil
}

// Views returns the decorated bills of an organization.
func (h *BillHandler) Views(orgID int64, activeOnly bool) ([]model.BillView, error) {
	bills, err := h.billStore.List(orgID, activeOnly)
	if err != nil {
		return nil, err
	}
	views := make([]model.BillView, 0, len(bills))
	for _, b := range bills {
		v, err := h.view(b)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// List handles GET /api/bills?active=true.
func (h *BillHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.Views(auth.OrganizationID(r.Context()), r.URL.Query().Get("active") == "true")
	if err != nil {
		h.logger.Error("list bills", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list bills")
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// Upcoming handles GET /api/bills/upcoming?days=.
func (h *BillHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	days := 30
	if s := r.URL.Query().Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 || n > 366 {
			writeError(w, http.StatusBadRequest, "days must be between 0 and 366")
			return
		}
		days = n
	}
	views, err := h.Views(auth.OrganizationID(r.Context()), true)
	if err != nil {
		h.logger.Error("list bills", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list bills")
		return
	}
	upcoming := bill.Upcoming(views, h.now(), days)
	if upcoming == nil {
		upcoming = []model.BillView{}
	}
	writeJSON(w, http.StatusOK, upcoming)
}

// Projection handles GET /api/bills/projection?year=.
func (h *BillHandler) Projection(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bills, err := h.billStore.List(auth.OrganizationID(r.Context()), true)
	if err != nil {
		h.logger.Error("list bills", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to project bills")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"year":        year,
		"total_cents": bill.ProjectYear(bills, year),
	})
}

func (h *BillHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	b, err := h.billStore.GetByID(auth.OrganizationID(r.Context()), id)
	if err != nil {
		h.logger.Error("get bill", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get bill")
		return
	}
	if b == nil {
		writeError(w, http.StatusNotFound, "bill not found")
		return
	}
	v, err := h.view(*b)
	if err != nil {
		h.logger.Error("bill status", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get bill")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *BillHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	var req billRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	b := &model.RecurringBill{OrganizationID: orgID, Active: true}
	if msg := req.apply(b); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	created, err := h.billStore.Create(b)
	if err != nil {
		h.logger.Error("create bill", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create bill")
		return
	}

	h.events.Changed(orgID, "bill", "created", created.ID)
	writeJSON(w, http.StatusCreated, bill.View(*created, nil, h.now()))
}

func (h *BillHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	existing, err := h.billStore.GetByID(orgID, id)
	if err != nil {
		h.logger.Error("get bill", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get bill")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "bill not found")
		return
	}

	var req billRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.apply(existing); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	updated, err := h.billStore.Update(existing)
	if err != nil {
		h.logger.Error("update bill", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update bill")
		return
	}
	v, err := h.view(*updated)
	if err != nil {
		h.logger.Error("bill status", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update bill")
		return
	}

	h.events.Changed(orgID, "bill", "updated", id)
	writeJSON(w, http.StatusOK, v)
}

func (h *BillHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	existing, err := h.billStore.GetByID(orgID, id)
	if err != nil {
		h.logger.Error("get bill", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get bill")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "bill not found")
		return
	}
	if err := h.billStore.Delete(orgID, id); err != nil {
		h.logger.Error("delete bill", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete bill")
		return
	}

	h.events.Changed(orgID, "bill", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// RecordPayment handles POST /api/bills/{id}/payments. Without a due_date
// the payment settles the bill's current due date.
func (h *BillHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	b, err := h.billStore.GetByID(orgID, id)
	if err != nil {
		h.logger.Error("get bill", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get bill")
		return
	}
	if b == nil {
		writeError(w, http.StatusNotFound, "bill not found")
		return
	}

	var req struct {
		DueDate     string `json:"due_date"`
		AmountCents int64  `json:"amount_cents"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.DueDate == "" {
		v, err := h.view(*b)
		if err != nil {
			h.logger.Error("bill status", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to record payment")
			return
		}
		req.DueDate = v.CurrentDueDate
	}
	if req.DueDate == "" || !validDate(req.DueDate) {
		writeError(w, http.StatusBadRequest, "due_date must be YYYY-MM-DD")
		return
	}
	if req.AmountCents == 0 {
		req.AmountCents = b.AmountCents
	}
	if req.AmountCents < 0 {
		writeError(w, http.StatusBadRequest, "amount_cents must be greater than zero")
		return
	}

	p, err := h.billStore.CreatePayment(id, req.DueDate, req.AmountCents)
	if err != nil {
		h.logger.Error("record bill payment", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record payment")
		return
	}

	h.events.Changed(orgID, "bill", "paid", id)
	writeJSON(w, http.StatusCreated, p)
}

// ListPayments handles GET /api/bills/{id}/payments.
func (h *BillHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	b, err := h.billStore.GetByID(orgID, id)
	if err != nil {
		h.logger.Error("get bill", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get bill")
		return
	}
	if b == nil {
		writeError(w, http.StatusNotFound, "bill not found")
		return
	}
	payments, err := h.billStore.ListPayments(id)
	if err != nil {
		h.logger.Error("list bill payments", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list payments")
		return
	}
	if payments == nil {
		payments = []model.BillPayment{}
	}
	writeJSON(w, http.StatusOK, payments)
}
