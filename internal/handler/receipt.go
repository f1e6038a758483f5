package handler

import (
	"bytes"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/dukerupert/cabinshare/internal/auth"
	"github.com/dukerupert/cabinshare/internal/ledger"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/objectstore"
	"github.com/dukerupert/cabinshare/internal/receipt"
	"github.com/dukerupert/cabinshare/internal/store"
)

type ReceiptHandler struct {
	receiptStore     *store.ReceiptStore
	familyGroupStore *store.FamilyGroupStore
	objects          *objectstore.Store
	events           Broadcaster
	logger           *slog.Logger
}

func NewReceiptHandler(rs *store.ReceiptStore, fgs *store.FamilyGroupStore, objects *objectstore.Store, events Broadcaster, logger *slog.Logger) *ReceiptHandler {
	return &ReceiptHandler{receiptStore: rs, familyGroupStore: fgs, objects: objects, events: orNop(events), logger: logger}
}

type receiptRequest struct {
	FamilyGroupID *int64 `json:"family_group_id"`
	Description   string `json:"description"`
	AmountCents   int64  `json:"amount_cents"`
	ReceiptDate   string `json:"receipt_date"`
	Category      string `json:"category"`
}

// apply validates req and fills rec. An empty category is derived from the
// description.
func (h *ReceiptHandler) apply(orgID int64, req *receiptRequest, rec *model.Receipt) (string, error) {
	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		return "description is required", nil
	}
	if req.AmountCents <= 0 {
		return "amount_cents must be greater than zero", nil
	}
	if req.ReceiptDate == "" {
		req.ReceiptDate = today()
	}
	if !validDate(req.ReceiptDate) {
		return "receipt_date must be YYYY-MM-DD", nil
	}
	if req.Category == "" {
		req.Category = receipt.Categorize(req.Description)
	}
	if !receipt.ValidCategory(req.Category) {
		return "invalid category", nil
	}
	if req.FamilyGroupID != nil {
		g, err := h.familyGroupStore.GetByID(orgID, *req.FamilyGroupID)
		if err != nil {
			return "", err
		}
		if g == nil {
			return "family group not found", nil
		}
	}

	rec.OrganizationID = orgID
	rec.FamilyGroupID = req.FamilyGroupID
	rec.Description = req.Description
	rec.AmountCents = req.AmountCents
	rec.ReceiptDate = req.ReceiptDate
	rec.Category = req.Category
	return "", nil
}

// List handles GET /api/receipts?year=. Without a year all receipts are
// returned.
func (h *ReceiptHandler) List(w http.ResponseWriter, r *http.Request) {
	var from, to string
	if r.URL.Query().Get("year") != "" {
		year, err := parseYear(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		from, to = yearBounds(year)
	}
	receipts, err := h.receiptStore.List(auth.OrganizationID(r.Context()), from, to)
	if err != nil {
		h.logger.Error("list receipts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list receipts")
		return
	}
	if receipts == nil {
		receipts = []model.Receipt{}
	}
	writeJSON(w, http.StatusOK, receipts)
}

func yearBounds(year int) (string, string) {
	return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).Format(model.DateLayout),
		time.Date(year+1, 1, 1, 0, 0, 0, 0, time.UTC).Format(model.DateLayout)
}

func (h *ReceiptHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	rec, err := h.receiptStore.GetByID(auth.OrganizationID(r.Context()), id)
	if err != nil {
		h.logger.Error("get receipt", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get receipt")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "receipt not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *ReceiptHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := auth.OrganizationID(ctx)
	var req receiptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	rec := &model.Receipt{}
	msg, err := h.apply(orgID, &req, rec)
	if err != nil {
		h.logger.Error("validate receipt", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create receipt")
		return
	}
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if uid := auth.UserID(ctx); uid != 0 {
		rec.CreatedBy = &uid
	}

	created, err := h.receiptStore.Create(rec)
	if err != nil {
		h.logger.Error("create receipt", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create receipt")
		return
	}

	h.events.Changed(orgID, "receipt", "created", created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (h *ReceiptHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	existing, err := h.receiptStore.GetByID(orgID, id)
	if err != nil {
		h.logger.Error("get receipt", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get receipt")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "receipt not found")
		return
	}

	var req receiptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	msg, err := h.apply(orgID, &req, existing)
	if err != nil {
		h.logger.Error("validate receipt", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update receipt")
		return
	}
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	updated, err := h.receiptStore.Update(existing)
	if err != nil {
		h.logger.Error("update receipt", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update receipt")
		return
	}

	h.events.Changed(orgID, "receipt", "updated", id)
	writeJSON(w, http.StatusOK, updated)
}

func (h *ReceiptHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := auth.OrganizationID(ctx)
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	existing, err := h.receiptStore.GetByID(orgID, id)
	if err != nil {
		h.logger.Error("get receipt", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get receipt")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "receipt not found")
		return
	}
	if err := h.receiptStore.Delete(orgID, id); err != nil {
		h.logger.Error("delete receipt", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete receipt")
		return
	}
	if existing.ImageKey != "" {
		if err := h.objects.Delete(ctx, existing.ImageKey); err != nil {
			h.logger.Warn("delete receipt image", "key", existing.ImageKey, "error", err)
		}
	}

	h.events.Changed(orgID, "receipt", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// UploadImage handles POST /api/receipts/{id}/image, replacing any previous
// image.
func (h *ReceiptHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := auth.OrganizationID(ctx)
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if !h.objects.Configured() {
		writeError(w, http.StatusServiceUnavailable, objectstore.ErrNotConfigured.Error())
		return
	}
	existing, err := h.receiptStore.GetByID(orgID, id)
	if err != nil {
		h.logger.Error("get receipt", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get receipt")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "receipt not found")
		return
	}

	up, err := readUpload(w, r, "file", maxImageBytes)
	if err != nil {
		writeUploadError(w, err)
		return
	}
	if !imageTypes[up.ContentType] && up.ContentType != "application/pdf" {
		writeError(w, http.StatusBadRequest, "receipt must be an image or PDF")
		return
	}

	key := objectstore.Key(orgID, "receipts", up.Filename)
	if err := h.objects.Put(ctx, key, bytes.NewReader(up.Data), int64(len(up.Data)), up.ContentType); err != nil {
		writeDomainError(w, h.logger, err, "failed to store receipt image")
		return
	}
	previous := existing.ImageKey
	existing.ImageKey = key
	updated, err := h.receiptStore.Update(existing)
	if err != nil {
		h.logger.Error("update receipt image", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save receipt image")
		return
	}
	if previous != "" {
		if err := h.objects.Delete(ctx, previous); err != nil {
			h.logger.Warn("delete previous receipt image", "key", previous, "error", err)
		}
	}

	h.events.Changed(orgID, "receipt", "updated", id)
	writeJSON(w, http.StatusOK, updated)
}

// Image handles GET /api/receipts/{id}/image.
func (h *ReceiptHandler) Image(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	rec, err := h.receiptStore.GetByID(auth.OrganizationID(ctx), id)
	if err != nil {
		h.logger.Error("get receipt", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get receipt")
		return
	}
	if rec == nil || rec.ImageKey == "" {
		writeError(w, http.StatusNotFound, "receipt image not found")
		return
	}
	body, err := h.objects.Get(ctx, rec.ImageKey)
	if err != nil {
		writeDomainError(w, h.logger, err, "failed to read receipt image")
		return
	}
	stream(w, body, mime.TypeByExtension(path.Ext(rec.ImageKey)), "", true)
}

// Balances handles GET /api/balances?year=. Without a year every receipt
// counts.
func (h *ReceiptHandler) Balances(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	var from, to string
	if r.URL.Query().Get("year") != "" {
		year, err := parseYear(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		from, to = yearBounds(year)
	}

	receipts, err := h.receiptStore.List(orgID, from, to)
	if err != nil {
		h.logger.Error("list receipts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute balances")
		return
	}
	groups, err := h.familyGroupStore.List(orgID)
	if err != nil {
		h.logger.Error("list family groups", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute balances")
		return
	}

	balances := ledger.Balances(groups, receipts)
	transfers := ledger.Settle(balances)
	if balances == nil {
		balances = []model.Balance{}
	}
	if transfers == nil {
		transfers = []model.Transfer{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"balances":  balances,
		"transfers": transfers,
	})
}
