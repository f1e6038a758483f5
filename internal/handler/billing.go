package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/cabinshare/internal/auth"
	"github.com/dukerupert/cabinshare/internal/billing"
	"github.com/dukerupert/cabinshare/internal/store"
)

const maxWebhookBody = 65536

type BillingHandler struct {
	service   *billing.Service
	orgStore  *store.OrganizationStore
	userStore *store.UserStore
	logger    *slog.Logger
}

func NewBillingHandler(svc *billing.Service, ogs *store.OrganizationStore, us *store.UserStore, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{service: svc, orgStore: ogs, userStore: us, logger: logger}
}

// Checkout handles POST /api/billing/checkout.
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	org, err := h.orgStore.GetByID(auth.OrganizationID(ctx))
	if err != nil {
		h.logger.Error("get organization", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start checkout")
		return
	}
	if org == nil {
		writeError(w, http.StatusNotFound, "organization not found")
		return
	}
	var email string
	if u, err := h.userStore.GetByID(auth.UserID(ctx)); err == nil && u != nil {
		email = u.Email
	}

	url, err := h.service.Checkout(org, email)
	if err != nil {
		writeDomainError(w, h.logger, err, "failed to start checkout")
		return
	}
	h.logger.Info("checkout session created", "organization_id", org.ID)
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// Webhook handles POST /webhooks/stripe.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	event, err := h.service.ConstructEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, billing.ErrNotConfigured) {
			http.Error(w, "billing not configured", http.StatusServiceUnavailable)
			return
		}
		h.logger.Warn("stripe webhook rejected", "error", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	if err := h.service.HandleEvent(event); err != nil {
		h.logger.Error("stripe webhook", "type", event.Type, "id", event.ID, "error", err)
		http.Error(w, "webhook failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
