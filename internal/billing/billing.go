// Package billing manages organization subscriptions through Stripe.
package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dukerupert/cabinshare/internal/config"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/store"
)

var (
	ErrNotConfigured    = errors.New("billing not configured")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// API is the part of Stripe the service calls.
type API interface {
	CreateCustomer(organizationID int64, name, email string) (string, error)
	CreateCheckoutSession(organizationID int64, customerID string) (string, error)
}

type Service struct {
	api           API
	webhookSecret string
	orgs          *store.OrganizationStore
	logger        *slog.Logger
}

// New returns a service backed by Stripe. Without a secret key and price the
// service reports ErrNotConfigured from Checkout.
func New(cfg config.StripeConfig, baseURL string, orgs *store.OrganizationStore, logger *slog.Logger) *Service {
	var api API
	if cfg.SecretKey != "" && cfg.PriceID != "" {
		api = NewStripeClient(cfg.SecretKey, cfg.PriceID, baseURL)
	}
	return NewWithAPI(api, cfg.WebhookSecret, orgs, logger)
}

func NewWithAPI(api API, webhookSecret string, orgs *store.OrganizationStore, logger *slog.Logger) *Service {
	return &Service{api: api, webhookSecret: webhookSecret, orgs: orgs, logger: logger}
}

// Checkout creates the organization's Stripe customer on first use and
// returns a subscription checkout URL.
func (s *Service) Checkout(org *model.Organization, email string) (string, error) {
	if s.api == nil {
		return "", ErrNotConfigured
	}
	customerID := org.StripeCustomerID
	if customerID == "" {
		if email == "" {
			email = org.AdminEmail
		}
		id, err := s.api.CreateCustomer(org.ID, org.Name, email)
		if err != nil {
			return "", err
		}
		if err := s.orgs.SetStripeCustomer(org.ID, id); err != nil {
			return "", err
		}
		customerID = id
	}
	return s.api.CreateCheckoutSession(org.ID, customerID)
}

// ConstructEvent verifies the Stripe-Signature header against the payload.
func (s *Service) ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	if s.webhookSecret == "" {
		return stripe.Event{}, ErrNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}

// HandleEvent maps a verified event onto the organization's subscription
// status. Unknown event types are ignored.
func (s *Service) HandleEvent(event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("unmarshal checkout session: %w", err)
		}
		org, err := s.checkoutOrganization(&sess)
		if err != nil || org == nil {
			return err
		}
		if org.StripeCustomerID == "" && sess.Customer != nil {
			if err := s.orgs.SetStripeCustomer(org.ID, sess.Customer.ID); err != nil {
				return err
			}
		}
		return s.setStatus(org, model.SubscriptionActive, string(event.Type))

	case "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("unmarshal subscription: %w", err)
		}
		if sub.Customer == nil {
			return nil
		}
		org, err := s.orgs.GetByStripeCustomer(sub.Customer.ID)
		if err != nil || org == nil {
			return err
		}
		status := SubscriptionStatus(sub.Status)
		if event.Type == "customer.subscription.deleted" {
			status = model.SubscriptionCanceled
		}
		return s.setStatus(org, status, string(event.Type))

	case "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return fmt.Errorf("unmarshal invoice: %w", err)
		}
		if invoice.Customer == nil {
			return nil
		}
		org, err := s.orgs.GetByStripeCustomer(invoice.Customer.ID)
		if err != nil || org == nil {
			return err
		}
		return s.setStatus(org, model.SubscriptionPastDue, string(event.Type))
	}
	return nil
}

func (s *Service) checkoutOrganization(sess *stripe.CheckoutSession) (*model.Organization, error) {
	if sess.ClientReferenceID != "" {
		id, err := strconv.ParseInt(sess.ClientReferenceID, 10, 64)
		if err == nil {
			return s.orgs.GetByID(id)
		}
	}
	if sess.Customer != nil {
		return s.orgs.GetByStripeCustomer(sess.Customer.ID)
	}
	return nil, nil
}

func (s *Service) setStatus(org *model.Organization, status, eventType string) error {
	if org.SubscriptionStatus == status {
		return nil
	}
	if err := s.orgs.SetSubscriptionStatus(org.ID, status); err != nil {
		return err
	}
	s.logger.Info("subscription status changed",
		"organization_id", org.ID, "from", org.SubscriptionStatus, "to", status, "event", eventType)
	return nil
}

// SubscriptionStatus maps a Stripe subscription status to ours.
func SubscriptionStatus(st stripe.SubscriptionStatus) string {
	switch st {
	case stripe.SubscriptionStatusActive:
		return model.SubscriptionActive
	case stripe.SubscriptionStatusTrialing:
		return model.SubscriptionTrial
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusIncomplete:
		return model.SubscriptionPastDue
	default:
		return model.SubscriptionCanceled
	}
}
