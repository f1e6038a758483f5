package billing

import (
	"fmt"
	"strconv"

	stripe "github.com/stripe/stripe-go/v82"
	checksession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
)

// StripeClient creates customers and checkout sessions through the Stripe API.
type StripeClient struct {
	priceID    string
	successURL string
	cancelURL  string
}

func NewStripeClient(secretKey, priceID, baseURL string) *StripeClient {
	stripe.Key = secretKey
	return &StripeClient{
		priceID:    priceID,
		successURL: baseURL + "/settings/billing?checkout=success",
		cancelURL:  baseURL + "/settings/billing?checkout=cancelled",
	}
}

// CreateCustomer creates a Stripe customer and returns the customer ID.
func (c *StripeClient) CreateCustomer(organizationID int64, name, email string) (string, error) {
	params := &stripe.CustomerParams{
		Name: stripe.String(name),
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata("organization_id", strconv.FormatInt(organizationID, 10))
	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return cust.ID, nil
}

// CreateCheckoutSession creates a subscription checkout session and returns the URL.
func (c *StripeClient) CreateCheckoutSession(organizationID int64, customerID string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(strconv.FormatInt(organizationID, 10)),
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(c.priceID),
				Quantity: stripe.Int64(1),
			},
		},
		AllowPromotionCodes: stripe.Bool(true),
		SuccessURL:          stripe.String(c.successURL),
		CancelURL:           stripe.String(c.cancelURL),
	}
	sess, err := checksession.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}
