// Package payments integrates a Stripe-shaped payment provider: creating
// and retrieving payment intents, verifying webhook signatures, and
// reconciling intent events into coupled payment-and-order status updates.
package payments

import "context"

// Intent is the provider's view of one payment attempt. Amounts are minor
// units, matching the provider's wire format.
type Intent struct {
	ID           string
	Status       string
	AmountMinor  int64
	Currency     string
	ClientSecret string
	Metadata     map[string]string
}

// IntentRequest asks the provider to open a payment attempt for an order.
// The order id travels in the intent metadata so webhook events can be
// traced back without a local mapping table.
type IntentRequest struct {
	AmountMinor int64
	Currency    string
	OrderID     string
	Description string
}

// Provider is the outbound payment API surface. Implementations live at the
// edge; the core only depends on this contract.
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	RetrieveIntent(ctx context.Context, id string) (Intent, error)
}
