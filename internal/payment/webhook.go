package payment

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

type WebhookKind int

const (
	WebhookIgnored WebhookKind = iota
	WebhookAuthorized
	WebhookFailed
)

// WebhookEvent is the part of a processor notification the order service acts on.
type WebhookEvent struct {
	Kind   WebhookKind
	Handle string
}

// ParseStripeWebhook verifies the Stripe-Signature header and extracts the payment intent
// id for the events that move an order's payment status.
func ParseStripeWebhook(payload []byte, signature, secret string) (WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("verify webhook: %w", err)
	}

	var kind WebhookKind
	switch event.Type {
	case "payment_intent.amount_capturable_updated":
		kind = WebhookAuthorized
	case "payment_intent.payment_failed":
		kind = WebhookFailed
	default:
		return WebhookEvent{Kind: WebhookIgnored}, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return WebhookEvent{}, fmt.Errorf("decode payment intent: %w", err)
	}
	return WebhookEvent{Kind: kind, Handle: pi.ID}, nil
}
