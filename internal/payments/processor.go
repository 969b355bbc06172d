package payments

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Final intent statuses. Any other status can still move, including after a
// declined attempt, which returns the intent to requires_payment_method.
const (
	IntentSucceeded = string(stripe.PaymentIntentStatusSucceeded)
	IntentCanceled  = string(stripe.PaymentIntentStatusCanceled)
)

// Webhook event types the service reacts to. Everything else, including
// payment_intent.payment_failed, is acknowledged and ignored.
const (
	EventIntentSucceeded = string(stripe.EventTypePaymentIntentSucceeded)
	EventIntentCanceled  = string(stripe.EventTypePaymentIntentCanceled)
)

// IntentRequest asks the processor for a new payment intent.
type IntentRequest struct {
	AmountMinor    int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

// Intent is the processor's view of a payment.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
}

// WebhookEvent is a verified processor notification.
type WebhookEvent struct {
	Type     string
	IntentID string
}

// Processor is the external payment processor. Implementations must honour
// ctx cancellation and treat IdempotencyKey as a dedup key for CreateIntent.
type Processor interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
	// ParseWebhook verifies signature over the exact payload bytes.
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// parseEvent verifies a Stripe-style signed payload and extracts the intent id.
func parseEvent(payload []byte, signature, secret string) (*WebhookEvent, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, err
	}

	out := &WebhookEvent{Type: string(ev.Type)}
	if ev.Data != nil && len(ev.Data.Raw) > 0 {
		var obj struct {
			ID     string `json:"id"`
			Object string `json:"object"`
		}
		if err := json.Unmarshal(ev.Data.Raw, &obj); err != nil {
			return nil, fmt.Errorf("decode event object: %w", err)
		}
		if obj.Object == "" || obj.Object == "payment_intent" {
			out.IntentID = obj.ID
		}
	}
	return out, nil
}
