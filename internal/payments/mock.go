package payments

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
)

// ErrUnknownIntent is returned by the mock for ids it never issued.
var ErrUnknownIntent = errors.New("mock: unknown payment intent")

// DefaultMockWebhookSecret signs mock webhooks when none is configured.
const DefaultMockWebhookSecret = "whsec_dev"

// MockProcessor keeps intents in memory. It verifies webhooks with the same
// signature scheme as Stripe, so signed test payloads work against it.
type MockProcessor struct {
	mu            sync.Mutex
	intents       map[string]Intent
	byKey         map[string]string
	webhookSecret string
}

func NewMock(webhookSecret string) *MockProcessor {
	if webhookSecret == "" {
		webhookSecret = DefaultMockWebhookSecret
	}
	return &MockProcessor{
		intents:       map[string]Intent{},
		byKey:         map[string]string{},
		webhookSecret: webhookSecret,
	}
}

// WebhookSecret is the secret ParseWebhook verifies against.
func (m *MockProcessor) WebhookSecret() string { return m.webhookSecret }

func (m *MockProcessor) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		in := m.intents[id]
		return &in, nil
	}

	id := "pi_mock_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	in := Intent{
		ID:           id,
		ClientSecret: id + "_secret_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16],
		Status:       string(stripe.PaymentIntentStatusRequiresPaymentMethod),
	}
	m.intents[id] = in
	if req.IdempotencyKey != "" {
		m.byKey[req.IdempotencyKey] = id
	}
	return &in, nil
}

func (m *MockProcessor) GetIntent(ctx context.Context, id string) (*Intent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	in, ok := m.intents[id]
	if !ok {
		return nil, ErrUnknownIntent
	}
	return &in, nil
}

func (m *MockProcessor) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	return parseEvent(payload, signature, m.webhookSecret)
}

// Complete marks the intent as paid.
func (m *MockProcessor) Complete(id string) error { return m.setStatus(id, IntentSucceeded) }

// Decline records a refused attempt. The intent can still be paid.
func (m *MockProcessor) Decline(id string) error {
	return m.setStatus(id, string(stripe.PaymentIntentStatusRequiresPaymentMethod))
}

// Cancel marks the intent as abandoned.
func (m *MockProcessor) Cancel(id string) error { return m.setStatus(id, IntentCanceled) }

func (m *MockProcessor) setStatus(id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, ok := m.intents[id]
	if !ok {
		return ErrUnknownIntent
	}
	in.Status = status
	m.intents[id] = in
	return nil
}
