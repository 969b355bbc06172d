package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	"github.com/aldoetobex/legal-mp-engagement/internal/auth"
	"github.com/aldoetobex/legal-mp-engagement/internal/cases"
	"github.com/aldoetobex/legal-mp-engagement/internal/policy"
	"github.com/aldoetobex/legal-mp-engagement/internal/quotes"
	"github.com/aldoetobex/legal-mp-engagement/internal/store"
	"github.com/aldoetobex/legal-mp-engagement/pkg/apperr"
	"github.com/aldoetobex/legal-mp-engagement/pkg/models"
)

/* ===== helpers ===== */

type fixture struct {
	st     *store.Memory
	mock   *MockProcessor
	svc    *Service
	client policy.Actor
	l1, l2 policy.Actor
	caseID uuid.UUID
	q1, q2 uuid.UUID
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	f := &fixture{
		st:     st,
		mock:   NewMock(""),
		client: policy.Actor{ID: uuid.New(), Role: models.RoleClient},
		l1:     policy.Actor{ID: uuid.New(), Role: models.RoleLawyer},
		l2:     policy.Actor{ID: uuid.New(), Role: models.RoleLawyer},
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}
	f.svc = NewService(st, f.mock, opts, zap.NewNop())

	cs := &models.Case{ClientID: f.client.ID, Title: "Lease", Category: "Property", Status: models.CaseOpen}
	require.NoError(t, st.CreateCase(ctx, cs))
	f.caseID = cs.ID
	f.q1 = f.quote(t, f.l1.ID, "1500")
	f.q2 = f.quote(t, f.l2.ID, "1200")
	return f
}

func (f *fixture) quote(t *testing.T, lawyerID uuid.UUID, amount string) uuid.UUID {
	t.Helper()
	q := &models.Quote{
		CaseID:       f.caseID,
		LawyerID:     lawyerID,
		Amount:       decimal.RequireFromString(amount),
		ExpectedDays: 30,
		Status:       models.QuoteProposed,
	}
	require.NoError(t, f.st.CreateQuote(context.Background(), q))
	return q.ID
}

func (f *fixture) accept(t *testing.T, quoteID uuid.UUID) {
	t.Helper()
	_, err := cases.NewService(f.st, zap.NewNop()).Accept(context.Background(), f.caseID, quoteID, f.client)
	require.NoError(t, err)
}

func (f *fixture) payment(t *testing.T, id uuid.UUID) *models.Payment {
	t.Helper()
	p, err := f.st.GetPayment(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (f *fixture) quoteStatus(t *testing.T, id uuid.UUID) models.QuoteStatus {
	t.Helper()
	q, err := f.st.GetQuote(context.Background(), id)
	require.NoError(t, err)
	return q.Status
}

// signedEvent builds a webhook body and its Stripe-Signature header.
func signedEvent(secret, eventType, intentID string) ([]byte, string) {
	payload := []byte(fmt.Sprintf(
		`{"id":"evt_test","object":"event","type":%q,"data":{"object":{"id":%q,"object":"payment_intent"}}}`,
		eventType, intentID,
	))
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return sp.Payload, sp.Header
}

// flakyProcessor fails every call while err is set.
type flakyProcessor struct {
	*MockProcessor
	err error
}

func (p *flakyProcessor) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.MockProcessor.CreateIntent(ctx, req)
}

func (p *flakyProcessor) GetIntent(ctx context.Context, id string) (*Intent, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.MockProcessor.GetIntent(ctx, id)
}

// slowProcessor never answers before the deadline.
type slowProcessor struct{ *MockProcessor }

func (slowProcessor) CreateIntent(ctx context.Context, _ IntentRequest) (*Intent, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

/* ================== createIntent ================== */

func TestCreateIntent_IdempotentPerQuote(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	r1, err := f.svc.CreateIntent(ctx, f.q1, f.client)
	require.NoError(t, err)
	r2, err := f.svc.CreateIntent(ctx, f.q1, f.client)
	require.NoError(t, err)

	assert.Equal(t, r1.PaymentID, r2.PaymentID)
	assert.Equal(t, r1.ClientSecret, r2.ClientSecret)
	assert.NotEmpty(t, r1.ClientSecret)

	p := f.payment(t, r1.PaymentID)
	assert.Equal(t, models.PayPending, p.Status)
	require.NotNil(t, p.IntentID)
	assert.True(t, p.Amount.Equal(decimal.RequireFromString("1500")))
	assert.Equal(t, "usd", p.Currency)
	assert.Equal(t, f.l1.ID, p.LawyerID)

	in, err := f.mock.GetIntent(ctx, *p.IntentID)
	require.NoError(t, err)
	assert.Equal(t, r1.ClientSecret, in.ClientSecret)
}

func TestCreateIntent_ConflictAfterCompletion(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	r, err := f.svc.CreateIntent(ctx, f.q1, f.client)
	require.NoError(t, err)
	intent := *f.payment(t, r.PaymentID).IntentID
	require.NoError(t, f.mock.Complete(intent))

	p, err := f.svc.Confirm(ctx, intent)
	require.NoError(t, err)
	assert.Equal(t, models.PayCompleted, p.Status)

	_, err = f.svc.CreateIntent(ctx, f.q1, f.client)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestCreateIntent_Denials(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	stranger := policy.Actor{ID: uuid.New(), Role: models.RoleClient}
	_, err := f.svc.CreateIntent(ctx, f.q1, stranger)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
	assert.Equal(t, "access denied", apperr.Message(err))

	_, err = f.svc.CreateIntent(ctx, uuid.New(), f.client)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestCreateIntent_EngagedWithAnotherQuote(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.accept(t, f.q1)

	_, err := f.svc.CreateIntent(ctx, f.q2, f.client)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))

	_, err = f.svc.CreateIntent(ctx, f.q1, f.client)
	assert.NoError(t, err)
}

func TestCreateIntent_RequireAcceptedQuote(t *testing.T) {
	f := newFixture(t, Options{RequireAcceptedQuote: true})
	ctx := context.Background()

	_, err := f.svc.CreateIntent(ctx, f.q1, f.client)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))

	f.accept(t, f.q1)
	_, err = f.svc.CreateIntent(ctx, f.q1, f.client)
	assert.NoError(t, err)
}

func TestCreateIntent_ProcessorFailureThenRetry(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	down := errors.New("connection refused")
	proc := &flakyProcessor{MockProcessor: f.mock, err: down}
	svc := NewService(f.st, proc, Options{Timeout: time.Second}, zap.NewNop())

	_, err := svc.CreateIntent(ctx, f.q1, f.client)
	assert.True(t, apperr.IsKind(err, apperr.KindUnavailable))
	assert.ErrorIs(t, err, down)

	live, err := f.st.GetLivePaymentByQuote(ctx, f.q1)
	require.NoError(t, err)
	assert.Nil(t, live.IntentID)

	proc.err = nil
	r, err := svc.CreateIntent(ctx, f.q1, f.client)
	require.NoError(t, err)
	assert.Equal(t, live.ID, r.PaymentID)
	assert.NotNil(t, f.payment(t, r.PaymentID).IntentID)
}

func TestCreateIntent_ProcessorTimeout(t *testing.T) {
	f := newFixture(t, Options{})
	svc := NewService(f.st, slowProcessor{f.mock}, Options{Timeout: 20 * time.Millisecond}, zap.NewNop())

	start := time.Now()
	_, err := svc.CreateIntent(context.Background(), f.q1, f.client)
	assert.True(t, apperr.IsKind(err, apperr.KindUnavailable))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestMinorUnits(t *testing.T) {
	assert.EqualValues(t, 150000, MinorUnits(decimal.RequireFromString("1500")))
	assert.EqualValues(t, 1999, MinorUnits(decimal.RequireFromString("19.99")))
	assert.EqualValues(t, 1, MinorUnits(decimal.RequireFromString("0.005")))
}

/* ================== confirm ================== */

func TestConfirm_SuccessEngagesCase(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	r, err := f.svc.CreateIntent(ctx, f.q1, f.client)
	require.NoError(t, err)
	intent := *f.payment(t, r.PaymentID).IntentID
	require.NoError(t, f.mock.Complete(intent))

	p, err := f.svc.Confirm(ctx, intent)
	require.NoError(t, err)
	assert.Equal(t, models.PayCompleted, p.Status)

	// a completed payment implies an accepted quote and an engaged case
	assert.Equal(t, models.QuoteAccepted, f.quoteStatus(t, f.q1))
	assert.Equal(t, models.QuoteRejected, f.quoteStatus(t, f.q2))
	cs, err := f.st.GetCase(ctx, f.caseID)
	require.NoError(t, err)
	assert.Equal(t, models.CaseEngaged, cs.Status)
	require.NotNil(t, cs.AcceptedQuoteID)
	assert.Equal(t, f.q1, *cs.AcceptedQuoteID)

	hist := f.st.History()
	require.NotEmpty(t, hist)
	assert.Equal(t, models.ActionPaid, hist[len(hist)-1].Action)

	// re-entrant
	again, err := f.svc.Confirm(ctx, intent)
	require.NoError(t, err)
	assert.Equal(t, models.PayCompleted, again.Status)
	assert.Len(t, f.st.History(), len(hist))
}

func TestConfirm_AlreadyEngagedWithSameQuote(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.accept(t, f.q1)

	r, err := f.svc.CreateIntent(ctx, f.q1, f.client)
	require.NoError(t, err)
	intent := *f.payment(t, r.PaymentID).IntentID
	require.NoError(t, f.mock.Complete(intent))

	p, err := f.svc.Confirm(ctx, intent)
	require.NoError(t, err)
	assert.Equal(t, models.PayCompleted, p.Status)
	assert.Equal(t, models.QuoteAccepted, f.quoteStatus(t, f.q1))
	assert.Equal(t, models.QuoteRejected, f.quoteStatus(t, f.q2))
}

func TestConfirm_NotSucceededFailsAndAllowsNewAttempt(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	r1, err := f.svc.CreateIntent(ctx, f.q1, f.client)
	require.NoError(t, err)
	intent := *f.payment(t, r1.PaymentID).IntentID
	require.NoError(t, f.mock.Cancel(intent))

	p, err := f.svc.Confirm(ctx, intent)
	require.NoError(t, err)
	assert.Equal(t, models.PayFailed, p.Status)
	assert.Equal(t, models.QuoteProposed, f.quoteStatus(t, f.q1))

	// failed is terminal even if the processor later reports success
	require.NoError(t, f.mock.Complete(intent))
	p, err = f.svc.Confirm(ctx, intent)
	require.NoError(t, err)
	assert.Equal(t, models.PayFailed, p.Status)

	r2, err := f.svc.CreateIntent(ctx, f.q1, f.client)
	require.NoError(t, err)
	assert.NotEqual(t, r1.PaymentID, r2.PaymentID)
}

func TestConfirm_DeclinedAttemptStaysPending(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	r, err := f.svc.CreateIntent(ctx, f.q1, f.client)
	require.NoError(t, err)
	intent := *f.payment(t, r.PaymentID).IntentID
	require.NoError(t, f.mock.Decline(intent))

	p, err := f.svc.Confirm(ctx, intent)
	require.NoError(t, err)
	assert.Equal(t, models.PayPending, p.Status)

	// the client retries with the same secret
	again, err := f.svc.CreateIntent(ctx, f.q1, f.client)
	require.NoError(t, err)
	assert.Equal(t, r.PaymentID, again.PaymentID)
	assert.Equal(t, r.ClientSecret, again.ClientSecret)

	require.NoError(t, f.mock.Complete(intent))
	p, err = f.svc.Confirm(ctx, intent)
	require.NoError(t, err)
	assert.Equal(t, models.PayCompleted, p.Status)
	assert.Equal(t, models.QuoteAccepted, f.quoteStatus(t, f.q1))
}

func TestConfirm_QuoteFrozenWhilePaying(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	qs := quotes.NewService(f.st, zap.NewNop())

	r, err := f.svc.CreateIntent(ctx, f.q1, f.client)
	require.NoError(t, err)
	intent := *f.payment(t, r.PaymentID).IntentID

	err = qs.Remove(ctx, f.q1, f.l1)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
	_, err = qs.Submit(ctx, f.caseID, f.l1, quotes.SubmitInput{Amount: decimal.RequireFromString("9000"), ExpectedDays: 30})
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))

	// the charge still lands on the quote it was made for
	require.NoError(t, f.mock.Complete(intent))
	body, header := signedEvent(f.mock.WebhookSecret(), EventIntentSucceeded, intent)
	require.NoError(t, f.svc.HandleWebhook(ctx, body, header))

	p := f.payment(t, r.PaymentID)
	assert.Equal(t, models.PayCompleted, p.Status)
	q, err := f.st.GetQuote(ctx, f.q1)
	require.NoError(t, err)
	assert.True(t, q.Amount.Equal(p.Amount))
	assert.Equal(t, models.QuoteAccepted, q.Status)
}

func TestConfirm_QuoteLostTheCase(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	r, err := f.svc.CreateIntent(ctx, f.q2, f.client)
	require.NoError(t, err)
	f.accept(t, f.q1)

	intent := *f.payment(t, r.PaymentID).IntentID
	require.NoError(t, f.mock.Complete(intent))
	_, err = f.svc.Confirm(ctx, intent)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	assert.Equal(t, models.PayPending, f.payment(t, r.PaymentID).Status)
	assert.Equal(t, models.QuoteRejected, f.quoteStatus(t, f.q2))
	assert.Equal(t, models.QuoteAccepted, f.quoteStatus(t, f.q1))
}

func TestConfirm_UnknownIntentAndProcessorDown(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.Confirm(ctx, "pi_nope")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	r, err := f.svc.CreateIntent(ctx, f.q1, f.client)
	require.NoError(t, err)
	intent := *f.payment(t, r.PaymentID).IntentID

	svc := NewService(f.st, &flakyProcessor{MockProcessor: f.mock, err: errors.New("503")}, Options{}, zap.NewNop())
	_, err = svc.Confirm(ctx, intent)
	assert.True(t, apperr.IsKind(err, apperr.KindUnavailable))
	assert.Equal(t, models.PayPending, f.payment(t, r.PaymentID).Status)
}

func TestConfirmAs_RequiresParty(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	r, err := f.svc.CreateIntent(ctx, f.q1, f.client)
	require.NoError(t, err)
	intent := *f.payment(t, r.PaymentID).IntentID
	require.NoError(t, f.mock.Complete(intent))

	_, err = f.svc.ConfirmAs(ctx, intent, f.l2)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	assert.Equal(t, models.PayPending, f.payment(t, r.PaymentID).Status)

	p, err := f.svc.ConfirmAs(ctx, intent, f.l1)
	require.NoError(t, err)
	assert.Equal(t, models.PayCompleted, p.Status)
}

/* ================== status & webhook ================== */

func TestStatus(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	r, err := f.svc.CreateIntent(ctx, f.q1, f.client)
	require.NoError(t, err)

	p, err := f.svc.Status(ctx, r.PaymentID, f.l1)
	require.NoError(t, err)
	assert.Equal(t, r.PaymentID, p.ID)

	_, err = f.svc.Status(ctx, r.PaymentID, f.l2)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	_, err = f.svc.Status(ctx, uuid.New(), f.client)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestHandleWebhook(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	r, err := f.svc.CreateIntent(ctx, f.q1, f.client)
	require.NoError(t, err)
	intent := *f.payment(t, r.PaymentID).IntentID
	require.NoError(t, f.mock.Complete(intent))

	body, header := signedEvent("whsec_other", EventIntentSucceeded, intent)
	err = f.svc.HandleWebhook(ctx, body, header)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidSignature))
	assert.Equal(t, models.PayPending, f.payment(t, r.PaymentID).Status)

	// signature covers the exact bytes
	body, header = signedEvent(f.mock.WebhookSecret(), EventIntentSucceeded, intent)
	tampered := bytes.Replace(body, []byte("evt_test"), []byte("evt_fake"), 1)
	err = f.svc.HandleWebhook(ctx, tampered, header)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidSignature))

	body, header = signedEvent(f.mock.WebhookSecret(), "charge.refunded", intent)
	assert.NoError(t, f.svc.HandleWebhook(ctx, body, header))
	assert.Equal(t, models.PayPending, f.payment(t, r.PaymentID).Status)

	body, header = signedEvent(f.mock.WebhookSecret(), EventIntentSucceeded, "pi_unknown")
	assert.NoError(t, f.svc.HandleWebhook(ctx, body, header))

	body, header = signedEvent(f.mock.WebhookSecret(), EventIntentSucceeded, intent)
	require.NoError(t, f.svc.HandleWebhook(ctx, body, header))
	assert.Equal(t, models.PayCompleted, f.payment(t, r.PaymentID).Status)
	assert.Equal(t, models.QuoteAccepted, f.quoteStatus(t, f.q1))
}

func TestHandleWebhook_EventTypes(t *testing.T) {
	t.Run("payment_failed is ignored and a later success completes", func(t *testing.T) {
		f := newFixture(t, Options{})
		ctx := context.Background()
		r, err := f.svc.CreateIntent(ctx, f.q1, f.client)
		require.NoError(t, err)
		intent := *f.payment(t, r.PaymentID).IntentID

		require.NoError(t, f.mock.Decline(intent))
		body, header := signedEvent(f.mock.WebhookSecret(), string(stripe.EventTypePaymentIntentPaymentFailed), intent)
		require.NoError(t, f.svc.HandleWebhook(ctx, body, header))
		assert.Equal(t, models.PayPending, f.payment(t, r.PaymentID).Status)

		require.NoError(t, f.mock.Complete(intent))
		body, header = signedEvent(f.mock.WebhookSecret(), EventIntentSucceeded, intent)
		require.NoError(t, f.svc.HandleWebhook(ctx, body, header))
		assert.Equal(t, models.PayCompleted, f.payment(t, r.PaymentID).Status)
		assert.Equal(t, models.QuoteAccepted, f.quoteStatus(t, f.q1))
	})

	t.Run("canceled fails the payment", func(t *testing.T) {
		f := newFixture(t, Options{})
		ctx := context.Background()
		r, err := f.svc.CreateIntent(ctx, f.q1, f.client)
		require.NoError(t, err)
		intent := *f.payment(t, r.PaymentID).IntentID

		require.NoError(t, f.mock.Cancel(intent))
		body, header := signedEvent(f.mock.WebhookSecret(), EventIntentCanceled, intent)
		require.NoError(t, f.svc.HandleWebhook(ctx, body, header))
		assert.Equal(t, models.PayFailed, f.payment(t, r.PaymentID).Status)
		assert.Equal(t, models.QuoteProposed, f.quoteStatus(t, f.q1))

		r2, err := f.svc.CreateIntent(ctx, f.q1, f.client)
		require.NoError(t, err)
		assert.NotEqual(t, r.PaymentID, r2.PaymentID)
	})

	t.Run("status is read from the processor, not the event", func(t *testing.T) {
		f := newFixture(t, Options{})
		ctx := context.Background()
		r, err := f.svc.CreateIntent(ctx, f.q1, f.client)
		require.NoError(t, err)
		intent := *f.payment(t, r.PaymentID).IntentID

		body, header := signedEvent(f.mock.WebhookSecret(), EventIntentCanceled, intent)
		require.NoError(t, f.svc.HandleWebhook(ctx, body, header))
		assert.Equal(t, models.PayPending, f.payment(t, r.PaymentID).Status)

		body, header = signedEvent(f.mock.WebhookSecret(), EventIntentSucceeded, intent)
		require.NoError(t, f.svc.HandleWebhook(ctx, body, header))
		assert.Equal(t, models.PayPending, f.payment(t, r.PaymentID).Status)
	})
}

/* ================== HTTP ================== */

// injectAuth puts the caller where auth.Actor reads it.
func injectAuth(userID uuid.UUID, role models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("userID", userID)
		c.Locals("role", role)
		return c.Next()
	}
}

func newTestApp(f *fixture, actor policy.Actor) *fiber.App {
	h := NewHandler(f.svc).WithMock(f.mock, "dev-secret")
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler(zap.NewNop())})
	h.RegisterPublic(app.Group("/api"))
	h.Register(app.Group("/api", injectAuth(actor.ID, actor.Role)))
	return app
}

func send(t *testing.T, app *fiber.App, method, target string, body []byte, headers map[string]string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b
}

func TestHTTP_PaymentFlow(t *testing.T) {
	f := newFixture(t, Options{})

	code, _ := send(t, newTestApp(f, f.l1), "POST", "/api/payments/create-intent/"+f.q1.String(), nil, nil)
	assert.Equal(t, fiber.StatusForbidden, code)

	app := newTestApp(f, f.client)
	code, body := send(t, app, "POST", "/api/payments/create-intent/"+f.q1.String(), nil, nil)
	require.Equal(t, fiber.StatusOK, code, string(body))
	var res IntentResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.NotEmpty(t, res.ClientSecret)

	code, _ = send(t, app, "POST", "/api/payments/mock/complete",
		[]byte(`{"payment_id":"`+res.PaymentID.String()+`"}`),
		map[string]string{"Content-Type": "application/json", "X-Dev-Secret": "wrong"})
	assert.Equal(t, fiber.StatusUnauthorized, code)

	code, body = send(t, app, "POST", "/api/payments/mock/complete",
		[]byte(`{"payment_id":"`+res.PaymentID.String()+`"}`),
		map[string]string{"Content-Type": "application/json", "X-Dev-Secret": "dev-secret"})
	require.Equal(t, fiber.StatusOK, code, string(body))
	var p models.Payment
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, models.PayCompleted, p.Status)

	code, body = send(t, app, "GET", "/api/payments/"+res.PaymentID.String()+"/status", nil, nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, string(body), `"status":"completed"`)

	code, body = send(t, app, "POST", "/api/payments/create-intent/"+f.q1.String(), nil, nil)
	assert.Equal(t, fiber.StatusConflict, code)
	assert.Contains(t, string(body), "payment already completed")
}

func TestHTTP_Webhook(t *testing.T) {
	f := newFixture(t, Options{})
	app := newTestApp(f, f.client)

	r, err := f.svc.CreateIntent(context.Background(), f.q1, f.client)
	require.NoError(t, err)
	intent := *f.payment(t, r.PaymentID).IntentID
	require.NoError(t, f.mock.Complete(intent))

	body, _ := signedEvent(f.mock.WebhookSecret(), EventIntentSucceeded, intent)
	code, resp := send(t, app, "POST", "/api/payments/webhook", body,
		map[string]string{"Content-Type": "application/json", "Stripe-Signature": "t=1,v1=deadbeef"})
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Contains(t, string(resp), "INVALID_SIGNATURE")

	body, header := signedEvent(f.mock.WebhookSecret(), EventIntentSucceeded, intent)
	code, resp = send(t, app, "POST", "/api/payments/webhook", body,
		map[string]string{"Content-Type": "application/json", "Stripe-Signature": header})
	require.Equal(t, fiber.StatusOK, code, string(resp))
	assert.JSONEq(t, `{"received":true}`, string(resp))
	assert.Equal(t, models.PayCompleted, f.payment(t, r.PaymentID).Status)
}
