package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aldoetobex/legal-mp-engagement/internal/cases"
	"github.com/aldoetobex/legal-mp-engagement/internal/policy"
	"github.com/aldoetobex/legal-mp-engagement/internal/store"
	"github.com/aldoetobex/legal-mp-engagement/pkg/apperr"
	"github.com/aldoetobex/legal-mp-engagement/pkg/models"
)

// Options is the payment policy resolved from config at startup.
type Options struct {
	Currency string
	// Timeout bounds every processor call.
	Timeout time.Duration
	// RequireAcceptedQuote rejects intents for quotes that are not accepted yet.
	RequireAcceptedQuote bool
}

// Service reconciles Payment records with the processor and with the
// quote/case lifecycle.
type Service struct {
	st   store.Store
	proc Processor
	opts Options
	log  *zap.Logger
	now  func() time.Time
}

func NewService(st store.Store, proc Processor, opts Options, log *zap.Logger) *Service {
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	opts.Currency = strings.ToLower(opts.Currency)
	return &Service{st: st, proc: proc, opts: opts, log: log, now: time.Now}
}

// IntentResult is what the client needs to complete payment.
type IntentResult struct {
	ClientSecret string    `json:"clientSecret"`
	PaymentID    uuid.UUID `json:"paymentId"`
}

// CreateIntent returns a payment intent for the quote's price. Repeated
// calls for the same quote return the same payment until it completes.
func (s *Service) CreateIntent(ctx context.Context, quoteID uuid.UUID, client policy.Actor) (*IntentResult, error) {
	q, err := s.st.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, notFound(err, "quote not found")
	}

	// Case then quote, the order accept uses. Quote edits take the same locks,
	// so a quote cannot be repriced or withdrawn while its payment is created.
	var p *models.Payment
	err = s.st.WithinTx(ctx, func(tx store.Store) error {
		cs, err := tx.LockCase(ctx, q.CaseID)
		if err != nil {
			return notFound(err, "case not found")
		}
		if !policy.CanMutateCase(cs, client) {
			return apperr.InvalidState("access denied")
		}
		q, err := tx.LockQuote(ctx, quoteID)
		if err != nil {
			return notFound(err, "quote not found")
		}

		live, err := tx.GetLivePaymentByQuote(ctx, q.ID)
		switch {
		case err == nil:
			p = live
			return nil
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		if s.opts.RequireAcceptedQuote && q.Status != models.QuoteAccepted {
			return apperr.InvalidState("quote is not accepted")
		}
		if cs.Status == models.CaseEngaged && (cs.AcceptedQuoteID == nil || *cs.AcceptedQuoteID != q.ID) {
			return apperr.InvalidState("case is engaged with another quote")
		}

		p = &models.Payment{
			CaseID:   cs.ID,
			QuoteID:  q.ID,
			ClientID: cs.ClientID,
			LawyerID: q.LawyerID,
			Amount:   q.Amount,
			Currency: s.opts.Currency,
			Status:   models.PayPending,
		}
		if err := tx.CreatePayment(ctx, p); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperr.Conflict("payment already in progress")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.resume(ctx, p)
}

// resume returns the client secret of a live payment, requesting the intent
// first when the payment has none yet.
func (s *Service) resume(ctx context.Context, p *models.Payment) (*IntentResult, error) {
	if p.Status == models.PayCompleted {
		return nil, apperr.Conflict("payment already completed")
	}
	if p.IntentID == nil {
		return s.attach(ctx, p)
	}

	cctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	in, err := s.proc.GetIntent(cctx, *p.IntentID)
	if err != nil {
		return nil, apperr.Unavailable("payment processor unavailable", err)
	}
	return &IntentResult{ClientSecret: in.ClientSecret, PaymentID: p.ID}, nil
}

// attach requests the processor intent for a pending payment and stores its
// reference. The idempotency key makes a retry after a failure reuse the intent.
func (s *Service) attach(ctx context.Context, p *models.Payment) (*IntentResult, error) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	in, err := s.proc.CreateIntent(cctx, IntentRequest{
		AmountMinor: MinorUnits(p.Amount),
		Currency:    p.Currency,
		Metadata: map[string]string{
			"paymentId": p.ID.String(),
			"quoteId":   p.QuoteID.String(),
			"caseId":    p.CaseID.String(),
			"clientId":  p.ClientID.String(),
			"lawyerId":  p.LawyerID.String(),
		},
		IdempotencyKey: "payment-" + p.ID.String(),
	})
	if err != nil {
		s.log.Warn("create intent failed", zap.String("payment_id", p.ID.String()), zap.Error(err))
		return nil, apperr.Unavailable("payment processor unavailable", err)
	}

	p.IntentID = &in.ID
	if err := s.st.UpdatePayment(ctx, p); err != nil {
		return nil, err
	}
	return &IntentResult{ClientSecret: in.ClientSecret, PaymentID: p.ID}, nil
}

// Confirm syncs the payment with the processor's view of its intent. Only a
// final intent status changes it; completed and failed payments are returned
// unchanged.
func (s *Service) Confirm(ctx context.Context, intentID string) (*models.Payment, error) {
	return s.confirm(ctx, intentID, nil)
}

// ConfirmAs is Confirm on behalf of the payment's client or lawyer.
func (s *Service) ConfirmAs(ctx context.Context, intentID string, actor policy.Actor) (*models.Payment, error) {
	return s.confirm(ctx, intentID, func(p *models.Payment) error {
		if !policy.CanViewPayment(p, actor) {
			return apperr.Forbidden("access denied")
		}
		return nil
	})
}

func (s *Service) confirm(ctx context.Context, intentID string, authorize func(*models.Payment) error) (*models.Payment, error) {
	p, err := s.st.GetPaymentByIntent(ctx, intentID)
	if err != nil {
		return nil, notFound(err, "payment not found")
	}
	if authorize != nil {
		if err := authorize(p); err != nil {
			return nil, err
		}
	}
	if p.Status != models.PayPending {
		return p, nil
	}

	// The processor is asked before any row is locked.
	cctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	in, err := s.proc.GetIntent(cctx, intentID)
	cancel()
	if err != nil {
		return nil, apperr.Unavailable("payment processor unavailable", err)
	}

	var next models.PayStatus
	switch in.Status {
	case IntentSucceeded:
		next = models.PayCompleted
	case IntentCanceled:
		next = models.PayFailed
	default:
		// not final: a declined card can be retried with the same client secret
		return p, nil
	}

	var out *models.Payment
	err = s.st.WithinTx(ctx, func(tx store.Store) error {
		p, err := tx.LockPaymentByIntent(ctx, intentID)
		if err != nil {
			return notFound(err, "payment not found")
		}
		if p.Status != models.PayPending {
			// settled by a concurrent confirm
			out = p
			return nil
		}
		if next == models.PayCompleted {
			if err := s.settle(ctx, tx, p); err != nil {
				return err
			}
		}
		p.Status = next
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment confirmed",
		zap.String("payment_id", out.ID.String()),
		zap.String("intent_id", intentID),
		zap.String("status", string(out.Status)),
	)
	return out, nil
}

// settle makes the quote accepted and the case engaged for a paid payment.
// An open case goes through the full engagement so sibling quotes are rejected.
func (s *Service) settle(ctx context.Context, tx store.Store, p *models.Payment) error {
	cs, err := tx.LockCase(ctx, p.CaseID)
	if err != nil {
		return notFound(err, "case not found")
	}
	old := cs.Status

	if cs.Status == models.CaseOpen {
		if _, err := cases.Engage(ctx, tx, cs.ID, p.QuoteID, s.now()); err != nil {
			return err
		}
	} else {
		if cs.AcceptedQuoteID != nil && *cs.AcceptedQuoteID != p.QuoteID {
			s.log.Error("paid quote lost the case; refund required",
				zap.String("payment_id", p.ID.String()),
				zap.String("case_id", cs.ID.String()),
			)
			return apperr.Conflict("case is engaged with another quote")
		}
		q, err := tx.LockQuote(ctx, p.QuoteID)
		if err != nil {
			return notFound(err, "quote not found")
		}
		if q.Status != models.QuoteAccepted {
			q.Status = models.QuoteAccepted
			if err := tx.UpdateQuote(ctx, q); err != nil {
				return err
			}
		}
		if cs.Status != models.CaseEngaged {
			now := s.now()
			cs.Status = models.CaseEngaged
			cs.EngagedAt = &now
			cs.AcceptedQuoteID = &q.ID
			cs.AcceptedLawyerID = &q.LawyerID
			if err := tx.UpdateCase(ctx, cs); err != nil {
				return err
			}
		}
	}

	return tx.AddHistory(ctx, &models.CaseHistory{
		CaseID:    cs.ID,
		ActorID:   p.ClientID,
		Action:    models.ActionPaid,
		OldStatus: old,
		NewStatus: models.CaseEngaged,
		Reason:    "payment " + p.ID.String(),
	})
}

// Status returns the payment to its client or lawyer.
func (s *Service) Status(ctx context.Context, paymentID uuid.UUID, actor policy.Actor) (*models.Payment, error) {
	p, err := s.st.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, notFound(err, "payment not found")
	}
	if !policy.CanViewPayment(p, actor) {
		return nil, apperr.Forbidden("access denied")
	}
	return p, nil
}

// IntentOf returns the processor reference of a payment.
func (s *Service) IntentOf(ctx context.Context, paymentID uuid.UUID) (string, error) {
	p, err := s.st.GetPayment(ctx, paymentID)
	if err != nil {
		return "", notFound(err, "payment not found")
	}
	if p.IntentID == nil {
		return "", apperr.InvalidState("payment has no intent yet")
	}
	return *p.IntentID, nil
}

// HandleWebhook verifies a processor notification and confirms the payment
// it refers to. Unknown event types and unknown intents are acknowledged.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.proc.ParseWebhook(payload, signature)
	if err != nil {
		return apperr.InvalidSignature(err)
	}

	switch ev.Type {
	case EventIntentSucceeded, EventIntentCanceled:
	default:
		s.log.Debug("webhook ignored", zap.String("type", ev.Type))
		return nil
	}
	if ev.IntentID == "" {
		return apperr.Invalid("event has no payment intent")
	}

	_, err = s.Confirm(ctx, ev.IntentID)
	switch {
	case err == nil:
		return nil
	case apperr.IsKind(err, apperr.KindNotFound):
		s.log.Warn("webhook for unknown intent", zap.String("intent_id", ev.IntentID))
		return nil
	case apperr.IsKind(err, apperr.KindConflict):
		// logged in settle; redelivery would not change the outcome
		return nil
	default:
		return err
	}
}

// MinorUnits converts an amount to the currency's smallest unit (cents).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func notFound(err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(msg)
	}
	return err
}
