package quotes

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aldoetobex/legal-mp-engagement/internal/policy"
	"github.com/aldoetobex/legal-mp-engagement/internal/store"
	"github.com/aldoetobex/legal-mp-engagement/pkg/apperr"
	"github.com/aldoetobex/legal-mp-engagement/pkg/models"
	"github.com/aldoetobex/legal-mp-engagement/pkg/utils"
	"github.com/aldoetobex/legal-mp-engagement/pkg/validation"
)

const (
	MinDays = validation.MinTermDays
	MaxDays = validation.MaxTermDays
)

// Service owns the quote lifecycle: submit, revise, withdraw, list.
type Service struct {
	st  store.Store
	log *zap.Logger
}

func NewService(st store.Store, log *zap.Logger) *Service {
	return &Service{st: st, log: log}
}

// SubmitInput is a full quote proposal.
type SubmitInput struct {
	Amount       decimal.Decimal
	ExpectedDays int
	Note         string
}

// QuotePatch holds optional replacements; nil fields are left alone.
type QuotePatch struct {
	Amount       *decimal.Decimal
	ExpectedDays *int
	Note         *string
}

// Apply returns a copy of q with the patch applied and validated.
func (p QuotePatch) Apply(q models.Quote) (models.Quote, error) {
	if p.Amount != nil {
		q.Amount = *p.Amount
	}
	if p.ExpectedDays != nil {
		q.ExpectedDays = *p.ExpectedDays
	}
	if p.Note != nil {
		q.Note = strings.TrimSpace(*p.Note)
	}
	if err := validateTerms(q.Amount, q.ExpectedDays); err != nil {
		return models.Quote{}, err
	}
	return q, nil
}

func validateTerms(amount decimal.Decimal, days int) error {
	if !amount.IsPositive() {
		return apperr.Invalid("amount must be greater than 0")
	}
	if days < MinDays || days > MaxDays {
		return apperr.Invalid("expectedDays must be between 1 and 365")
	}
	return nil
}

// Submit creates the lawyer's quote on an open case, or replaces the terms of
// the existing proposed one. The case row is locked so submissions and
// acceptance on the same case serialize.
func (s *Service) Submit(ctx context.Context, caseID uuid.UUID, lawyer policy.Actor, in SubmitInput) (*models.Quote, error) {
	if !lawyer.IsLawyer() {
		return nil, apperr.Forbidden("only lawyers can submit quotes")
	}
	if err := validateTerms(in.Amount, in.ExpectedDays); err != nil {
		return nil, err
	}
	note := strings.TrimSpace(in.Note)

	var out *models.Quote
	err := s.st.WithinTx(ctx, func(tx store.Store) error {
		cs, err := tx.LockCase(ctx, caseID)
		if err != nil {
			return notFound(err, "case not found")
		}
		if cs.Status != models.CaseOpen {
			return apperr.InvalidState("case is not open for quotes")
		}

		q, err := tx.FindQuote(ctx, caseID, lawyer.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			q = &models.Quote{
				CaseID:       caseID,
				LawyerID:     lawyer.ID,
				Amount:       in.Amount,
				ExpectedDays: in.ExpectedDays,
				Note:         note,
				Status:       models.QuoteProposed,
			}
			if err := tx.CreateQuote(ctx, q); err != nil {
				if errors.Is(err, store.ErrDuplicate) {
					return apperr.Conflict("quote already submitted for this case")
				}
				return err
			}
		case err != nil:
			return err
		default:
			if q.Status != models.QuoteProposed {
				return apperr.InvalidState("cannot update accepted or rejected quotes")
			}
			if err := unpaid(ctx, tx, q.ID); err != nil {
				return err
			}
			q.Amount, q.ExpectedDays, q.Note = in.Amount, in.ExpectedDays, note
			if err := tx.UpdateQuote(ctx, q); err != nil {
				return err
			}
		}
		out = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("quote submitted",
		zap.String("quote_id", out.ID.String()),
		zap.String("case_id", caseID.String()),
		zap.String("lawyer_id", lawyer.ID.String()),
	)
	return out, nil
}

// Get returns a quote visible to the actor.
func (s *Service) Get(ctx context.Context, quoteID uuid.UUID, actor policy.Actor) (*models.Quote, error) {
	q, err := s.st.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, notFound(err, "quote not found")
	}
	var cs *models.Case
	if actor.IsClient() {
		if cs, err = s.st.GetCase(ctx, q.CaseID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	if !policy.CanViewQuote(q, cs, actor) {
		return nil, apperr.Forbidden("access denied")
	}
	return q, nil
}

// Update applies a patch to a proposed quote owned by the lawyer.
func (s *Service) Update(ctx context.Context, quoteID uuid.UUID, lawyer policy.Actor, patch QuotePatch) (*models.Quote, error) {
	var out *models.Quote
	err := s.st.WithinTx(ctx, func(tx store.Store) error {
		q, err := s.mutable(ctx, tx, quoteID, lawyer)
		if err != nil {
			return err
		}
		next, err := patch.Apply(*q)
		if err != nil {
			return err
		}
		if err := tx.UpdateQuote(ctx, &next); err != nil {
			return err
		}
		out = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Remove withdraws a proposed quote owned by the lawyer.
func (s *Service) Remove(ctx context.Context, quoteID uuid.UUID, lawyer policy.Actor) error {
	return s.st.WithinTx(ctx, func(tx store.Store) error {
		if _, err := s.mutable(ctx, tx, quoteID, lawyer); err != nil {
			return err
		}
		return tx.DeleteQuote(ctx, quoteID)
	})
}

// mutable locks the quote and checks it may still be changed by lawyer.
func (s *Service) mutable(ctx context.Context, tx store.Store, quoteID uuid.UUID, lawyer policy.Actor) (*models.Quote, error) {
	q, err := tx.LockQuote(ctx, quoteID)
	if err != nil {
		return nil, notFound(err, "quote not found")
	}
	if !policy.CanMutateQuote(q, lawyer) {
		return nil, apperr.Forbidden("access denied")
	}
	if q.Status != models.QuoteProposed {
		return nil, apperr.InvalidState("cannot update accepted or rejected quotes")
	}
	if err := unpaid(ctx, tx, q.ID); err != nil {
		return nil, err
	}
	return q, nil
}

// unpaid fails while a payment for the quote is in flight. The client is
// paying the quoted price, so the quote is frozen until that payment fails.
func unpaid(ctx context.Context, tx store.Store, quoteID uuid.UUID) error {
	_, err := tx.GetLivePaymentByQuote(ctx, quoteID)
	switch {
	case err == nil:
		return apperr.InvalidState("quote has a pending payment")
	case errors.Is(err, store.ErrNotFound):
		return nil
	default:
		return err
	}
}

// ListForLawyer pages through the lawyer's quotes, newest first.
func (s *Service) ListForLawyer(ctx context.Context, lawyer policy.Actor, status *models.QuoteStatus, page, size int) (models.Page[models.Quote], error) {
	page, size = utils.ClampPage(page, size)
	rows, total, err := s.st.ListQuotesByLawyer(ctx, store.QuoteFilter{
		LawyerID: lawyer.ID,
		Status:   status,
		Offset:   utils.Offset(page, size),
		Limit:    size,
	})
	if err != nil {
		return models.Page[models.Quote]{}, err
	}
	return utils.NewPage(rows, page, size, total), nil
}

// ListForCase returns every quote on the client's own case, oldest first.
// A case owned by someone else is reported as not found.
func (s *Service) ListForCase(ctx context.Context, caseID uuid.UUID, client policy.Actor) ([]models.Quote, error) {
	cs, err := s.st.GetCase(ctx, caseID)
	if err != nil {
		return nil, notFound(err, "case not found")
	}
	if !policy.CanMutateCase(cs, client) {
		return nil, apperr.NotFound("case not found")
	}
	return cs.Quotes, nil
}

func notFound(err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(msg)
	}
	return err
}
