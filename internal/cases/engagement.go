package cases

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aldoetobex/legal-mp-engagement/internal/policy"
	"github.com/aldoetobex/legal-mp-engagement/internal/store"
	"github.com/aldoetobex/legal-mp-engagement/pkg/apperr"
	"github.com/aldoetobex/legal-mp-engagement/pkg/models"
)

// Engagement is the result of accepting a quote.
type Engagement struct {
	Case  *models.Case  `json:"case"`
	Quote *models.Quote `json:"quote"`
}

// Accept engages the case with one of its quotes. The quote becomes accepted,
// every other proposed quote of the case is rejected and the case becomes
// engaged, all in one unit of work. Any failure leaves every record as it was
// and is returned unchanged.
func (s *Service) Accept(ctx context.Context, caseID, quoteID uuid.UUID, actor policy.Actor) (*Engagement, error) {
	cs, err := s.st.GetCase(ctx, caseID)
	if err != nil {
		return nil, notFound(err, "case not found")
	}
	if !policy.CanAcceptQuote(cs, actor) {
		return nil, apperr.Forbidden("access denied")
	}
	if cs.Status != models.CaseOpen {
		return nil, apperr.InvalidState("case is not open for quotes")
	}
	q, err := s.st.GetQuote(ctx, quoteID)
	if err != nil || q.CaseID != caseID {
		return nil, notFound(orNotFound(err), "quote not found")
	}

	var out *Engagement
	err = s.st.WithinTx(ctx, func(tx store.Store) error {
		e, err := Engage(ctx, tx, caseID, quoteID, s.now())
		if err != nil {
			return err
		}
		if err := tx.AddHistory(ctx, &models.CaseHistory{
			CaseID:    caseID,
			ActorID:   actor.ID,
			Action:    models.ActionQuoteAccepted,
			OldStatus: models.CaseOpen,
			NewStatus: models.CaseEngaged,
			Reason:    "quote " + quoteID.String(),
		}); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("quote accepted",
		zap.String("case_id", caseID.String()),
		zap.String("quote_id", quoteID.String()),
		zap.String("lawyer_id", out.Quote.LawyerID.String()),
	)
	return out, nil
}

// Engage performs the engagement writes on an open unit of work. The case and
// the quote are locked and re-checked first, so concurrent callers serialize
// and the later one fails with InvalidState.
func Engage(ctx context.Context, tx store.Store, caseID, quoteID uuid.UUID, now time.Time) (*Engagement, error) {
	cs, err := tx.LockCase(ctx, caseID)
	if err != nil {
		return nil, notFound(err, "case not found")
	}
	if cs.Status != models.CaseOpen {
		return nil, apperr.InvalidState("case is not open for quotes")
	}

	q, err := tx.LockQuote(ctx, quoteID)
	if err != nil || q.CaseID != caseID {
		return nil, notFound(orNotFound(err), "quote not found")
	}
	if q.Status != models.QuoteProposed {
		return nil, apperr.InvalidState("quote is no longer proposed")
	}

	q.Status = models.QuoteAccepted
	if err := tx.UpdateQuote(ctx, q); err != nil {
		return nil, err
	}
	if _, err := tx.RejectOtherQuotes(ctx, caseID, quoteID); err != nil {
		return nil, err
	}

	cs.Status = models.CaseEngaged
	cs.EngagedAt = &now
	cs.AcceptedQuoteID = &q.ID
	cs.AcceptedLawyerID = &q.LawyerID
	if err := tx.UpdateCase(ctx, cs); err != nil {
		return nil, err
	}
	return &Engagement{Case: cs, Quote: q}, nil
}

// orNotFound turns a successful lookup of the wrong record into ErrNotFound.
func orNotFound(err error) error {
	if err == nil {
		return store.ErrNotFound
	}
	return err
}
