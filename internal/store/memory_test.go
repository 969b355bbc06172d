package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldoetobex/legal-mp-engagement/pkg/models"
)

func seedCase(t *testing.T, s Store) *models.Case {
	t.Helper()
	cs := &models.Case{ClientID: uuid.New(), Title: "T", Category: "Cat", Description: "D"}
	require.NoError(t, s.CreateCase(context.Background(), cs))
	return cs
}

func TestMemory_WithinTxCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	cs := seedCase(t, m)

	err := m.WithinTx(ctx, func(tx Store) error {
		locked, err := tx.LockCase(ctx, cs.ID)
		if err != nil {
			return err
		}
		locked.Status = models.CaseEngaged
		return tx.UpdateCase(ctx, locked)
	})
	require.NoError(t, err)

	got, err := m.GetCase(ctx, cs.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CaseEngaged, got.Status)
}

func TestMemory_WithinTxRollsBackAndReturnsError(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	cs := seedCase(t, m)
	boom := errors.New("boom")

	err := m.WithinTx(ctx, func(tx Store) error {
		locked, _ := tx.LockCase(ctx, cs.ID)
		locked.Status = models.CaseEngaged
		_ = tx.UpdateCase(ctx, locked)
		_ = tx.CreateQuote(ctx, &models.Quote{CaseID: cs.ID, LawyerID: uuid.New(), Amount: decimal.NewFromInt(1), ExpectedDays: 1})
		return boom
	})
	assert.Same(t, boom, err)

	got, err := m.GetCase(ctx, cs.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CaseOpen, got.Status)
	assert.Empty(t, got.Quotes)
}

func TestMemory_WithinTxPanicLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	cs := seedCase(t, m)

	assert.Panics(t, func() {
		_ = m.WithinTx(ctx, func(tx Store) error {
			locked, _ := tx.LockCase(ctx, cs.ID)
			locked.Title = "changed"
			_ = tx.UpdateCase(ctx, locked)
			panic("boom")
		})
	})

	// The lock must have been released.
	got, err := m.GetCase(ctx, cs.ID)
	require.NoError(t, err)
	assert.Equal(t, "T", got.Title)
}

func TestMemory_QuoteUniquenessAndOrdering(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	cs := seedCase(t, m)
	lawyer := uuid.New()

	q1 := &models.Quote{CaseID: cs.ID, LawyerID: lawyer, Amount: decimal.NewFromInt(100), ExpectedDays: 3}
	require.NoError(t, m.CreateQuote(ctx, q1))
	assert.Equal(t, models.QuoteProposed, q1.Status)

	dup := &models.Quote{CaseID: cs.ID, LawyerID: lawyer, Amount: decimal.NewFromInt(90), ExpectedDays: 3}
	assert.ErrorIs(t, m.CreateQuote(ctx, dup), ErrDuplicate)

	q2 := &models.Quote{CaseID: cs.ID, LawyerID: uuid.New(), Amount: decimal.NewFromInt(80), ExpectedDays: 2}
	require.NoError(t, m.CreateQuote(ctx, q2))

	list, err := m.ListQuotesByCase(ctx, cs.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, q1.ID, list[0].ID)
	assert.Equal(t, q2.ID, list[1].ID)

	counts, err := m.CountQuotes(ctx, []uuid.UUID{cs.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts[cs.ID])

	quoted, err := m.CasesQuotedBy(ctx, lawyer, []uuid.UUID{cs.ID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]bool{cs.ID: true}, quoted)
}

func TestMemory_RejectOtherQuotesOnlyTouchesProposed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	cs := seedCase(t, m)

	keep := &models.Quote{CaseID: cs.ID, LawyerID: uuid.New(), Amount: decimal.NewFromInt(1), ExpectedDays: 1}
	other := &models.Quote{CaseID: cs.ID, LawyerID: uuid.New(), Amount: decimal.NewFromInt(1), ExpectedDays: 1}
	already := &models.Quote{CaseID: cs.ID, LawyerID: uuid.New(), Amount: decimal.NewFromInt(1), ExpectedDays: 1, Status: models.QuoteRejected}
	foreign := &models.Quote{CaseID: uuid.New(), LawyerID: uuid.New(), Amount: decimal.NewFromInt(1), ExpectedDays: 1}
	for _, q := range []*models.Quote{keep, other, already, foreign} {
		require.NoError(t, m.CreateQuote(ctx, q))
	}

	n, err := m.RejectOtherQuotes(ctx, cs.ID, keep.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, _ := m.GetQuote(ctx, other.ID)
	assert.Equal(t, models.QuoteRejected, got.Status)
	got, _ = m.GetQuote(ctx, keep.ID)
	assert.Equal(t, models.QuoteProposed, got.Status)
	got, _ = m.GetQuote(ctx, foreign.ID)
	assert.Equal(t, models.QuoteProposed, got.Status)
}

func TestMemory_LivePaymentPerQuote(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	quoteID := uuid.New()

	first := &models.Payment{QuoteID: quoteID, Amount: decimal.NewFromInt(10), Currency: "usd"}
	require.NoError(t, m.CreatePayment(ctx, first))
	assert.ErrorIs(t, m.CreatePayment(ctx, &models.Payment{QuoteID: quoteID}), ErrDuplicate)

	// A failed attempt frees the slot for a new one.
	first.Status = models.PayFailed
	require.NoError(t, m.UpdatePayment(ctx, first))
	second := &models.Payment{QuoteID: quoteID, Amount: decimal.NewFromInt(10), Currency: "usd"}
	require.NoError(t, m.CreatePayment(ctx, second))

	live, err := m.GetLivePaymentByQuote(ctx, quoteID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, live.ID)

	ref := "pi_123"
	second.IntentID = &ref
	require.NoError(t, m.UpdatePayment(ctx, second))
	byIntent, err := m.LockPaymentByIntent(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, second.ID, byIntent.ID)

	_, err = m.LockPaymentByIntent(ctx, "pi_missing")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := m.GetPaymentByIntent(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
	_, err = m.GetPaymentByIntent(ctx, "pi_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_ListCasesFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	client := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		cs := &models.Case{ClientID: client, Title: "T", Category: "Family"}
		require.NoError(t, m.CreateCase(ctx, cs))
		ids = append(ids, cs.ID)
	}
	require.NoError(t, m.CreateCase(ctx, &models.Case{ClientID: uuid.New(), Title: "x", Category: "Tax"}))

	page, total, err := m.ListCases(ctx, CaseFilter{ClientID: &client, Offset: 0, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, ids[4], page[0].ID)
	assert.Equal(t, ids[3], page[1].ID)

	page, total, err = m.ListCases(ctx, CaseFilter{Category: "Tax", Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, page, 1)

	page, _, err = m.ListCases(ctx, CaseFilter{ClientID: &client, Offset: 10, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestMemory_NotFound(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.GetCase(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.GetQuote(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.DeleteQuote(ctx, uuid.New()), ErrNotFound)
	assert.ErrorIs(t, m.UpdateCase(ctx, &models.Case{ID: uuid.New()}), ErrNotFound)
	_, err = m.GetFile(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
