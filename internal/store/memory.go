package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aldoetobex/legal-mp-engagement/pkg/models"
)

// Memory is an in-process Store used by tests and local runs without Postgres.
// One unit of work runs at a time; it operates on a copy of the state that
// replaces the live state only when the callback returns nil.
type Memory struct {
	mu sync.Mutex
	st *memState
}

func NewMemory() *Memory {
	return &Memory{st: newMemState()}
}

type memState struct {
	users    map[uuid.UUID]models.User
	cases    map[uuid.UUID]models.Case
	quotes   map[uuid.UUID]models.Quote
	files    map[uuid.UUID]models.CaseFile
	payments map[uuid.UUID]models.Payment
	history  []models.CaseHistory
	last     time.Time
}

func newMemState() *memState {
	return &memState{
		users:    map[uuid.UUID]models.User{},
		cases:    map[uuid.UUID]models.Case{},
		quotes:   map[uuid.UUID]models.Quote{},
		files:    map[uuid.UUID]models.CaseFile{},
		payments: map[uuid.UUID]models.Payment{},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		users:    make(map[uuid.UUID]models.User, len(s.users)),
		cases:    make(map[uuid.UUID]models.Case, len(s.cases)),
		quotes:   make(map[uuid.UUID]models.Quote, len(s.quotes)),
		files:    make(map[uuid.UUID]models.CaseFile, len(s.files)),
		payments: make(map[uuid.UUID]models.Payment, len(s.payments)),
		history:  append([]models.CaseHistory(nil), s.history...),
		last:     s.last,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.cases {
		c.cases[k] = v
	}
	for k, v := range s.quotes {
		c.quotes[k] = v
	}
	for k, v := range s.files {
		c.files[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	return c
}

// stamp returns a strictly increasing timestamp so ordering by creation is stable.
func (s *memState) stamp() time.Time {
	now := time.Now()
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now
	return now
}

// WithinTx serializes units of work; the state is swapped in only on success.
func (m *Memory) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.st.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	m.st = work
	return nil
}

// History returns the audit rows written so far, oldest first.
func (m *Memory) History() []models.CaseHistory {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.CaseHistory(nil), m.st.history...)
}

func (m *Memory) do(fn func(tx *memTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memTx{st: m.st})
}

func (m *Memory) CreateUser(ctx context.Context, u *models.User) error {
	return m.do(func(tx *memTx) error { return tx.CreateUser(ctx, u) })
}

func (m *Memory) GetUser(ctx context.Context, id uuid.UUID) (out *models.User, err error) {
	err = m.do(func(tx *memTx) error { out, err = tx.GetUser(ctx, id); return err })
	return out, err
}

func (m *Memory) GetUserByEmail(ctx context.Context, email string) (out *models.User, err error) {
	err = m.do(func(tx *memTx) error { out, err = tx.GetUserByEmail(ctx, email); return err })
	return out, err
}

func (m *Memory) CreateCase(ctx context.Context, cs *models.Case) error {
	return m.do(func(tx *memTx) error { return tx.CreateCase(ctx, cs) })
}

func (m *Memory) GetCase(ctx context.Context, id uuid.UUID) (out *models.Case, err error) {
	err = m.do(func(tx *memTx) error { out, err = tx.GetCase(ctx, id); return err })
	return out, err
}

func (m *Memory) LockCase(ctx context.Context, id uuid.UUID) (out *models.Case, err error) {
	err = m.do(func(tx *memTx) error { out, err = tx.LockCase(ctx, id); return err })
	return out, err
}

func (m *Memory) UpdateCase(ctx context.Context, cs *models.Case) error {
	return m.do(func(tx *memTx) error { return tx.UpdateCase(ctx, cs) })
}

func (m *Memory) ListCases(ctx context.Context, f CaseFilter) (out []models.Case, total int64, err error) {
	err = m.do(func(tx *memTx) error { out, total, err = tx.ListCases(ctx, f); return err })
	return out, total, err
}

func (m *Memory) CountQuotes(ctx context.Context, caseIDs []uuid.UUID) (out map[uuid.UUID]int64, err error) {
	err = m.do(func(tx *memTx) error { out, err = tx.CountQuotes(ctx, caseIDs); return err })
	return out, err
}

func (m *Memory) CasesQuotedBy(ctx context.Context, lawyerID uuid.UUID, caseIDs []uuid.UUID) (out map[uuid.UUID]bool, err error) {
	err = m.do(func(tx *memTx) error { out, err = tx.CasesQuotedBy(ctx, lawyerID, caseIDs); return err })
	return out, err
}

func (m *Memory) CreateQuote(ctx context.Context, q *models.Quote) error {
	return m.do(func(tx *memTx) error { return tx.CreateQuote(ctx, q) })
}

func (m *Memory) GetQuote(ctx context.Context, id uuid.UUID) (out *models.Quote, err error) {
	err = m.do(func(tx *memTx) error { out, err = tx.GetQuote(ctx, id); return err })
	return out, err
}

func (m *Memory) LockQuote(ctx context.Context, id uuid.UUID) (out *models.Quote, err error) {
	err = m.do(func(tx *memTx) error { out, err = tx.LockQuote(ctx, id); return err })
	return out, err
}

func (m *Memory) FindQuote(ctx context.Context, caseID, lawyerID uuid.UUID) (out *models.Quote, err error) {
	err = m.do(func(tx *memTx) error { out, err = tx.FindQuote(ctx, caseID, lawyerID); return err })
	return out, err
}

func (m *Memory) UpdateQuote(ctx context.Context, q *models.Quote) error {
	return m.do(func(tx *memTx) error { return tx.UpdateQuote(ctx, q) })
}

func (m *Memory) DeleteQuote(ctx context.Context, id uuid.UUID) error {
	return m.do(func(tx *memTx) error { return tx.DeleteQuote(ctx, id) })
}

func (m *Memory) ListQuotesByLawyer(ctx context.Context, f QuoteFilter) (out []models.Quote, total int64, err error) {
	err = m.do(func(tx *memTx) error { out, total, err = tx.ListQuotesByLawyer(ctx, f); return err })
	return out, total, err
}

func (m *Memory) ListQuotesByCase(ctx context.Context, caseID uuid.UUID) (out []models.Quote, err error) {
	err = m.do(func(tx *memTx) error { out, err = tx.ListQuotesByCase(ctx, caseID); return err })
	return out, err
}

func (m *Memory) RejectOtherQuotes(ctx context.Context, caseID, keepID uuid.UUID) (n int64, err error) {
	err = m.do(func(tx *memTx) error { n, err = tx.RejectOtherQuotes(ctx, caseID, keepID); return err })
	return n, err
}

func (m *Memory) CreateFile(ctx context.Context, f *models.CaseFile) error {
	return m.do(func(tx *memTx) error { return tx.CreateFile(ctx, f) })
}

func (m *Memory) GetFile(ctx context.Context, id uuid.UUID) (out *models.CaseFile, err error) {
	err = m.do(func(tx *memTx) error { out, err = tx.GetFile(ctx, id); return err })
	return out, err
}

func (m *Memory) CreatePayment(ctx context.Context, p *models.Payment) error {
	return m.do(func(tx *memTx) error { return tx.CreatePayment(ctx, p) })
}

func (m *Memory) GetPayment(ctx context.Context, id uuid.UUID) (out *models.Payment, err error) {
	err = m.do(func(tx *memTx) error { out, err = tx.GetPayment(ctx, id); return err })
	return out, err
}

func (m *Memory) GetLivePaymentByQuote(ctx context.Context, quoteID uuid.UUID) (out *models.Payment, err error) {
	err = m.do(func(tx *memTx) error { out, err = tx.GetLivePaymentByQuote(ctx, quoteID); return err })
	return out, err
}

func (m *Memory) GetPaymentByIntent(ctx context.Context, intentID string) (out *models.Payment, err error) {
	err = m.do(func(tx *memTx) error { out, err = tx.GetPaymentByIntent(ctx, intentID); return err })
	return out, err
}

func (m *Memory) LockPaymentByIntent(ctx context.Context, intentID string) (out *models.Payment, err error) {
	err = m.do(func(tx *memTx) error { out, err = tx.LockPaymentByIntent(ctx, intentID); return err })
	return out, err
}

func (m *Memory) UpdatePayment(ctx context.Context, p *models.Payment) error {
	return m.do(func(tx *memTx) error { return tx.UpdatePayment(ctx, p) })
}

func (m *Memory) AddHistory(ctx context.Context, h *models.CaseHistory) error {
	return m.do(func(tx *memTx) error { return tx.AddHistory(ctx, h) })
}

/* ============================ Unit of work ============================== */

// memTx works directly on a state; the caller owns the lock.
type memTx struct{ st *memState }

// WithinTx on an open unit of work joins it.
func (t *memTx) WithinTx(_ context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func (t *memTx) CreateUser(_ context.Context, u *models.User) error {
	for _, x := range t.st.users {
		if x.Email == u.Email {
			return ErrDuplicate
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = t.st.stamp()
	t.st.users[u.ID] = *u
	return nil
}

func (t *memTx) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (t *memTx) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range t.st.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) CreateCase(_ context.Context, cs *models.Case) error {
	if cs.ID == uuid.Nil {
		cs.ID = uuid.New()
	}
	if cs.Status == "" {
		cs.Status = models.CaseOpen
	}
	cs.CreatedAt = t.st.stamp()
	cs.UpdatedAt = cs.CreatedAt
	row := *cs
	row.Files, row.Quotes = nil, nil
	t.st.cases[cs.ID] = row
	return nil
}

func (t *memTx) GetCase(ctx context.Context, id uuid.UUID) (*models.Case, error) {
	cs, ok := t.st.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	cs.Quotes, _ = t.ListQuotesByCase(ctx, id)
	cs.Files = []models.CaseFile{}
	for _, f := range t.st.files {
		if f.CaseID == id {
			cs.Files = append(cs.Files, f)
		}
	}
	sort.Slice(cs.Files, func(i, j int) bool { return cs.Files[i].CreatedAt.Before(cs.Files[j].CreatedAt) })
	return &cs, nil
}

func (t *memTx) LockCase(_ context.Context, id uuid.UUID) (*models.Case, error) {
	cs, ok := t.st.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &cs, nil
}

func (t *memTx) UpdateCase(_ context.Context, cs *models.Case) error {
	cur, ok := t.st.cases[cs.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Title = cs.Title
	cur.Category = cs.Category
	cur.Description = cs.Description
	cur.Status = cs.Status
	cur.EngagedAt = cs.EngagedAt
	cur.AcceptedQuoteID = cs.AcceptedQuoteID
	cur.AcceptedLawyerID = cs.AcceptedLawyerID
	cur.UpdatedAt = t.st.stamp()
	cs.UpdatedAt = cur.UpdatedAt
	t.st.cases[cs.ID] = cur
	return nil
}

func (t *memTx) ListCases(_ context.Context, f CaseFilter) ([]models.Case, int64, error) {
	all := []models.Case{}
	for _, cs := range t.st.cases {
		if f.ClientID != nil && cs.ClientID != *f.ClientID {
			continue
		}
		if f.Status != nil && cs.Status != *f.Status {
			continue
		}
		if f.Category != "" && cs.Category != f.Category {
			continue
		}
		if f.CreatedSince != nil && cs.CreatedAt.Before(*f.CreatedSince) {
			continue
		}
		all = append(all, cs)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return window(all, f.Offset, f.Limit), int64(len(all)), nil
}

func (t *memTx) CountQuotes(_ context.Context, caseIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	want := idSet(caseIDs)
	out := make(map[uuid.UUID]int64, len(caseIDs))
	for _, q := range t.st.quotes {
		if want[q.CaseID] {
			out[q.CaseID]++
		}
	}
	return out, nil
}

func (t *memTx) CasesQuotedBy(_ context.Context, lawyerID uuid.UUID, caseIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	want := idSet(caseIDs)
	out := map[uuid.UUID]bool{}
	for _, q := range t.st.quotes {
		if q.LawyerID == lawyerID && want[q.CaseID] {
			out[q.CaseID] = true
		}
	}
	return out, nil
}

func (t *memTx) CreateQuote(_ context.Context, q *models.Quote) error {
	for _, x := range t.st.quotes {
		if x.CaseID == q.CaseID && x.LawyerID == q.LawyerID {
			return ErrDuplicate
		}
	}
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if q.Status == "" {
		q.Status = models.QuoteProposed
	}
	q.CreatedAt = t.st.stamp()
	q.UpdatedAt = q.CreatedAt
	t.st.quotes[q.ID] = *q
	return nil
}

func (t *memTx) GetQuote(_ context.Context, id uuid.UUID) (*models.Quote, error) {
	q, ok := t.st.quotes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &q, nil
}

func (t *memTx) LockQuote(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	return t.GetQuote(ctx, id)
}

func (t *memTx) FindQuote(_ context.Context, caseID, lawyerID uuid.UUID) (*models.Quote, error) {
	for _, q := range t.st.quotes {
		if q.CaseID == caseID && q.LawyerID == lawyerID {
			return &q, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) UpdateQuote(_ context.Context, q *models.Quote) error {
	cur, ok := t.st.quotes[q.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Amount = q.Amount
	cur.ExpectedDays = q.ExpectedDays
	cur.Note = q.Note
	cur.Status = q.Status
	cur.UpdatedAt = t.st.stamp()
	q.UpdatedAt = cur.UpdatedAt
	t.st.quotes[q.ID] = cur
	return nil
}

func (t *memTx) DeleteQuote(_ context.Context, id uuid.UUID) error {
	if _, ok := t.st.quotes[id]; !ok {
		return ErrNotFound
	}
	delete(t.st.quotes, id)
	return nil
}

func (t *memTx) ListQuotesByLawyer(_ context.Context, f QuoteFilter) ([]models.Quote, int64, error) {
	all := []models.Quote{}
	for _, q := range t.st.quotes {
		if q.LawyerID != f.LawyerID {
			continue
		}
		if f.Status != nil && q.Status != *f.Status {
			continue
		}
		all = append(all, q)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return window(all, f.Offset, f.Limit), int64(len(all)), nil
}

func (t *memTx) ListQuotesByCase(_ context.Context, caseID uuid.UUID) ([]models.Quote, error) {
	out := []models.Quote{}
	for _, q := range t.st.quotes {
		if q.CaseID == caseID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) RejectOtherQuotes(_ context.Context, caseID, keepID uuid.UUID) (int64, error) {
	var n int64
	for id, q := range t.st.quotes {
		if q.CaseID != caseID || id == keepID || q.Status != models.QuoteProposed {
			continue
		}
		q.Status = models.QuoteRejected
		q.UpdatedAt = t.st.stamp()
		t.st.quotes[id] = q
		n++
	}
	return n, nil
}

func (t *memTx) CreateFile(_ context.Context, f *models.CaseFile) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	f.CreatedAt = t.st.stamp()
	t.st.files[f.ID] = *f
	return nil
}

func (t *memTx) GetFile(_ context.Context, id uuid.UUID) (*models.CaseFile, error) {
	f, ok := t.st.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &f, nil
}

func (t *memTx) CreatePayment(_ context.Context, p *models.Payment) error {
	if err := t.checkPaymentUnique(p); err != nil {
		return err
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = models.PayPending
	}
	p.CreatedAt = t.st.stamp()
	p.UpdatedAt = p.CreatedAt
	t.st.payments[p.ID] = *p
	return nil
}

func (t *memTx) checkPaymentUnique(p *models.Payment) error {
	for _, x := range t.st.payments {
		if x.ID == p.ID {
			continue
		}
		if x.QuoteID == p.QuoteID && x.Status != models.PayFailed && p.Status != models.PayFailed {
			return ErrDuplicate
		}
		if p.IntentID != nil && x.IntentID != nil && *x.IntentID == *p.IntentID {
			return ErrDuplicate
		}
	}
	return nil
}

func (t *memTx) GetPayment(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	p, ok := t.st.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (t *memTx) GetLivePaymentByQuote(_ context.Context, quoteID uuid.UUID) (*models.Payment, error) {
	for _, p := range t.st.payments {
		if p.QuoteID == quoteID && p.Status != models.PayFailed {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) GetPaymentByIntent(_ context.Context, intentID string) (*models.Payment, error) {
	for _, p := range t.st.payments {
		if p.IntentID != nil && *p.IntentID == intentID {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) LockPaymentByIntent(ctx context.Context, intentID string) (*models.Payment, error) {
	return t.GetPaymentByIntent(ctx, intentID)
}

func (t *memTx) UpdatePayment(_ context.Context, p *models.Payment) error {
	cur, ok := t.st.payments[p.ID]
	if !ok {
		return ErrNotFound
	}
	cur.IntentID = p.IntentID
	cur.Status = p.Status
	if err := t.checkPaymentUnique(&cur); err != nil {
		return err
	}
	cur.UpdatedAt = t.st.stamp()
	p.UpdatedAt = cur.UpdatedAt
	t.st.payments[p.ID] = cur
	return nil
}

func (t *memTx) AddHistory(_ context.Context, h *models.CaseHistory) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	h.CreatedAt = t.st.stamp()
	t.st.history = append(t.st.history, *h)
	return nil
}

func idSet(ids []uuid.UUID) map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

// window applies offset/limit; limit <= 0 returns everything after offset.
func window[T any](all []T, offset, limit int) []T {
	if offset >= len(all) {
		return []T{}
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}
