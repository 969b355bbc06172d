package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/legal-mp-engagement/pkg/models"
)

// Gorm is the Postgres-backed Store. The *gorm.DB must be opened with
// TranslateError enabled so unique violations surface as ErrDuplicate.
type Gorm struct{ db *gorm.DB }

func NewGorm(db *gorm.DB) *Gorm { return &Gorm{db: db} }

// WithinTx uses gorm's Transaction: commit on nil, rollback on error or panic.
func (s *Gorm) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Gorm{db: tx})
	})
}

func (s *Gorm) q(ctx context.Context) *gorm.DB { return s.db.WithContext(ctx) }

func (s *Gorm) forUpdate(ctx context.Context) *gorm.DB {
	return s.q(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

// translate maps gorm errors onto the package sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

func affected(res *gorm.DB) error {
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

/* ================================ Users ================================= */

func (s *Gorm) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return translate(s.q(ctx).Create(u).Error)
}

func (s *Gorm) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := s.q(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Gorm) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.q(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

/* ================================ Cases ================================= */

func (s *Gorm) CreateCase(ctx context.Context, cs *models.Case) error {
	if cs.ID == uuid.Nil {
		cs.ID = uuid.New()
	}
	return translate(s.q(ctx).Omit(clause.Associations).Create(cs).Error)
}

func (s *Gorm) GetCase(ctx context.Context, id uuid.UUID) (*models.Case, error) {
	var cs models.Case
	err := s.q(ctx).
		Preload("Files", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Quotes", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(&cs, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &cs, nil
}

func (s *Gorm) LockCase(ctx context.Context, id uuid.UUID) (*models.Case, error) {
	var cs models.Case
	if err := s.forUpdate(ctx).First(&cs, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &cs, nil
}

func (s *Gorm) UpdateCase(ctx context.Context, cs *models.Case) error {
	cs.UpdatedAt = time.Now()
	return affected(s.q(ctx).Model(&models.Case{}).Where("id = ?", cs.ID).
		Updates(map[string]any{
			"title":              cs.Title,
			"category":           cs.Category,
			"description":        cs.Description,
			"status":             cs.Status,
			"engaged_at":         cs.EngagedAt,
			"accepted_quote_id":  cs.AcceptedQuoteID,
			"accepted_lawyer_id": cs.AcceptedLawyerID,
			"updated_at":         cs.UpdatedAt,
		}))
}

func (s *Gorm) ListCases(ctx context.Context, f CaseFilter) ([]models.Case, int64, error) {
	dbq := s.q(ctx).Model(&models.Case{})
	if f.ClientID != nil {
		dbq = dbq.Where("client_id = ?", *f.ClientID)
	}
	if f.Status != nil {
		dbq = dbq.Where("status = ?", *f.Status)
	}
	if f.Category != "" {
		dbq = dbq.Where("category = ?", f.Category)
	}
	if f.CreatedSince != nil {
		dbq = dbq.Where("created_at >= ?", *f.CreatedSince)
	}

	var total int64
	if err := dbq.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	list := make([]models.Case, 0, f.Limit)
	if err := dbq.Order("created_at DESC").
		Offset(f.Offset).Limit(f.Limit).
		Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (s *Gorm) CountQuotes(ctx context.Context, caseIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	out := make(map[uuid.UUID]int64, len(caseIDs))
	if len(caseIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		CaseID uuid.UUID
		N      int64
	}
	if err := s.q(ctx).Model(&models.Quote{}).
		Select("case_id, COUNT(*) AS n").
		Where("case_id IN ?", caseIDs).
		Group("case_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.CaseID] = r.N
	}
	return out, nil
}

func (s *Gorm) CasesQuotedBy(ctx context.Context, lawyerID uuid.UUID, caseIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	out := map[uuid.UUID]bool{}
	if len(caseIDs) == 0 {
		return out, nil
	}
	var ids []uuid.UUID
	if err := s.q(ctx).Model(&models.Quote{}).
		Where("lawyer_id = ? AND case_id IN ?", lawyerID, caseIDs).
		Pluck("DISTINCT case_id", &ids).Error; err != nil {
		return nil, err
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

/* ================================ Quotes ================================ */

func (s *Gorm) CreateQuote(ctx context.Context, q *models.Quote) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return translate(s.q(ctx).Create(q).Error)
}

func (s *Gorm) GetQuote(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	var q models.Quote
	if err := s.q(ctx).First(&q, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &q, nil
}

func (s *Gorm) LockQuote(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	var q models.Quote
	if err := s.forUpdate(ctx).First(&q, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &q, nil
}

func (s *Gorm) FindQuote(ctx context.Context, caseID, lawyerID uuid.UUID) (*models.Quote, error) {
	var q models.Quote
	if err := s.q(ctx).Where("case_id = ? AND lawyer_id = ?", caseID, lawyerID).First(&q).Error; err != nil {
		return nil, translate(err)
	}
	return &q, nil
}

func (s *Gorm) UpdateQuote(ctx context.Context, q *models.Quote) error {
	q.UpdatedAt = time.Now()
	return affected(s.q(ctx).Model(&models.Quote{}).Where("id = ?", q.ID).
		Updates(map[string]any{
			"amount":        q.Amount,
			"expected_days": q.ExpectedDays,
			"note":          q.Note,
			"status":        q.Status,
			"updated_at":    q.UpdatedAt,
		}))
}

func (s *Gorm) DeleteQuote(ctx context.Context, id uuid.UUID) error {
	return affected(s.q(ctx).Delete(&models.Quote{}, "id = ?", id))
}

func (s *Gorm) ListQuotesByLawyer(ctx context.Context, f QuoteFilter) ([]models.Quote, int64, error) {
	dbq := s.q(ctx).Model(&models.Quote{}).Where("lawyer_id = ?", f.LawyerID)
	if f.Status != nil {
		dbq = dbq.Where("status = ?", *f.Status)
	}

	var total int64
	if err := dbq.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	rows := make([]models.Quote, 0, f.Limit)
	if err := dbq.Order("created_at DESC").
		Offset(f.Offset).Limit(f.Limit).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (s *Gorm) ListQuotesByCase(ctx context.Context, caseID uuid.UUID) ([]models.Quote, error) {
	rows := []models.Quote{}
	if err := s.q(ctx).Where("case_id = ?", caseID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Gorm) RejectOtherQuotes(ctx context.Context, caseID, keepID uuid.UUID) (int64, error) {
	res := s.q(ctx).Model(&models.Quote{}).
		Where("case_id = ? AND id <> ? AND status = ?", caseID, keepID, models.QuoteProposed).
		Updates(map[string]any{"status": models.QuoteRejected, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

/* ================================= Files ================================ */

func (s *Gorm) CreateFile(ctx context.Context, f *models.CaseFile) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return translate(s.q(ctx).Create(f).Error)
}

func (s *Gorm) GetFile(ctx context.Context, id uuid.UUID) (*models.CaseFile, error) {
	var f models.CaseFile
	if err := s.q(ctx).First(&f, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &f, nil
}

/* =============================== Payments =============================== */

func (s *Gorm) CreatePayment(ctx context.Context, p *models.Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return translate(s.q(ctx).Create(p).Error)
}

func (s *Gorm) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	if err := s.q(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Gorm) GetLivePaymentByQuote(ctx context.Context, quoteID uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	if err := s.q(ctx).
		Where("quote_id = ? AND status <> ?", quoteID, models.PayFailed).
		First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Gorm) GetPaymentByIntent(ctx context.Context, intentID string) (*models.Payment, error) {
	var p models.Payment
	if err := s.q(ctx).Where("intent_id = ?", intentID).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Gorm) LockPaymentByIntent(ctx context.Context, intentID string) (*models.Payment, error) {
	var p models.Payment
	if err := s.forUpdate(ctx).Where("intent_id = ?", intentID).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Gorm) UpdatePayment(ctx context.Context, p *models.Payment) error {
	p.UpdatedAt = time.Now()
	return affected(s.q(ctx).Model(&models.Payment{}).Where("id = ?", p.ID).
		Updates(map[string]any{
			"intent_id":  p.IntentID,
			"status":     p.Status,
			"updated_at": p.UpdatedAt,
		}))
}

/* ================================ History =============================== */

func (s *Gorm) AddHistory(ctx context.Context, h *models.CaseHistory) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return s.q(ctx).Create(h).Error
}
