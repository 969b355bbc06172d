package cases

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aldoetobex/legal-mp-engagement/internal/policy"
	"github.com/aldoetobex/legal-mp-engagement/internal/store"
	"github.com/aldoetobex/legal-mp-engagement/pkg/apperr"
	"github.com/aldoetobex/legal-mp-engagement/pkg/models"
	"github.com/aldoetobex/legal-mp-engagement/pkg/sanitize"
	"github.com/aldoetobex/legal-mp-engagement/pkg/utils"
)

const previewLen = 240

// Service owns case records, the marketplace view and the engagement transition.
type Service struct {
	st  store.Store
	log *zap.Logger
	now func() time.Time
}

func NewService(st store.Store, log *zap.Logger) *Service {
	return &Service{st: st, log: log, now: time.Now}
}

/* ================================ Types ================================= */

// CaseInput is the client-editable part of a case.
type CaseInput struct {
	Title       string
	Category    string
	Description string
}

// CasePatch replaces only the non-nil fields. Status is never client-writable.
type CasePatch struct {
	Title       *string
	Category    *string
	Description *string
}

// Apply returns a copy of cs with the patch applied.
func (p CasePatch) Apply(cs models.Case) (models.Case, error) {
	if p.Title != nil {
		cs.Title = strings.TrimSpace(*p.Title)
	}
	if p.Category != nil {
		cs.Category = strings.TrimSpace(*p.Category)
	}
	if p.Description != nil {
		cs.Description = strings.TrimSpace(*p.Description)
	}
	if cs.Title == "" || cs.Category == "" {
		return models.Case{}, apperr.Invalid("title and category are required")
	}
	return cs, nil
}

// MyCaseItem is a row of the client's own case list.
type MyCaseItem struct {
	ID        uuid.UUID         `json:"id"`
	Title     string            `json:"title"`
	Category  string            `json:"category"`
	Status    models.CaseStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	Quotes    int64             `json:"quotes"`
}

// MarketCaseItem is an anonymized open case shown to lawyers.
type MarketCaseItem struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Category   string    `json:"category"`
	CreatedAt  time.Time `json:"created_at"`
	Preview    string    `json:"preview"`
	HasMyQuote bool      `json:"has_my_quote"` // FE can use this to disable the submit button
}

// MarketFilter narrows the marketplace listing.
type MarketFilter struct {
	Category     string
	CreatedSince *time.Time
	Page, Size   int
}

// ClientInfo is the client identity embedded in a case detail.
type ClientInfo struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// CaseDetail is a case with its client, quotes and files.
type CaseDetail struct {
	models.Case
	Client     ClientInfo `json:"client"`
	Anonymized bool       `json:"anonymized"`
}

/* ============================== Operations ============================== */

// Create opens a new case for the client.
func (s *Service) Create(ctx context.Context, client policy.Actor, in CaseInput) (*models.Case, error) {
	if !client.IsClient() {
		return nil, apperr.Forbidden("only clients can create cases")
	}
	cs, err := CasePatch{Title: &in.Title, Category: &in.Category, Description: &in.Description}.
		Apply(models.Case{ClientID: client.ID, Status: models.CaseOpen})
	if err != nil {
		return nil, err
	}
	if err := s.st.CreateCase(ctx, &cs); err != nil {
		return nil, err
	}
	utils.LogCaseHistory(ctx, s.st, s.log, cs.ID, client.ID, models.ActionCreated, "", models.CaseOpen, "")
	return &cs, nil
}

// ListMine pages through the client's cases, newest first, with quote counts.
func (s *Service) ListMine(ctx context.Context, client policy.Actor, page, size int) (models.Page[MyCaseItem], error) {
	page, size = utils.ClampPage(page, size)
	list, total, err := s.st.ListCases(ctx, store.CaseFilter{
		ClientID: &client.ID,
		Offset:   utils.Offset(page, size),
		Limit:    size,
	})
	if err != nil {
		return models.Page[MyCaseItem]{}, err
	}

	counts, err := s.st.CountQuotes(ctx, caseIDs(list))
	if err != nil {
		return models.Page[MyCaseItem]{}, err
	}

	items := make([]MyCaseItem, 0, len(list))
	for _, cs := range list {
		items = append(items, MyCaseItem{
			ID:        cs.ID,
			Title:     cs.Title,
			Category:  cs.Category,
			Status:    cs.Status,
			CreatedAt: cs.CreatedAt,
			Quotes:    counts[cs.ID],
		})
	}
	return utils.NewPage(items, page, size, total), nil
}

// Marketplace lists open cases for lawyers without client identity.
// Descriptions are cut to a preview with emails and phone numbers redacted.
func (s *Service) Marketplace(ctx context.Context, lawyer policy.Actor, f MarketFilter) (models.Page[MarketCaseItem], error) {
	page, size := utils.ClampPage(f.Page, f.Size)
	open := models.CaseOpen
	list, total, err := s.st.ListCases(ctx, store.CaseFilter{
		Status:       &open,
		Category:     strings.TrimSpace(f.Category),
		CreatedSince: f.CreatedSince,
		Offset:       utils.Offset(page, size),
		Limit:        size,
	})
	if err != nil {
		return models.Page[MarketCaseItem]{}, err
	}

	// Only the cases on this page, to avoid N+1.
	quoted, err := s.st.CasesQuotedBy(ctx, lawyer.ID, caseIDs(list))
	if err != nil {
		return models.Page[MarketCaseItem]{}, err
	}

	items := make([]MarketCaseItem, 0, len(list))
	for _, cs := range list {
		items = append(items, MarketCaseItem{
			ID:         cs.ID,
			Title:      cs.Title,
			Category:   cs.Category,
			CreatedAt:  cs.CreatedAt,
			Preview:    sanitize.Summary(sanitize.RedactPII(cs.Description), previewLen),
			HasMyQuote: quoted[cs.ID],
		})
	}
	return utils.NewPage(items, page, size, total), nil
}

// Detail returns the case for the actor. Lawyers without an accepted quote
// get the placeholder client identity.
func (s *Service) Detail(ctx context.Context, caseID uuid.UUID, actor policy.Actor) (*CaseDetail, error) {
	cs, err := s.st.GetCase(ctx, caseID)
	if err != nil {
		return nil, notFound(err, "case not found")
	}
	if !policy.CanViewCase(cs, actor) {
		return nil, apperr.Forbidden("access denied")
	}

	client := models.User{ID: cs.ClientID}
	if u, err := s.st.GetUser(ctx, cs.ClientID); err == nil {
		client = *u
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	anon := policy.ShouldAnonymizeClient(cs, actor)
	if anon {
		client = policy.Anonymize(client)
	}

	out := *cs
	if actor.IsLawyer() {
		out.Quotes = visibleQuotes(cs, actor)
		if anon {
			out.Files = nil
		}
	}
	return &CaseDetail{
		Case:       out,
		Client:     ClientInfo{ID: client.ID, Name: client.Name, Email: client.Email},
		Anonymized: anon,
	}, nil
}

// Update changes title, category or description of the client's own case in
// any state. Status and engagement fields are never client-writable.
func (s *Service) Update(ctx context.Context, caseID uuid.UUID, client policy.Actor, patch CasePatch) (*models.Case, error) {
	var out *models.Case
	err := s.st.WithinTx(ctx, func(tx store.Store) error {
		cs, err := tx.LockCase(ctx, caseID)
		if err != nil {
			return notFound(err, "case not found")
		}
		if !policy.CanMutateCase(cs, client) {
			return apperr.Forbidden("access denied")
		}
		next, err := patch.Apply(*cs)
		if err != nil {
			return err
		}
		if err := tx.UpdateCase(ctx, &next); err != nil {
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

// visibleQuotes keeps the quotes the actor may see.
func visibleQuotes(cs *models.Case, actor policy.Actor) []models.Quote {
	out := make([]models.Quote, 0, len(cs.Quotes))
	for i := range cs.Quotes {
		if policy.CanViewQuote(&cs.Quotes[i], cs, actor) {
			out = append(out, cs.Quotes[i])
		}
	}
	return out
}

func caseIDs(list []models.Case) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(list))
	for _, cs := range list {
		ids = append(ids, cs.ID)
	}
	return ids
}

func notFound(err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(msg)
	}
	return err
}
