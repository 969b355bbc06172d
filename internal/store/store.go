// Package store is the persistence boundary. Services load and save entities
// through Store and group multi-record writes with WithinTx.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/aldoetobex/legal-mp-engagement/pkg/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint would be violated.
	ErrDuplicate = errors.New("duplicate record")
)

// CaseFilter selects cases for listings. Zero values mean "no filter".
type CaseFilter struct {
	ClientID     *uuid.UUID
	Status       *models.CaseStatus
	Category     string
	CreatedSince *time.Time
	Offset       int
	Limit        int
}

// QuoteFilter selects a lawyer's quotes.
type QuoteFilter struct {
	LawyerID uuid.UUID
	Status   *models.QuoteStatus
	Offset   int
	Limit    int
}

// Store is implemented by Gorm (Postgres) and Memory.
//
// Lock* methods take a row lock when called on the handle passed to a
// WithinTx callback; the lock is held until the unit of work ends.
type Store interface {
	// WithinTx runs fn in a unit of work. It commits once if fn returns nil
	// and rolls back once otherwise, returning fn's error unchanged.
	WithinTx(ctx context.Context, fn func(tx Store) error) error

	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateCase(ctx context.Context, cs *models.Case) error
	// GetCase loads the case with Quotes (oldest first) and Files.
	GetCase(ctx context.Context, id uuid.UUID) (*models.Case, error)
	LockCase(ctx context.Context, id uuid.UUID) (*models.Case, error)
	UpdateCase(ctx context.Context, cs *models.Case) error
	// ListCases returns cases newest first, without relations, and the total count.
	ListCases(ctx context.Context, f CaseFilter) ([]models.Case, int64, error)
	CountQuotes(ctx context.Context, caseIDs []uuid.UUID) (map[uuid.UUID]int64, error)
	CasesQuotedBy(ctx context.Context, lawyerID uuid.UUID, caseIDs []uuid.UUID) (map[uuid.UUID]bool, error)

	CreateQuote(ctx context.Context, q *models.Quote) error
	GetQuote(ctx context.Context, id uuid.UUID) (*models.Quote, error)
	LockQuote(ctx context.Context, id uuid.UUID) (*models.Quote, error)
	FindQuote(ctx context.Context, caseID, lawyerID uuid.UUID) (*models.Quote, error)
	UpdateQuote(ctx context.Context, q *models.Quote) error
	DeleteQuote(ctx context.Context, id uuid.UUID) error
	// ListQuotesByLawyer returns quotes newest first and the total count.
	ListQuotesByLawyer(ctx context.Context, f QuoteFilter) ([]models.Quote, int64, error)
	// ListQuotesByCase returns quotes oldest first.
	ListQuotesByCase(ctx context.Context, caseID uuid.UUID) ([]models.Quote, error)
	// RejectOtherQuotes moves every proposed quote of the case except keepID to rejected.
	RejectOtherQuotes(ctx context.Context, caseID, keepID uuid.UUID) (int64, error)

	CreateFile(ctx context.Context, f *models.CaseFile) error
	GetFile(ctx context.Context, id uuid.UUID) (*models.CaseFile, error)

	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	// GetLivePaymentByQuote returns the pending or completed payment of a quote.
	GetLivePaymentByQuote(ctx context.Context, quoteID uuid.UUID) (*models.Payment, error)
	GetPaymentByIntent(ctx context.Context, intentID string) (*models.Payment, error)
	LockPaymentByIntent(ctx context.Context, intentID string) (*models.Payment, error)
	UpdatePayment(ctx context.Context, p *models.Payment) error

	AddHistory(ctx context.Context, h *models.CaseHistory) error
}
