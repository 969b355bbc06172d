package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

/* =============================== Enums ================================== */

// Role defines the type of user in the system.
type Role string

const (
	RoleClient Role = "client"
	RoleLawyer Role = "lawyer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleLawyer:
		return true
	default:
		return false
	}
}

// CaseStatus defines lifecycle states for a case.
type CaseStatus string

const (
	CaseOpen    CaseStatus = "open"
	CaseEngaged CaseStatus = "engaged"
)

// QuoteStatus defines lifecycle states for a quote.
type QuoteStatus string

const (
	QuoteProposed QuoteStatus = "proposed"
	QuoteAccepted QuoteStatus = "accepted"
	QuoteRejected QuoteStatus = "rejected"
)

// ParseQuoteStatus accepts the lowercase wire form; "" and "all" mean no filter.
func ParseQuoteStatus(s string) (*QuoteStatus, bool) {
	switch QuoteStatus(s) {
	case "", "all":
		return nil, true
	case QuoteProposed, QuoteAccepted, QuoteRejected:
		st := QuoteStatus(s)
		return &st, true
	default:
		return nil, false
	}
}

// PayStatus defines lifecycle states for a payment.
// pending -> completed | failed, both terminal.
type PayStatus string

const (
	PayPending   PayStatus = "pending"
	PayCompleted PayStatus = "completed"
	PayFailed    PayStatus = "failed"
)

/* =============================== Entities =============================== */

// User represents a client or lawyer.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         Role      `gorm:"type:varchar(20);not null" json:"role"`
	Name         string    `json:"name"`
	Jurisdiction string    `json:"jurisdiction,omitempty"`
	BarNumber    string    `json:"bar_number,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Case represents a legal case created by a client.
type Case struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ClientID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"client_id"`
	Title       string     `gorm:"not null" json:"title"`
	Category    string     `gorm:"not null;index" json:"category"`
	Description string     `gorm:"type:text" json:"description"`
	Status      CaseStatus `gorm:"type:varchar(20);not null;default:'open'" json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Relations
	Files  []CaseFile `json:"files,omitempty"`
	Quotes []Quote    `json:"quotes,omitempty"`

	// Metadata for engaged case
	EngagedAt        *time.Time `json:"engaged_at,omitempty"`
	AcceptedQuoteID  *uuid.UUID `gorm:"type:uuid" json:"accepted_quote_id,omitempty"`
	AcceptedLawyerID *uuid.UUID `gorm:"type:uuid" json:"accepted_lawyer_id,omitempty"`
}

// CaseFile represents a file uploaded to a case.
type CaseFile struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CaseID       uuid.UUID `gorm:"type:uuid;not null;index" json:"case_id"`
	Key          string    `gorm:"not null" json:"-"` // storage object key
	Mime         string    `gorm:"not null" json:"mime"`
	Size         int64     `gorm:"not null" json:"size"`
	OriginalName string    `json:"original_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// Quote represents a lawyer’s proposal for a case.
type Quote struct {
	ID           uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CaseID       uuid.UUID       `gorm:"type:uuid;not null;index:idx_case_lawyer,unique" json:"case_id"`
	LawyerID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_case_lawyer,unique" json:"lawyer_id"`
	Amount       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	ExpectedDays int             `gorm:"not null" json:"expected_days"`
	Note         string          `gorm:"type:text" json:"note"`
	Status       QuoteStatus     `gorm:"type:varchar(20);not null;default:'proposed'" json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Payment represents a payment attempt for a quote.
// Only one live (pending/completed) payment may exist per quote.
type Payment struct {
	ID       uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CaseID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"case_id"`
	QuoteID  uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:ux_pay_quote_live,where:status <> 'failed'" json:"quote_id"`
	ClientID uuid.UUID       `gorm:"type:uuid;not null;index" json:"client_id"`
	LawyerID uuid.UUID       `gorm:"type:uuid;not null;index" json:"lawyer_id"`
	IntentID *string         `gorm:"uniqueIndex:ux_pay_intent" json:"payment_intent_id,omitempty"` // processor reference
	Amount   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency string          `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	Status   PayStatus       `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CaseHistory is an audit log entry for important case changes.
type CaseHistory struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CaseID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	ActorID   uuid.UUID  `gorm:"type:uuid;not null;index"`  // who performed the action (client/lawyer/system)
	Action    string     `gorm:"type:varchar(50);not null"` // created, quote_accepted, paid
	OldStatus CaseStatus `gorm:"type:varchar(20)"`
	NewStatus CaseStatus `gorm:"type:varchar(20)"`
	Reason    string     `gorm:"type:text"`
	CreatedAt time.Time  `gorm:"autoCreateTime"`
}

// History actions.
const (
	ActionCreated       = "created"
	ActionQuoteAccepted = "quote_accepted"
	ActionPaid          = "paid"
)

// All returns every persisted model, in migration order.
func All() []any {
	return []any{
		&User{}, &Case{}, &CaseFile{}, &Quote{}, &Payment{}, &CaseHistory{},
	}
}
