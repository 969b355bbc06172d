// Package policy decides who may read or change cases, quotes, payments and
// files. Every function is pure and works on entities that are already loaded;
// no other package branches on roles.
package policy

import (
	"github.com/google/uuid"

	"github.com/aldoetobex/legal-mp-engagement/pkg/models"
)

// Placeholder identity shown to lawyers who are not engaged on a case.
const (
	AnonymousName  = "Anonymous Client"
	AnonymousEmail = "anonymous@example.com"
)

// Actor is the authenticated caller.
type Actor struct {
	ID   uuid.UUID
	Role models.Role
}

func (a Actor) IsClient() bool { return a.Role == models.RoleClient }
func (a Actor) IsLawyer() bool { return a.Role == models.RoleLawyer }

// CanViewCase: owners see their case; any lawyer may view (anonymized when needed).
func CanViewCase(cs *models.Case, a Actor) bool {
	switch a.Role {
	case models.RoleClient:
		return cs.ClientID == a.ID
	case models.RoleLawyer:
		return true
	default:
		return false
	}
}

// CanMutateCase is true only for the owning client.
func CanMutateCase(cs *models.Case, a Actor) bool {
	return a.Role == models.RoleClient && cs.ClientID == a.ID
}

// CanAcceptQuote is true only for the owning client.
func CanAcceptQuote(cs *models.Case, a Actor) bool {
	return CanMutateCase(cs, a)
}

// ShouldAnonymizeClient is true for lawyers without an accepted quote on the case.
// cs.Quotes must be loaded.
func ShouldAnonymizeClient(cs *models.Case, a Actor) bool {
	switch a.Role {
	case models.RoleLawyer:
		return !hasAcceptedQuote(cs, a.ID)
	case models.RoleClient:
		return false
	default:
		return true
	}
}

// CanAccessFile: the owning client, or a lawyer holding an accepted quote.
// cs.Quotes must be loaded.
func CanAccessFile(f *models.CaseFile, cs *models.Case, a Actor) bool {
	if f.CaseID != cs.ID {
		return false
	}
	switch a.Role {
	case models.RoleClient:
		return cs.ClientID == a.ID
	case models.RoleLawyer:
		return hasAcceptedQuote(cs, a.ID)
	default:
		return false
	}
}

// CanMutateQuote is true only for the lawyer who wrote the quote.
func CanMutateQuote(q *models.Quote, a Actor) bool {
	return a.Role == models.RoleLawyer && q.LawyerID == a.ID
}

// CanViewQuote: the quoting lawyer, or the client who owns the case.
func CanViewQuote(q *models.Quote, cs *models.Case, a Actor) bool {
	switch a.Role {
	case models.RoleLawyer:
		return q.LawyerID == a.ID
	case models.RoleClient:
		return cs != nil && cs.ID == q.CaseID && cs.ClientID == a.ID
	default:
		return false
	}
}

// CanViewPayment is true for the paying client and the paid lawyer.
func CanViewPayment(p *models.Payment, a Actor) bool {
	return a.ID == p.ClientID || a.ID == p.LawyerID
}

// Anonymize returns a copy of u with the placeholder identity.
func Anonymize(u models.User) models.User {
	u.Name = AnonymousName
	u.Email = AnonymousEmail
	return u
}

func hasAcceptedQuote(cs *models.Case, lawyerID uuid.UUID) bool {
	for _, q := range cs.Quotes {
		if q.LawyerID == lawyerID && q.Status == models.QuoteAccepted {
			return true
		}
	}
	return false
}
