package quotes

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aldoetobex/legal-mp-engagement/internal/auth"
	"github.com/aldoetobex/legal-mp-engagement/pkg/models"
	"github.com/aldoetobex/legal-mp-engagement/pkg/utils"
	"github.com/aldoetobex/legal-mp-engagement/pkg/validation"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

/* ================================ DTOs ================================= */

// SubmitRequest is the body of POST /api/quotes/cases/:caseId.
type SubmitRequest struct {
	Amount       decimal.Decimal `json:"amount" validate:"money"`
	ExpectedDays int             `json:"expectedDays" validate:"required,term"`
	Note         string          `json:"note" validate:"max=2000"`
}

// UpdateRequest is the body of PATCH /api/quotes/:id; omitted fields are kept.
type UpdateRequest struct {
	Amount       *decimal.Decimal `json:"amount" validate:"omitempty,money"`
	ExpectedDays *int             `json:"expectedDays" validate:"omitempty,term"`
	Note         *string          `json:"note" validate:"omitempty,max=2000"`
}

// QuoteItem is the public shape of a quote.
type QuoteItem struct {
	ID           uuid.UUID          `json:"id"`
	CaseID       uuid.UUID          `json:"case_id"`
	LawyerID     uuid.UUID          `json:"lawyer_id"`
	Amount       decimal.Decimal    `json:"amount"`
	ExpectedDays int                `json:"expectedDays"`
	Note         string             `json:"note"`
	Status       models.QuoteStatus `json:"status"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func toItem(q models.Quote) QuoteItem {
	return QuoteItem{
		ID:           q.ID,
		CaseID:       q.CaseID,
		LawyerID:     q.LawyerID,
		Amount:       q.Amount,
		ExpectedDays: q.ExpectedDays,
		Note:         q.Note,
		Status:       q.Status,
		CreatedAt:    q.CreatedAt,
		UpdatedAt:    q.UpdatedAt,
	}
}

func toItems(rows []models.Quote) []QuoteItem {
	out := make([]QuoteItem, 0, len(rows))
	for _, q := range rows {
		out = append(out, toItem(q))
	}
	return out
}

func parseID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

/* =============================== Submit ================================= */

// @Summary      Submit or revise a quote
// @Description  Creates the lawyer's quote on an open case, or replaces the terms of their proposed quote
// @Tags         quotes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        caseId   path  string         true  "Case ID"
// @Param        payload  body  SubmitRequest  true  "Quote terms"
// @Success      201      {object}  QuoteItem
// @Failure      400      {object}  models.ErrorResponse
// @Failure      404      {object}  models.ErrorResponse
// @Router       /quotes/cases/{caseId} [post]
func (h *Handler) Submit(c *fiber.Ctx) error {
	caseID, err := parseID(c, "caseId")
	if err != nil {
		return err
	}

	var in SubmitRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	q, err := h.svc.Submit(c.UserContext(), caseID, auth.Actor(c), SubmitInput{
		Amount:       in.Amount,
		ExpectedDays: in.ExpectedDays,
		Note:         in.Note,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toItem(*q))
}

/* ================================ List ================================== */

// @Summary      My quotes
// @Description  Lawyer's quotes, newest first
// @Tags         quotes
// @Security     BearerAuth
// @Produce      json
// @Param        status  query  string  false  "proposed|accepted|rejected|all"
// @Param        page    query  int     false  "Page"
// @Param        limit   query  int     false  "Page size (max 50)"
// @Success      200     {object}  models.Page[QuoteItem]
// @Router       /quotes [get]
func (h *Handler) ListMine(c *fiber.Ctx) error {
	status, ok := models.ParseQuoteStatus(strings.ToLower(strings.TrimSpace(c.Query("status"))))
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, "invalid status filter")
	}
	page, size := utils.ParsePage(c)

	res, err := h.svc.ListForLawyer(c.UserContext(), auth.Actor(c), status, page, size)
	if err != nil {
		return err
	}
	return c.JSON(utils.NewPage(toItems(res.Items), res.Page, res.PageSize, res.Total))
}

// @Summary      Quotes on my case
// @Description  Every quote on the client's case, oldest first
// @Tags         quotes
// @Security     BearerAuth
// @Produce      json
// @Param        caseId  path  string  true  "Case ID"
// @Success      200     {array}   QuoteItem
// @Failure      404     {object}  models.ErrorResponse
// @Router       /quotes/cases/{caseId} [get]
func (h *Handler) ListByCase(c *fiber.Ctx) error {
	caseID, err := parseID(c, "caseId")
	if err != nil {
		return err
	}
	rows, err := h.svc.ListForCase(c.UserContext(), caseID, auth.Actor(c))
	if err != nil {
		return err
	}
	return c.JSON(toItems(rows))
}

/* ============================ Get / Update ============================== */

// @Summary      Get quote
// @Tags         quotes
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Quote ID"
// @Success      200 {object}  QuoteItem
// @Failure      403 {object}  models.ErrorResponse
// @Failure      404 {object}  models.ErrorResponse
// @Router       /quotes/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	q, err := h.svc.Get(c.UserContext(), id, auth.Actor(c))
	if err != nil {
		return err
	}
	return c.JSON(toItem(*q))
}

// @Summary      Update quote
// @Description  Partial update of a proposed quote
// @Tags         quotes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string         true  "Quote ID"
// @Param        payload  body  UpdateRequest  true  "Fields to change"
// @Success      200      {object}  QuoteItem
// @Failure      400      {object}  models.ErrorResponse
// @Failure      403      {object}  models.ErrorResponse
// @Failure      404      {object}  models.ErrorResponse
// @Router       /quotes/{id} [patch]
func (h *Handler) Update(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var in UpdateRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	q, err := h.svc.Update(c.UserContext(), id, auth.Actor(c), QuotePatch{
		Amount:       in.Amount,
		ExpectedDays: in.ExpectedDays,
		Note:         in.Note,
	})
	if err != nil {
		return err
	}
	return c.JSON(toItem(*q))
}

// @Summary      Withdraw quote
// @Tags         quotes
// @Security     BearerAuth
// @Param        id  path  string  true  "Quote ID"
// @Success      204
// @Failure      400 {object}  models.ErrorResponse
// @Failure      403 {object}  models.ErrorResponse
// @Failure      404 {object}  models.ErrorResponse
// @Router       /quotes/{id} [delete]
func (h *Handler) Remove(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Remove(c.UserContext(), id, auth.Actor(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Register mounts the quote routes on an authenticated router.
func (h *Handler) Register(r fiber.Router) {
	lawyer := auth.RequireRole(models.RoleLawyer)
	client := auth.RequireRole(models.RoleClient)

	r.Post("/quotes/cases/:caseId", lawyer, h.Submit)
	r.Get("/quotes/cases/:caseId", client, h.ListByCase)
	r.Get("/quotes", lawyer, h.ListMine)
	r.Get("/quotes/:id", h.Get)
	r.Patch("/quotes/:id", lawyer, h.Update)
	r.Delete("/quotes/:id", lawyer, h.Remove)
}
