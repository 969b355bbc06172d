package cases

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/legal-mp-engagement/internal/auth"
	"github.com/aldoetobex/legal-mp-engagement/pkg/models"
	"github.com/aldoetobex/legal-mp-engagement/pkg/utils"
	"github.com/aldoetobex/legal-mp-engagement/pkg/validation"
)

// ===== DTOs =====

type CreateCaseRequest struct {
	Title       string `json:"title" validate:"required,max=120"`
	Category    string `json:"category" validate:"required,max=40"`
	Description string `json:"description" validate:"max=2000"`
}

// UpdateCaseRequest is a partial update; omitted fields are kept.
type UpdateCaseRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=120"`
	Category    *string `json:"category" validate:"omitempty,max=40"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

type AcceptQuoteRequest struct {
	QuoteID string `json:"quoteId" validate:"required,uuid"`
}

type Handler struct {
	svc   *Service
	files *FileHandler
}

func NewHandler(svc *Service, files *FileHandler) *Handler {
	return &Handler{svc: svc, files: files}
}

// marketplace dates are calendar days in Singapore time
var marketLoc = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Singapore")
	if err != nil {
		return time.FixedZone("SGT", 8*60*60)
	}
	return loc
}()

func caseID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid case id")
	}
	return id, nil
}

// Create Case godoc
// @Summary      Create case
// @Description  Client creates a new case
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateCaseRequest  true  "Case payload"
// @Success      201  {object}  map[string]string  "id"
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /cases [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	var in CreateCaseRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	cs, err := h.svc.Create(c.UserContext(), auth.Actor(c), CaseInput{
		Title:       in.Title,
		Category:    in.Category,
		Description: in.Description,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": cs.ID})
}

// List My Cases godoc
// @Summary      List my cases
// @Description  Client lists their own cases (paginated)
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        page      query int false "page"
// @Param        pageSize  query int false "pageSize"
// @Success      200  {object}  models.Page[MyCaseItem]
// @Failure      401  {object}  models.ErrorResponse
// @Router       /cases/mine [get]
func (h *Handler) ListMine(c *fiber.Ctx) error {
	page, size := utils.ParsePage(c)
	res, err := h.svc.ListMine(c.UserContext(), auth.Actor(c), page, size)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// Case Detail godoc
// @Summary      Case detail
// @Description  Owner, or a lawyer while the case is open, or the accepted lawyer once engaged
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "case id (uuid)"
// @Success      200  {object}  CaseDetail
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id} [get]
func (h *Handler) Detail(c *fiber.Ctx) error {
	id, err := caseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Detail(c.UserContext(), id, auth.Actor(c))
	if err != nil {
		return err
	}

	// never send null lists
	if d.Files == nil {
		d.Files = []models.CaseFile{}
	}
	if d.Quotes == nil {
		d.Quotes = []models.Quote{}
	}
	return c.JSON(d)
}

// Update Case godoc
// @Summary      Update case
// @Description  Owner edits title, category or description
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string             true  "case id (uuid)"
// @Param        payload  body  UpdateCaseRequest  true  "Fields to change"
// @Success      200  {object}  models.Case
// @Failure      400  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id} [patch]
func (h *Handler) Update(c *fiber.Ctx) error {
	id, err := caseID(c)
	if err != nil {
		return err
	}
	var in UpdateCaseRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	cs, err := h.svc.Update(c.UserContext(), id, auth.Actor(c), CasePatch{
		Title:       in.Title,
		Category:    in.Category,
		Description: in.Description,
	})
	if err != nil {
		return err
	}
	return c.JSON(cs)
}

// Marketplace godoc
// @Summary      Marketplace (anonymized)
// @Description  Lawyer browses OPEN cases (server-side filters & pagination; no client identity)
// @Tags         marketplace
// @Security     BearerAuth
// @Produce      json
// @Param        page          query int    false "page"
// @Param        pageSize      query int    false "pageSize"
// @Param        category      query string false "category"
// @Param        created_since query string false "YYYY-MM-DD (Asia/Singapore)"
// @Success      200  {object}  models.Page[MarketCaseItem]
// @Failure      400  {object}  models.ErrorResponse
// @Router       /marketplace [get]
func (h *Handler) Marketplace(c *fiber.Ctx) error {
	page, size := utils.ParsePage(c)
	f := MarketFilter{
		Category: strings.TrimSpace(c.Query("category")),
		Page:     page,
		Size:     size,
	}
	if raw := c.Query("created_since"); raw != "" {
		t, err := time.ParseInLocation("2006-01-02", raw, marketLoc)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "created_since must be YYYY-MM-DD")
		}
		f.CreatedSince = &t
	}

	res, err := h.svc.Marketplace(c.UserContext(), auth.Actor(c), f)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// Accept Quote godoc
// @Summary      Accept a quote
// @Description  Owner accepts one proposed quote; the others are rejected and the case becomes engaged
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string              true  "case id (uuid)"
// @Param        payload  body  AcceptQuoteRequest  true  "Quote to accept"
// @Success      200  {object}  Engagement
// @Failure      400  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id}/accept-quote [post]
func (h *Handler) AcceptQuote(c *fiber.Ctx) error {
	id, err := caseID(c)
	if err != nil {
		return err
	}
	var in AcceptQuoteRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	quoteID, _ := uuid.Parse(in.QuoteID)

	e, err := h.svc.Accept(c.UserContext(), id, quoteID, auth.Actor(c))
	if err != nil {
		return err
	}
	return c.JSON(e)
}

// Register mounts case, marketplace and file routes on an authenticated router.
func (h *Handler) Register(r fiber.Router) {
	client := auth.RequireRole(models.RoleClient)
	lawyer := auth.RequireRole(models.RoleLawyer)

	r.Post("/cases", client, h.Create)
	r.Get("/cases/mine", client, h.ListMine)
	r.Get("/cases/:id", h.Detail)
	r.Patch("/cases/:id", client, h.Update)
	r.Post("/cases/:id/accept-quote", client, h.AcceptQuote)
	r.Post("/cases/:id/files", client, h.files.Upload)
	r.Get("/marketplace", lawyer, h.Marketplace)
	r.Get("/files/:fileId/secure-url", h.files.SecureURL)
}

// RegisterPublic mounts the token-authorized download route. It must sit
// outside the bearer-auth group.
func (h *Handler) RegisterPublic(r fiber.Router, mw ...fiber.Handler) {
	r.Get("/files/secure/:fileId", utils.Chain(mw, h.files.Download)...)
}
