package payments

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/legal-mp-engagement/internal/auth"
	"github.com/aldoetobex/legal-mp-engagement/pkg/models"
	"github.com/aldoetobex/legal-mp-engagement/pkg/utils"
	"github.com/aldoetobex/legal-mp-engagement/pkg/validation"
)

type Handler struct {
	svc *Service
	// mock and devSecret are set only in dev with the mock processor.
	mock      *MockProcessor
	devSecret string
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// WithMock enables POST /payments/mock/complete, guarded by X-Dev-Secret.
func (h *Handler) WithMock(mock *MockProcessor, devSecret string) *Handler {
	h.mock = mock
	h.devSecret = devSecret
	return h
}

// ========== Create Intent (client) ==========

// @Summary      Create payment intent
// @Description  Client starts (or resumes) payment of a quote. Repeated calls return the same payment.
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        quoteId  path  string  true  "Quote ID"
// @Success      200  {object}  IntentResult
// @Failure      400  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Failure      502  {object}  models.ErrorResponse
// @Router       /payments/create-intent/{quoteId} [post]
func (h *Handler) CreateIntent(c *fiber.Ctx) error {
	quoteID, err := uuid.Parse(c.Params("quoteId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid quote id")
	}
	res, err := h.svc.CreateIntent(c.UserContext(), quoteID, auth.Actor(c))
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// ========== Confirm ==========

// @Summary      Confirm payment
// @Description  Syncs the payment with the processor; on success the quote is accepted and the case engaged
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        paymentIntentId  path  string  true  "Processor intent ID"
// @Success      200  {object}  models.Payment
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      502  {object}  models.ErrorResponse
// @Router       /payments/confirm/{paymentIntentId} [post]
func (h *Handler) Confirm(c *fiber.Ctx) error {
	p, err := h.svc.ConfirmAs(c.UserContext(), c.Params("paymentIntentId"), auth.Actor(c))
	if err != nil {
		return err
	}
	return c.JSON(p)
}

// ========== Status ==========

// @Summary      Payment status
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        paymentId  path  string  true  "Payment ID"
// @Success      200  {object}  models.Payment
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /payments/{paymentId}/status [get]
func (h *Handler) Status(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("paymentId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payment id")
	}
	p, err := h.svc.Status(c.UserContext(), id, auth.Actor(c))
	if err != nil {
		return err
	}
	return c.JSON(p)
}

// ========== Webhook (server-only, no auth) ==========

// @Summary      Processor webhook
// @Description  Signature is checked over the raw body
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        Stripe-Signature  header  string  true  "Signature header"
// @Success      200  {object}  map[string]bool  "received"
// @Failure      400  {object}  models.ErrorResponse
// @Router       /payments/webhook [post]
func (h *Handler) Webhook(c *fiber.Ctx) error {
	// c.Body() is only valid for the request; HandleWebhook does not retain it.
	if err := h.svc.HandleWebhook(c.UserContext(), c.Body(), c.Get("Stripe-Signature")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"received": true})
}

// ========== Mock Complete (dev only) ==========
// Body: { "payment_id": "<uuid>" }
// Header: X-Dev-Secret: <DEV_PAYMENT_SECRET>

type mockCompleteReq struct {
	PaymentID string `json:"payment_id" validate:"required,uuid"`
}

func (h *Handler) MockComplete(c *fiber.Ctx) error {
	got := c.Get("X-Dev-Secret")
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.devSecret)) != 1 {
		return fiber.NewError(fiber.StatusUnauthorized, "missing/invalid X-Dev-Secret")
	}
	var in mockCompleteReq
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	pid, _ := uuid.Parse(in.PaymentID)

	intentID, err := h.svc.IntentOf(c.UserContext(), pid)
	if err != nil {
		return err
	}
	if err := h.mock.Complete(intentID); err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	p, err := h.svc.Confirm(c.UserContext(), intentID)
	if err != nil {
		return err
	}
	return c.JSON(p)
}

// Register mounts the authenticated payment routes.
func (h *Handler) Register(r fiber.Router) {
	r.Post("/payments/create-intent/:quoteId", auth.RequireRole(models.RoleClient), h.CreateIntent)
	r.Post("/payments/confirm/:paymentIntentId", h.Confirm)
	r.Get("/payments/:paymentId/status", h.Status)
}

// RegisterPublic mounts the webhook and, when enabled, the mock completion route.
func (h *Handler) RegisterPublic(r fiber.Router, mw ...fiber.Handler) {
	r.Post("/payments/webhook", utils.Chain(mw, h.Webhook)...)
	if h.mock != nil && h.devSecret != "" {
		r.Post("/payments/mock/complete", utils.Chain(mw, h.MockComplete)...)
	}
}
