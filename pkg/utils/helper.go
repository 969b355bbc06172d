package utils

import (
	"context"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aldoetobex/legal-mp-engagement/pkg/models"
)

// HistoryWriter is the part of the store LogCaseHistory needs.
type HistoryWriter interface {
	AddHistory(ctx context.Context, h *models.CaseHistory) error
}

// LogCaseHistory inserts an audit record into case_histories.
// Best effort: a failure is logged and never fails the caller.
func LogCaseHistory(
	ctx context.Context,
	w HistoryWriter,
	log *zap.Logger,
	caseID, actorID uuid.UUID,
	action string,
	oldS, newS models.CaseStatus,
	reason string,
) {
	err := w.AddHistory(ctx, &models.CaseHistory{
		CaseID:    caseID,
		ActorID:   actorID,
		Action:    action,
		OldStatus: oldS,
		NewStatus: newS,
		Reason:    reason,
	})
	if err != nil {
		log.Warn("case history not recorded",
			zap.String("case_id", caseID.String()),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

// ParsePage reads ?page= and ?limit= (or the older ?pageSize=).
// Page is 1-based; size is clamped to 1..50 with a default of 10.
func ParsePage(c *fiber.Ctx) (page, size int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	size, _ = strconv.Atoi(c.Query("limit", c.Query("pageSize", "10")))
	return ClampPage(page, size)
}

// ClampPage normalizes page/size values coming from any caller.
func ClampPage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 50 {
		size = 10
	}
	return page, size
}

// Offset converts a 1-based page into a row offset.
func Offset(page, size int) int { return (page - 1) * size }

// NewPage builds the pagination envelope.
func NewPage[T any](items []T, page, size int, total int64) models.Page[T] {
	if items == nil {
		items = []T{}
	}
	return models.Page[T]{
		Page:     page,
		PageSize: size,
		Total:    total,
		Pages:    int(math.Ceil(float64(total) / float64(size))),
		Items:    items,
	}
}

// Chain returns mw followed by h in a fresh slice, so routes sharing mw never
// share a backing array.
func Chain(mw []fiber.Handler, h fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(mw)+1)
	out = append(out, mw...)
	return append(out, h)
}
