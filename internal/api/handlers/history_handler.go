package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/askdb/backend/internal/history"
	"github.com/askdb/backend/pkg/logger"
)

type HistoryHandler struct {
	store *history.Client
}

func NewHistoryHandler(store *history.Client) *HistoryHandler {
	return &HistoryHandler{store: store}
}

func (h *HistoryHandler) HandleRecent(c *fiber.Ctx) error {
	if h.store == nil {
		return c.JSON(fiber.Map{"history": []interface{}{}})
	}

	limit := c.QueryInt("limit", 50)
	records, err := h.store.Recent(limit)
	if err != nil {
		logger.Error("Failed to load history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load history",
		})
	}

	items := make([]fiber.Map, 0, len(records))
	for _, rec := range records {
		items = append(items, fiber.Map{
			"id":         rec.ID,
			"question":   rec.Question,
			"backend":    rec.Backend,
			"intent":     rec.Intent,
			"confidence": rec.Confidence,
			"query":      rec.Query,
			"status":     rec.Status,
			"error":      rec.Error,
			"row_count":  rec.RowCount,
			"latency_ms": rec.LatencyMS,
			"created_at": rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return c.JSON(fiber.Map{"history": items})
}
