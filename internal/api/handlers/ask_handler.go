package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/askdb/backend/internal/pipeline"
	"github.com/askdb/backend/pkg/logger"
)

type AskHandler struct {
	engine              *pipeline.Engine
	intentChecksDefault bool
}

func NewAskHandler(engine *pipeline.Engine, intentChecksDefault bool) *AskHandler {
	return &AskHandler{
		engine:              engine,
		intentChecksDefault: intentChecksDefault,
	}
}

func (h *AskHandler) HandleAsk(c *fiber.Ctx) error {
	var req struct {
		Question   string `json:"question"`
		Connection struct {
			URL string `json:"url"`
		} `json:"connection"`
		Limit        int   `json:"limit"`
		TimeoutMS    int   `json:"timeout_ms"`
		IntentChecks *bool `json:"intent_checks"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Question is required",
		})
	}
	if req.Connection.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Connection URL is required",
		})
	}

	intentChecks := h.intentChecksDefault
	if req.IntentChecks != nil {
		intentChecks = *req.IntentChecks
	}

	response, err := h.engine.Ask(c.Context(), pipeline.Request{
		Question:     req.Question,
		ConnURL:      req.Connection.URL,
		RowCap:       req.Limit,
		TimeoutMS:    req.TimeoutMS,
		IntentChecks: intentChecks,
	})
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(response)
}

func (h *AskHandler) fail(c *fiber.Ctx, err error) error {
	var perr *pipeline.Error
	if !errors.As(err, &perr) {
		logger.Error("Unclassified pipeline failure", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process question",
		})
	}

	body := fiber.Map{
		"error": perr.Message,
		"kind":  perr.Kind,
	}
	if perr.Query != "" {
		body["query"] = perr.Query
	}

	logger.Warn("Question failed",
		zap.String("kind", string(perr.Kind)),
		zap.String("error", perr.Message),
	)

	return c.Status(statusForKind(perr.Kind)).JSON(body)
}

func statusForKind(kind pipeline.Kind) int {
	switch kind {
	case pipeline.KindNotConfigured:
		return fiber.StatusServiceUnavailable
	case pipeline.KindUpstream:
		return fiber.StatusBadGateway
	case pipeline.KindParse, pipeline.KindSafety, pipeline.KindCapacity:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}
