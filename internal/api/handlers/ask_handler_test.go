package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdb/backend/internal/llm"
	"github.com/askdb/backend/internal/pipeline"
	"github.com/askdb/backend/pkg/config"
)

func newTestApp() *fiber.App {
	engine := pipeline.NewEngine(llm.NewClient(llm.Config{}), config.PipelineConfig{
		RowCap:           100,
		StatementTimeout: 5000,
		PlanRowCeiling:   100000,
		MaxTables:        4,
		MaxFields:        8,
	}, nil, nil, nil, nil)

	app := fiber.New()
	handler := NewAskHandler(engine, true)
	app.Post("/api/v1/ask", handler.HandleAsk)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) (int, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestAskRequiresQuestion(t *testing.T) {
	app := newTestApp()

	status, body := postJSON(t, app, "/api/v1/ask", map[string]any{
		"connection": map[string]any{"url": "postgres://localhost/app"},
	})

	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body["error"], "Question")
}

func TestAskRequiresConnectionURL(t *testing.T) {
	app := newTestApp()

	status, body := postJSON(t, app, "/api/v1/ask", map[string]any{
		"question": "how many users",
	})

	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body["error"], "Connection URL")
}

func TestAskUnconfiguredLLMReturns503(t *testing.T) {
	app := newTestApp()

	status, body := postJSON(t, app, "/api/v1/ask", map[string]any{
		"question":   "how many users",
		"connection": map[string]any{"url": "postgres://localhost/app"},
	})

	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, string(pipeline.KindNotConfigured), body["kind"])
}

func TestStatusForKind(t *testing.T) {
	assert.Equal(t, fiber.StatusServiceUnavailable, statusForKind(pipeline.KindNotConfigured))
	assert.Equal(t, fiber.StatusBadGateway, statusForKind(pipeline.KindUpstream))
	assert.Equal(t, fiber.StatusBadRequest, statusForKind(pipeline.KindParse))
	assert.Equal(t, fiber.StatusBadRequest, statusForKind(pipeline.KindSafety))
	assert.Equal(t, fiber.StatusBadRequest, statusForKind(pipeline.KindCapacity))
	assert.Equal(t, fiber.StatusInternalServerError, statusForKind(pipeline.KindExecution))
}
