package handlers

import (
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/askdb/backend/internal/progress"
	"github.com/askdb/backend/pkg/logger"
)

type ProgressHandler struct {
	store *progress.Store
}

func NewProgressHandler(store *progress.Store) *ProgressHandler {
	return &ProgressHandler{store: store}
}

// HandleConnection streams progress updates for one request ID until
// the pipeline reaches a terminal stage or the client goes away.
func (h *ProgressHandler) HandleConnection(c *websocket.Conn) {
	id := c.Params("id")
	logger.Info("Progress stream opened", zap.String("id", id))

	defer func() {
		c.Close()
		logger.Info("Progress stream closed", zap.String("id", id))
	}()

	sent := 0
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	deadline := time.Now().Add(5 * time.Minute)
	for range ticker.C {
		if time.Now().After(deadline) {
			return
		}

		updates, ok := h.store.Snapshot(id)
		if !ok {
			continue
		}

		for ; sent < len(updates); sent++ {
			if err := c.WriteJSON(updates[sent]); err != nil {
				return
			}
			if terminal(updates[sent].Stage) {
				return
			}
		}
	}
}

func terminal(stage string) bool {
	return stage == progress.StageDone || stage == progress.StageFailed
}
