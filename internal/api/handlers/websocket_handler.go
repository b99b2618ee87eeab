package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/fin-agent/backend/internal/orchestrator"
	"github.com/fin-agent/backend/pkg/logger"
)

// WebSocketHandler streams answer progress to interactive clients: a status
// event while ingestion runs, the answer word by word, then the sources.
type WebSocketHandler struct {
	orch *orchestrator.Orchestrator
}

func NewWebSocketHandler(orch *orchestrator.Orchestrator) *WebSocketHandler {
	return &WebSocketHandler{orch: orch}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type    string `json:"type"`
			Content string `json:"content"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "query" || msg.Content == "" {
			continue
		}

		logger.Info("Processing WebSocket query", zap.String("query", msg.Content))

		if err := h.streamAnswer(c, msg.Content); err != nil {
			logger.Error("Failed to stream answer", zap.Error(err))
			h.send(c, "error", "Failed to process query")
		}
	}
}

func (h *WebSocketHandler) streamAnswer(c *websocket.Conn, query string) error {
	h.send(c, "status", "Resolving tickers and building index...")

	record := h.orch.Run(context.Background(), query)

	if record.Error != "" {
		h.send(c, "error", record.Error)
		return nil
	}

	words := strings.Fields(record.AnswerText)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 {
			chunk += " "
		}
		if err := h.send(c, "answer_chunk", chunk); err != nil {
			return err
		}
	}

	return c.WriteJSON(map[string]interface{}{
		"type":    "done",
		"id":      record.ID,
		"sources": record.Sources,
	})
}

func (h *WebSocketHandler) send(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]string{
		"type":    msgType,
		"content": content,
	})
}
