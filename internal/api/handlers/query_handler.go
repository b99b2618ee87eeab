package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fin-agent/backend/internal/cache/redis"
	"github.com/fin-agent/backend/internal/metrics"
	"github.com/fin-agent/backend/internal/orchestrator"
	"github.com/fin-agent/backend/internal/storage/models"
	"github.com/fin-agent/backend/internal/storage/sqlite"
	"github.com/fin-agent/backend/pkg/logger"
	"github.com/fin-agent/backend/pkg/utils"
)

const answerCacheTTL = 10 * time.Minute

type QueryHandler struct {
	orch  *orchestrator.Orchestrator
	db    *sqlite.Client
	cache *redis.Client
}

func NewQueryHandler(orch *orchestrator.Orchestrator, db *sqlite.Client, cache *redis.Client) *QueryHandler {
	return &QueryHandler{
		orch:  orch,
		db:    db,
		cache: cache,
	}
}

func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var req struct {
		Query string `json:"query"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	queryHash := utils.HashString(req.Query)
	if cached, hit, err := h.cache.GetAnswer(c.Context(), queryHash); err == nil && hit {
		metrics.CacheHits.WithLabelValues("answer").Inc()
		return c.JSON(cached)
	}
	metrics.CacheMisses.WithLabelValues("answer").Inc()

	record := h.orch.Run(c.Context(), req.Query)

	if record.Error == "" {
		if err := h.cache.SetAnswer(c.Context(), queryHash, record, answerCacheTTL); err != nil {
			logger.Warn("Failed to cache answer", zap.Error(err))
		}
	}

	h.recordHistory(record)

	if record.Error != "" {
		return c.Status(fiber.StatusBadGateway).JSON(record)
	}

	return c.JSON(record)
}

func (h *QueryHandler) GetQueryHistory(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))

	records, err := h.db.GetQueryHistory(limit)
	if err != nil {
		logger.Error("Failed to load query history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load query history",
		})
	}

	return c.JSON(fiber.Map{
		"history": records,
	})
}

func (h *QueryHandler) recordHistory(record *models.AnswerRecord) {
	if h.db == nil {
		return
	}

	confidence := ""
	if record.Parsed != nil {
		confidence = record.Parsed.Confidence
	}

	tickers := make([]string, 0, len(record.Sources))
	seen := make(map[string]bool)
	for _, ref := range record.Sources {
		if !seen[ref.Ticker] {
			seen[ref.Ticker] = true
			tickers = append(tickers, ref.Ticker)
		}
	}

	response := record.AnswerText
	if response == "" {
		response = record.Error
	}

	err := h.db.InsertQueryRecord(&models.QueryRecord{
		ID:         record.ID,
		QueryText:  record.Question,
		QueryType:  string(record.QueryType),
		Tickers:    tickers,
		Response:   response,
		Confidence: confidence,
		ChunkCount: len(record.ContextChunks),
		LatencyMS:  record.LatencyMS,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		logger.Warn("Failed to record query history", zap.Error(err))
	}
}
