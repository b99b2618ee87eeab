package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/fin-agent/backend/internal/answer"
	"github.com/fin-agent/backend/internal/api/handlers"
	"github.com/fin-agent/backend/internal/cache/redis"
	"github.com/fin-agent/backend/internal/ingestion"
	"github.com/fin-agent/backend/internal/intent"
	"github.com/fin-agent/backend/internal/llm"
	"github.com/fin-agent/backend/internal/metrics"
	"github.com/fin-agent/backend/internal/middleware/ratelimit"
	"github.com/fin-agent/backend/internal/middleware/security"
	"github.com/fin-agent/backend/internal/middleware/validation"
	"github.com/fin-agent/backend/internal/orchestrator"
	"github.com/fin-agent/backend/internal/producers"
	"github.com/fin-agent/backend/internal/search/web"
	"github.com/fin-agent/backend/internal/storage/sqlite"
	"github.com/fin-agent/backend/pkg/config"
	appLogger "github.com/fin-agent/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Financial RAG Agent API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var cacheClient *redis.Client
	if cfg.Redis.Enabled {
		cacheClient, err = redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, continuing without cache", zap.Error(err))
		}
	}
	defer cacheClient.Close()

	llmClient := llm.NewClient(llm.Options{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		TimeoutSec:     cfg.LLM.TimeoutSec,
	})

	searchClient := web.NewClient(cfg.Search.SerpAPIKey, cfg.Search.MaxResults, cfg.Search.TimeoutSec)
	extractor := intent.NewExtractor(llmClient, searchClient)

	producerCfg := producers.Config{
		TechnicalWindow: cfg.Producers.TechnicalWindow,
		EdgarUserAgent:  cfg.Producers.EdgarUserAgent,
		TimeoutSec:      cfg.Producers.TimeoutSec,
	}
	documentProducers := []producers.Producer{
		producers.NewTechnicalProducer(llmClient, producerCfg),
		producers.NewFundamentalProducer(llmClient, producerCfg),
		producers.NewFilingProducer(producerCfg),
	}

	processor := ingestion.NewProcessor(sqliteClient, ingestion.ChunkerConfig{
		Size:    cfg.Index.ChunkSize,
		Overlap: cfg.Index.ChunkOverlap,
	})

	engine := answer.NewEngine(llmClient, answer.Config{
		TopK:          cfg.Index.TopK,
		PerSourceCap:  cfg.Index.PerSourceCap,
		ContextBudget: cfg.Index.ContextBudget,
	})

	embedder := llm.NewCachedEmbedder(llmClient, cacheClient)

	orch := orchestrator.New(extractor, documentProducers, processor, engine, embedder, orchestrator.Config{
		MaxConcurrentIngestions: cfg.Index.MaxConcurrent,
		VectorPath:              cfg.Index.VectorPath,
		MetaPath:                cfg.Index.MetaPath,
		EmbeddingDim:            cfg.LLM.EmbeddingDim,
	})

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Logging.Level == "debug",
	}))
	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 30,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()
	app.Use(limiter.Middleware())
	app.Use(validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	}))

	queryHandler := handlers.NewQueryHandler(orch, sqliteClient, cacheClient)
	wsHandler := handlers.NewWebSocketHandler(orch)

	api := app.Group("/api/v1")

	api.Post("/query", queryHandler.HandleQuery)
	api.Get("/query/history", queryHandler.GetQueryHistory)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/query", websocket.New(wsHandler.HandleConnection))

	app.Get("/metrics", metrics.MetricsHandler())

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
