package main

import (
	"context"
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

	"github.com/askdb/backend/internal/api/handlers"
	rediscache "github.com/askdb/backend/internal/cache/redis"
	"github.com/askdb/backend/internal/history"
	"github.com/askdb/backend/internal/llm"
	"github.com/askdb/backend/internal/metrics"
	"github.com/askdb/backend/internal/middleware/ratelimit"
	"github.com/askdb/backend/internal/middleware/security"
	"github.com/askdb/backend/internal/pipeline"
	"github.com/askdb/backend/internal/progress"
	"github.com/askdb/backend/internal/ranker/milvus"
	"github.com/askdb/backend/pkg/config"
	appLogger "github.com/askdb/backend/pkg/logger"
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

	appLogger.Info("Starting AskDB API Server")

	metrics.Init()

	historyClient, err := history.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create history store", zap.Error(err))
	}
	defer historyClient.Close()

	err = historyClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize history schema", zap.Error(err))
	}

	var cacheClient *rediscache.Client
	if cfg.Redis.Enabled {
		cacheClient, err = rediscache.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, result caching disabled", zap.Error(err))
			cacheClient = nil
		} else {
			defer cacheClient.Close()
		}
	}

	var rankerClient *milvus.Client
	if cfg.Milvus.Enabled {
		rankerClient, err = milvus.NewClient(cfg.Milvus.Endpoint, cfg.Milvus.APIKey, cfg.Milvus.CollectionName, cfg.LLM.EmbeddingDim)
		if err != nil {
			appLogger.Warn("Milvus unavailable, vector ranking disabled", zap.Error(err))
			rankerClient = nil
		} else {
			defer rankerClient.Close()

			if err := rankerClient.CreateCollection(context.Background()); err != nil {
				appLogger.Warn("Failed to prepare ranking collection, vector ranking disabled", zap.Error(err))
				rankerClient = nil
			}
		}
	}

	llmClient := llm.NewClient(llm.Config{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		Timeout:        time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
	})

	progressStore := progress.NewStore(10 * time.Minute)
	engine := pipeline.NewEngine(llmClient, cfg.Pipeline, cacheClient, historyClient, rankerClient, progressStore)

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
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 30,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	askHandler := handlers.NewAskHandler(engine, cfg.Pipeline.IntentChecks)
	schemaHandler := handlers.NewSchemaHandler(engine)
	historyHandler := handlers.NewHistoryHandler(historyClient)
	progressHandler := handlers.NewProgressHandler(progressStore)

	api := app.Group("/api/v1")

	api.Post("/ask", limiter.Middleware(), askHandler.HandleAsk)
	api.Post("/connect/test", schemaHandler.HandleConnectTest)
	api.Post("/schema/overview", schemaHandler.HandleOverview)
	api.Get("/history", historyHandler.HandleRecent)

	app.Get("/ws/progress/:id", websocket.New(progressHandler.HandleConnection))

	app.Get("/metrics", metrics.MetricsHandler())

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		status := "ready"
		if !llmClient.Configured() {
			status = "degraded: llm not configured"
		}
		return c.JSON(fiber.Map{
			"status": status,
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
