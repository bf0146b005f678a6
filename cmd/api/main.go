package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/geomark-lab/geomark-api/internal/config"
	"github.com/geomark-lab/geomark-api/internal/extract"
	"github.com/geomark-lab/geomark-api/internal/grading"
	"github.com/geomark-lab/geomark-api/internal/handler"
	"github.com/geomark-lab/geomark-api/internal/middleware"
	"github.com/geomark-lab/geomark-api/internal/rag"
	"github.com/geomark-lab/geomark-api/internal/router"
	"github.com/geomark-lab/geomark-api/internal/service"
	"github.com/geomark-lab/geomark-api/pkg/ai"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	validate := validator.New(validator.WithRequiredStructEnabled())

	provider := rag.NewProvider(func() (rag.Embedder, error) {
		return rag.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel)
	})

	retriever, err := rag.NewRetriever(provider, extract.NewTextExtractor(), rag.RetrieverConfig{
		MaxDocsPerStudent: cfg.MaxDocsPerStudent,
		ChunksPerDocLimit: cfg.ChunksPerDocLimit,
		ChunkSize:         cfg.ChunkSize,
		ChunkOverlap:      cfg.ChunkOverlap,
	}, logger)
	if err != nil {
		log.Fatalf("failed to build retriever: %v", err)
	}

	graders := make(map[string]ai.Grader)
	if cfg.OpenAIAPIKey != "" {
		grader, err := ai.NewOpenAIGrader(ai.OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.GradingModel,
			CallTimeout: cfg.LLMTimeout,
			Logger:      logger,
		})
		if err != nil {
			log.Fatalf("failed to build openai grader: %v", err)
		}
		graders["openai"] = grader
	}
	if cfg.AnthropicAPIKey != "" {
		grader, err := ai.NewAnthropicGrader(ai.AnthropicConfig{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.GradingModel,
		})
		if err != nil {
			log.Fatalf("failed to build anthropic grader: %v", err)
		}
		graders["anthropic"] = grader
	}
	if len(graders) == 0 {
		logger.Warn().Msg("no grading backend configured, batch starts will be rejected")
	}

	var contextRetriever grading.ContextRetriever = retriever
	batchService := service.NewBatchService(graders, contextRetriever, validate, cfg, logger)
	batchHandler := handler.NewBatchHandler(batchService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    32 * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		BatchHandler: batchHandler,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, batchService)
}

func waitForShutdown(app *fiber.App, batches service.BatchService) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	batches.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
