package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/api"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/audit"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/config"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/database"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/face"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/pipeline"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/repository"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/service"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/webhook"
	"github.com/saturnino-fabrica-de-software/faceguard/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("starting FaceGuard API",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Models load before the server listens; a missing model is fatal.
	models, err := face.NewModels(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to load models: %w", err)
	}
	defer func() {
		if err := models.Close(); err != nil {
			logger.Error("failed to release models", slog.Any("error", err))
		}
	}()

	policy, err := pipeline.ParsePrimaryPolicy(cfg.PrimaryFace)
	if err != nil {
		return err
	}
	runner := pipeline.New(models,
		pipeline.WithPrimaryPolicy(policy),
		pipeline.WithLogger(logger),
	)

	hub := ws.NewHub()
	svc := service.NewDetectionService(runner, models.Locator.Name(), models.Classifier.Name(), logger).
		WithAudit(audit.NewSlogLogger(logger)).
		WithBroadcaster(hub).
		WithTimeout(cfg.InferenceTimeout)

	if cfg.HasWebhook() {
		whCfg := webhook.DefaultConfig(cfg.WebhookURL, cfg.WebhookSecret)
		whCfg.MaxAttempts = cfg.WebhookMaxAttempts
		notifier := webhook.NewNotifier(whCfg, logger)
		go notifier.Run(ctx)
		defer notifier.Stop()

		svc.WithBroadcaster(notifier)
		logger.Info("call event webhook enabled")
	}

	deps := &api.Dependencies{
		Service: svc,
		Hub:     hub,
		Models: handler.ModelInfo{
			Locator:    models.Locator.Name(),
			Classifier: models.Classifier.Name(),
			Explain:    models.Explainer != nil,
		},
	}

	if cfg.HasDatabase() {
		if cfg.AutoMigrate {
			if err := migrate(cfg.DatabaseURL, logger); err != nil {
				return err
			}
		}

		pool, err := database.NewPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()

		svc.WithRepository(repository.NewDetectionRepository(pool))
		deps.DB = pool
		logger.Info("detection store enabled")
	}

	// Setup router
	router := api.NewRouter(cfg, logger, deps)
	router.Setup()

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")
	done := make(chan error, 1)
	go func() { done <- router.Shutdown() }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("shutdown error", slog.Any("error", err))
		}
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out")
	}

	logger.Info("server stopped")

	return nil
}

func migrate(dsn string, logger *slog.Logger) error {
	migrator, err := database.OpenMigrator(dsn)
	if err != nil {
		return fmt.Errorf("failed to open migrator: %w", err)
	}
	defer func() { _ = migrator.Close() }()

	if err := migrator.Up(); err != nil {
		return fmt.Errorf("migration up failed: %w", err)
	}

	version, _, err := migrator.Version()
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}
	logger.Info("migrations applied", slog.Uint64("version", uint64(version)))

	return nil
}
