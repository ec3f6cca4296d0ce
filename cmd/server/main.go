package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/learnbridge/tutoring-backend/internal/config"
	"github.com/learnbridge/tutoring-backend/internal/database"
	"github.com/learnbridge/tutoring-backend/internal/logger"
	"github.com/learnbridge/tutoring-backend/internal/routes"
	"go.uber.org/zap"
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() {
		_ = zapLogger.Sync()
	}()

	if err := cfg.RequirePayPal(); err != nil {
		zapLogger.Fatal("checkout is not configured", zap.Error(err))
	}

	// 2. Connect to Database
	if cfg.DBUrl == "" {
		zapLogger.Fatal("DB_URL is required")
	}
	if err := database.ConnectDB(cfg.DBUrl, cfg.DBMaxConns); err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.CloseDB()

	// 3. Setup Fiber
	app := fiber.New(fiber.Config{
		DisableStartupMessage: !cfg.IsDevelopment(),
	})

	app.Use(requestid.New())
	app.Use(recover.New())
	app.Use(logger.RequestLogger(zapLogger.Named("http")))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	cleanup, err := routes.RegisterRoutes(app, cfg, database.DB, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to register routes", zap.Error(err))
	}
	defer cleanup()

	// 4. Start Server
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listenErr := make(chan error, 1)
	go func() {
		zapLogger.Info("server starting", zap.String("port", cfg.Port), zap.String("env", cfg.AppEnv))
		listenErr <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			zapLogger.Error("server failed", zap.Error(err))
		}
	case <-ctx.Done():
		zapLogger.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			zapLogger.Error("graceful shutdown failed", zap.Error(err))
		}
	}
}
