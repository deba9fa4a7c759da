// Package main provides the entry point for the Questly maintenance worker.
// The worker runs the rotation/snapshot/reminder loop and exposes a small
// health endpoint for deployment probes.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"questly/internal/config"
	"questly/internal/database"
	"questly/internal/observability"
	"questly/internal/services"
	"questly/internal/version"
	"questly/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// fatalIfErr logs the error with context and panics with a consistent message
func fatalIfErr(ctx context.Context, logger *observability.Logger, msg string, err error, fields map[string]interface{}) {
	logger.Error(ctx, msg, err, fields)
	panic(msg + ": " + err.Error())
}

func main() {
	ctx := context.Background()

	// Local development convenience; a missing .env is not an error
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Setup observability (tracing/metrics/logging)
	tp, mp, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "questly-worker")
	if err != nil {
		panic("Failed to initialize observability: " + err.Error())
	}
	defer func() {
		if tp != nil {
			if err := tp.Shutdown(context.TODO()); err != nil {
				logger.Warn(ctx, "Error shutting down tracer provider", map[string]interface{}{"error": err.Error(), "provider": "tracer"})
			}
		}
		if mp != nil {
			if err := mp.Shutdown(context.TODO()); err != nil {
				logger.Warn(ctx, "Error shutting down meter provider", map[string]interface{}{"error": err.Error(), "provider": "meter"})
			}
		}
	}()

	logger.Info(ctx, "Starting questly worker service", map[string]interface{}{
		"port":     cfg.Server.WorkerPort,
		"logLevel": cfg.Server.LogLevel,
		"debug":    cfg.Server.Debug,
	})

	// Initialize database manager with logger
	dbManager := database.NewManager(logger)

	// Initialize database connection without running migrations (migrations are managed elsewhere)
	db, err := dbManager.InitDBWithoutMigrations(cfg.Database)
	if err != nil {
		fatalIfErr(ctx, logger, "Failed to initialize database", err, map[string]interface{}{"db_url": cfg.Database.URL})
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn(ctx, "Warning: failed to close database", map[string]interface{}{"error": err.Error(), "db_url": cfg.Database.URL})
		}
	}()

	// Initialize the services the maintenance loop depends on
	topicService := services.NewTopicService(db, logger)
	scheduleService := services.NewScheduleService(db, cfg, logger, topicService)
	leaderboardService := services.NewLeaderboardService(db, logger)
	emailService := services.NewEmailService(db, cfg, logger)

	workerInstance := worker.New(cfg, logger, scheduleService, leaderboardService, emailService)
	go workerInstance.Start(ctx)

	// Setup Gin router for health probes
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observability.GinMiddlewareWithErrorHandling("questly-worker"))

	v1 := router.Group("/v1")
	{
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		v1.GET("/version", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"service":   "worker",
				"version":   version.Version,
				"commit":    version.Commit,
				"buildTime": version.BuildTime,
			})
		})
	}

	port := cfg.Server.WorkerPort
	if port == "" {
		port = config.DefaultWorkerPort
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info(ctx, "Worker server starting", map[string]interface{}{"port": port})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatalIfErr(ctx, logger, "Failed to start worker server", err, map[string]interface{}{"port": port})
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info(ctx, "Worker server shutting down", map[string]interface{}{"service": "worker"})

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, config.WorkerShutdownTimeout)
	defer shutdownCancel()

	// Stop the maintenance loop first
	workerInstance.Stop()

	// Then shutdown the server
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fatalIfErr(ctx, logger, "Worker server forced to shutdown", err, map[string]interface{}{"service": "worker"})
	}

	logger.Info(ctx, "Worker server exited", map[string]interface{}{"service": "worker"})
}
