package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/karimnasr/stockroom/internal/api"
	"github.com/karimnasr/stockroom/internal/api/middleware"
	"github.com/karimnasr/stockroom/internal/config"
	"github.com/karimnasr/stockroom/internal/importfile"
	"github.com/karimnasr/stockroom/internal/logger"
	"github.com/karimnasr/stockroom/internal/repository"
	"github.com/karimnasr/stockroom/internal/service"
	"github.com/karimnasr/stockroom/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	jobRepo := repository.NewImportJobRepository(db)
	productRepo := repository.NewProductRepository(db)
	storeRepo := repository.NewStoreRepository(db)
	stockRepo := repository.NewStockRepository(db)
	saleRepo := repository.NewSaleRepository(db)

	// Initialize payload storage (local filesystem or S3-compatible)
	payloads, err := storage.NewPayloadStore(&cfg.Storage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize payload storage")
	}

	// Initialize services
	coordinator := service.NewImportCoordinator(jobRepo, cfg.Import.StaleTimeout, appLogger)
	batchProcessor := service.NewBatchProcessor(jobRepo, cfg.Import.BatchPause, appLogger)

	importService, err := service.NewImportService(
		jobRepo,
		coordinator,
		batchProcessor,
		importfile.NewParser(),
		payloads,
		productRepo,
		storeRepo,
		stockRepo,
		saleRepo,
		appLogger,
		&service.ImportServiceConfig{
			PoolSize: cfg.Import.PoolSize,
		},
	)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize import service")
	}
	defer importService.Close()

	// Sweep jobs orphaned by a previous crash before accepting traffic
	if reaped, err := coordinator.CleanupStaleJobs(context.Background()); err != nil {
		appLogger.WithError(err).Warn("Startup stale job sweep failed")
	} else if reaped > 0 {
		appLogger.WithField(logger.FieldCount, reaped).Info("Failed stale jobs from previous run")
	}

	// Setup router
	router := api.SetupRouter(importService, appLogger, api.RouterConfig{
		Mode:        cfg.Server.Mode,
		MaxUploadMB: cfg.Import.MaxUploadMB,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
