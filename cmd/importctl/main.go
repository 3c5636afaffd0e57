package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/karimnasr/stockroom/internal/config"
	"github.com/karimnasr/stockroom/internal/domain"
	"github.com/karimnasr/stockroom/internal/importfile"
	"github.com/karimnasr/stockroom/internal/logger"
	"github.com/karimnasr/stockroom/internal/repository"
	"github.com/karimnasr/stockroom/internal/service"
	"github.com/karimnasr/stockroom/internal/storage"
)

// importctl queues one import from a local file and waits for it to finish,
// or runs the stale job sweep. It shares the database with the API server, so
// the same admission rules apply.
func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "stockroom-importctl",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	importType := flag.String("type", "", "Import type: products, stock, or sales")
	filePath := flag.String("file", "", "Path to the .csv or .xlsx file to import")
	storeCode := flag.String("store", "", "Store code for stock and sales imports")
	userID := flag.String("user", "importctl", "User id recorded on the job")
	cleanup := flag.Bool("cleanup", false, "Run the stale job sweep and exit")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	jobRepo := repository.NewImportJobRepository(db)
	coordinator := service.NewImportCoordinator(jobRepo, cfg.Import.StaleTimeout, appLogger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *cleanup {
		reaped, err := coordinator.CleanupStaleJobs(ctx)
		if err != nil {
			appLogger.WithError(err).Fatal("Stale job sweep failed")
		}
		appLogger.WithField(logger.FieldCount, reaped).Info("Stale job sweep finished")
		return
	}

	if *importType == "" || *filePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to read import file")
	}

	payloads, err := storage.NewPayloadStore(&cfg.Storage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize payload storage")
	}

	batchProcessor := service.NewBatchProcessor(jobRepo, cfg.Import.BatchPause, appLogger)
	importService, err := service.NewImportService(
		jobRepo,
		coordinator,
		batchProcessor,
		importfile.NewParser(),
		payloads,
		repository.NewProductRepository(db),
		repository.NewStoreRepository(db),
		repository.NewStockRepository(db),
		repository.NewSaleRepository(db),
		appLogger,
		&service.ImportServiceConfig{PoolSize: 1},
	)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize import service")
	}
	defer importService.Close()

	req := &service.QueueImportRequest{
		FileName:  filepath.Base(*filePath),
		Data:      data,
		StoreCode: *storeCode,
		UserID:    *userID,
	}

	queued, err := queueImport(ctx, importService, *importType, req)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to queue import")
	}

	appLogger.WithFields(logger.Fields{
		logger.FieldJobID:   queued.ID,
		logger.FieldJobType: string(queued.JobType),
		logger.FieldCount:   queued.TotalRecords,
	}).Info("Import queued, waiting for completion")

	// The worker runs in this process; poll until the job reaches a terminal
	// state so the pool is not torn down mid-import.
	for {
		select {
		case <-ctx.Done():
			appLogger.Warn("Interrupted; the job keeps its last persisted state")
			return
		case <-time.After(time.Second):
		}

		current, err := importService.GetJobStatus(context.Background(), queued.ID)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to poll job status")
		}
		if !current.Status.IsTerminal() {
			continue
		}

		for _, msg := range current.DetailedErrors {
			appLogger.Warn("error: " + msg)
		}
		for _, msg := range current.DetailedWarnings {
			appLogger.Info("warning: " + msg)
		}
		appLogger.WithFields(logger.Fields{
			logger.FieldJobID:  current.ID,
			logger.FieldStatus: string(current.Status),
			"processed":        current.ProcessedRecords,
			"success":          current.SuccessRecords,
			"errors":           current.ErrorRecords,
			"warnings":         current.WarningRecords,
		}).Info("Import finished")
		return
	}
}

func queueImport(ctx context.Context, s *service.ImportService, importType string, req *service.QueueImportRequest) (*domain.ImportJob, error) {
	switch importType {
	case "products":
		return s.QueueProductsImport(ctx, req)
	case "stock":
		return s.QueueStockImport(ctx, req)
	case "sales":
		return s.QueueSalesImport(ctx, req)
	default:
		return nil, fmt.Errorf("unknown import type %q, expected products, stock, or sales", importType)
	}
}
