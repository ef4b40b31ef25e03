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

	"github.com/andika/product-import/internal/api"
	"github.com/andika/product-import/internal/config"
	applog "github.com/andika/product-import/internal/logger"
	"github.com/andika/product-import/internal/repository"
	"github.com/andika/product-import/internal/service"
	"github.com/andika/product-import/internal/storage"
	"github.com/andika/product-import/internal/task"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := applog.NewDefault()
	applog.SetDefaultLogger(logger)
	defer applog.Sync()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}

	objectStorage, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize storage")
	}

	ctx := context.Background()
	if err := objectStorage.EnsureBucket(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to ensure storage bucket")
	}

	jobRepo := repository.NewImportJobRepository(db)
	productRepo := repository.NewProductRepository(db)

	runner := task.NewRunner(&task.Config{
		Workers: cfg.Import.Workers,
		Retries: cfg.Import.TaskRetries,
		Backoff: cfg.Import.TaskBackoff,
	})

	chunkWorker := service.NewChunkWorker(productRepo, jobRepo, logger)
	coordinator := service.NewImportCoordinator(jobRepo, chunkWorker, objectStorage, runner, logger, &service.CoordinatorConfig{
		ChunkSize:     cfg.Import.ChunkSize,
		RetryBackoffs: cfg.Import.RetryBackoffs,
	})
	importService := service.NewImportService(jobRepo, objectStorage, coordinator, logger)

	router := api.SetupRouter(importService, cfg, logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	// Let in-flight import batches drain before exit
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Import batches did not drain before shutdown")
	}

	logger.Info("Server exited")
}
