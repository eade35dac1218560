package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/convertd/convertd/config"
	"github.com/convertd/convertd/internal/adapter/converter/libreoffice"
	HTTPAdapter "github.com/convertd/convertd/internal/adapter/http"
	"github.com/convertd/convertd/internal/adapter/http/ratelimit"
	"github.com/convertd/convertd/internal/adapter/storage/memory"
	sqlitestore "github.com/convertd/convertd/internal/adapter/storage/sqlite"
	"github.com/convertd/convertd/internal/infrastructure/logger"
	"github.com/convertd/convertd/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error.Printf("failed to load config: %v", err)
		os.Exit(1)
	}

	logger.Info.Printf("starting convertd on port %d, data dir %s", cfg.Port, cfg.DataDir)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Error.Printf("failed to create data directory: %v", err)
		os.Exit(1)
	}

	archive, err := sqlitestore.NewArchive(cfg.DataDir)
	if err != nil {
		logger.Error.Printf("failed to open job archive: %v", err)
		os.Exit(1)
	}
	defer func() { _ = archive.Close() }()

	store := memory.NewStore()
	converter := libreoffice.NewConverter()
	eventBus := service.NewEventBus()
	tracker := service.NewProgressTracker(store, eventBus)
	packager := service.NewPackager()
	sem := service.NewSemaphore(cfg.SyncSlots)

	executor := service.NewExecutor(store, eventBus, archive, cfg.AsyncWorkers, cfg.QueueCapacity)
	batch := service.NewBatchProcessor(store, converter, packager, eventBus, archive, cfg.BatchWorkers, cfg.QueueCapacity, cfg.ConvertTimeout)

	convertSvc := service.NewConvertService(
		store, converter, executor, batch, sem, tracker, eventBus, archive,
		cfg.DataDir, cfg.JobTTL, cfg.SyncWait, cfg.ConvertTimeout,
	)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	executor.Start(workerCtx)
	batch.Start(workerCtx)

	// Periodic TTL sweep
	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := convertSvc.Cleanup(); err != nil {
					logger.Error.Printf("cleanup failed: %v", err)
				}
			case <-workerCtx.Done():
				return
			}
		}
	}()

	limiter := ratelimit.NewClientLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, false)
	queues := HTTPAdapter.QueueInfo{
		AsyncWorkers: cfg.AsyncWorkers,
		BatchWorkers: cfg.BatchWorkers,
		AsyncDepth:   executor.QueueDepth,
		BatchDepth:   batch.QueueDepth,
		SyncInUse:    sem.InUse,
		SSEClients:   eventBus.Subscribers,
	}
	server := HTTPAdapter.NewServer(convertSvc, eventBus, archive, queues, cfg.MaxUploadSizeMB, limiter)

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info.Printf("received %s, shutting down", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error.Printf("http shutdown error: %v", err)
		}

		// Stop workers (lets in-flight conversions finish)
		workerCancel()

		logger.Info.Printf("shutdown complete")
	}()

	logger.Info.Printf("server listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error.Printf("server failed: %v", err)
		os.Exit(1)
	}
}
