package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nutriparse/internal/common"
	"github.com/ternarybob/nutriparse/internal/handlers"
	"github.com/ternarybob/nutriparse/internal/interfaces"
	"github.com/ternarybob/nutriparse/internal/parser"
	"github.com/ternarybob/nutriparse/internal/queue"
	"github.com/ternarybob/nutriparse/internal/services/callback"
	"github.com/ternarybob/nutriparse/internal/services/cleanup"
	"github.com/ternarybob/nutriparse/internal/services/pdf"
	"github.com/ternarybob/nutriparse/internal/services/validation"
	"github.com/ternarybob/nutriparse/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager *badger.Manager
	Queue          *queue.BadgerQueue
	Sweeper        *queue.Sweeper
	Pool           *queue.Pool
	Pipeline       interfaces.Pipeline
	Notifier       *callback.Notifier
	CleanupService *cleanup.Service
	Validator      interfaces.UploadValidator

	// HTTP handlers
	ParseHandler  *handlers.ParseHandler
	JobHandler    *handlers.JobHandler
	AdminHandler  *handlers.AdminHandler
	HealthHandler *handlers.HealthHandler
}

// New wires the application: storage first, then queue and pipeline, then
// the worker pool and background services, handlers last.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: config,
		Logger: logger,
	}

	storageManager, err := badger.NewManager(logger, &config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.StorageManager = storageManager

	jobs := storageManager.JobStorage()
	blobs := storageManager.BlobStorage()

	a.Queue = queue.NewBadgerQueue(storageManager.DB(), jobs, config.Queue.MaxAttempts, logger)
	a.Sweeper = queue.NewSweeper(a.Queue, config.SweepInterval(), logger)

	extractor := pdf.NewExtractor(logger)
	ocr := pdf.NewNoopOCREngine(logger)
	registry := parser.NewRegistry()
	a.Pipeline = parser.NewPipeline(extractor, ocr, registry, config.Parser.OCREnabled, config.Parser.Languages, logger)

	a.Notifier = callback.NewNotifier(config.Callback.MaxAttempts, config.CallbackBackoffBase(), config.CallbackTimeout(), logger)

	a.Pool = queue.NewPool(queue.PoolConfig{
		Concurrency:   config.Dispatcher.Concurrency,
		LeaseDuration: config.LeaseDuration(),
		MaxAttempts:   config.Queue.MaxAttempts,
	}, a.Queue, jobs, blobs, a.Pipeline, a.Notifier, logger)

	a.CleanupService = cleanup.NewService(jobs, blobs, config.Cleanup.Schedule, config.Cleanup.RetentionDays, logger)

	a.Validator = validation.NewValidator(
		config.Storage.Uploads.MaxFileSize,
		config.Storage.Uploads.MaxSyncFileSize,
		logger)

	a.ParseHandler = handlers.NewParseHandler(a.Validator, jobs, blobs, a.Queue, a.Pipeline, config.SyncDeadline(), logger)
	a.JobHandler = handlers.NewJobHandler(jobs, blobs, logger)
	a.AdminHandler = handlers.NewAdminHandler(jobs, a.Queue, a.Pool, a.CleanupService, logger)
	a.HealthHandler = handlers.NewHealthHandler(jobs, a.Queue, logger)

	logger.Info().Msg("Application components initialized")
	return a, nil
}

// Start launches the background services: worker pool, lease sweeper, and
// the retention scheduler.
func (a *App) Start() error {
	a.Pool.Start()
	a.Sweeper.Start()

	if a.Config.Cleanup.Enabled {
		if err := a.CleanupService.Start(); err != nil {
			return fmt.Errorf("failed to start cleanup scheduler: %w", err)
		}
	}
	return nil
}

// Shutdown stops background work and closes storage. Order matters: stop
// taking work, drain the pool, flush callbacks, then close the database.
func (a *App) Shutdown(ctx context.Context) error {
	a.Sweeper.Stop()
	a.Pool.Stop()
	a.Notifier.Wait()

	if a.Config.Cleanup.Enabled {
		a.CleanupService.Stop()
	}

	if err := a.StorageManager.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}

	a.Logger.Info().Msg("Application shut down")
	return nil
}
