package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/pagescan/internal/config"
	"github.com/phrazzld/pagescan/internal/events"
	"github.com/phrazzld/pagescan/internal/metrics"
	"github.com/phrazzld/pagescan/internal/platform/objectstore"
	"github.com/phrazzld/pagescan/internal/platform/postgres"
	"github.com/phrazzld/pagescan/internal/reaper"
	"github.com/phrazzld/pagescan/internal/service"
	"github.com/phrazzld/pagescan/internal/service/auth"
	"github.com/phrazzld/pagescan/internal/store"
	"github.com/phrazzld/pagescan/internal/task"
	"github.com/phrazzld/pagescan/internal/token"
)

// txAttempts bounds reruns of a transaction that deadlocked or hit a
// serialization failure.
const txAttempts = 3

// application holds the shared dependencies so they can be wired once and
// released together on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	metrics *metrics.Metrics

	// Object storage; files is set only for the local backend.
	images objectstore.Store
	files  http.Handler
	closer func() error

	jwtService      auth.JWTService
	pageService     *service.PageService
	notebookService *service.NotebookService
	scanService     *service.ScanService
	contentRouter   *service.ContentRouter

	eventEmitter *events.InMemoryEventEmitter
	taskRunner   *task.TaskRunner
	reaper       *reaper.Scheduler
}

// newApplication wires every component. The order matters: the scan service
// emits events into the emitter, the dispatcher reports back into the scan
// service, and the task handler is registered on the emitter last.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(),
	}
	if err := app.metrics.RegisterDB(db); err != nil {
		return nil, fmt.Errorf("failed to register database metrics: %w", err)
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	if err := app.setupObjectStore(ctx); err != nil {
		return nil, err
	}

	// Stores
	txRunner := store.NewDBTxRunner(db, store.WithRetry(txAttempts, postgres.IsTransientTxError))
	notebookStore := postgres.NewPostgresNotebookStore(db, logger)
	pageStore := postgres.NewPostgresPageStore(db, logger)
	scanJobStore := postgres.NewPostgresScanJobStore(db, logger)
	contentStore := postgres.NewPostgresContentStore(db, logger)
	taskStore := postgres.NewPostgresTaskStore(db, logger)

	tokens := token.NewGenerator()
	app.eventEmitter = events.NewInMemoryEventEmitter(logger)

	// Services
	app.pageService, err = service.NewPageService(txRunner, pageStore, tokens, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create page service: %w", err)
	}
	app.notebookService, err = service.NewNotebookService(txRunner, notebookStore, pageStore, tokens, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create notebook service: %w", err)
	}
	app.scanService, err = service.NewScanService(
		txRunner,
		pageStore,
		scanJobStore,
		app.eventEmitter,
		logger,
		service.WithRecorder(app.metrics),
		service.WithReapBatch(cfg.Scan.ReaperBatchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan service: %w", err)
	}
	app.contentRouter, err = service.NewContentRouter(
		txRunner,
		notebookStore,
		pageStore,
		scanJobStore,
		contentStore,
		app.metrics,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create content router: %w", err)
	}

	// Recognition dispatch and background tasks
	dispatcher, err := newDispatcher(ctx, cfg, app.images, app.scanService, logger)
	if err != nil {
		return nil, err
	}
	factory, err := task.NewScanTaskFactory(
		app.scanService,
		&timedDispatcher{next: dispatcher, metrics: app.metrics},
		app.contentRouter,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task factory: %w", err)
	}
	app.taskRunner = task.NewTaskRunner(taskStore, factory, task.TaskRunnerConfig{
		WorkerCount:  cfg.Task.WorkerCount,
		QueueSize:    cfg.Task.QueueSize,
		StuckTaskAge: cfg.Task.StuckTaskAge,
	}, logger)
	app.eventEmitter.RegisterHandler(task.NewTaskFactoryEventHandler(factory, app.taskRunner, logger))

	app.reaper, err = reaper.New(app.scanService, cfg.Scan.ReaperSchedule, cfg.Scan.JobTimeout, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create timeout reaper: %w", err)
	}

	logger.Info("application initialized")
	return app, nil
}

// setupObjectStore opens the configured image store.
func (app *application) setupObjectStore(ctx context.Context) error {
	cfg := app.config.Storage
	switch cfg.Backend {
	case "local":
		local, err := objectstore.NewLocalStore(cfg.Dir, cfg.PublicBaseURL, app.logger)
		if err != nil {
			return fmt.Errorf("failed to open local object store: %w", err)
		}
		app.images = local
		app.files = local.Handler()
	case "gcs":
		gcs, err := objectstore.NewGCSStore(ctx, cfg.Bucket, cfg.PublicBaseURL, app.logger)
		if err != nil {
			return fmt.Errorf("failed to open gcs object store: %w", err)
		}
		app.images = gcs
		app.closer = gcs.Close
	default:
		return fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
	app.logger.Info("object store ready", "backend", cfg.Backend)
	return nil
}

// Run starts the background workers and serves HTTP until ctx is done.
func (app *application) Run(ctx context.Context) error {
	if err := app.taskRunner.Start(); err != nil {
		app.cleanup(ctx)
		return fmt.Errorf("failed to start task runner: %w", err)
	}
	app.reaper.Start()

	err := app.startHTTPServer(ctx, app.setupRouter())
	app.cleanup(ctx)
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup releases resources in reverse order of creation.
func (app *application) cleanup(ctx context.Context) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.config.Server.ShutdownTimeout)
	defer cancel()

	if app.reaper != nil {
		app.reaper.Stop(stopCtx)
	}
	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}
	if app.closer != nil {
		if err := app.closer(); err != nil && !errors.Is(err, context.Canceled) {
			app.logger.Error("error closing object store", "error", err)
		}
	}
	if app.db != nil {
		closeDB(app.db, app.logger)
	}
}
