package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/linkshelf/server/internal/config"
	"github.com/linkshelf/server/internal/observability"
	"github.com/linkshelf/server/internal/queue"
	"github.com/linkshelf/server/internal/repository"
	"github.com/linkshelf/server/internal/services"
	"github.com/linkshelf/server/internal/worker"
)

// app holds the process-wide dependencies shared by every command
type app struct {
	cfg         *config.Config
	log         *observability.Logger
	telemetry   *observability.Telemetry
	db          *sql.DB
	store       *repository.SQLStore
	queue       queue.Queue
	attachments *services.AttachmentService
	metrics     *observability.Metrics
}

// newApp loads configuration and opens the database, queue and attachment
// storage. The caller must call close.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	observability.Configure(cfg.Log.Level, cfg.Log.Format)
	log := observability.GetLogger()

	a := &app{cfg: cfg, log: log}

	a.telemetry, err = observability.Initialize(ctx, observability.Config{
		ServiceName:    "linkshelf",
		ServiceVersion: version,
		Environment:    cfg.Telemetry.Environment,
		OTLPEndpoint:   cfg.Telemetry.Endpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	if err := a.openDatabase(); err != nil {
		a.close()
		return nil, err
	}

	a.metrics, err = observability.NewMetrics()
	if err != nil {
		log.WithError(err).Warn("Failed to create metrics, continuing without them")
	}

	storage, err := services.NewFileStorage(cfg.Attachments.BasePath)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize attachment storage: %w", err)
	}
	a.attachments = services.NewAttachmentService(a.store.Attachments(), storage, cfg.Server.BaseURL, cfg.Attachments.MaxBytes())

	a.queue, err = queue.New(cfg.Queue, log.Component("queue"))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to open %s queue: %w", cfg.Queue.Driver, err)
	}

	return a, nil
}

func (a *app) openDatabase() error {
	var (
		db     *sql.DB
		err    error
		system string
	)

	if a.cfg.Database.UsePostgres() {
		a.log.Info("Using PostgreSQL database")
		db, err = repository.NewPostgresDB(a.cfg.Database.URL)
		system = "postgresql"
	} else {
		a.log.WithField("path", a.cfg.Database.Path).Info("Using SQLite database")
		db, err = repository.NewSQLiteDB(a.cfg.Database.Path)
		system = "sqlite"
	}
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.db = db

	if err := repository.Migrate(db, a.cfg.Database.Driver); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	traceDB, err := observability.NewTraceDB(db, system)
	if err != nil {
		a.log.WithError(err).Warn("Failed to create database metrics, queries will not be traced")
		a.store = repository.NewSQLStore(db, nil)
		return nil
	}
	a.store = repository.NewSQLStore(db, traceDB)
	return nil
}

// enrichment builds the pipeline. notifier may be nil in processes that
// serve no WebSocket clients.
func (a *app) enrichment(notifier services.Notifier) *services.EnrichmentService {
	cfg := a.cfg.Enrichment

	browser := services.BrowserAvailable()
	log := a.log.Component("enrichment")

	var previewer services.LinkPreviewer
	switch cfg.Preview {
	case "embed":
		previewer = services.NewEmbedPreviewClient(cfg.PreviewEndpoint, cfg.PreviewKey, cfg.FetchTimeout)
	case "rod":
		if browser {
			previewer = services.NewRodPreviewer(cfg.FetchTimeout)
		} else {
			log.Warn("No Chromium found, rod previews are disabled")
		}
	}

	var snapshotter services.Snapshotter
	if cfg.Snapshot {
		if browser {
			snapshotter = services.NewRodSnapshotter(cfg.FetchTimeout)
		} else {
			log.Warn("No Chromium found, page snapshots are disabled")
		}
	}

	return services.NewEnrichmentService(services.EnrichmentConfig{
		Store:                 a.store,
		Attachments:           a.attachments,
		Fetcher:               services.NewHTTPImageFetcher(cfg.FetchTimeout, a.cfg.Attachments.MaxBytes()),
		Previewer:             previewer,
		Snapshotter:           snapshotter,
		Notifier:              notifier,
		Metrics:               a.metrics,
		ExplicitImageFallback: cfg.ExplicitImageFallback,
	})
}

func (a *app) worker(notifier services.Notifier) *worker.Worker {
	cfg := a.cfg.Worker
	return worker.New(worker.Config{
		Concurrency:   cfg.Concurrency,
		PollSchedule:  cfg.PollSchedule,
		SweepSchedule: cfg.SweepSchedule,
		SweepAfter:    cfg.SweepAfter,
		MaxAttempts:   a.cfg.Queue.MaxAttempts,
	}, a.queue, a.enrichment(notifier), a.store, a.metrics)
}

func (a *app) close() {
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close queue")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.log.WithError(err).Warn("Failed to shut down telemetry")
		}
	}
}
