package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"lms_mirror/internal/config"
	"lms_mirror/internal/domain"
	"lms_mirror/internal/publisher"
	"lms_mirror/internal/scheduler"
	"lms_mirror/internal/service"
	"lms_mirror/internal/source/listing"
	"lms_mirror/internal/state"
	"lms_mirror/internal/storage"
	"lms_mirror/internal/storage/postgres"
)

func main() {
	os.Exit(runApp())
}

func runApp() int {
	configPath := flag.String("config", "config.yaml", "path to config file")
	download := flag.String("download", "", "download every pending resource of this category after refreshing")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return 1
	}

	logger = setupLogger(cfg.LogLevel)

	var downloadCategory domain.Category
	if *download != "" {
		downloadCategory, err = domain.ParseCategory(*download)
		if err != nil || !downloadCategory.IsResource() {
			logger.Error("invalid download category", "category", *download)
			return 1
		}
	}

	conflict, err := listing.ParseConflictPolicy(cfg.Source.Conflict)
	if err != nil {
		logger.Error("invalid source config", "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	var db *sqlx.DB
	if cfg.Database.Enabled {
		db, err = sqlx.Connect("postgres", cfg.Database.DSN())
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			return 1
		}
		defer db.Close()

		if err := db.Ping(); err != nil {
			logger.Error("failed to ping database", "error", err)
			return 1
		}
		logger.Info("connected to database")
	}

	// Storage backend for the persisted aggregates
	var backend storage.Backend
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		backend = postgres.NewDocumentStore(db, cfg.Storage.KeepRevisions)
	default:
		backend = storage.NewFileBackend(cfg.Storage.DataDir)
	}

	storeOpts := []storage.Option{
		storage.WithCooldown(cfg.Storage.Cooldown),
		storage.WithLogger(logger),
	}
	dataStore := storage.New(backend, state.DataFileName, state.NewData, storeOpts...)
	settingsStore := storage.New(backend, state.SettingsFileName, state.NewSettings, storeOpts...)

	// A corrupt or unreadable document is reported and replaced by an empty
	// one; everything will be fetched again.
	data, err := dataStore.LoadOrDefault(ctx)
	if err != nil {
		logger.Warn("continuing with empty data", "error", err)
	}
	settings, err := settingsStore.LoadOrDefault(ctx)
	if err != nil {
		logger.Warn("continuing with default settings", "error", err)
	}
	if cfg.Download.Location != "" && cfg.Download.Location != settings.DownloadLocation() {
		settings.SetDownloadLocation(cfg.Download.Location)
	}

	// Optional collaborators stay nil interfaces when disabled
	var syncState service.SyncStateStore
	if db != nil {
		syncState = postgres.NewSyncStateStore(db)
	}

	var events service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			return 1
		}
		defer rabbitMQ.Close()
		events = rabbitMQ
	}

	sched := scheduler.NewScheduler(cfg.Storage.FlushInterval, logger)
	sched.AddTarget(state.DataFileName, scheduler.FlushFunc(func(ctx context.Context) error {
		return dataStore.Flush(ctx, data)
	}))
	sched.AddTarget(state.SettingsFileName, scheduler.FlushFunc(func(ctx context.Context) error {
		return settingsStore.Flush(ctx, settings)
	}))

	schedDone := make(chan error, 1)
	schedCtx, stopSched := context.WithCancel(context.Background())
	go func() {
		schedDone <- sched.Start(schedCtx)
	}()

	source := listing.New(listing.Config{
		Dir:            cfg.Source.ListingDir,
		Conflict:       conflict,
		MaxAttempts:    cfg.Source.Retry.MaxAttempts,
		InitialBackoff: cfg.Source.Retry.InitialBackoff,
		MaxBackoff:     cfg.Source.Retry.MaxBackoff,
	}, logger)

	syncService := service.NewSyncService(source, data, syncState, events, sched, logger)
	downloadService := service.NewDownloadService(source, data, settings, events, sched, cfg.Download.Parallel, logger)

	logger.Info("starting lms mirror",
		"source", source.ID(),
		"listing_dir", cfg.Source.ListingDir,
		"term", cfg.Source.Term,
		"backend", cfg.Storage.Backend,
		"data_dir", cfg.Storage.DataDir,
		"download_location", settings.DownloadLocation(),
	)

	exitCode := 0
	if err := run(ctx, syncService, downloadService, cfg, downloadCategory, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("run failed", "error", err)
		exitCode = 1
	}

	// Stop the scheduler; it performs the final flush on its own context.
	stopSched()
	if err := <-schedDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler error", "error", err)
		exitCode = 1
	}

	return exitCode
}

// run refreshes everything once, optionally downloads a category, and then
// keeps refreshing on the configured interval until ctx is cancelled.
func run(
	ctx context.Context,
	syncService *service.SyncService,
	downloadService *service.DownloadService,
	cfg *config.Config,
	downloadCategory domain.Category,
	logger *slog.Logger,
) error {
	refresh := func() error {
		results, err := syncService.RefreshAll(ctx, cfg.Source.Term)
		for _, stats := range results {
			logger.Info("category refreshed",
				"category", stats.Category,
				"items", stats.Result,
				"added", stats.Added(),
			)
		}
		if err != nil {
			return err
		}

		if downloadCategory != "" {
			n, err := downloadService.DownloadAll(ctx, downloadCategory)
			logger.Info("downloads finished", "category", downloadCategory, "downloaded", n)
			return err
		}
		return nil
	}

	err := refresh()
	if cfg.Source.RefreshInterval <= 0 {
		return err
	}
	if err != nil {
		logger.Error("refresh failed", "error", err)
	}

	ticker := time.NewTicker(cfg.Source.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := refresh(); err != nil {
				logger.Error("refresh failed", "error", err)
			}
		}
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
