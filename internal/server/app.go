package server

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/scrypster/p2p/internal/config"
	"github.com/scrypster/p2p/internal/metrics"
	"github.com/scrypster/p2p/internal/notify"
	"github.com/scrypster/p2p/internal/p2p"
	"github.com/scrypster/p2p/internal/storage"
	"github.com/scrypster/p2p/internal/storage/postgres"
	"github.com/scrypster/p2p/internal/storage/sqlite"
	"github.com/scrypster/p2p/internal/storage/sqlstore"
)

// App wires the host engine, the connection registry and the query
// integration together.
type App struct {
	Store    *sqlstore.Store
	Guard    *storage.GuardedQuerier
	Host     *storage.Host
	Registry *p2p.Registry
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	integration *p2p.QueryIntegration
	watcher     *notify.FileWatcher
}

// OpenApp opens the configured storage engine, loads the connection types
// file if one is set and installs the query integration.
func OpenApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pipeline := storage.NewPipeline()
	store, err := openStore(cfg, pipeline)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.StorageEngine == "postgres" {
		logger.Info("opened storage", "engine", "postgres", "dsn", cfg.RedactedDSN())
	} else {
		logger.Info("opened storage", "engine", "sqlite", "path", cfg.DatabasePath())
	}

	guard := storage.NewGuardedQuerier(store, storage.BreakerConfig{
		MaxFailures: uint32(cfg.Breaker.MaxFailures),
		Timeout:     cfg.Breaker.Timeout,
	}, logger)

	host := &storage.Host{
		Items:    guard,
		Users:    guard,
		Store:    store,
		Types:    storage.DefaultTypeSet(),
		Caps:     storage.AllowAll{},
		Meta:     store,
		Pipeline: pipeline,
	}

	m := metrics.New()
	registry := p2p.NewRegistry(p2p.Env{Host: host, Logger: logger, Metrics: m})

	if path := cfg.Types.ConnectionTypesPath; path != "" {
		registered, err := registry.LoadFile(path)
		if err != nil {
			store.Close()
			return nil, err
		}
		logger.Info("loaded connection types", "path", path, "count", len(registered))
	}

	integration := p2p.NewQueryIntegration(registry)
	integration.Install(pipeline)

	return &App{
		Store:       store,
		Guard:       guard,
		Host:        host,
		Registry:    registry,
		Metrics:     m,
		Logger:      logger,
		integration: integration,
	}, nil
}

// WatchTypes registers connection types added to path while the app runs.
// Types already registered are left as they are.
func (a *App) WatchTypes(path string) error {
	if a.watcher != nil {
		return nil
	}
	w := notify.NewFileWatcher(path, func(path string) {
		added, err := a.Registry.Reload(path)
		if err != nil {
			a.Logger.Error("failed to reload connection types", "path", path, "error", err)
		}
		for _, ct := range added {
			a.Logger.Info("registered connection type", "type", ct.Name(), "desc", ct.Desc())
		}
	}, a.Logger)
	if err := w.Start(); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	a.watcher = w
	return nil
}

// Close stops the types watcher, removes the query hooks and closes the
// database.
func (a *App) Close() error {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	a.integration.Uninstall(a.Host.Pipeline)
	return a.Store.Close()
}

func openStore(cfg *config.Config, pipeline *storage.Pipeline) (*sqlstore.Store, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		return postgres.Open(cfg.Storage.PostgresDSN, pipeline)
	case "sqlite", "":
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return sqlite.Open(cfg.DatabasePath(), pipeline)
	}
	return nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.StorageEngine)
}
