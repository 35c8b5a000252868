// Package application wires configuration into a running analytics service:
// the record store, raw file store, renderer and core service.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/equipment-analytics/internal/config"
	"github.com/JonMunkholm/equipment-analytics/internal/core"
	"github.com/JonMunkholm/equipment-analytics/internal/rawstore"
	"github.com/JonMunkholm/equipment-analytics/internal/render"
	"github.com/JonMunkholm/equipment-analytics/internal/store/postgres"
	"github.com/JonMunkholm/equipment-analytics/internal/store/sqlite"
)

// Supported DB_DRIVER values.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// App holds the service and the resources it was built from.
type App struct {
	Config  *config.Config
	Service *core.Service

	closers []func() error
}

// Open builds the service described by cfg. Migrations run first when
// DB_MIGRATE_ON_START is set. Close releases everything Open acquired.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	store, closeStore, err := OpenStore(ctx, cfg.Database, cfg.Database.MigrateOnStart)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, closeStore)

	raw, err := rawstore.New(ctx, cfg.Storage)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("open raw storage: %w", err)
	}
	app.closers = append(app.closers, raw.Close)

	renderer, err := render.New(render.Options{
		FontPath:    cfg.Report.FontPath,
		ChartWidth:  cfg.Report.ChartWidth,
		ChartHeight: cfg.Report.ChartHeight,
	})
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Service, err = core.NewService(store, renderer, raw, core.Options{
		Keep:                 cfg.Retention.Keep,
		MaxConcurrentUploads: cfg.Upload.MaxConcurrent,
		MaxUploadWait:        cfg.Upload.MaxWaitTime,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("create service: %w", err)
	}

	slog.Info("service ready",
		"driver", cfg.Database.Driver,
		"raw_storage", cfg.Storage.Backend,
		"retention_keep", app.Service.Keep(),
	)
	return app, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// OpenStore connects the record store selected by cfg.Driver and optionally
// migrates it up first.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, migrate bool) (core.Store, func() error, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if migrate {
			if err := postgres.Migrate(pool); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		store := postgres.New(pool)
		return store, func() error { store.Close(); return nil }, nil

	case DriverSQLite:
		if migrate {
			if err := sqlite.Migrate(cfg.URL); err != nil {
				return nil, nil, err
			}
		}
		db, err := sqlite.Open(ctx, cfg.URL)
		if err != nil {
			return nil, nil, err
		}
		store := sqlite.New(db)
		return store, store.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// Migrate applies (or with down, reverts) the schema for cfg.Driver.
func Migrate(ctx context.Context, cfg config.DatabaseConfig, down bool) error {
	switch strings.ToLower(cfg.Driver) {
	case DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		if down {
			return postgres.MigrateDown(pool)
		}
		return postgres.Migrate(pool)

	case DriverSQLite:
		if down {
			return sqlite.MigrateDown(cfg.URL)
		}
		return sqlite.Migrate(cfg.URL)

	default:
		return fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
