// Package app wires the configured database, run lock and engine shared by
// the api, worker and reconcile commands.
package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/checks"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/config"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/db"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/lock"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/processor"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/statement"
)

type App struct {
	DB       *sqlx.DB
	Store    *db.Store
	Engine   *processor.Processor
	Queue    *processor.Queue
	Checks   *checks.Service
	Importer *statement.Importer

	closeLock func()
}

// New validates cfg, opens the database (migrating when configured) and
// builds the engine with the run lock.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	procCfg, err := cfg.Matching.ProcessorConfig()
	if err != nil {
		return nil, err
	}
	cal, err := cfg.Matching.Calendar()
	if err != nil {
		return nil, fmt.Errorf("failed to build calendar: %w", err)
	}
	names, err := cfg.Matching.Names()
	if err != nil {
		return nil, fmt.Errorf("failed to load counterparty aliases: %w", err)
	}

	database, err := db.Open(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	locker, closeLock, err := lock.FromConfig(ctx, cfg.Redis, logger)
	if err != nil {
		database.Close()
		return nil, err
	}

	store := db.NewStore(database)
	stores := store.Engine()
	return &App{
		DB:        database,
		Store:     store,
		Engine:    processor.New(stores, names, cal, locker, procCfg, logger),
		Queue:     processor.NewQueue(stores, locker, logger),
		Checks:    checks.NewService(store.Checks, logger),
		Importer:  statement.NewImporter(store.Movements, store.Imports, logger),
		closeLock: closeLock,
	}, nil
}

func (a *App) Close() {
	a.closeLock()
	a.DB.Close()
}
