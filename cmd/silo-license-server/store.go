package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/EternisAI/silo-license/internal/api/http/handler"
	"github.com/EternisAI/silo-license/internal/db"
	"github.com/EternisAI/silo-license/internal/licenses"
	"github.com/EternisAI/silo-license/internal/sqlite"
)

type openedStore struct {
	store  licenses.Store
	pinger handler.Pinger
	close  func()
}

// openStore builds the configured license store. Postgres migrations run
// before the pool is opened.
func openStore(ctx context.Context, cfg StoreConfig) (*openedStore, error) {
	switch cfg.Driver {
	case "", StoreDriverMemory:
		slog.Warn("Using in-memory license store, data is lost on restart")
		return &openedStore{store: licenses.NewMemoryStore(), close: func() {}}, nil

	case StoreDriverPostgres:
		if cfg.DB.Url == "" {
			return nil, fmt.Errorf("store.db.url is required for the postgres driver")
		}
		if err := db.RunMigrations(ctx, cfg.DB.Url, cfg.DB.Schema); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		pool, err := db.InitDB(ctx, cfg.DB)
		if err != nil {
			return nil, err
		}
		store := db.NewStore(pool)
		return &openedStore{store: store, pinger: store, close: pool.Close}, nil

	case StoreDriverSQLite:
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return &openedStore{
			store:  store,
			pinger: store,
			close: func() {
				if err := store.Close(); err != nil {
					slog.Error("Failed to close sqlite store", "error", err)
				}
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
