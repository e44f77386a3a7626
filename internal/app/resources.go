package app

import (
	"context"
	"fmt"

	"github.com/vitalog/vitalog/internal/config"
	"github.com/vitalog/vitalog/internal/storage"
	"github.com/vitalog/vitalog/internal/store"
	"github.com/vitalog/vitalog/internal/store/postgres"
	"github.com/vitalog/vitalog/internal/store/sqlite"
)

// OpenStore opens the configured event and aggregate backend, creating
// its schema if needed.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		return sqlite.Open(cfg.Store.SQLitePath)
	case config.DriverPostgres:
		return postgres.Open(ctx, cfg.Store.Postgres)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// OpenExportStorage opens the object storage used for daily snapshots.
func OpenExportStorage(ctx context.Context, cfg *config.Config) (storage.ObjectStorage, error) {
	switch cfg.Export.Type {
	case "local":
		return storage.NewLocalStorage(cfg.Export.Path)
	case "s3":
		return storage.NewS3Storage(ctx, cfg.Export.S3)
	default:
		return nil, fmt.Errorf("unknown export storage type %q", cfg.Export.Type)
	}
}
