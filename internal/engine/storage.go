package engine

import (
	"context"
	"fmt"
	"os"

	"canvasscore/internal/infra/persistence/memory"
	"canvasscore/internal/infra/persistence/postgres"
	"canvasscore/internal/infra/persistence/sqlite"
	"canvasscore/pkg/domain"
)

// Environment variables selecting the persistence backend.
const (
	EnvStorageDriver = "CANVASS_STORAGE_DRIVER"
	EnvSQLitePath    = "CANVASS_SQLITE_PATH"
	EnvPostgresDSN   = "CANVASS_POSTGRES_DSN"
)

const defaultSQLitePath = "canvass.db"

// OpenPersistentStore selects a backend from CANVASS_STORAGE_DRIVER:
// "memory" (default), "sqlite", or "postgres".
func OpenPersistentStore(ctx context.Context) (domain.PersistentStore, error) {
	driver := os.Getenv(EnvStorageDriver)
	switch driver {
	case "", "memory":
		return memory.NewStore(), nil
	case "sqlite":
		path := os.Getenv(EnvSQLitePath)
		if path == "" {
			path = defaultSQLitePath
		}
		return sqlite.NewStore(ctx, path)
	case "postgres":
		dsn := os.Getenv(EnvPostgresDSN)
		if dsn == "" {
			return nil, fmt.Errorf("storage: %s is required for the postgres driver", EnvPostgresDSN)
		}
		return postgres.NewStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", driver)
	}
}
