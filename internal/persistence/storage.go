// Package persistence selects the model snapshot store.
package persistence

import (
	"context"
	"fmt"
	"os"
	"strings"

	"mdtcore/internal/infra/persistence/memory"
	"mdtcore/internal/infra/persistence/postgres"
	"mdtcore/internal/infra/persistence/sqlite"
	"mdtcore/pkg/domain"
)

// Driver identifies a concrete snapshot store implementation.
type Driver string

const (
	Memory   Driver = "memory"   // in-memory only (tests / ephemeral)
	SQLite   Driver = "sqlite"   // embedded sqlite file
	Postgres Driver = "postgres" // PostgreSQL server
)

// Config carries the configured store settings. Environment variables take
// precedence when set:
//
//	MDTCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	MDTCORE_SQLITE_PATH: path to sqlite file (default ./mdtcore.db)
//	MDTCORE_POSTGRES_DSN: postgres DSN when driver=postgres
type Config struct {
	Driver      Driver
	SQLitePath  string
	PostgresDSN string
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Open returns the snapshot store selected by cfg and the environment.
func Open(ctx context.Context, cfg Config) (domain.SnapshotStore, error) {
	driver := Driver(strings.ToLower(envOr("MDTCORE_STORAGE_DRIVER", string(cfg.Driver))))
	if driver == "" {
		driver = SQLite
	}
	switch driver {
	case Memory:
		return memory.NewStore(), nil
	case SQLite:
		return sqlite.NewStore(ctx, envOr("MDTCORE_SQLITE_PATH", cfg.SQLitePath))
	case Postgres:
		return postgres.NewStore(ctx, envOr("MDTCORE_POSTGRES_DSN", cfg.PostgresDSN))
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
