// Package persistence selects the item store backend named in configuration.
package persistence

import (
	"context"
	"fmt"

	"itemcore/internal/infra/persistence/memory"
	"itemcore/internal/infra/persistence/postgres"
	"itemcore/internal/infra/persistence/sqlite"
	"itemcore/internal/platform/config"
	"itemcore/pkg/domain"
)

// Driver identifies a concrete item store implementation.
type Driver string

const (
	DriverMemory   Driver = "memory"   // in-memory only (tests / ephemeral)
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
)

// Open constructs the item store selected by cfg.Driver. An empty driver
// means sqlite.
func Open(ctx context.Context, cfg config.Storage) (domain.ItemStore, error) {
	driver := Driver(cfg.Driver)
	if driver == "" {
		driver = DriverSQLite
	}
	switch driver {
	case DriverMemory:
		return memory.NewStore(), nil
	case DriverSQLite:
		return sqlite.NewStore(ctx, cfg.SQLitePath)
	case DriverPostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
