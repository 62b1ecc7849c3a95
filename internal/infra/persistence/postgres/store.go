// Package postgres provides a Postgres-backed item store that applies its
// schema idempotently on startup.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"itemcore/internal/infra/persistence/sqlstore"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/itemcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// schema is applied statement by statement; every statement is idempotent.
var schema = []string{
	`CREATE SEQUENCE IF NOT EXISTS items_item_id_seq START WITH 100000`,
	`CREATE TABLE IF NOT EXISTS items (
		item_id BIGINT PRIMARY KEY DEFAULT nextval('items_item_id_seq'),
		name TEXT NOT NULL DEFAULT '',
		type_id BIGINT NOT NULL,
		owner_id BIGINT NOT NULL,
		location_id BIGINT NOT NULL,
		flag INTEGER NOT NULL DEFAULT 0,
		contraband BOOLEAN NOT NULL DEFAULT FALSE,
		singleton BOOLEAN NOT NULL DEFAULT FALSE,
		quantity BIGINT NOT NULL DEFAULT 0,
		x DOUBLE PRECISION NOT NULL DEFAULT 0,
		y DOUBLE PRECISION NOT NULL DEFAULT 0,
		z DOUBLE PRECISION NOT NULL DEFAULT 0,
		custom_info TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_items_location ON items (location_id)`,
	`CREATE TABLE IF NOT EXISTS item_attributes (
		item_id BIGINT NOT NULL,
		attribute_id BIGINT NOT NULL,
		value DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (item_id, attribute_id)
	)`,
}

// Store persists items to Postgres.
type Store struct {
	*sqlstore.Store
}

// NewStore opens a store using dsn (falls back to defaultDSN), pings the
// server and applies the schema.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := applySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: sqlstore.New(db, sqlstore.Dollar)}, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func applySchema(ctx context.Context, db execer) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
