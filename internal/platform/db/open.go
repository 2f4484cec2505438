package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Supported database drivers.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverPostgres:
		return OpenPostgres(ctx, dsn)
	case DriverSQLite:
		return OpenSQLite(ctx, dsn)
	default:
		return nil, fmt.Errorf("platform/db: unsupported driver %q", driver)
	}
}

// OpenPostgres creates a pgx pool and exposes it through database/sql.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/db: parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("platform/db: new pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("platform/db: ping: %w", err)
	}

	return stdlib.OpenDBFromPool(pool), nil
}

// OpenSQLite opens a single-writer SQLite pool with foreign keys, WAL and a
// busy timeout enabled.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open(DriverSQLite, sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("platform/db: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("platform/db: ping sqlite: %w", err)
	}
	return db, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", "5000")
	params.Set("_synchronous", "NORMAL")
	params.Set("_foreign_keys", "on")
	params.Set("_txlock", "immediate")
	return path + "?" + params.Encode()
}
