package db

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

// Migrations contains the embedded schema for every supported dialect.
//
//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var Migrations embed.FS

// Migrate applies all pending migrations for the given driver.
func Migrate(db *sql.DB, driver string) error {
	dialect, dir, err := migrationTarget(driver)
	if err != nil {
		return err
	}

	goose.SetBaseFS(Migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("platform/db: goose dialect: %w", err)
	}
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("platform/db: goose up: %w", err)
	}
	return nil
}

// MigrationVersion reports the current schema version.
func MigrationVersion(db *sql.DB, driver string) (int64, error) {
	dialect, _, err := migrationTarget(driver)
	if err != nil {
		return 0, err
	}
	goose.SetBaseFS(Migrations)
	if err := goose.SetDialect(dialect); err != nil {
		return 0, fmt.Errorf("platform/db: goose dialect: %w", err)
	}
	version, err := goose.GetDBVersion(db)
	if err != nil {
		return 0, fmt.Errorf("platform/db: goose version: %w", err)
	}
	return version, nil
}

func migrationTarget(driver string) (dialect, dir string, err error) {
	switch driver {
	case DriverPostgres:
		return "postgres", "migrations/postgres", nil
	case DriverSQLite:
		return "sqlite3", "migrations/sqlite", nil
	default:
		return "", "", fmt.Errorf("platform/db: unsupported driver %q", driver)
	}
}
