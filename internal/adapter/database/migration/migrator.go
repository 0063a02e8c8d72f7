// Package migration applies embedded SQL migrations to the feature store
// before any pipeline touches it.
package migration

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/tigerroll/gridcast/internal/adapter/database"
	"github.com/tigerroll/gridcast/internal/support/logger"

	"github.com/golang-migrate/migrate/v4"
	migrate_database "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationsTable records applied migration versions.
const MigrationsTable = "schema_migrations"

// Migrator applies schema migrations through a feature store connection.
type Migrator struct {
	conn *database.Connection
}

// NewMigrator creates a Migrator over an open connection.
func NewMigrator(conn *database.Connection) *Migrator {
	return &Migrator{conn: conn}
}

func (m *Migrator) databaseDriver(sqlDB *sql.DB) (migrate_database.Driver, error) {
	switch m.conn.Type() {
	case "postgres", "redshift":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: MigrationsTable})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: MigrationsTable})
	case "sqlite":
		return sqlite3.WithInstance(sqlDB, &sqlite3.Config{MigrationsTable: MigrationsTable})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.conn.Type())
	}
}

// Up applies all pending migrations found under path in migrationFS. A fully
// migrated database is not an error.
func (m *Migrator) Up(ctx context.Context, migrationFS fs.FS, path string) error {
	logger.Infof("Applying migrations (Path: %s, Table: %s)", path, MigrationsTable)

	sqlDB, err := m.conn.GetSQLDB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sourceDriver, err := iofs.New(migrationFS, path)
	if err != nil {
		return fmt.Errorf("failed to create iofs source driver for path %s: %w", path, err)
	}
	dbDriver, err := m.databaseDriver(sqlDB)
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	mInstance, err := migrate.NewWithInstance("iofs", sourceDriver, m.conn.Type(), dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer mInstance.Close()

	if err := mInstance.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration failed (DB: %s, Path: %s): %w", m.conn.Type(), path, err)
	}
	logger.Infof("Migrations applied.")
	return nil
}
