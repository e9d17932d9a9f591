// Package migrations applies the memtier SQLite schema.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
)

//go:embed sql/*.sql
var schemaFS embed.FS

// RunMigrations applies the schema bundled into the binary.
func RunMigrations(db *sql.DB, logger zerolog.Logger) error {
	src, err := iofs.New(schemaFS, "sql")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite3 driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	logger.Info().Str("source", "embedded").Msg("Running database migrations")
	return up(m, logger)
}

// RunMigrationsFromPath applies migrations from a directory on disk. Used
// when operators ship schema changes ahead of a binary release.
func RunMigrationsFromPath(db *sql.DB, migrationsPath string, logger zerolog.Logger) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite3 driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite3",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	logger.Info().Str("migrationsPath", migrationsPath).Msg("Running database migrations")
	return up(m, logger)
}

// up applies pending migrations. A dirty schema is reported rather than
// forced; an operator has to repair it.
func up(m *migrate.Migrate, logger zerolog.Logger) error {
	if v, dirty, err := m.Version(); err == nil && dirty {
		return fmt.Errorf("schema version %d is dirty; repair it before starting", v)
	}
	err := m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	v, _, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read schema version: %w", verr)
	}
	logger.Info().Uint("version", v).Bool("changed", err == nil).Msg("Memory schema ready")
	return nil
}
