package db

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/plugbot/plugbot/internal/config"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies all pending up migrations. It is safe to run repeatedly.
func Migrate(log *slog.Logger, cfg config.PostgresConfig) error {
	return MigrateURL(log, DSN(cfg, "pgx5"))
}

// MigrateURL applies migrations against a pgx5:// database URL.
func MigrateURL(log *slog.Logger, databaseURL string) error {
	if log == nil {
		log = slog.Default()
	}
	m, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer closeMigrator(log, m)

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("migrations up to date")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}
	version, dirty, _ := m.Version()
	log.Info("migrations applied", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
	return nil
}

// MigrateDown reverts the given number of migration steps.
func MigrateDown(log *slog.Logger, cfg config.PostgresConfig, steps int) error {
	if log == nil {
		log = slog.Default()
	}
	if steps <= 0 {
		steps = 1
	}
	m, err := newMigrator(DSN(cfg, "pgx5"))
	if err != nil {
		return err
	}
	defer closeMigrator(log, m)
	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("revert migrations: %w", err)
	}
	log.Info("migrations reverted", slog.Int("steps", steps))
	return nil
}

func newMigrator(databaseURL string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

func closeMigrator(log *slog.Logger, m *migrate.Migrate) {
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		log.Warn("close migration source failed", slog.Any("error", srcErr))
	}
	if dbErr != nil {
		log.Warn("close migration database failed", slog.Any("error", dbErr))
	}
}
