package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/allisson/orderflow/internal/database"
)

// RunMigrations applies every pending migration for the given driver. Returns nil
// when the schema is already current.
func RunMigrations(logger *slog.Logger, driver, connectionString string) error {
	logger.Info("running database migrations", slog.String("driver", driver))

	migrationsPath, databaseURL, err := migrationSource(driver, connectionString)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	m, err := migrate.New(migrationsPath, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer closeMigrate(m, logger)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("migrations completed successfully")
	return nil
}

// migrationSource maps a database driver to its migration directory and a URL
// golang-migrate understands. MySQL DSNs carry no scheme, so one is added.
func migrationSource(driver, connectionString string) (string, string, error) {
	switch driver {
	case database.DriverPostgres:
		return "file://migrations/postgresql", connectionString, nil
	case database.DriverMySQL:
		if !strings.HasPrefix(connectionString, "mysql://") {
			connectionString = "mysql://" + connectionString
		}
		return "file://migrations/mysql", connectionString, nil
	default:
		return "", "", fmt.Errorf("unsupported database driver: %s", driver)
	}
}
