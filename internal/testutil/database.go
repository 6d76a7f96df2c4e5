// Package testutil provides testing utilities for database integration tests.
//
// Environment Variables:
//
//   - TEST_POSTGRES_DSN: PostgreSQL connection string. When unset, a disposable
//     postgres:16-alpine container is started through testcontainers-go (once per
//     test binary). Tests are skipped when neither is available or under -short.
//   - TEST_MYSQL_DSN: MySQL connection string. MySQL tests are skipped when unset.
//
// Database Setup:
//
//	db := testutil.SetupPostgresDB(t)
//	defer testutil.TeardownDB(t, db)
//	defer testutil.CleanupPostgresDB(t, db)
//
// Migrations are discovered by walking up from the working directory until a
// "migrations/{dbType}" directory is found.
package testutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage = "postgres:16-alpine"

	cleanupTables = "processed_messages, outbox_messages, order_status_history, orders"
)

var (
	containerOnce sync.Once
	containerDSN  string
	containerErr  error
)

// GetPostgresTestDSN returns the PostgreSQL DSN from TEST_POSTGRES_DSN, or "" when unset.
func GetPostgresTestDSN() string {
	return os.Getenv("TEST_POSTGRES_DSN")
}

// GetMySQLTestDSN returns the MySQL DSN from TEST_MYSQL_DSN, or "" when unset.
func GetMySQLTestDSN() string {
	return os.Getenv("TEST_MYSQL_DSN")
}

// SetupPostgresDB opens a migrated, empty PostgreSQL database or skips the test.
func SetupPostgresDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := PostgresDSN(t)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err, "failed to open postgres")

	if err := db.Ping(); err != nil {
		_ = db.Close()
		t.Skipf("PostgreSQL not available: %v", err)
	}

	runPostgresMigrations(t, db)
	CleanupPostgresDB(t, db)

	return db
}

// SetupMySQLDB opens a migrated, empty MySQL database or skips the test.
func SetupMySQLDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := GetMySQLTestDSN()
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN not set")
	}

	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err, "failed to open mysql")

	if err := db.Ping(); err != nil {
		_ = db.Close()
		t.Skipf("MySQL not available: %v", err)
	}

	runMySQLMigrations(t, db)
	CleanupMySQLDB(t, db)

	return db
}

// TeardownDB closes the database connection.
func TeardownDB(t *testing.T, db *sql.DB) {
	t.Helper()
	if db != nil {
		require.NoError(t, db.Close(), "failed to close database connection")
	}
}

// CleanupPostgresDB truncates all order-flow tables in the PostgreSQL database.
func CleanupPostgresDB(t *testing.T, db *sql.DB) {
	t.Helper()

	_, err := db.Exec("TRUNCATE TABLE " + cleanupTables + " RESTART IDENTITY CASCADE")
	require.NoError(t, err, "failed to truncate postgres tables")
}

// CleanupMySQLDB truncates all order-flow tables in the MySQL database.
func CleanupMySQLDB(t *testing.T, db *sql.DB) {
	t.Helper()

	_, err := db.Exec("SET FOREIGN_KEY_CHECKS = 0")
	require.NoError(t, err, "failed to disable foreign key checks")

	for _, table := range []string{"processed_messages", "outbox_messages", "order_status_history", "orders"} {
		_, err = db.Exec("TRUNCATE TABLE " + table)
		require.NoError(t, err, "failed to truncate "+table+" table")
	}

	_, err = db.Exec("SET FOREIGN_KEY_CHECKS = 1")
	require.NoError(t, err, "failed to enable foreign key checks")
}

// CreateTestOrder inserts an order in the given status and returns its id.
func CreateTestOrder(t *testing.T, db *sql.DB, driver, status string) uuid.UUID {
	t.Helper()

	orderID := uuid.Must(uuid.NewV7())
	ctx := context.Background()

	var err error
	if driver == "postgres" {
		_, err = db.ExecContext(ctx,
			`INSERT INTO orders (id, customer_name, product, amount, status, created_at)
			 VALUES ($1, $2, $3, $4, $5, NOW())`,
			orderID, "Test Customer", "Test Product", "10.00", status,
		)
	} else {
		id, marshalErr := orderID.MarshalBinary()
		require.NoError(t, marshalErr)
		_, err = db.ExecContext(ctx,
			`INSERT INTO orders (id, customer_name, product, amount, status, created_at)
			 VALUES (?, ?, ?, ?, ?, NOW(6))`,
			id, "Test Customer", "Test Product", "10.00", status,
		)
	}

	require.NoError(t, err, "failed to create test order")
	return orderID
}

// CountRows returns the number of rows in table matching the optional where clause.
func CountRows(t *testing.T, db *sql.DB, table, where string, args ...any) int {
	t.Helper()

	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}

	var count int
	require.NoError(t, db.QueryRow(query, args...).Scan(&count))
	return count
}

// PostgresDSN resolves the DSN from the environment or a shared container.
func PostgresDSN(t *testing.T) string {
	t.Helper()

	if dsn := GetPostgresTestDSN(); dsn != "" {
		return dsn
	}
	if testing.Short() {
		t.Skip("skipping PostgreSQL test in short mode")
	}

	testcontainers.SkipIfProviderIsNotHealthy(t)

	containerOnce.Do(func() {
		containerDSN, containerErr = startPostgresContainer()
	})
	if containerErr != nil {
		t.Skipf("PostgreSQL container not available: %v", containerErr)
	}
	return containerDSN
}

// startPostgresContainer runs a throwaway PostgreSQL. The container is reaped by
// testcontainers when the test binary exits.
func startPostgresContainer() (dsn string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("starting postgres container: %v", r)
		}
	}()

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		postgresImage,
		tcpostgres.WithDatabase("orderflow_test"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpassword"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return "", err
	}

	return container.ConnectionString(ctx, "sslmode=disable")
}

// runPostgresMigrations applies all pending PostgreSQL migrations for the test database.
func runPostgresMigrations(t *testing.T, db *sql.DB) {
	t.Helper()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	require.NoError(t, err, "failed to create postgres driver")

	migrationsPath, err := getMigrationsPath("postgresql")
	require.NoError(t, err, "failed to find postgresql migrations path")

	m, err := migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", migrationsPath), "postgres", driver)
	require.NoError(t, err, "failed to create migrate instance for postgres")

	// The migrate instance is not closed: it would close db, which belongs to the caller.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		require.NoError(t, err, "failed to run postgres migrations from "+migrationsPath)
	}
}

// runMySQLMigrations applies all pending MySQL migrations for the test database.
func runMySQLMigrations(t *testing.T, db *sql.DB) {
	t.Helper()

	driver, err := mysql.WithInstance(db, &mysql.Config{})
	require.NoError(t, err, "failed to create mysql driver")

	migrationsPath, err := getMigrationsPath("mysql")
	require.NoError(t, err, "failed to find mysql migrations path")

	m, err := migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", migrationsPath), "mysql", driver)
	require.NoError(t, err, "failed to create migrate instance for mysql")

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		require.NoError(t, err, "failed to run mysql migrations from "+migrationsPath)
	}
}

// getMigrationsPath walks up from the working directory to find migrations/{dbType}.
func getMigrationsPath(dbType string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	for {
		migrationsPath := filepath.Join(dir, "migrations", dbType)
		if _, err := os.Stat(migrationsPath); err == nil {
			return migrationsPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("migrations directory not found for %s (started from %s)", dbType, dir)
		}
		dir = parent
	}
}
