package gorm

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/pvtruth/pkg/eval/adapter/database"
	dbconfig "github.com/tigerroll/pvtruth/pkg/eval/adapter/database/config"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/logger"
)

// DefaultMigrationsTable records the applied schema version of the results database.
const DefaultMigrationsTable = "pvtruth_schema_migrations"

//go:embed migrations
var migrationFiles embed.FS

// MigrationFS returns the embedded migrations for dbType, rooted at the dialect directory.
func MigrationFS(dbType string) (fs.FS, error) {
	sub, err := fs.Sub(migrationFiles, "migrations/"+dbType)
	if err != nil {
		return nil, err
	}
	if _, err := fs.Stat(sub, "."); err != nil {
		return nil, fmt.Errorf("no migrations for database type '%s'", dbType)
	}
	return sub, nil
}

// Migrator applies the results schema to a database connection.
// golang-migrate closes the *sql.DB it is handed, so every run opens a dedicated connection
// from the connection's configuration instead of borrowing the shared pool.
type Migrator struct {
	cfg   dbconfig.DatabaseConfig
	table string
}

// NewMigrator creates a Migrator for conn.
func NewMigrator(conn database.DBConnection) *Migrator {
	return &Migrator{cfg: conn.Config(), table: DefaultMigrationsTable}
}

func (m *Migrator) databaseDriver(cfg dbconfig.DatabaseConfig) (migratedb.Driver, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	var driver migratedb.Driver
	switch cfg.Type {
	case "postgres":
		driver, err = postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: m.table})
	case "mysql":
		driver, err = mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: m.table})
	case "sqlite":
		driver, err = sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: m.table})
	default:
		err = fmt.Errorf("unsupported database type for migration: %s", cfg.Type)
	}
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	return driver, nil
}

func (m *Migrator) instance() (*migrate.Migrate, error) {
	migrations, err := MigrationFS(m.cfg.Type)
	if err != nil {
		return nil, err
	}
	sourceDriver, err := iofs.New(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to create iofs source driver: %w", err)
	}
	dbDriver, err := m.databaseDriver(m.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}
	mInstance, err := migrate.NewWithInstance("iofs", sourceDriver, m.cfg.Type, dbDriver)
	if err != nil {
		dbDriver.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return mInstance, nil
}

// Up applies all pending migrations. An up-to-date schema is not an error.
func (m *Migrator) Up() error {
	logger.Infof("Applying results schema migrations (DB: %s, table: %s).", m.cfg.Type, m.table)
	mInstance, err := m.instance()
	if err != nil {
		return err
	}
	defer closeMigrate(mInstance)

	if err := mInstance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed (DB: %s): %w", m.cfg.Type, err)
	}
	version, dirty, err := mInstance.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	logger.Infof("Results schema at version %d (dirty=%t).", version, dirty)
	return nil
}

// Version returns the applied schema version, or migrate.ErrNilVersion when none is applied.
func (m *Migrator) Version() (uint, bool, error) {
	mInstance, err := m.instance()
	if err != nil {
		return 0, false, err
	}
	defer closeMigrate(mInstance)
	return mInstance.Version()
}

func closeMigrate(m *migrate.Migrate) {
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		logger.Warnf("Failed to close migration source: %v", srcErr)
	}
	if dbErr != nil {
		logger.Warnf("Failed to close migration database: %v", dbErr)
	}
}
