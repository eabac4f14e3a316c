package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/pvtruth/pkg/eval/adapter/database/config"
	coreAdapter "github.com/tigerroll/pvtruth/pkg/eval/core/adapter"
)

// DBExecutor defines the write and read operations the results sink needs.
type DBExecutor interface {
	// ExecuteInsert inserts a slice of records in batches of batchSize.
	ExecuteInsert(ctx context.Context, records interface{}, tableName string, batchSize int) (rowsAffected int64, err error)

	// Count counts the records of model matching query.
	Count(ctx context.Context, model interface{}, query map[string]interface{}) (int64, error)

	// ExecuteQuery loads the records matching query into target.
	ExecuteQuery(ctx context.Context, target interface{}, query map[string]interface{}, orderBy string) error
}

// DBConnection represents an abstraction of a database connection.
type DBConnection interface {
	coreAdapter.ResourceConnection // Embeds Type(), Name(), Close()
	DBExecutor

	// Config returns the database configuration associated with this connection.
	Config() dbconfig.DatabaseConfig
	// GetSQLDB returns the underlying *sql.DB connection.
	GetSQLDB() (*sql.DB, error)
}

// DBConnectionResolver resolves named database connections.
type DBConnectionResolver interface {
	coreAdapter.ResourceConnectionResolver

	// ResolveDBConnection resolves a database connection instance by name,
	// reconnecting when the cached connection no longer answers a ping.
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProvider provides database connections of one type based on configuration.
type DBProvider interface {
	// GetConnection retrieves a database connection with the specified name.
	GetConnection(name string) (DBConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the database type handled by this provider (e.g., "sqlite").
	Type() string
	// ForceReconnect closes and re-establishes the connection with the specified name.
	ForceReconnect(name string) (DBConnection, error)
}

// DBProviderGroup is the Fx group all DBProvider implementations are provided to.
const DBProviderGroup = "db_providers"
