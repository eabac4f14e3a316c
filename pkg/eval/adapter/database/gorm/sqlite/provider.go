// Package sqlite provides a GORM DBProvider implementation for SQLite databases.
package sqlite

import (
	"errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tigerroll/pvtruth/pkg/eval/adapter/database"
	dbconfig "github.com/tigerroll/pvtruth/pkg/eval/adapter/database/config"
	gormadapter "github.com/tigerroll/pvtruth/pkg/eval/adapter/database/gorm"
	"github.com/tigerroll/pvtruth/pkg/eval/core/config"
)

func init() {
	gormadapter.RegisterDialector("sqlite", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		dsn, err := ConnectionString(cfg)
		if err != nil {
			return nil, err
		}
		return sqlite.Open(dsn), nil
	})
}

// ConnectionString returns the database file path; GORM's SQLite dialector takes it as the DSN.
func ConnectionString(c dbconfig.DatabaseConfig) (string, error) {
	if c.Database == "" {
		return "", errors.New("SQLite database path cannot be empty")
	}
	return c.Database, nil
}

// NewProvider creates a DBProvider for SQLite.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, "sqlite")
}
