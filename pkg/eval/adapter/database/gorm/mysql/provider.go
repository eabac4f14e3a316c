// Package mysql provides a GORM DBProvider implementation for MySQL databases.
package mysql

import (
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/pvtruth/pkg/eval/adapter/database"
	dbconfig "github.com/tigerroll/pvtruth/pkg/eval/adapter/database/config"
	gormadapter "github.com/tigerroll/pvtruth/pkg/eval/adapter/database/gorm"
	"github.com/tigerroll/pvtruth/pkg/eval/core/config"
)

func init() {
	gormadapter.RegisterDialector("mysql", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return mysql.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString builds a go-sql-driver DSN over TCP with parseTime enabled.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	dsn := mysqldriver.NewConfig()
	dsn.User = c.User
	dsn.Passwd = c.Password
	dsn.Net = "tcp"
	dsn.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	dsn.DBName = c.Database
	dsn.ParseTime = true
	dsn.MultiStatements = true
	return dsn.FormatDSN()
}

// NewProvider creates a DBProvider for MySQL.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, "mysql")
}
