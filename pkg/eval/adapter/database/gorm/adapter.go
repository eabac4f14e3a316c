package gorm

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/tigerroll/pvtruth/pkg/eval/adapter/database"
	dbconfig "github.com/tigerroll/pvtruth/pkg/eval/adapter/database/config"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/logger"
)

// TableNamer represents a struct that has a TableName() string method.
type TableNamer interface {
	TableName() string
}

// applyTableName applies the table name of model, or of its slice element type, to db.
func applyTableName(db *gorm.DB, model interface{}) *gorm.DB {
	if namer, ok := model.(TableNamer); ok {
		return db.Table(namer.TableName())
	}

	val := reflect.ValueOf(model)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if val.Kind() == reflect.Slice || val.Kind() == reflect.Array {
		elemType := val.Type().Elem()
		if elemType.Kind() == reflect.Ptr {
			elemType = elemType.Elem()
		}
		// TableName has a value receiver, so a pointer to a new element implements it too.
		if namer, ok := reflect.New(elemType).Interface().(TableNamer); ok {
			return db.Table(namer.TableName())
		}
	}
	return db.Model(model)
}

// NewGormLogger creates a gorm logger that writes through the pvtruth logger.
// Unknown or empty levels are silent.
func NewGormLogger(level string) gorm_logger.Interface {
	var gormLevel gorm_logger.LogLevel
	switch strings.ToLower(level) {
	case "error":
		gormLevel = gorm_logger.Error
	case "warn":
		gormLevel = gorm_logger.Warn
	case "info":
		gormLevel = gorm_logger.Info
	default:
		gormLevel = gorm_logger.Silent
	}

	return gorm_logger.New(
		NewGormWriter(),
		gorm_logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// GormWriter redirects GORM log output to the pvtruth logger.
type GormWriter struct{}

// NewGormWriter creates a new instance of GormWriter.
func NewGormWriter() *GormWriter {
	return &GormWriter{}
}

// Printf implements gorm_logger.Writer. SQL traces are logged at DEBUG, everything else at INFO.
func (w *GormWriter) Printf(format string, v ...interface{}) {
	msg := strings.TrimSpace(fmt.Sprintf(format, v...))
	if strings.Contains(msg, "SELECT") || strings.Contains(msg, "INSERT") || strings.Contains(msg, "UPDATE") || strings.Contains(msg, "DELETE") {
		logger.Debugf("[GORM] %s", msg)
	} else {
		logger.Infof("[GORM] %s", msg)
	}
}

// GormDBAdapter implements database.DBConnection.
type GormDBAdapter struct {
	db    *gorm.DB
	sqlDB *sql.DB
	cfg   dbconfig.DatabaseConfig
	name  string
}

var _ database.DBConnection = (*GormDBAdapter)(nil)

// NewGormDBAdapter wraps an open gorm.DB.
func NewGormDBAdapter(db *gorm.DB, cfg dbconfig.DatabaseConfig, name string) (*GormDBAdapter, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB for '%s': %w", name, err)
	}
	return &GormDBAdapter{db: db, sqlDB: sqlDB, cfg: cfg, name: name}, nil
}

// Close closes the underlying connection pool.
func (a *GormDBAdapter) Close() error {
	logger.Debugf("Closing DB connection '%s'.", a.name)
	return a.sqlDB.Close()
}

// Type returns the database type.
func (a *GormDBAdapter) Type() string {
	return a.cfg.Type
}

// Name returns the connection name.
func (a *GormDBAdapter) Name() string {
	return a.name
}

// Config returns the database configuration.
func (a *GormDBAdapter) Config() dbconfig.DatabaseConfig {
	return a.cfg
}

// GetSQLDB returns the underlying *sql.DB.
func (a *GormDBAdapter) GetSQLDB() (*sql.DB, error) {
	return a.sqlDB, nil
}

// ExecuteInsert implements database.DBExecutor.
func (a *GormDBAdapter) ExecuteInsert(ctx context.Context, records interface{}, tableName string, batchSize int) (int64, error) {
	db := a.db.WithContext(ctx)
	if tableName != "" {
		db = db.Table(tableName)
	} else {
		db = applyTableName(db, records)
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	result := db.CreateInBatches(records, batchSize)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Count implements database.DBExecutor.
func (a *GormDBAdapter) Count(ctx context.Context, model interface{}, query map[string]interface{}) (int64, error) {
	var count int64
	db := applyTableName(a.db.WithContext(ctx), model)
	if len(query) > 0 {
		db = db.Where(query)
	}
	if err := db.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ExecuteQuery implements database.DBExecutor.
func (a *GormDBAdapter) ExecuteQuery(ctx context.Context, target interface{}, query map[string]interface{}, orderBy string) error {
	db := applyTableName(a.db.WithContext(ctx), target)
	if len(query) > 0 {
		db = db.Where(query)
	}
	if orderBy != "" {
		db = db.Order(orderBy)
	}
	return db.Find(target).Error
}
