package writer

import (
	"context"

	"github.com/tigerroll/pvtruth/pkg/eval/adapter/database"
	gormadapter "github.com/tigerroll/pvtruth/pkg/eval/adapter/database/gorm"
	"github.com/tigerroll/pvtruth/pkg/eval/core/domain/model"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/exception"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/logger"
)

const defaultInsertBatchSize = 500

// TruthDatabaseWriter inserts truth records into the pv_truth table of a results database.
type TruthDatabaseWriter struct {
	dbRef     string
	resolver  database.DBConnectionResolver
	migrate   bool
	BatchSize int

	conn    database.DBConnection
	written int64
}

var _ ItemWriter[model.TruthRecord] = (*TruthDatabaseWriter)(nil)

// NewTruthDatabaseWriter creates a writer for the database connection dbRef.
// With migrate set, Open brings the results schema up to date first.
func NewTruthDatabaseWriter(dbRef string, resolver database.DBConnectionResolver, migrate bool) *TruthDatabaseWriter {
	return &TruthDatabaseWriter{
		dbRef:     dbRef,
		resolver:  resolver,
		migrate:   migrate,
		BatchSize: defaultInsertBatchSize,
	}
}

// Open resolves the connection and applies migrations when enabled.
func (w *TruthDatabaseWriter) Open(ctx context.Context) error {
	conn, err := w.resolver.ResolveDBConnection(ctx, w.dbRef)
	if err != nil {
		return exception.NewEvalErrorf(moduleName, "failed to resolve database connection '%s'", w.dbRef, err)
	}
	if w.migrate {
		if err := gormadapter.NewMigrator(conn).Up(); err != nil {
			return exception.NewEvalErrorf(moduleName, "failed to migrate results database '%s'", w.dbRef, err)
		}
	}
	w.conn = conn
	w.written = 0
	return nil
}

// Write inserts items in batches.
func (w *TruthDatabaseWriter) Write(ctx context.Context, items []model.TruthRecord) error {
	if len(items) == 0 {
		return nil
	}
	if w.conn == nil {
		return exception.NewEvalErrorf(moduleName, "truth database writer used before Open")
	}
	n, err := w.conn.ExecuteInsert(ctx, items, model.TruthRecord{}.TableName(), w.BatchSize)
	if err != nil {
		return exception.NewEvalErrorf(moduleName, "failed to insert %d truth rows into '%s'", len(items), w.dbRef, err)
	}
	w.written += n
	return nil
}

// Close logs the number of inserted rows. The connection is owned by its resolver.
func (w *TruthDatabaseWriter) Close(ctx context.Context) error {
	logger.Infof("Inserted %d truth rows into database '%s'.", w.written, w.dbRef)
	return nil
}
