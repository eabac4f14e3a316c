package app

import (
	"context"
	"os"
	"path"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/pvtruth/pkg/eval/adapter/database"
	"github.com/tigerroll/pvtruth/pkg/eval/adapter/storage"
	"github.com/tigerroll/pvtruth/pkg/eval/component/reader"
	"github.com/tigerroll/pvtruth/pkg/eval/component/writer"
	"github.com/tigerroll/pvtruth/pkg/eval/core/config"
	"github.com/tigerroll/pvtruth/pkg/eval/core/domain/model"
	"github.com/tigerroll/pvtruth/pkg/eval/infrastructure/metrics"
	"github.com/tigerroll/pvtruth/pkg/eval/pv"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/exception"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/logger"
)

const moduleName = "app"

// RunOptions are the per-invocation settings taken from the command line.
type RunOptions struct {
	TestsetPath  string
	HorizonHours int
	Folder       string
}

// RunResult summarises a completed run.
type RunResult struct {
	RunID         string
	MetadataRows  int
	TruthRows     int
	MissingValues int
	Objects       []string
}

// Runner executes one truth retrieval run: read the testset, fetch metadata, align
// truth, and export both tables.
type Runner struct {
	cfg             *config.Config
	fetcher         *pv.MetadataFetcher
	aligner         *pv.TruthAligner
	storageResolver storage.StorageConnectionResolver
	dbResolver      database.DBConnectionResolver
	prometheus      *metrics.PrometheusRecorder
}

// NewRunner creates a Runner. dbResolver is only used when output.db_ref is set,
// prometheus only when metrics.textfile is set.
func NewRunner(
	cfg *config.Config,
	fetcher *pv.MetadataFetcher,
	aligner *pv.TruthAligner,
	storageResolver storage.StorageConnectionResolver,
	dbResolver database.DBConnectionResolver,
	prometheus *metrics.PrometheusRecorder,
) *Runner {
	return &Runner{
		cfg:             cfg,
		fetcher:         fetcher,
		aligner:         aligner,
		storageResolver: storageResolver,
		dbResolver:      dbResolver,
		prometheus:      prometheus,
	}
}

// Run performs the run described by opts.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (RunResult, error) {
	result := RunResult{RunID: uuid.NewString()}

	testset, err := readTestset(opts.TestsetPath)
	if err != nil {
		return result, err
	}
	logger.Infof("Run %s: %d testset rows, horizon %dh, folder %s.", result.RunID, len(testset), opts.HorizonHours, opts.Folder)

	// Validate the folder before the metadata download.
	if _, err := model.ResolutionForFolder(opts.Folder); err != nil {
		return result, err
	}

	metadataRows, err := r.fetcher.Fetch(ctx, testset)
	if err != nil {
		return result, err
	}
	result.MetadataRows = len(metadataRows)

	truthRows, err := r.aligner.Align(ctx, testset, opts.HorizonHours, opts.Folder)
	if err != nil {
		return result, err
	}
	result.TruthRows = len(truthRows)

	metadataRecords := make([]model.MetadataRecord, len(metadataRows))
	for i, row := range metadataRows {
		metadataRecords[i] = model.NewMetadataRecord(result.RunID, row)
	}
	truthRecords := make([]model.TruthRecord, len(truthRows))
	for i, row := range truthRows {
		truthRecords[i] = model.NewTruthRecord(result.RunID, row)
		if row.Value == nil {
			result.MissingValues++
		}
	}

	objects, err := exportParquet(ctx, r, "metadata", new(model.MetadataRecord), metadataRecords, func(m model.MetadataRecord) (string, error) {
		return writer.RunPartition(m.RunID), nil
	})
	if err != nil {
		return result, err
	}
	result.Objects = append(result.Objects, objects...)

	objects, err = exportParquet(ctx, r, "truth", new(model.TruthRecord), truthRecords, func(t model.TruthRecord) (string, error) {
		return writer.RunPartition(t.RunID), nil
	})
	if err != nil {
		return result, err
	}
	result.Objects = append(result.Objects, objects...)

	if dbRef := r.cfg.PVTruth.Output.DBRef; dbRef != "" {
		if err := runWriter[model.TruthRecord](ctx, writer.NewTruthDatabaseWriter(dbRef, r.dbResolver, true), truthRecords); err != nil {
			return result, err
		}
	}

	if textfile := r.cfg.PVTruth.Metrics.Textfile; textfile != "" && r.prometheus != nil {
		if err := r.prometheus.WriteTextfile(textfile); err != nil {
			logger.Warnf("Failed to write metrics textfile '%s': %v", textfile, err)
		}
	}

	logger.Infof("Run %s finished: %d metadata rows, %d truth rows (%d missing values).",
		result.RunID, result.MetadataRows, result.TruthRows, result.MissingValues)
	return result, nil
}

// exportParquet writes records under <prefix>/<table>/run_id=<id>/ on the output connection.
func exportParquet[T any](ctx context.Context, r *Runner, table string, prototype *T, records []T, key func(T) (string, error)) ([]string, error) {
	out := r.cfg.PVTruth.Output
	w, err := writer.NewParquetWriter(table, map[string]interface{}{
		"storageRef":      out.StorageRef,
		"outputBaseDir":   path.Join(out.Prefix, table),
		"compressionType": out.Compression,
	}, r.storageResolver, prototype, key)
	if err != nil {
		return nil, err
	}
	if err := runWriter[T](ctx, w, records); err != nil {
		return nil, err
	}
	return w.WrittenObjects(), nil
}

// runWriter drives an ItemWriter through Open, Write and Close. Close runs even when
// Write fails, and both errors are reported.
func runWriter[T any](ctx context.Context, w writer.ItemWriter[T], items []T) error {
	if err := w.Open(ctx); err != nil {
		return err
	}
	var result *multierror.Error
	if err := w.Write(ctx, items); err != nil {
		result = multierror.Append(result, err)
	}
	if err := w.Close(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func readTestset(p string) ([]model.TestsetRow, error) {
	if p == "" {
		return nil, exception.NewEvalErrorf(moduleName, "a testset CSV is required (-testset)", exception.ErrInvalidConfiguration)
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, exception.NewEvalErrorf(moduleName, "failed to open testset '%s'", p, err)
	}
	defer f.Close()
	rows, err := reader.ReadTestset(f)
	if err != nil {
		return nil, exception.NewEvalErrorf(moduleName, "failed to read testset '%s'", p, err)
	}
	return rows, nil
}
