package metrics

import (
	"context"
	"time"
)

// MetricRecorder is an abstract interface for recording metrics of a truth retrieval run.
// Implementations exist for Prometheus and OpenTelemetry; NoOpMetricRecorder is the fallback.
type MetricRecorder interface {
	// RecordCacheLookup records whether a cached file or folder was already present.
	RecordCacheLookup(ctx context.Context, object string, hit bool)

	// RecordBytesDownloaded records bytes copied from the remote store into the cache.
	RecordBytesDownloaded(ctx context.Context, n int64)

	// RecordFilesScanned records how many parquet files of a folder were read and how many
	// were skipped entirely because of their statistics.
	RecordFilesScanned(ctx context.Context, folder string, scanned, pruned int)

	// RecordRowsRead records generation rows decoded and rows kept by the scan predicate.
	RecordRowsRead(ctx context.Context, folder string, read, matched int)

	// RecordTruthRows records the size of an aligned truth table and how many values are missing.
	RecordTruthRows(ctx context.Context, folder string, total, missing int)

	// RecordDuration records the execution time of a named operation.
	//
	// name: e.g. "metadata_fetch", "truth_align", "parquet_scan".
	// tags: additional attributes, e.g. {"folder": "30_minutely"}.
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}
