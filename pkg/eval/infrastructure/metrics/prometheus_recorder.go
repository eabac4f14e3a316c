package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	metrics "github.com/tigerroll/pvtruth/pkg/eval/core/metrics"
	logger "github.com/tigerroll/pvtruth/pkg/eval/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
// A batch run has no scrape endpoint, so the registry is written to a node_exporter textfile.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	cacheLookups      *prometheus.CounterVec
	downloadedBytes   prometheus.Counter
	parquetFiles      *prometheus.CounterVec
	generationRows    *prometheus.CounterVec
	truthRows         *prometheus.CounterVec
	truthMissing      *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a new instance of PrometheusRecorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pvtruth_cache_lookups_total",
			Help: "Dataset cache lookups by result.",
		}, []string{"result"}),
		downloadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pvtruth_downloaded_bytes_total",
			Help: "Bytes copied from the remote dataset store into the cache.",
		}),
		parquetFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pvtruth_parquet_files_total",
			Help: "Generation parquet files by scan outcome.",
		}, []string{"folder", "outcome"}),
		generationRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pvtruth_generation_rows_total",
			Help: "Generation rows decoded and kept by the scan predicate.",
		}, []string{"folder", "stage"}),
		truthRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pvtruth_truth_rows_total",
			Help: "Aligned truth rows produced.",
		}, []string{"folder"}),
		truthMissing: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pvtruth_truth_missing_total",
			Help: "Aligned truth rows without a matching generation record.",
		}, []string{"folder"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pvtruth_operation_duration_seconds",
			Help:    "Duration of pvtruth operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "folder"}),
	}

	registry.MustRegister(r.cacheLookups)
	registry.MustRegister(r.downloadedBytes)
	registry.MustRegister(r.parquetFiles)
	registry.MustRegister(r.generationRows)
	registry.MustRegister(r.truthRows)
	registry.MustRegister(r.truthMissing)
	registry.MustRegister(r.operationDuration)

	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes the registry in the text exposition format, atomically replacing filename.
func (r *PrometheusRecorder) WriteTextfile(filename string) error {
	if err := prometheus.WriteToTextfile(filename, r.registry); err != nil {
		return err
	}
	logger.Infof("Metrics written to %s.", filename)
	return nil
}

// RecordCacheLookup records a cache hit or miss.
func (r *PrometheusRecorder) RecordCacheLookup(ctx context.Context, object string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
	logger.Debugf("Metrics: cache %s for '%s'.", result, object)
}

// RecordBytesDownloaded records bytes copied into the cache.
func (r *PrometheusRecorder) RecordBytesDownloaded(ctx context.Context, n int64) {
	r.downloadedBytes.Add(float64(n))
}

// RecordFilesScanned records scanned and pruned parquet files.
func (r *PrometheusRecorder) RecordFilesScanned(ctx context.Context, folder string, scanned, pruned int) {
	r.parquetFiles.WithLabelValues(folder, "scanned").Add(float64(scanned))
	r.parquetFiles.WithLabelValues(folder, "pruned").Add(float64(pruned))
}

// RecordRowsRead records decoded and matching generation rows.
func (r *PrometheusRecorder) RecordRowsRead(ctx context.Context, folder string, read, matched int) {
	r.generationRows.WithLabelValues(folder, "read").Add(float64(read))
	r.generationRows.WithLabelValues(folder, "matched").Add(float64(matched))
}

// RecordTruthRows records aligned rows and missing values.
func (r *PrometheusRecorder) RecordTruthRows(ctx context.Context, folder string, total, missing int) {
	r.truthRows.WithLabelValues(folder).Add(float64(total))
	r.truthMissing.WithLabelValues(folder).Add(float64(missing))
	logger.Debugf("Metrics: %d truth rows for '%s', %d missing.", total, folder, missing)
}

// RecordDuration records the duration of an operation. Only the "folder" tag is kept as a label.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.operationDuration.WithLabelValues(name, tags["folder"]).Observe(duration.Seconds())
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
