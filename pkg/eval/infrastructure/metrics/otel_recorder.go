package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	metrics "github.com/tigerroll/pvtruth/pkg/eval/core/metrics"
	logger "github.com/tigerroll/pvtruth/pkg/eval/support/util/logger"
)

const instrumentationName = "github.com/tigerroll/pvtruth"

// OpenTelemetryRecorder implements metrics.MetricRecorder with OpenTelemetry instruments.
type OpenTelemetryRecorder struct {
	cacheLookups      otelmetric.Int64Counter
	downloadedBytes   otelmetric.Int64Counter
	parquetFiles      otelmetric.Int64Counter
	generationRows    otelmetric.Int64Counter
	truthRows         otelmetric.Int64Counter
	truthMissing      otelmetric.Int64Counter
	operationDuration otelmetric.Float64Histogram
}

// NewOpenTelemetryRecorder creates the instruments on a meter of mp.
func NewOpenTelemetryRecorder(mp otelmetric.MeterProvider) (*OpenTelemetryRecorder, error) {
	meter := mp.Meter(instrumentationName)
	r := &OpenTelemetryRecorder{}
	var err error

	if r.cacheLookups, err = meter.Int64Counter("pvtruth.cache.lookups",
		otelmetric.WithDescription("Dataset cache lookups by result.")); err != nil {
		return nil, err
	}
	if r.downloadedBytes, err = meter.Int64Counter("pvtruth.downloaded",
		otelmetric.WithDescription("Bytes copied from the remote dataset store into the cache."),
		otelmetric.WithUnit("By")); err != nil {
		return nil, err
	}
	if r.parquetFiles, err = meter.Int64Counter("pvtruth.parquet.files",
		otelmetric.WithDescription("Generation parquet files by scan outcome.")); err != nil {
		return nil, err
	}
	if r.generationRows, err = meter.Int64Counter("pvtruth.generation.rows",
		otelmetric.WithDescription("Generation rows decoded and kept by the scan predicate.")); err != nil {
		return nil, err
	}
	if r.truthRows, err = meter.Int64Counter("pvtruth.truth.rows",
		otelmetric.WithDescription("Aligned truth rows produced.")); err != nil {
		return nil, err
	}
	if r.truthMissing, err = meter.Int64Counter("pvtruth.truth.missing",
		otelmetric.WithDescription("Aligned truth rows without a matching generation record.")); err != nil {
		return nil, err
	}
	if r.operationDuration, err = meter.Float64Histogram("pvtruth.operation.duration",
		otelmetric.WithDescription("Duration of pvtruth operations."),
		otelmetric.WithUnit("s")); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *OpenTelemetryRecorder) RecordCacheLookup(ctx context.Context, object string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("result", result)))
}

func (r *OpenTelemetryRecorder) RecordBytesDownloaded(ctx context.Context, n int64) {
	r.downloadedBytes.Add(ctx, n)
}

func (r *OpenTelemetryRecorder) RecordFilesScanned(ctx context.Context, folder string, scanned, pruned int) {
	r.parquetFiles.Add(ctx, int64(scanned), otelmetric.WithAttributes(attribute.String("folder", folder), attribute.String("outcome", "scanned")))
	r.parquetFiles.Add(ctx, int64(pruned), otelmetric.WithAttributes(attribute.String("folder", folder), attribute.String("outcome", "pruned")))
}

func (r *OpenTelemetryRecorder) RecordRowsRead(ctx context.Context, folder string, read, matched int) {
	r.generationRows.Add(ctx, int64(read), otelmetric.WithAttributes(attribute.String("folder", folder), attribute.String("stage", "read")))
	r.generationRows.Add(ctx, int64(matched), otelmetric.WithAttributes(attribute.String("folder", folder), attribute.String("stage", "matched")))
}

func (r *OpenTelemetryRecorder) RecordTruthRows(ctx context.Context, folder string, total, missing int) {
	attrs := otelmetric.WithAttributes(attribute.String("folder", folder))
	r.truthRows.Add(ctx, int64(total), attrs)
	r.truthMissing.Add(ctx, int64(missing), attrs)
}

func (r *OpenTelemetryRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	kvs := make([]attribute.KeyValue, 0, len(tags)+1)
	kvs = append(kvs, attribute.String("operation", name))
	for k, v := range tags {
		kvs = append(kvs, attribute.String(k, v))
	}
	r.operationDuration.Record(ctx, duration.Seconds(), otelmetric.WithAttributes(kvs...))
	logger.Debugf("Metrics: %s took %s.", name, duration)
}

var _ metrics.MetricRecorder = (*OpenTelemetryRecorder)(nil)
