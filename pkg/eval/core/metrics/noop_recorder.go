package metrics

import (
	"context"
	"time"
)

// NoOpMetricRecorder is an implementation of MetricRecorder that does nothing.
// It is used when metrics are disabled or during testing.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a new instance of NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

// RecordCacheLookup does nothing.
func (r *NoOpMetricRecorder) RecordCacheLookup(ctx context.Context, object string, hit bool) {}

// RecordBytesDownloaded does nothing.
func (r *NoOpMetricRecorder) RecordBytesDownloaded(ctx context.Context, n int64) {}

// RecordFilesScanned does nothing.
func (r *NoOpMetricRecorder) RecordFilesScanned(ctx context.Context, folder string, scanned, pruned int) {
}

// RecordRowsRead does nothing.
func (r *NoOpMetricRecorder) RecordRowsRead(ctx context.Context, folder string, read, matched int) {}

// RecordTruthRows does nothing.
func (r *NoOpMetricRecorder) RecordTruthRows(ctx context.Context, folder string, total, missing int) {
}

// RecordDuration does nothing.
func (r *NoOpMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

// --- NoOpTracer ---

// NoOpTracer is an implementation of Tracer that does nothing.
type NoOpTracer struct{}

// NewNoOpTracer creates a new instance of NoOpTracer.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

// StartSpan returns ctx unchanged.
func (t *NoOpTracer) StartSpan(ctx context.Context, name string, attributes map[string]interface{}) (context.Context, func()) {
	return ctx, func() {}
}

// RecordError does nothing.
func (t *NoOpTracer) RecordError(ctx context.Context, module string, err error) {}

// RecordEvent does nothing.
func (t *NoOpTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {}

var _ Tracer = (*NoOpTracer)(nil)
