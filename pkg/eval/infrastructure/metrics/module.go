package metrics

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.uber.org/fx"

	config "github.com/tigerroll/pvtruth/pkg/eval/core/config"
	metrics "github.com/tigerroll/pvtruth/pkg/eval/core/metrics"
	exception "github.com/tigerroll/pvtruth/pkg/eval/support/util/exception"
	logger "github.com/tigerroll/pvtruth/pkg/eval/support/util/logger"
)

// RecorderResult exposes the selected recorder and, when Prometheus is used, the
// concrete recorder (nil otherwise) so the CLI can write the textfile.
type RecorderResult struct {
	fx.Out
	Recorder   metrics.MetricRecorder
	Prometheus *PrometheusRecorder
}

// NewMetricRecorder selects the recorder named by pvtruth.metrics.exporter.
func NewMetricRecorder(lc fx.Lifecycle, cfg *config.Config) (RecorderResult, error) {
	mc := cfg.PVTruth.Metrics
	switch strings.ToLower(mc.Exporter) {
	case "otlp":
		mp, err := NewMeterProvider(context.Background(), mc, cfg.PVTruth.Tracing.ServiceName)
		if err != nil {
			return RecorderResult{}, err
		}
		lc.Append(fx.Hook{OnStop: mp.Shutdown})
		r, err := NewOpenTelemetryRecorder(mp)
		if err != nil {
			return RecorderResult{}, err
		}
		logger.Debugf("Metrics: OTLP recorder enabled (%s).", mc.Protocol)
		return RecorderResult{Recorder: r}, nil
	case "prometheus":
		r := NewPrometheusRecorder()
		return RecorderResult{Recorder: r, Prometheus: r}, nil
	case "none", "":
		return RecorderResult{Recorder: metrics.NewNoOpMetricRecorder()}, nil
	default:
		return RecorderResult{}, exception.NewEvalErrorf("metrics", "unknown metrics exporter '%s' (expected prometheus, otlp or none)",
			mc.Exporter, exception.ErrInvalidConfiguration)
	}
}

// NewTracer returns an OTLP-backed tracer when tracing is enabled, otherwise a no-op tracer.
func NewTracer(lc fx.Lifecycle, cfg *config.Config) (metrics.Tracer, error) {
	tc := cfg.PVTruth.Tracing
	if !tc.Enabled {
		return metrics.NewNoOpTracer(), nil
	}
	tp, err := NewTracerProvider(context.Background(), tc)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	lc.Append(fx.Hook{OnStop: tp.Shutdown})
	logger.Debugf("Tracing: OTLP exporter enabled (%s).", tc.Protocol)
	return NewOpenTelemetryTracer(tp), nil
}

// Module provides the MetricRecorder and Tracer selected by configuration.
var Module = fx.Options(
	fx.Provide(NewMetricRecorder),
	fx.Provide(NewTracer),
)
