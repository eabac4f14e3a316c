package metrics

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	config "github.com/tigerroll/pvtruth/pkg/eval/core/config"
	exception "github.com/tigerroll/pvtruth/pkg/eval/support/util/exception"
)

func serviceResource(serviceName string) *resource.Resource {
	if serviceName == "" {
		serviceName = "pvtruth"
	}
	return resource.NewSchemaless(attribute.String("service.name", serviceName))
}

// NewTracerProvider builds an SDK tracer provider exporting spans over OTLP.
func NewTracerProvider(ctx context.Context, cfg config.TracingConfig) (*sdktrace.TracerProvider, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch strings.ToLower(cfg.Protocol) {
	case "", "http":
		opts := []otlptracehttp.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	case "grpc":
		opts := []otlptracegrpc.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	default:
		return nil, exception.NewEvalError("metrics", fmt.Sprintf("unsupported tracing protocol '%s'", cfg.Protocol), exception.ErrInvalidConfiguration)
	}
	if err != nil {
		return nil, exception.NewEvalError("metrics", "failed to create OTLP trace exporter", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(serviceResource(cfg.ServiceName)),
	), nil
}

// NewMeterProvider builds an SDK meter provider that pushes metrics periodically over OTLP.
func NewMeterProvider(ctx context.Context, cfg config.MetricsConfig, serviceName string) (*sdkmetric.MeterProvider, error) {
	var (
		exporter sdkmetric.Exporter
		err      error
	)
	switch strings.ToLower(cfg.Protocol) {
	case "", "http":
		opts := []otlpmetrichttp.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.Endpoint))
		}
		exporter, err = otlpmetrichttp.New(ctx, opts...)
	case "grpc":
		opts := []otlpmetricgrpc.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.Endpoint))
		}
		exporter, err = otlpmetricgrpc.New(ctx, opts...)
	default:
		return nil, exception.NewEvalError("metrics", fmt.Sprintf("unsupported metrics protocol '%s'", cfg.Protocol), exception.ErrInvalidConfiguration)
	}
	if err != nil {
		return nil, exception.NewEvalError("metrics", "failed to create OTLP metric exporter", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(serviceResource(serviceName)),
	), nil
}
