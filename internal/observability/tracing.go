// Package observability configures trace export for lumichat.
//
// Traces are exported over OTLP HTTP to a local collector agent, which
// handles authentication, buffering, and forwarding to the backend.
// Tracing is opt-in; when disabled the setup is a no-op.
package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/lumichat/lumichat/internal/config"
	"github.com/lumichat/lumichat/internal/log"
)

// SetupTracing installs a global TracerProvider exporting to the
// configured OTLP HTTP endpoint. The returned shutdown function flushes
// pending spans; it is always safe to call.
//
// Failures here degrade to no tracing rather than failing startup: the
// service must come up even when the collector is absent.
func SetupTracing(ctx context.Context, cfg config.TracingConfig, logger log.Logger) func(context.Context) {
	noop := func(context.Context) {}

	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		return noop
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "localhost:4318"
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(), // local agent, no TLS
	)
	if err != nil {
		logger.Warn("creating OTLP exporter, tracing disabled", "error", err)
		return noop
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, attrs...),
	)
	if err != nil {
		logger.Warn("building trace resource, using default", "error", err)
		res = resource.Default()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Debug("tracing enabled",
		"endpoint", endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	return func(shutdownCtx context.Context) {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}
