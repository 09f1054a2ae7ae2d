// Package observability bootstraps OpenTelemetry tracing for the binaries.
package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"github.com/chimera-protocol/chimera/apps/state/internal/config"
	"github.com/chimera-protocol/chimera/apps/state/internal/logger"
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Options override where the stdout exporter writes; nil means os.Stdout.
type Options struct {
	Version string
	Stdout  io.Writer
}

// InitTracing installs a global tracer provider and the W3C propagators.
// With tracing disabled the global no-op provider stays in place.
func InitTracing(ctx context.Context, cfg config.TracingConfig, opts Options, log *logger.Logger) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return noopShutdown, nil
	}
	if log == nil {
		log = logger.NewNop()
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "chimera-state"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(opts.Version),
		),
	)
	if err != nil {
		log.Warn("otel resource init failed (continuing)", "error", err)
	}

	exporter, err := buildExporter(ctx, cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("init trace exporter: %w", err)
	}

	ratio := cfg.SampleRatio
	if ratio < 0 {
		ratio = 0
	} else if ratio > 1 {
		ratio = 1
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info("otel tracing initialized", "service", serviceName, "exporter", cfg.Exporter, "sample_ratio", ratio)
	return tp.Shutdown, nil
}

func buildExporter(ctx context.Context, cfg config.TracingConfig, opts Options) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "stdout":
		w := opts.Stdout
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(stdouttrace.WithWriter(w))
	default:
		endpoint := strings.TrimSpace(cfg.Endpoint)
		var httpOpts []otlptracehttp.Option
		if endpoint != "" {
			// Plain host:port means a local collector without TLS.
			if !strings.HasPrefix(endpoint, "https://") {
				httpOpts = append(httpOpts, otlptracehttp.WithInsecure())
			}
			endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
			httpOpts = append(httpOpts, otlptracehttp.WithEndpoint(endpoint))
		}
		return otlptracehttp.New(ctx, httpOpts...)
	}
}
