package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const sentryFlushTimeout = 2 * time.Second

// TracerConfig configures OpenTelemetry tracing. Endpoint == "" disables
// export entirely; Tracer still works, it just emits to a no-op provider.
type TracerConfig struct {
	ServiceName string
	Endpoint    string // OTEL_EXPORTER_OTLP_ENDPOINT
}

// Tracer wraps an OTel tracer plus the provider that owns its exporter, so
// callers get one Shutdown to drain on exit.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer builds a Tracer per cfg. When cfg.Endpoint is empty it returns a
// Tracer backed by OTel's global no-op provider — spans cost nothing and
// Shutdown is a no-op.
func NewTracer(ctx context.Context, cfg TracerConfig) (*Tracer, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "codesearch"
	}
	if cfg.Endpoint == "" {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("build otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return &Tracer{provider: provider, tracer: provider.Tracer(cfg.ServiceName)}, nil
}

// Start begins a span named name and stamps its trace id onto the returned
// context under TraceIDKey, so a Logger built from that context picks it up.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	if sc := span.SpanContext(); sc.HasTraceID() {
		ctx = context.WithValue(ctx, TraceIDKey, sc.TraceID().String())
	}
	return ctx, span
}

// RecordError marks span as failed and records err, if err is non-nil.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Shutdown drains the exporter, if one was started.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// InitSentry configures the global Sentry client. dsn == "" disables
// reporting; CaptureError then becomes a pure log-only call. Returns a
// flush func to call before process exit.
func InitSentry(dsn, environment string) (flush func(), err error) {
	if dsn == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{Dsn: dsn, Environment: environment}); err != nil {
		return func() {}, fmt.Errorf("init sentry: %w", err)
	}
	return func() { sentry.Flush(sentryFlushTimeout) }, nil
}

// CaptureError logs err (with ctx's trace id/repo, if any) and, when Sentry
// is configured, reports it there too with the given tags.
func CaptureError(ctx context.Context, logger *Logger, err error, tags map[string]string) {
	if err == nil {
		return
	}
	args := make([]any, 0, 2)
	args = append(args, "error", err.Error())
	logger.ErrorContext(ctx, "operation failed", args...)

	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}
