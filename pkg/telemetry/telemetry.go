// Package telemetry wires distributed tracing (for FederationEnvelope's
// trace_context, SPEC_FULL §11) and Prometheus metrics for the server's
// HTTP requests, SSE subscribers and queue drops, lease counts,
// governance violations and federation dispatches.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config controls the tracing provider. An empty OTLPEndpoint disables
// export but still installs a local-only tracer (so W3C trace_context
// propagation still works across federation hops).
type Config struct {
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	SampleRate   float64
	Insecure     bool
}

// Provider holds the tracer used throughout the server.
type Provider struct {
	config         Config
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	propagator     propagation.TextMapPropagator
	logger         *slog.Logger
}

// New builds a Provider. If cfg.OTLPEndpoint is empty, spans are created
// and propagated but never exported — useful for local/embedded mode.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	logger := slog.Default().With("component", "telemetry")
	p := &Provider{
		config:     cfg,
		propagator: propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
		logger:     logger,
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("deployment.environment", cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	switch {
	case cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	case cfg.SampleRate < 1:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	}

	if cfg.OTLPEndpoint != "" {
		exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.Insecure {
			exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)))
	}

	p.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(p.propagator)
	p.tracer = otel.Tracer("openintent")

	logger.InfoContext(ctx, "telemetry initialized", "endpoint", cfg.OTLPEndpoint, "sample_rate", cfg.SampleRate)
	return p, nil
}

// Shutdown flushes and releases the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider == nil {
		return nil
	}
	return p.tracerProvider.Shutdown(ctx)
}

// Tracer returns the server-wide tracer.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// StartSpan starts a span named name.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// InjectTraceContext serializes the current span context into a W3C
// traceparent string, carried across servers as
// FederationEnvelope.trace_context (spec.md §3).
func (p *Provider) InjectTraceContext(ctx context.Context) string {
	carrier := propagation.MapCarrier{}
	p.propagator.Inject(ctx, carrier)
	return carrier.Get("traceparent")
}

// ExtractTraceContext rebuilds a context carrying the remote span
// described by traceparent, so a received dispatch's processing span is
// a child of the sender's span.
func (p *Provider) ExtractTraceContext(ctx context.Context, traceparent string) context.Context {
	if traceparent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": traceparent}
	return p.propagator.Extract(ctx, carrier)
}
