package tracer

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"maestro-ai/internal/infra/config"
)

const tracerName = "maestro"

// Setup initializes OpenTelemetry tracing and returns a shutdown function.
// Disabled or "noop" config installs a noop TracerProvider. The "stderr"
// exporter exists because stdout belongs to the operator console; traces
// must not interleave with rendered conversation output.
func Setup(ctx context.Context, cfg config.TracerConfig) (func(context.Context) error, error) {
	noopShutdown := func(context.Context) error { return nil }

	var exporter sdktrace.SpanExporter
	var err error

	switch {
	case !cfg.Enabled, cfg.Exporter == "noop", cfg.Exporter == "":
		otel.SetTracerProvider(noop.NewTracerProvider())
		return noopShutdown, nil
	case cfg.Exporter == "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case cfg.Exporter == "stderr":
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", cfg.Exporter, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", tracerName),
		)),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// StartSpan starts a named span on the service tracer.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// RecordError records an error on the span and sets error status.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetOK sets the span status to OK.
func SetOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AgentAttrs identifies the acting agent and its session on a span.
func AgentAttrs(agent, session string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("agent.name", agent),
		attribute.String("session.id", session),
	}
}

// UsageAttrs records token consumption on a span.
func UsageAttrs(prompt, completion int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int("llm.prompt_tokens", prompt),
		attribute.Int("llm.completion_tokens", completion),
	}
}

// StringAttr is a convenience for attribute.String.
func StringAttr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// IntAttr is a convenience for attribute.Int.
func IntAttr(key string, value int) attribute.KeyValue {
	return attribute.Int(key, value)
}
