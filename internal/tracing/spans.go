package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartDispatchSpan creates a child span covering model resolution and the
// failover loop for one gateway request.
func StartDispatchSpan(ctx context.Context, model string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "dispatch.resolve_and_forward",
		trace.WithAttributes(attribute.String("request.model", model)),
	)
}

// StartUpstreamSpan creates a child span for a single upstream attempt.
func StartUpstreamSpan(ctx context.Context, provider, url string, attempt int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "upstream.attempt",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("upstream.provider", provider),
			attribute.String("upstream.url", url),
			attribute.Int("upstream.attempt", attempt),
		),
	)
}

// StartAdminSpan creates a span for one admin channel command.
func StartAdminSpan(ctx context.Context, command string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "admin.command",
		trace.WithAttributes(attribute.String("admin.command", command)),
	)
}

// InjectHeaders injects the current trace context (traceparent, tracestate)
// into the given HTTP request headers so the upstream service can continue
// the trace.
func InjectHeaders(ctx context.Context, req *http.Request) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

// SetRequestAttributes adds request-level attributes to the current span.
func SetRequestAttributes(ctx context.Context, requestID, model string, stream bool) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("request.id", requestID),
		attribute.String("request.model", model),
		attribute.Bool("request.stream", stream),
	)
}

// SetResponseAttributes adds response-level attributes to the current span.
func SetResponseAttributes(ctx context.Context, statusCode, promptTokens int, provider, outcome string) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.Int("response.status_code", statusCode),
		attribute.Int("request.prompt_tokens", promptTokens),
		attribute.String("response.provider", provider),
		attribute.String("response.outcome", outcome),
	)
}

// RecordError records an error on the current span.
func RecordError(ctx context.Context, err error) {
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
	}
}
