package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceContextStrings serialises the active span's W3C trace context so it
// can be persisted (e.g. in an outbox row) and resumed later.
func TraceContextStrings(ctx context.Context) (traceparent, tracestate string) {
	c := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, c)
	return c["traceparent"], c["tracestate"]
}

// ContextWithTraceContext is the inverse of TraceContextStrings.
func ContextWithTraceContext(ctx context.Context, traceparent, tracestate string) context.Context {
	if traceparent == "" && tracestate == "" {
		return ctx
	}
	c := propagation.MapCarrier{}
	if traceparent != "" {
		c["traceparent"] = traceparent
	}
	if tracestate != "" {
		c["tracestate"] = tracestate
	}
	return otel.GetTextMapPropagator().Extract(ctx, c)
}
