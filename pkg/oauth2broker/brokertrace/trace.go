// Package brokertrace emits the oauth2_broker.flow span around each
// broker operation, using a caller-supplied tracer (a no-op tracer by
// default so tracing is opt-in).
package brokertrace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const spanName = "oauth2_broker.flow"

// Tracer wraps a trace.Tracer so callers don't need to know the span
// name or attribute keys the broker uses.
type Tracer struct {
	tracer trace.Tracer
}

// New wraps t. A nil t falls back to a no-op tracer.
func New(t trace.Tracer) *Tracer {
	if t == nil {
		t = noop.NewTracerProvider().Tracer("oauth2broker")
	}
	return &Tracer{tracer: t}
}

// StartFlow starts a span for flow/stage (e.g. flow="client_credentials",
// stage="exchange"). Callers must call the returned function when the
// flow completes, passing the terminal error if any.
func (t *Tracer) StartFlow(ctx context.Context, flow, stage string) (context.Context, func(err error)) {
	ctx, span := t.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("flow", flow),
		attribute.String("stage", stage),
	))

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
