package observability

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"itemcore/internal/item"
)

const instrumentationName = "itemcore/internal/item"

// OTelTracer adapts an OpenTelemetry tracer to item.Tracer.
type OTelTracer struct {
	tracer trace.Tracer
}

// NewTracer returns an item.Tracer backed by tp.
func NewTracer(tp trace.TracerProvider) *OTelTracer {
	return &OTelTracer{tracer: tp.Tracer(instrumentationName)}
}

// Start opens a span named after the operation.
func (t *OTelTracer) Start(ctx context.Context, operation string) (context.Context, item.TraceSpan) {
	ctx, span := t.tracer.Start(ctx, operation)
	return ctx, otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
