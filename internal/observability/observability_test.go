package observability

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"itemcore/internal/item"
)

var (
	_ item.MetricsRecorder = (*PrometheusRecorder)(nil)
	_ item.Tracer          = (*OTelTracer)(nil)
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	ctx := context.Background()
	rec.Observe(ctx, "item.move", true, 2*time.Millisecond)
	rec.Observe(ctx, "item.move", false, time.Millisecond)
	rec.Observe(ctx, "item.move", true, time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond)
	rec.ObserveInvariantViolation()

	if got := testutil.ToFloat64(rec.operations.WithLabelValues("item.move", "success")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(rec.operations.WithLabelValues("item.move", "error")); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
	if got := testutil.ToFloat64(rec.violations); got != 1 {
		t.Fatalf("expected 1 violation, got %v", got)
	}
	if n := testutil.CollectAndCount(rec.durations); n != 1 {
		t.Fatalf("expected one histogram series, got %d", n)
	}

	resident := 3
	if err := rec.TrackResident(func() int { return resident }); err != nil {
		t.Fatalf("track resident: %v", err)
	}
	expected := `
# HELP itemcore_resident_items Items currently held in the factory cache.
# TYPE itemcore_resident_items gauge
itemcore_resident_items 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "itemcore_resident_items"); err != nil {
		t.Fatalf("resident gauge: %v", err)
	}
}

func TestPrometheusRecorderRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheusRecorder(reg); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := NewPrometheusRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestOTelTracerRecordsStatus(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tracer := NewTracer(tp)

	_, span := tracer.Start(context.Background(), "factory.get_item")
	span.End(nil)
	_, failed := tracer.Start(context.Background(), "item.merge")
	failed.End(errors.New("type mismatch"))

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "factory.get_item" || spans[0].Status().Code != codes.Ok {
		t.Fatalf("unexpected first span %s %v", spans[0].Name(), spans[0].Status())
	}
	if spans[1].Status().Code != codes.Error || spans[1].Status().Description != "type mismatch" {
		t.Fatalf("unexpected error status %v", spans[1].Status())
	}
	if len(spans[1].Events()) == 0 {
		t.Fatalf("expected the error to be recorded as an event")
	}
}

func TestSetupNoopWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), "itemd", "")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupWithEndpoint(t *testing.T) {
	// non-routable address, nothing is exported
	shutdown, err := Setup(context.Background(), "itemd", "http://192.0.2.1:4318")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = shutdown(ctx)
}
