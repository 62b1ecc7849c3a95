package item

import (
	"context"
	"time"

	"itemcore/pkg/domain"
)

// Logger captures the logging surface used by the item graph. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricsRecorder observes the outcome and latency of factory and item operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts a span around a factory or item operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the operation result.
type TraceSpan interface {
	End(err error)
}

// violationCounter is implemented by recorders that count invariant violations.
type violationCounter interface {
	ObserveInvariantViolation()
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

type noopSink struct{}

func (noopSink) Notify(context.Context, domain.OwnerID, domain.ChangeRecord) {}

// Option configures a Factory.
type Option func(*Factory)

// WithLogger overrides the factory logger.
func WithLogger(logger Logger) Option {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithMetricsRecorder installs a metrics recorder.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(f *Factory) {
		if recorder != nil {
			f.metrics = recorder
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(tracer Tracer) Option {
	return func(f *Factory) {
		if tracer != nil {
			f.tracer = tracer
		}
	}
}

// WithNotifier routes item change records to sink.
func WithNotifier(sink domain.NotificationSink) Option {
	return func(f *Factory) {
		if sink != nil {
			f.sink = sink
		}
	}
}

// WithStrictInvariants makes detected invariant violations panic instead of
// returning an error.
func WithStrictInvariants(strict bool) Option {
	return func(f *Factory) {
		f.strict = strict
	}
}

// WithVariant registers or replaces the variant selected for the given
// category and group. A zero group matches every group of the category; a zero
// category matches the group in any category.
func WithVariant(category domain.CategoryID, group domain.GroupID, variant Variant) Option {
	return func(f *Factory) {
		f.variants.register(category, group, variant)
	}
}
