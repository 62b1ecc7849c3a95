// Package observability exports item graph metrics to Prometheus and spans to
// OpenTelemetry.
package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "itemcore"

// PrometheusRecorder implements item.MetricsRecorder with a counter and a
// latency histogram per operation.
type PrometheusRecorder struct {
	reg        prometheus.Registerer
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	violations prometheus.Counter
}

// NewPrometheusRecorder registers the recorder collectors on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		reg: reg,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Item graph operations by name and result.",
		}, []string{"operation", "result"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Item graph operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"operation"}),
		violations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invariant_violations_total",
			Help:      "Detected item graph invariant violations.",
		}),
	}
	for _, c := range []prometheus.Collector{r.operations, r.durations, r.violations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe records one operation outcome.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	result := "error"
	if success {
		result = "success"
	}
	r.operations.WithLabelValues(operation, result).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveInvariantViolation counts one violation.
func (r *PrometheusRecorder) ObserveInvariantViolation() {
	r.violations.Inc()
}

// TrackResident registers a gauge sampling the resident item count.
func (r *PrometheusRecorder) TrackResident(count func() int) error {
	return r.reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "resident_items",
		Help:      "Items currently held in the factory cache.",
	}, func() float64 { return float64(count()) }))
}
