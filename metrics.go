package relay

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request lifecycle. It
// is an Observer: register it with WithMetrics / WithMetricsCollector or
// Client.Subscribe. It is safe for concurrent use, and nil-safe.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	drainsTotal prometheus.Counter

	circuitBreakerState *prometheus.GaugeVec

	transformFailures *prometheus.CounterVec
	cancellations     *prometheus.CounterVec

	deduplicationHits *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	mc := &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_requests_total",
				Help: "Total number of settled API method calls",
			},
			[]string{"name", "method", "status_code", "outcome"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_request_duration_seconds",
				Help:    "Duration of API method calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"name", "method", "outcome"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relay_requests_in_flight",
				Help: "Number of API method calls currently in flight",
			},
			[]string{"name", "method"},
		),
		drainsTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "relay_drains_total",
				Help: "Number of times the in-flight count returned to zero",
			},
		),
		circuitBreakerState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relay_circuit_breaker_state",
				Help: "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		transformFailures: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_transform_failures_total",
				Help: "Total number of response transform failures",
			},
			[]string{"name", "stage"},
		),
		cancellations: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_cancellations_total",
				Help: "Total number of cancelled calls",
			},
			[]string{"name"},
		),
		deduplicationHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_deduplication_hits_total",
				Help: "Total number of calls that shared an identical in-flight request",
			},
			[]string{"name"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type", "name"},
		),
	}
	if reg, ok := registry.(*prometheus.Registry); ok {
		mc.registry = reg
	}

	return mc
}

// OnEvent implements Observer.
func (mc *MetricsCollector) OnEvent(e Event) {
	if mc == nil {
		return
	}

	name, method := "unknown", "unknown"
	if e.Descriptor != nil {
		name, method = e.Descriptor.Name, e.Descriptor.HTTPMethod
	}

	switch e.Kind {
	case EventDispatched:
		mc.RecordRequestStart(name, method)
	case EventSucceeded, EventFailed, EventCancelled:
		mc.RecordRequestEnd(name, method)
		status := 0
		if e.Response != nil {
			status = e.Response.StatusCode
		}
		mc.RecordRequest(name, method, status, e.Kind.String(), e.Duration)
		switch e.Kind {
		case EventFailed:
			mc.recordFailure(name, e.Err)
		case EventCancelled:
			mc.cancellations.WithLabelValues(name).Inc()
		}
	case EventDrained:
		mc.drainsTotal.Inc()
	}
}

func (mc *MetricsCollector) recordFailure(name string, err error) {
	var transformErr *TransformError
	if errors.As(err, &transformErr) {
		mc.RecordTransformFailure(name, transformErr.Stage)
		return
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		mc.RecordError(transportErr.Type, name)
		return
	}
	mc.RecordError("Unknown", name)
}

// RecordRequest records call count and duration.
func (mc *MetricsCollector) RecordRequest(name, method string, statusCode int, outcome string, duration time.Duration) {
	if mc == nil {
		return
	}

	mc.requestsTotal.WithLabelValues(name, method, strconv.Itoa(statusCode), outcome).Inc()
	mc.requestDuration.WithLabelValues(name, method, outcome).Observe(duration.Seconds())
}

// RecordRequestStart increments in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(name, method string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(name, method).Inc()
}

// RecordRequestEnd decrements in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(name, method string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(name, method).Dec()
}

// RecordCircuitBreakerState sets gauge to breaker state.
func (mc *MetricsCollector) RecordCircuitBreakerState(name string, state CircuitState) {
	if mc == nil {
		return
	}

	var stateValue float64
	switch state {
	case StateClosed:
		stateValue = 0
	case StateOpen:
		stateValue = 1
	case StateHalfOpen:
		stateValue = 2
	}

	mc.circuitBreakerState.WithLabelValues(name).Set(stateValue)
}

// RecordTransformFailure increments the transform failure counter.
func (mc *MetricsCollector) RecordTransformFailure(name string, stage int) {
	if mc == nil {
		return
	}

	mc.transformFailures.WithLabelValues(name, strconv.Itoa(stage)).Inc()
}

// RecordDeduplicationHit counts a call served by another call's request.
func (mc *MetricsCollector) RecordDeduplicationHit(name string) {
	if mc == nil {
		return
	}

	mc.deduplicationHits.WithLabelValues(name).Inc()
}

// RecordError increments error counter by type.
func (mc *MetricsCollector) RecordError(errorType, name string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(errorType, name).Inc()
}

// GetRegistry exposes the underlying prometheus registry, nil when the
// collector was built on a plain Registerer.
func (mc *MetricsCollector) GetRegistry() *prometheus.Registry {
	return mc.registry
}
