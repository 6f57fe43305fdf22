package bus

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BusMetricsConfig holds configuration for bus instrumentation.
type BusMetricsConfig struct {
	Enabled bool
}

// BusMetrics exports dispatch-level counters and timings through an
// OpenTelemetry meter. Per-listener aggregates stay in ListenerMetrics;
// this is the process-wide view.
type BusMetrics struct {
	config     BusMetricsConfig
	registered bool
	mu         sync.RWMutex

	eventsPublished  metric.Int64Counter
	invocations      metric.Int64Counter
	dispatchDuration metric.Float64Histogram
}

// NewBusMetrics creates a bus metrics provider.
func NewBusMetrics(cfg BusMetricsConfig) *BusMetrics {
	return &BusMetrics{config: cfg}
}

// MetricsName returns the metrics group name.
func (m *BusMetrics) MetricsName() string { return "bus" }

// IsMetricsEnabled reports whether collection is enabled.
func (m *BusMetrics) IsMetricsEnabled() bool { return m.config.Enabled }

// RegisterMetrics registers all instruments with the provided meter.
// Registering twice is a no-op.
func (m *BusMetrics) RegisterMetrics(meter metric.Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registered {
		return nil
	}

	var err error
	m.eventsPublished, err = meter.Int64Counter(
		"bus_events_published_total",
		metric.WithDescription("Total number of events published to the bus"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	m.invocations, err = meter.Int64Counter(
		"bus_listener_invocations_total",
		metric.WithDescription("Total number of listener invocations by result"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return err
	}

	m.dispatchDuration, err = meter.Float64Histogram(
		"bus_dispatch_duration_seconds",
		metric.WithDescription("Fan-out duration per published event"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	m.registered = true
	return nil
}

// RecordPublished records one published event and its fan-out duration.
func (m *BusMetrics) RecordPublished(ctx context.Context, topic string, d time.Duration) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.registered {
		return
	}
	attrs := metric.WithAttributes(attribute.String("topic", topic))
	m.eventsPublished.Add(ctx, 1, attrs)
	m.dispatchDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordInvocation records one listener invocation outcome.
func (m *BusMetrics) RecordInvocation(ctx context.Context, topic, result string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.registered {
		return
	}
	m.invocations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("result", result),
	))
}
