package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

// WorkerMetrics covers event handling, the outbox relay, sweeps and the
// resilience layer. It satisfies resilience.Observer.
type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	eventsTotal     *prometheus.CounterVec
	eventDuration   *prometheus.HistogramVec
	eventsInFlight  prometheus.Gauge
	eventLag        *prometheus.HistogramVec
	relayedTotal    *prometheus.CounterVec
	sweepRunsTotal  *prometheus.CounterVec
	sweepItemsTotal *prometheus.CounterVec
	sweepDuration   *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "events_total",
			Help:      "Handled domain events by type and status.",
		},
		[]string{"service", "event_type", "status"},
	)
	eventDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "event_duration_seconds",
			Help:      "Event handling duration in seconds by type.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "event_type"},
	)
	eventsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "events_in_flight",
			Help:      "Number of events being handled.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	eventLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "event_lag_seconds",
			Help:      "Delay between an event occurring and its handling start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	relayedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "relayed_total",
			Help:      "Outbox events published to the bus, and relay errors.",
		},
		[]string{"service", "status"},
	)
	sweepRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Sweep runs by outcome.",
		},
		[]string{"service", "sweep", "outcome"},
	)
	sweepItemsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "items_total",
			Help:      "Items touched by sweeps by result.",
		},
		[]string{"service", "sweep", "result"},
	)
	sweepDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Sweep run duration in seconds.",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 60, 300},
		},
		[]string{"service", "sweep"},
	)
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Retried outbound calls by operation.",
		},
		[]string{"service", "operation"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker of an operation is not closed.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		eventsTotal,
		eventDuration,
		eventsInFlight,
		eventLag,
		relayedTotal,
		sweepRunsTotal,
		sweepItemsTotal,
		sweepDuration,
		retriesTotal,
		breakerState,
	)

	return &WorkerMetrics{
		registry:        registry,
		service:         service,
		eventsTotal:     eventsTotal,
		eventDuration:   eventDuration,
		eventsInFlight:  eventsInFlight,
		eventLag:        eventLag,
		relayedTotal:    relayedTotal,
		sweepRunsTotal:  sweepRunsTotal,
		sweepItemsTotal: sweepItemsTotal,
		sweepDuration:   sweepDuration,
		retriesTotal:    retriesTotal,
		breakerState:    breakerState,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Instrument wraps an event handler with in-flight, lag and outcome metrics.
func (m *WorkerMetrics) Instrument(next ports.EventHandler) ports.EventHandler {
	return func(ctx context.Context, event domain.Event) error {
		start := time.Now()
		if !event.OccurredAt.IsZero() {
			if lag := start.Sub(event.OccurredAt); lag >= 0 {
				m.eventLag.WithLabelValues(m.service).Observe(lag.Seconds())
			}
		}
		m.eventsInFlight.Inc()
		defer m.eventsInFlight.Dec()

		err := next(ctx, event)

		status := "success"
		if err != nil {
			status = "error"
		}
		m.eventsTotal.WithLabelValues(m.service, string(event.Type), status).Inc()
		m.eventDuration.WithLabelValues(m.service, string(event.Type)).Observe(time.Since(start).Seconds())
		return err
	}
}

func (m *WorkerMetrics) RecordRelay(published int, err error) {
	if published > 0 {
		m.relayedTotal.WithLabelValues(m.service, "published").Add(float64(published))
	}
	if err != nil {
		m.relayedTotal.WithLabelValues(m.service, "error").Inc()
	}
}

func (m *WorkerMetrics) RecordSweep(sweep string, skipped bool, processed, failed int64, duration time.Duration, err error) {
	outcome := "completed"
	switch {
	case err != nil:
		outcome = "error"
	case skipped:
		outcome = "skipped"
	}
	m.sweepRunsTotal.WithLabelValues(m.service, sweep, outcome).Inc()
	if processed > 0 {
		m.sweepItemsTotal.WithLabelValues(m.service, sweep, "processed").Add(float64(processed))
	}
	if failed > 0 {
		m.sweepItemsTotal.WithLabelValues(m.service, sweep, "failed").Add(float64(failed))
	}
	if !skipped {
		m.sweepDuration.WithLabelValues(m.service, sweep).Observe(duration.Seconds())
	}
}

func (m *WorkerMetrics) ObserveRetry(operation string) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *WorkerMetrics) ObserveBreakerState(operation, state string) {
	value := 1.0
	if state == "closed" {
		value = 0
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}
