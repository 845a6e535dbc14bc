// Package metrics provides Prometheus instrumentation for the opcoord server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts submitted operations by final outcome.
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opcoord",
		Name:      "operations_total",
		Help:      "Total number of operations submitted, by outcome.",
	}, []string{"operation", "outcome"})

	// RetryAttempts counts failed attempts by failure class.
	RetryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opcoord",
		Name:      "retry_attempts_total",
		Help:      "Total number of failed attempts, by failure class.",
	}, []string{"class"})

	// RetryDelay tracks computed backoff delays.
	RetryDelay = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "opcoord",
		Name:      "retry_delay_seconds",
		Help:      "Computed backoff delay before a retry attempt.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
	})

	// IdempotencyTotal counts idempotent submissions by resolution.
	IdempotencyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opcoord",
		Name:      "idempotency_total",
		Help:      "Idempotent submissions by resolution: acquired, replayed, duplicate.",
	}, []string{"result"})

	// EventsTotal counts inbound notifications by delivery status.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opcoord",
		Name:      "events_total",
		Help:      "Inbound notifications by delivery status.",
	}, []string{"status"})

	// WaitSessions tracks the number of open wait sessions.
	WaitSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "opcoord",
		Name:      "wait_sessions",
		Help:      "Number of open wait sessions.",
	})

	// WaitDuration tracks how long waits took to resolve, by final status.
	WaitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "opcoord",
		Name:      "wait_duration_seconds",
		Help:      "Duration of wait sessions from registration to resolution.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 900, 1800},
	}, []string{"status"})

	// SweptRecords counts idempotency records removed by the sweeper.
	SweptRecords = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "opcoord",
		Name:      "swept_records_total",
		Help:      "Total number of expired idempotency records removed by the sweeper.",
	})

	// ServerInfo exposes build information as a constant gauge.
	ServerInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "opcoord",
		Name:      "server_info",
		Help:      "Server build information.",
	}, []string{"version"})
)

// Init sets constant info metrics. Call once at startup.
func Init(version string) {
	ServerInfo.WithLabelValues(version).Set(1)
}
