package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "studiodesk"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	conflictChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflict_checks_total",
			Help:      "Studio and inventory checks by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	oracleCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_calls_total",
			Help:      "Suggestion oracle calls by outcome (ok, error, timeout, disabled).",
		},
		[]string{"outcome"},
	)

	bookingEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_events_total",
			Help:      "Booking lifecycle events by type.",
		},
		[]string{"type"},
	)

	assistantDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assistant_check_seconds",
			Help:      "Duration of smart booking checks.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, conflictChecks, oracleCalls, bookingEvents, assistantDuration)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncConflictCheck records a check; kind is "studio" or "inventory",
// outcome is "clear", "conflict" or "error".
func IncConflictCheck(kind, outcome string) {
	conflictChecks.WithLabelValues(kind, outcome).Inc()
}

func IncOracle(outcome string) {
	oracleCalls.WithLabelValues(outcome).Inc()
}

func IncBookingEvent(eventType string) {
	bookingEvents.WithLabelValues(eventType).Inc()
}

func ObserveAssistant(d time.Duration) {
	assistantDuration.Observe(d.Seconds())
}
