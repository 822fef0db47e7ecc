package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the chat relay collectors. Collectors are registered on the
// registry handed to New so tests can use an isolated one.
type Metrics struct {
	ChatRequests        *prometheus.CounterVec
	GenerationAttempts  *prometheus.CounterVec
	GenerationDuration  *prometheus.HistogramVec
	PersistenceFailures *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
}

// New creates and registers the collectors.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChatRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jelajah",
				Subsystem: "chat",
				Name:      "requests_total",
				Help:      "Orchestrated chat requests by final state",
			},
			[]string{"outcome"},
		),
		GenerationAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jelajah",
				Subsystem: "chat",
				Name:      "generation_attempts_total",
				Help:      "Generation backend attempts by result",
			},
			[]string{"backend", "result"},
		),
		GenerationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "jelajah",
				Subsystem: "chat",
				Name:      "generation_duration_seconds",
				Help:      "Wall time spent producing a reply, retries included",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"backend"},
		),
		PersistenceFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jelajah",
				Subsystem: "chat",
				Name:      "persistence_failures_total",
				Help:      "Message store failures by operation",
			},
			[]string{"op"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jelajah",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "jelajah",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"method", "route"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.ChatRequests,
			m.GenerationAttempts,
			m.GenerationDuration,
			m.PersistenceFailures,
			m.HTTPRequests,
			m.HTTPDuration,
		)
	}
	return m
}

// NewNop returns unregistered collectors, handy in tests.
func NewNop() *Metrics {
	return New(nil)
}

// RecordChat records the final state of one orchestrated request.
func (m *Metrics) RecordChat(outcome string) {
	m.ChatRequests.WithLabelValues(outcome).Inc()
}

// RecordAttempt records one generation attempt.
func (m *Metrics) RecordAttempt(backend, result string) {
	m.GenerationAttempts.WithLabelValues(backend, result).Inc()
}

// ObserveGeneration records the total generation time of a request.
func (m *Metrics) ObserveGeneration(backend string, elapsed time.Duration) {
	m.GenerationDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
}

// RecordPersistenceFailure records a failed store operation.
func (m *Metrics) RecordPersistenceFailure(op string) {
	m.PersistenceFailures.WithLabelValues(op).Inc()
}

// RecordHTTP records an HTTP request.
func (m *Metrics) RecordHTTP(method, route, status string, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
