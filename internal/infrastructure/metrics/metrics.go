// Package metrics exposes allocator and HTTP metrics to Prometheus.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"salonid/internal/domain/allocator"
)

// Metrics holds the allocator collectors. It implements allocator.Observer.
type Metrics struct {
	issued     *prometheus.CounterVec
	collisions *prometheus.CounterVec
	escalated  *prometheus.CounterVec
	failures   *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge
}

var _ allocator.Observer = (*Metrics)(nil)

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		issued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salonid_ids_issued_total",
				Help: "Identifiers registered, by entity type",
			},
			[]string{"entity_type"},
		),
		collisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salonid_id_collisions_total",
				Help: "Candidate numbers rejected, by prefix and stage (claim, registry)",
			},
			[]string{"prefix", "stage"},
		),
		escalated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salonid_id_escalations_total",
				Help: "Digit length escalations, by prefix and exhausted length",
			},
			[]string{"prefix", "digit_length"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salonid_id_failures_total",
				Help: "Failed allocator operations, by error code",
			},
			[]string{"code"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		httpInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_inflight_requests",
				Help: "Number of HTTP requests currently being served",
			},
		),
	}
}

// Issued implements allocator.Observer.
func (m *Metrics) Issued(entityType string, n int) {
	m.issued.WithLabelValues(entityType).Add(float64(n))
}

// Collision implements allocator.Observer.
func (m *Metrics) Collision(prefix, stage string) {
	m.collisions.WithLabelValues(prefix, stage).Inc()
}

// Escalated implements allocator.Observer.
func (m *Metrics) Escalated(prefix string, fromLength int) {
	m.escalated.WithLabelValues(prefix, strconv.Itoa(fromLength)).Inc()
}

// Failed implements allocator.Observer.
func (m *Metrics) Failed(code string) {
	m.failures.WithLabelValues(code).Inc()
}
