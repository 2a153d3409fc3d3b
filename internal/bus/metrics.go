package bus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

// Metrics holds all Prometheus metrics for the ingest path.
type Metrics struct {
	PublishTotal      prometheus.Counter
	InvalidTotal      prometheus.Counter
	RetryTotal        prometheus.Counter
	UnauthorizedTotal prometheus.Counter
	PublishLatencyMs  prometheus.Histogram
	InflightRequests  prometheus.Gauge
	DedupeHitsTotal   prometheus.Counter
	WALAppendTotal    prometheus.Counter
}

// NewMetrics creates and registers all ingest metrics. A nil registerer
// targets the default registry; tests pass their own.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		PublishTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "bus_publish_total",
			Help: "Total envelopes offered to the bus",
		}),
		InvalidTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "bus_invalid_total",
			Help: "Envelopes rejected as INVALID (size, decode, missing payload)",
		}),
		RetryTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "bus_retry_total",
			Help: "Envelopes answered with RETRY (overload, capacity, storage)",
		}),
		UnauthorizedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "bus_unauthorized_total",
			Help: "Envelopes rejected for unknown peer CN or bad signature",
		}),
		PublishLatencyMs: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bus_publish_latency_ms",
			Help:    "Publish handling latency in milliseconds",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
		InflightRequests: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bus_inflight_requests",
			Help: "Publishes currently inside the admission pipeline",
		}),
		DedupeHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "bus_dedupe_hits_total",
			Help: "Duplicate idempotency keys collapsed by the dedupe cache",
		}),
		WALAppendTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "bus_wal_append_total",
			Help: "Envelopes durably appended to the WAL",
		}),
	}
}

// RecordPublish records one completed publish with its verdict and latency.
func (m *Metrics) RecordPublish(status pb.PublishAck_Status, latencyMs float64) {
	m.PublishTotal.Inc()
	m.PublishLatencyMs.Observe(latencyMs)
	switch status {
	case pb.PublishAck_INVALID:
		m.InvalidTotal.Inc()
	case pb.PublishAck_RETRY:
		m.RetryTotal.Inc()
	case pb.PublishAck_UNAUTHORIZED:
		m.UnauthorizedTotal.Inc()
	}
}
