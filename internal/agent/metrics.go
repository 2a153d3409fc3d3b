package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the publish path and the
// collector loops.
type Metrics struct {
	PublishTotal    *prometheus.CounterVec
	TransportErrors prometheus.Counter
	QueueDepth      prometheus.Gauge
	QueueBytes      prometheus.Gauge
	EventsCollected *prometheus.CounterVec
	CollectFailures *prometheus.CounterVec
	BreakerOpens    prometheus.Counter
}

// NewMetrics creates and registers all agent metrics. A nil registerer
// targets the default registry; tests pass their own.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		PublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_publish_total",
			Help: "Publish attempts by ACK status",
		}, []string{"status"}),
		TransportErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "agent_transport_errors_total",
			Help: "Publishes that failed before an ACK arrived",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agent_queue_depth",
			Help: "Envelopes waiting in the local durable queue",
		}),
		QueueBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agent_queue_bytes",
			Help: "Payload bytes waiting in the local durable queue",
		}),
		EventsCollected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_events_collected_total",
			Help: "Telemetry events produced, by collector",
		}, []string{"collector"}),
		CollectFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_collect_failures_total",
			Help: "Collector cycles that returned an error, by collector",
		}, []string{"collector"}),
		BreakerOpens: factory.NewCounter(prometheus.CounterOpts{
			Name: "agent_breaker_opens_total",
			Help: "Times the publish circuit breaker tripped open",
		}),
	}
}
