// internal/metrics/prometheus/prometheus.go
package prometheus

import (
	"time"

	"wallet-engine/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements metrics.MetricsCollector for Prometheus.
type PrometheusCollector struct {
	transactions  *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	fees          *prometheus.CounterVec
	replays       *prometheus.CounterVec
	queueDepth    prometheus.Gauge
	droppedEvents prometheus.Counter
	notifications *prometheus.CounterVec
	circuitState  *prometheus.GaugeVec
}

var _ metrics.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheusCollector creates the collector. Call Register before serving /metrics.
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	return &PrometheusCollector{
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_total",
				Help:      "Transactions processed per type and outcome (COMPLETED or error kind)",
			},
			[]string{"type", "outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transaction_duration_seconds",
				Help:      "End-to-end transaction execution latency",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"type"},
		),
		fees: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fees_collected_total",
				Help:      "Fees credited to the system wallet per transaction type",
			},
			[]string{"type"},
		),
		replays: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "idempotent_replays_total",
				Help:      "Requests answered with a prior result, by where it was found",
			},
			[]string{"source"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "event_queue_depth",
				Help:      "Completion events waiting for a worker",
			},
		),
		droppedEvents: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dropped_total",
				Help:      "Completion events dropped because the queue was full",
			},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notification deliveries per channel and status",
			},
			[]string{"channel", "status"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "notification_circuit_state",
				Help:      "Circuit breaker state per channel (0=closed, 1=open, 2=half-open)",
			},
			[]string{"channel"},
		),
	}
}

// Register registers all metrics with the given Prometheus registry.
func (pc *PrometheusCollector) Register(registry prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		pc.transactions,
		pc.latency,
		pc.fees,
		pc.replays,
		pc.queueDepth,
		pc.droppedEvents,
		pc.notifications,
		pc.circuitState,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

func (pc *PrometheusCollector) RecordTransaction(txType string, outcome string, duration time.Duration) {
	pc.transactions.WithLabelValues(txType, outcome).Inc()
	pc.latency.WithLabelValues(txType).Observe(duration.Seconds())
}

func (pc *PrometheusCollector) RecordFee(txType string, fee float64) {
	pc.fees.WithLabelValues(txType).Add(fee)
}

func (pc *PrometheusCollector) RecordIdempotentReplay(source string) {
	pc.replays.WithLabelValues(source).Inc()
}

func (pc *PrometheusCollector) RecordQueueDepth(depth int) {
	pc.queueDepth.Set(float64(depth))
}

func (pc *PrometheusCollector) RecordEventDropped() {
	pc.droppedEvents.Inc()
}

func (pc *PrometheusCollector) RecordNotification(channel string, success bool) {
	status := "sent"
	if !success {
		status = "failed"
	}
	pc.notifications.WithLabelValues(channel, status).Inc()
}

func (pc *PrometheusCollector) RecordCircuitState(channel string, state metrics.CircuitState) {
	pc.circuitState.WithLabelValues(channel).Set(float64(state))
}
