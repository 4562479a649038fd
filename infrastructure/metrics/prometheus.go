// Package metrics implements the ports.MetricsCollector interface with
// Prometheus, exposing the generation pipeline's latencies, request
// outcomes, token usage, and dollar costs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/specforge/specforge/internal/ports"
)

// PrometheusCollector registers and feeds the service's Prometheus metrics.
// Metric names arriving through the collector interface are routed to the
// matching typed vector; unrecognized names fall through to a generic
// family so no measurement is silently dropped.
type PrometheusCollector struct {
	requestLatency *prometheus.HistogramVec
	requestsTotal  *prometheus.CounterVec
	tokensTotal    *prometheus.CounterVec
	costDollars    *prometheus.HistogramVec

	genericCounters   *prometheus.CounterVec
	genericGauges     *prometheus.GaugeVec
	genericHistograms *prometheus.HistogramVec
}

// NewPrometheusCollector creates the collector and registers its metrics in
// the default Prometheus registry. Construct it once per process.
func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		requestLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_latency_seconds",
				Help:    "Latency of LLM provider calls.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "model", "status"},
		),
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "LLM provider calls by outcome.",
			},
			[]string{"provider", "model", "status"},
		),
		tokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Tokens consumed by LLM calls, split by direction.",
			},
			[]string{"provider", "model", "status", "token_type"},
		),
		costDollars: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "generation_cost_dollars",
				Help:    "Dollar cost per generation request.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"provider", "document_type"},
		),

		genericCounters: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "specforge_events_total",
				Help: "Uncategorized counter events.",
			},
			[]string{"metric"},
		),
		genericGauges: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "specforge_state",
				Help: "Uncategorized gauge values.",
			},
			[]string{"metric"},
		),
		genericHistograms: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "specforge_observations",
				Help:    "Uncategorized histogram observations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"metric"},
		),
	}
}

// RecordLatency records an operation's execution time.
func (p *PrometheusCollector) RecordLatency(_ string, duration time.Duration, labels map[string]string) {
	p.requestLatency.WithLabelValues(
		labels["provider"], labels["model"], labels["status"],
	).Observe(duration.Seconds())
}

// RecordCounter increments the counter matching the metric name.
func (p *PrometheusCollector) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case "llm_requests_total":
		p.requestsTotal.WithLabelValues(
			labels["provider"], labels["model"], labels["status"],
		).Add(value)
	case "llm_tokens_total":
		p.tokensTotal.WithLabelValues(
			labels["provider"], labels["model"], labels["status"], labels["token_type"],
		).Add(value)
	default:
		p.genericCounters.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge sets the gauge matching the metric name.
func (p *PrometheusCollector) RecordGauge(metric string, value float64, _ map[string]string) {
	p.genericGauges.WithLabelValues(metric).Set(value)
}

// RecordHistogram observes a value in the histogram matching the metric
// name.
func (p *PrometheusCollector) RecordHistogram(metric string, value float64, labels map[string]string) {
	switch metric {
	case "llm_latency_seconds":
		p.requestLatency.WithLabelValues(
			labels["provider"], labels["model"], labels["status"],
		).Observe(value)
	case "generation_cost_dollars":
		p.costDollars.WithLabelValues(
			labels["provider"], labels["document_type"],
		).Observe(value)
	default:
		p.genericHistograms.WithLabelValues(metric).Observe(value)
	}
}

var _ ports.MetricsCollector = (*PrometheusCollector)(nil)
