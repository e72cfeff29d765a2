// Package prometheus records sync coordinator activity as Prometheus metrics.
package prometheus

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/ports/driven"
)

// Ensure Metrics implements the interface.
var _ driven.SyncMetrics = (*Metrics)(nil)

// Metrics is a driven.SyncMetrics backed by its own registry.
type Metrics struct {
	registry *prometheus.Registry

	propagated   *prometheus.CounterVec
	retried      *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
	latency      prometheus.Histogram
	outboxDepth  *prometheus.GaugeVec
	reindex      *prometheus.HistogramVec
}

// New creates the metrics and registers them with a fresh registry
// alongside the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		propagated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "annotext_propagation_tasks_propagated_total",
			Help: "Propagation tasks accepted by the search index",
		}, []string{"entity", "op"}),
		retried: f.NewCounterVec(prometheus.CounterOpts{
			Name: "annotext_propagation_tasks_retried_total",
			Help: "Failed propagation attempts scheduled for retry",
		}, []string{"entity", "op"}),
		deadLettered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "annotext_propagation_tasks_dead_lettered_total",
			Help: "Propagation tasks that exhausted their attempts",
		}, []string{"entity", "op"}),
		latency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "annotext_propagation_latency_seconds",
			Help:    "Time from commit to successful propagation",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		}),
		outboxDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "annotext_outbox_tasks",
			Help: "Propagation tasks by state",
		}, []string{"state"}),
		reindex: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "annotext_reindex_duration_seconds",
			Help:    "Full reindex duration by final status",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		}, []string{"status"}),
	}
}

// Registry returns the registry holding every metric.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TaskPropagated counts a task the index accepted.
func (m *Metrics) TaskPropagated(entity domain.EntityKind, op domain.TaskOp) {
	m.propagated.WithLabelValues(string(entity), string(op)).Inc()
}

// TaskRetried counts a failed attempt that will be retried.
func (m *Metrics) TaskRetried(entity domain.EntityKind, op domain.TaskOp) {
	m.retried.WithLabelValues(string(entity), string(op)).Inc()
}

// TaskDeadLettered counts a task that exhausted its attempts.
func (m *Metrics) TaskDeadLettered(entity domain.EntityKind, op domain.TaskOp) {
	m.deadLettered.WithLabelValues(string(entity), string(op)).Inc()
}

// PropagationLatency observes the time from commit to propagation.
func (m *Metrics) PropagationLatency(d time.Duration) {
	m.latency.Observe(d.Seconds())
}

// OutboxDepth sets the number of tasks in each state. States missing from
// counts are reported as zero.
func (m *Metrics) OutboxDepth(counts map[domain.TaskState]int) {
	for _, s := range []domain.TaskState{
		domain.TaskPending, domain.TaskAppliedToStore, domain.TaskPropagated, domain.TaskPropagationFailed,
	} {
		m.outboxDepth.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}

// ReindexFinished observes a full reindex run.
func (m *Metrics) ReindexFinished(d time.Duration, status domain.IndexStatus) {
	m.reindex.WithLabelValues(string(status)).Observe(d.Seconds())
}
