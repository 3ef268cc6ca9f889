// Package metrics exposes Prometheus metrics for checkout and the RPC surface.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric names.
const (
	MetricCheckoutTransitionsTotal = "foliodesk_checkout_transitions_total"
	MetricCheckoutFailuresTotal    = "foliodesk_checkout_failures_total"
	MetricIdempotentReplaysTotal   = "foliodesk_idempotent_replays_total"
	MetricIntegrityWarningsTotal   = "foliodesk_integrity_warnings_total"
	MetricRPCDurationSeconds       = "foliodesk_rpc_duration_seconds"
)

// Metrics holds the collectors on a private registry.
// It implements settlement.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	transitions *prometheus.CounterVec
	failures    *prometheus.CounterVec
	replays     *prometheus.CounterVec
	warnings    prometheus.Counter
	rpcDuration *prometheus.HistogramVec
}

// New creates and registers all collectors, plus the Go runtime and process
// collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricCheckoutTransitionsTotal,
			Help: "Checkout state machine transitions",
		}, []string{"from", "to"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricCheckoutFailuresTotal,
			Help: "Failed checkout attempts by the state they failed in",
		}, []string{"state"}),
		replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricIdempotentReplaysTotal,
			Help: "Mutations answered from a stored result instead of the backend",
		}, []string{"op"}),
		warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricIntegrityWarningsTotal,
			Help: "Folio snapshots that failed reconciliation",
		}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricRPCDurationSeconds,
			Help:    "RPC handling latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"procedure", "code"}),
	}

	registry.MustRegister(
		m.transitions,
		m.failures,
		m.replays,
		m.warnings,
		m.rpcDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Transition counts a checkout state change.
func (m *Metrics) Transition(from, to string) {
	m.transitions.WithLabelValues(from, to).Inc()
}

// AttemptFailed counts a failed checkout attempt.
func (m *Metrics) AttemptFailed(state string) {
	m.failures.WithLabelValues(state).Inc()
}

// Replayed counts an idempotent replay.
func (m *Metrics) Replayed(op string) {
	m.replays.WithLabelValues(op).Inc()
}

// IntegrityWarning counts a reconciliation failure.
func (m *Metrics) IntegrityWarning() {
	m.warnings.Inc()
}

// ObserveRPC records the latency of one RPC.
func (m *Metrics) ObserveRPC(procedure, code string, d time.Duration) {
	m.rpcDuration.WithLabelValues(procedure, code).Observe(d.Seconds())
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
