// Package metrics exposes Prometheus instrumentation for path resolution
// and forwarder binding.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomePartial = "partial"
	OutcomeNoop    = "noop"
)

// Registry holds every sfcpath collector. It is separate from the global
// registry so tests and embedders get a predictable set of series.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		resolveTotal,
		resolveDurationSeconds,
		unresolveTotal,
		bindTotal,
		bindConflictsTotal,
		unitsInFlight,
	)
}

var (
	resolveTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sfcpath_resolve_total",
			Help: "Total number of chain resolutions by outcome",
		},
		[]string{"outcome"},
	)

	resolveDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sfcpath_resolve_duration_seconds",
			Help:    "Duration of chain resolution including binding",
			Buckets: prometheus.DefBuckets,
		},
	)

	unresolveTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sfcpath_unresolve_total",
			Help: "Total number of path deletions by outcome",
		},
		[]string{"outcome"},
	)

	bindTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sfcpath_bind_total",
			Help: "Total number of forwarder dictionary updates by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	bindConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sfcpath_bind_conflicts_total",
			Help: "Total number of conditional forwarder writes retried after an etag conflict",
		},
	)

	unitsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sfcpath_units_in_flight",
			Help: "Number of create and delete units currently running",
		},
	)
)

// ObserveResolve records one resolution.
func ObserveResolve(outcome string, elapsed time.Duration) {
	resolveTotal.WithLabelValues(outcome).Inc()
	resolveDurationSeconds.Observe(elapsed.Seconds())
}

// ObserveUnresolve records one path deletion.
func ObserveUnresolve(outcome string) {
	unresolveTotal.WithLabelValues(outcome).Inc()
}

// ObserveBind records one Bind, Unbind or Upsert. op is "bind", "unbind" or "upsert".
func ObserveBind(op, outcome string) {
	bindTotal.WithLabelValues(op, outcome).Inc()
}

// ObserveConflict records one etag conflict that caused a retry.
func ObserveConflict() {
	bindConflictsTotal.Inc()
}

// UnitStarted marks a unit of work as running.
func UnitStarted() { unitsInFlight.Inc() }

// UnitFinished marks a running unit of work as done.
func UnitFinished() { unitsInFlight.Dec() }

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
