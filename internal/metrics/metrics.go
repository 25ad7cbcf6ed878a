// Package metrics exposes the Prometheus instruments for scans, routing and
// background tasks. Each Metrics owns its registry, so tests can build as
// many as they like without colliding on the default registerer.
package metrics

import (
	"database/sql"
	"net/http"

	"github.com/phrazzld/pagescan/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pagescan"

// Routing outcomes used as the "outcome" label.
const (
	RoutingOutcomeRouted = "routed"
	RoutingOutcomeOwner  = "owner_resolution"
	RoutingOutcomeError  = "error"
	RoutingOutcomeStale  = "stale"
)

// Metrics holds all pagescan Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	ScansSubmitted   prometheus.Counter
	ScansSuperseded  prometheus.Counter
	ScansCompleted   prometheus.Counter
	ScansFailed      *prometheus.CounterVec
	ImagesStored     prometheus.Counter
	RoutingRuns      *prometheus.CounterVec
	RoutedItems      *prometheus.CounterVec
	DispatchDuration prometheus.Histogram
}

// New creates the metrics on a fresh registry that also carries the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ScansSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_submitted_total",
			Help:      "Scan jobs created by image submissions",
		}),
		ScansSuperseded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_superseded_total",
			Help:      "Unresolved scan jobs replaced by a newer submission",
		}),
		ScansCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_completed_total",
			Help:      "Scan jobs that reached done",
		}),
		ScansFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_failed_total",
			Help:      "Scan jobs that reached failed, by error kind",
		}, []string{"kind"}),
		ImagesStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_stored_total",
			Help:      "Page images written to object storage",
		}),
		RoutingRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_runs_total",
			Help:      "Content routing runs, by outcome",
		}, []string{"outcome"}),
		RoutedItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routed_items_total",
			Help:      "Records written by content routing, by collection",
		}, []string{"collection"}),
		DispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time to hand a job to the recognizer",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// RegisterDB adds connection pool statistics for db.
func (m *Metrics) RegisterDB(db *sql.DB) error {
	return m.registry.Register(collectors.NewDBStatsCollector(db, namespace))
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ScanSubmitted records a new scan job.
func (m *Metrics) ScanSubmitted() { m.ScansSubmitted.Inc() }

// ScanSuperseded records n jobs replaced by a newer submission.
func (m *Metrics) ScanSuperseded(n int) { m.ScansSuperseded.Add(float64(n)) }

// ScanCompleted records a job reaching done.
func (m *Metrics) ScanCompleted() { m.ScansCompleted.Inc() }

// ScanFailed records a job reaching failed.
func (m *Metrics) ScanFailed(kind domain.JobErrorKind) {
	m.ScansFailed.WithLabelValues(string(kind)).Inc()
}

// ImageStored records one uploaded page image.
func (m *Metrics) ImageStored() { m.ImagesStored.Inc() }

// ContentRouted records a routing run and what it wrote.
func (m *Metrics) ContentRouted(outcome string, tasks, events int) {
	m.RoutingRuns.WithLabelValues(outcome).Inc()
	if tasks > 0 {
		m.RoutedItems.WithLabelValues("task_items").Add(float64(tasks))
	}
	if events > 0 {
		m.RoutedItems.WithLabelValues("calendar_events").Add(float64(events))
	}
}

// ObserveDispatch records how long a dispatch took, in seconds.
func (m *Metrics) ObserveDispatch(seconds float64) {
	m.DispatchDuration.Observe(seconds)
}
