// Package metrics holds the Prometheus instruments of the tracker. Every
// method is safe on a nil *Metrics so components can run uninstrumented.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	eventsTracked    *prometheus.CounterVec
	eventsDropped    *prometheus.CounterVec
	eventsUnattached prometheus.Counter
	sessionsStarted  prometheus.Counter
	sessionsEnded    prometheus.Counter
	storageFailures  *prometheus.CounterVec
	recomputeSeconds prometheus.Histogram
	exportFailures   *prometheus.CounterVec
}

// New creates the instruments on a dedicated registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		eventsTracked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logflow",
			Name:      "events_tracked_total",
			Help:      "Events recorded by the tracker, by type.",
		}, []string{"type"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logflow",
			Name:      "events_dropped_total",
			Help:      "Tracking calls that recorded nothing, by reason.",
		}, []string{"reason"}),
		eventsUnattached: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "logflow",
			Name:      "events_unattached_total",
			Help:      "Events recorded while no session was active.",
		}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "logflow",
			Name:      "sessions_started_total",
			Help:      "Sessions started.",
		}),
		sessionsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "logflow",
			Name:      "sessions_ended_total",
			Help:      "Sessions archived into the history.",
		}),
		storageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logflow",
			Name:      "storage_failures_total",
			Help:      "Persistence failures, by operation.",
		}, []string{"op"}),
		recomputeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "logflow",
			Name:      "dashboard_recompute_seconds",
			Help:      "Time spent recomputing the dashboard summary.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		exportFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logflow",
			Name:      "export_failures_total",
			Help:      "Events the forwarder failed to publish, by sink.",
		}, []string{"sink"}),
	}

	m.registry.MustRegister(
		m.eventsTracked,
		m.eventsDropped,
		m.eventsUnattached,
		m.sessionsStarted,
		m.sessionsEnded,
		m.storageFailures,
		m.recomputeSeconds,
		m.exportFailures,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) EventTracked(eventType string) {
	if m == nil {
		return
	}
	m.eventsTracked.WithLabelValues(eventType).Inc()
}

func (m *Metrics) EventDropped(reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(reason).Inc()
}

// EventUnattached counts an event kept in the log but outside any session
func (m *Metrics) EventUnattached() {
	if m == nil {
		return
	}
	m.eventsUnattached.Inc()
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
}

func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.sessionsEnded.Inc()
}

func (m *Metrics) StorageFailure(op string) {
	if m == nil {
		return
	}
	m.storageFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveRecompute(d time.Duration) {
	if m == nil {
		return
	}
	m.recomputeSeconds.Observe(d.Seconds())
}

func (m *Metrics) ExportFailure(sink string) {
	if m == nil {
		return
	}
	m.exportFailures.WithLabelValues(sink).Inc()
}
