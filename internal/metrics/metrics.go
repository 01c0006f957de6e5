// Package metrics exposes Prometheus counters for connected queries.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Warning kinds counted by Warn.
const (
	WarnAmbiguousDirection = "ambiguous_direction"
	WarnCorruptedData      = "corrupted_data"
	WarnIgnoredPaging      = "ignored_paging"
	WarnInvalidQuery       = "invalid_query"
)

// Metrics holds the counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ConnectedQueries *prometheus.CounterVec
	RewrittenQueries *prometheus.CounterVec
	Warnings         *prometheus.CounterVec
	MetaCacheWarms   prometheus.Counter
}

// New creates the counters on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ConnectedQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "p2p",
			Name:      "connected_queries_total",
			Help:      "Connected-item queries issued, by connection type.",
		}, []string{"type"}),
		RewrittenQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "p2p",
			Name:      "rewritten_queries_total",
			Help:      "Host queries whose clauses were rewritten, by object kind.",
		}, []string{"object"}),
		Warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "p2p",
			Name:      "warnings_total",
			Help:      "Non-fatal problems reported by the connection layer.",
		}, []string{"kind"}),
		MetaCacheWarms: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "p2p",
			Name:      "meta_cache_warms_total",
			Help:      "Batched connection metadata cache loads.",
		}),
	}
	reg.MustRegister(m.ConnectedQueries, m.RewrittenQueries, m.Warnings, m.MetaCacheWarms)
	return m
}

// ConnectedQuery counts a connected query on connectionType.
func (m *Metrics) ConnectedQuery(connectionType string) {
	if m == nil {
		return
	}
	m.ConnectedQueries.WithLabelValues(connectionType).Inc()
}

// Rewritten counts a host query rewritten for object.
func (m *Metrics) Rewritten(object string) {
	if m == nil {
		return
	}
	m.RewrittenQueries.WithLabelValues(object).Inc()
}

// Warn counts a warning of the given kind.
func (m *Metrics) Warn(kind string) {
	if m == nil {
		return
	}
	m.Warnings.WithLabelValues(kind).Inc()
}

// MetaCacheWarm counts a metadata cache load.
func (m *Metrics) MetaCacheWarm() {
	if m == nil {
		return
	}
	m.MetaCacheWarms.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
