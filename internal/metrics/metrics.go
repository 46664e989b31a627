// Package metrics provides Prometheus instrumentation for the fingerprint
// core: generation counts, digest cache hits and misses, collector failures,
// and collection latency. Embedding applications expose the registry however
// they serve metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the fingerprint core's Prometheus collectors. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	FingerprintsGenerated prometheus.Counter
	CacheHits             *prometheus.CounterVec
	CacheMisses           *prometheus.CounterVec
	CollectorFailures     *prometheus.CounterVec
	CollectDuration       *prometheus.HistogramVec
}

// New creates and registers the metric set on a private registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.FingerprintsGenerated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deviceprint_fingerprints_generated_total",
		Help: "Total fingerprint digests computed (cache hits excluded)",
	})
	m.CacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deviceprint_cache_hits_total",
		Help: "Cache hits by entry prefix",
	}, []string{"prefix"})
	m.CacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deviceprint_cache_misses_total",
		Help: "Cache misses by entry prefix",
	}, []string{"prefix"})
	m.CollectorFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deviceprint_collector_failures_total",
		Help: "Collector runs that contributed no attributes",
	}, []string{"collector"})
	m.CollectDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "deviceprint_collect_duration_seconds",
		Help:    "Per-collector acquisition latency",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 15},
	}, []string{"collector"})

	m.registry.MustRegister(
		m.FingerprintsGenerated,
		m.CacheHits,
		m.CacheMisses,
		m.CollectorFailures,
		m.CollectDuration,
	)
	return m
}

// Handler returns an HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveGeneration records a computed digest. Nil-safe.
func (m *Metrics) ObserveGeneration() {
	if m == nil {
		return
	}
	m.FingerprintsGenerated.Inc()
}

// ObserveCacheLookup records a cache hit or miss for a prefix. Nil-safe.
func (m *Metrics) ObserveCacheLookup(prefix string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.WithLabelValues(prefix).Inc()
	} else {
		m.CacheMisses.WithLabelValues(prefix).Inc()
	}
}

// ObserveCollect records one collector run. Nil-safe.
func (m *Metrics) ObserveCollect(collector string, seconds float64, empty bool) {
	if m == nil {
		return
	}
	m.CollectDuration.WithLabelValues(collector).Observe(seconds)
	if empty {
		m.CollectorFailures.WithLabelValues(collector).Inc()
	}
}
