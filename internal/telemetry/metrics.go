package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the search core. A nil
// *Metrics is valid and records nothing, so components take it as an
// optional dependency without guarding every call site.
type Metrics struct {
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	cacheEvictions *prometheus.CounterVec

	backendRequests *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	failovers       prometheus.Counter

	degradedQueries prometheus.Counter
	queryDuration   prometheus.Histogram
}

// New creates and registers the search core metrics. Registration
// errors surface so duplicate registration is caught at startup.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hybridsearch",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		}, []string{"cache"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hybridsearch",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses",
		}, []string{"cache"}),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hybridsearch",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total number of LRU cache evictions",
		}, []string{"cache"}),
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hybridsearch",
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Embedding backend requests by outcome",
		}, []string{"backend", "outcome"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hybridsearch",
			Subsystem: "backend",
			Name:      "request_seconds",
			Help:      "Embedding backend request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
		failovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hybridsearch",
			Subsystem: "backend",
			Name:      "failovers_total",
			Help:      "Total number of backend failover events",
		}),
		degradedQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hybridsearch",
			Subsystem: "search",
			Name:      "degraded_queries_total",
			Help:      "Queries answered with one branch unavailable",
		}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hybridsearch",
			Subsystem: "search",
			Name:      "query_seconds",
			Help:      "End-to-end hybrid query latency",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	collectors := []prometheus.Collector{
		m.cacheHits, m.cacheMisses, m.cacheEvictions,
		m.backendRequests, m.backendLatency, m.failovers,
		m.degradedQueries, m.queryDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// CacheHit records a hit for the named cache.
func (m *Metrics) CacheHit(cache string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(cache).Inc()
}

// CacheMiss records a miss for the named cache.
func (m *Metrics) CacheMiss(cache string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// CacheEviction records an LRU eviction for the named cache.
func (m *Metrics) CacheEviction(cache string) {
	if m == nil {
		return
	}
	m.cacheEvictions.WithLabelValues(cache).Inc()
}

// BackendRequest records one backend call and its latency.
func (m *Metrics) BackendRequest(backend, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.backendRequests.WithLabelValues(backend, outcome).Inc()
	m.backendLatency.WithLabelValues(backend).Observe(elapsed.Seconds())
}

// Failover records one failover event between backends.
func (m *Metrics) Failover() {
	if m == nil {
		return
	}
	m.failovers.Inc()
}

// DegradedQuery records a query answered with a failed branch.
func (m *Metrics) DegradedQuery() {
	if m == nil {
		return
	}
	m.degradedQueries.Inc()
}

// QueryDuration records end-to-end query latency.
func (m *Metrics) QueryDuration(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.Observe(elapsed.Seconds())
}
