// Package telemetry exposes the search core's operational counters as
// Prometheus metrics: cache hits/misses/evictions, backend request
// latencies and outcomes, failover events, and degraded query counts.
//
// The host owns the prometheus.Registerer and scraping surface; this
// package only registers instruments against it. All recording methods
// are nil-safe, so components hold a *Metrics that may be nil when the
// host runs without telemetry.
package telemetry
