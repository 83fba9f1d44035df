package coordinator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Package-level metric vectors, labeled by coordinator name, mirroring
// the ecosystem convention of one set of registered collectors per
// process rather than per-instance (spec §4.9 "metrics collector").
var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortex_coordinator_requests_total",
			Help: "Total coordinator calls by coordinator and outcome",
		},
		[]string{"coordinator", "outcome"},
	)

	cacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortex_coordinator_cache_hits_total",
			Help: "Total cache hits observed by a coordinator",
		},
		[]string{"coordinator"},
	)

	cacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortex_coordinator_cache_misses_total",
			Help: "Total cache misses observed by a coordinator",
		},
		[]string{"coordinator"},
	)

	latencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cortex_coordinator_latency_seconds",
			Help:    "Coordinator call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"coordinator"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(cacheHitsTotal)
	prometheus.MustRegister(cacheMissesTotal)
	prometheus.MustRegister(latencySeconds)
}

// recordCacheHit/recordCacheMiss let the Embedding Coordinator report
// cache effectiveness without each coordinator owning its own vectors.
func recordCacheHit(name string)  { cacheHitsTotal.WithLabelValues(name).Inc() }
func recordCacheMiss(name string) { cacheMissesTotal.WithLabelValues(name).Inc() }

type metricsTimer struct {
	name  string
	start time.Time
}

func startMetricsTimer(name string) metricsTimer {
	return metricsTimer{name: name, start: time.Now()}
}

func (t metricsTimer) observe(outcome string) {
	latencySeconds.WithLabelValues(t.name).Observe(time.Since(t.start).Seconds())
	requestsTotal.WithLabelValues(t.name, outcome).Inc()
}
