// Package metrics declares the process-wide Prometheus collectors dpverify
// exports as package-level promauto vars.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dpverify/dpverify/internal/cache"
)

var (
	ReachablePairsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dpverify_reachable_pairs_total",
		Help: "Total number of (src, dst) edge-device pairs found reachable",
	})

	UnreachablePairsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dpverify_unreachable_pairs_total",
		Help: "Total number of (src, dst) edge-device pairs found unreachable",
	})

	TraversalStepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dpverify_traversal_steps_total",
		Help: "Total number of port-level header-space propagations across all neighborhoods",
	})

	SuspectedLoopsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dpverify_suspected_loops_total",
		Help: "Total number of tunnel arrival counts that exceeded the configured loop bound",
	})

	BuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dpverify_build_duration_seconds",
		Help:    "Duration of the build phase (rule reading, LEC compilation)",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	VerifyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dpverify_verify_duration_seconds",
		Help:    "Duration of the verify phase (neighborhood traversal + reachability check)",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dpverify_cache_hits_total",
		Help: "Total cache hits per memoization tier",
	}, []string{"tier"})

	CacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dpverify_cache_misses_total",
		Help: "Total cache misses across all memoization tiers",
	})

	CanonicalTableSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dpverify_canonical_table_size",
		Help: "Number of distinct BDDs interned in the canonical table",
	})
)

// PublishCacheCounters folds one cache.Counters snapshot into the
// corresponding Prometheus collectors. Each call adds the snapshot's
// values to the collectors, so a snapshot must hold only counts not
// already published (runVerify builds a fresh engine per run, so its
// snapshot is that run's counts alone).
func PublishCacheCounters(snap cache.Snapshot) {
	CacheHitsTotal.WithLabelValues("l1").Add(float64(snap.L1Hit))
	CacheHitsTotal.WithLabelValues("l2").Add(float64(snap.L2Hit))
	CacheHitsTotal.WithLabelValues("l3").Add(float64(snap.L3Hit))
	CacheMissesTotal.Add(float64(snap.Miss))
}
