// Package metrics exposes the prometheus counters of tourgen.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tourgen"

var (
	FilesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tour",
		Name:      "files_processed_total",
		Help:      "Boundary files turned into tours.",
	})

	FilesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tour",
		Name:      "files_failed_total",
		Help:      "Boundary files that could not be turned into tours.",
	})

	ElevationQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "elevation",
		Name:      "queries_total",
		Help:      "Elevation queries sent to a provider.",
	}, []string{"provider"})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "elevation",
		Name:      "cache_hits_total",
		Help:      "Elevation queries answered from the cache.",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "elevation",
		Name:      "cache_misses_total",
		Help:      "Elevation queries not found in the cache.",
	})

	FallbackSubstitutions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "elevation",
		Name:      "fallback_substitutions_total",
		Help:      "Invalid elevations replaced by the last known good value.",
	})

	JobsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "jobs_total",
		Help:      "Tour jobs received from the queue, by outcome.",
	}, []string{"outcome"})
)
