// Package metrics exposes prometheus counters for the graph engine.
// Collectors are registered on the default registry and served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "madtrips_cache_hits_total",
		Help: "Cache hits per named cache instance.",
	}, []string{"cache"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "madtrips_cache_misses_total",
		Help: "Cache misses (including lazy TTL expiries) per named cache instance.",
	}, []string{"cache"})

	CacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "madtrips_cache_evictions_total",
		Help: "Entries evicted by capacity or prune sweeps per named cache instance.",
	}, []string{"cache"})

	RelayQueries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "madtrips_relay_queries_total",
		Help: "Subscription queries issued against the relay pool.",
	})

	RelayErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "madtrips_relay_errors_total",
		Help: "Relay endpoint errors by endpoint URL.",
	}, []string{"endpoint"})

	RelayConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "madtrips_relay_connected",
		Help: "Number of relay endpoints currently connected.",
	})

	GraphBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "madtrips_graph_builds_total",
		Help: "Graph builds by outcome (built, cached, coalesced).",
	}, []string{"outcome"})
)
