package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for auth operations.
var (
	loginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulk_logins_total",
			Help: "Total login attempts by outcome",
		},
		[]string{"outcome"}, // "success", "failure", "network_error"
	)

	tokenCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bulk_token_cache_hits_total",
			Help: "Total number of token store hits",
		},
	)

	tokenCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bulk_token_cache_misses_total",
			Help: "Total number of token store misses",
		},
	)

	tokenCacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulk_token_cache_errors_total",
			Help: "Total number of token store operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
