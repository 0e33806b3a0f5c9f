package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for result retrieval.
var (
	pagesFetchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bulk_pages_fetched_total",
			Help: "Total result pages fetched",
		},
	)

	resultBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bulk_result_bytes_total",
			Help: "Total result payload bytes appended to assembled streams",
		},
	)

	exportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bulk_export_duration_seconds",
			Help:    "Duration of complete result-stream assembly",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		},
	)
)
