package job

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for job lifecycle operations.
var (
	jobsSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulk_jobs_submitted_total",
			Help: "Total bulk query jobs submitted by operation",
		},
		[]string{"operation"}, // "query", "queryAll"
	)

	jobsAbortedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bulk_jobs_aborted_total",
			Help: "Total bulk query jobs aborted by this client",
		},
	)

	pollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulk_job_polls_total",
			Help: "Total status polls by reported state",
		},
		[]string{"state"},
	)
)
