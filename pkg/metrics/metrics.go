// Package metrics provides centralized Prometheus metrics registry for the
// bulk query client. All metrics are defined in their respective packages
// (client, auth, job, pagination) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the bulk query client.
// All metrics are automatically registered via promauto in their respective
// packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - bulk_requests_total{endpoint, status} (Counter): Total requests by endpoint and HTTP status
//   - bulk_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - bulk_errors_total{class} (Counter): Errors by class (client, server, auth, network)
//   - bulk_auth_retries_total (Counter): Requests replayed after a transparent token refresh
//
// Auth Metrics (pkg/auth):
//   - bulk_logins_total{outcome} (Counter): Login attempts by outcome
//   - bulk_token_cache_hits_total (Counter): Token store hits
//   - bulk_token_cache_misses_total (Counter): Token store misses
//   - bulk_token_cache_errors_total{operation} (Counter): Token store operation errors
//
// Job Metrics (pkg/job):
//   - bulk_jobs_submitted_total{operation} (Counter): Jobs submitted by operation (query, queryAll)
//   - bulk_jobs_aborted_total (Counter): Jobs aborted by this client
//   - bulk_job_polls_total{state} (Counter): Status polls by reported state
//
// Result Metrics (pkg/pagination):
//   - bulk_pages_fetched_total (Counter): Result pages fetched
//   - bulk_result_bytes_total (Counter): Bytes appended to assembled streams
//   - bulk_export_duration_seconds (Histogram): Duration of complete stream assembly
//
// Example Prometheus Queries:
//
//   # Export throughput
//   rate(bulk_result_bytes_total[5m])
//
//   # Jobs stuck polling
//   sum(rate(bulk_job_polls_total{state="InProgress"}[15m]))
//
//   # Request error rate
//   rate(bulk_errors_total[5m])
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(bulk_request_duration_seconds_bucket[5m]))
//
//   # Token cache hit rate
//   rate(bulk_token_cache_hits_total[5m]) /
//   (rate(bulk_token_cache_hits_total[5m]) + rate(bulk_token_cache_misses_total[5m]))
