// Package client provides the core bulk API HTTP client with bearer
// authentication, transparent gzip decoding, and error handling.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sfdctools/bulkquery/pkg/auth"
)

// Prometheus metrics for bulk API requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulk_requests_total",
		Help: "Total bulk API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bulk_request_duration_seconds",
		Help:    "Bulk API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulk_errors_total",
		Help: "Total bulk API errors by class",
	}, []string{"class"})

	authRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bulk_auth_retries_total",
		Help: "Total requests replayed after a transparent token refresh",
	})
)

// DefaultAPIVersion is the REST API version used when none is configured.
const DefaultAPIVersion = "v62.0"

// Client is the bulk API HTTP client.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the instance URL, e.g. https://myorg.my.salesforce.com
	BaseURL string

	// APIVersion is the REST API version, e.g. "v62.0".
	APIVersion string

	// Auth supplies bearer tokens for every outbound call.
	Auth auth.TokenProvider

	// UserAgent sent with every request.
	UserAgent string

	// HTTPClient performs the requests. The default carries no overall
	// timeout: result pages stream for arbitrarily long, and
	// http.Client.Timeout covers the body read. Cancellation comes from the
	// request context.
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(provider auth.TokenProvider, baseURL string) Config {
	return Config{
		BaseURL:    baseURL,
		APIVersion: DefaultAPIVersion,
		Auth:       provider,
		UserAgent:  "bulkquery/0.1.0",
	}
}

// New creates a new bulk API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Auth == nil {
		return nil, fmt.Errorf("token provider is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	logger := log.With().Str("component", "bulk-client").Logger()

	return &Client{
		httpClient: cfg.HTTPClient,
		config:     cfg,
		logger:     logger,
	}, nil
}

// Endpoint builds the absolute URL for a versioned REST path.
// The path may carry its own query string.
func (c *Client) Endpoint(path string) string {
	return strings.TrimSuffix(c.config.BaseURL, "/") +
		"/services/data/" + c.config.APIVersion + "/" + strings.TrimPrefix(path, "/")
}

// Do performs an HTTP request with bearer authentication.
// A 401 triggers exactly one transparent token refresh and replay; a second
// 401 surfaces as an APIError wrapping auth.ErrUnauthorized. Responses with
// Content-Encoding gzip are decoded transparently. Any other non-success
// status is returned to the caller for component-specific error handling.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// Token expired or revoked server-side: refresh once and replay.
		resp.Body.Close()
		c.config.Auth.Invalidate()
		authRetriesTotal.Inc()

		c.logger.Warn().
			Str("endpoint", endpoint).
			Msg("Token rejected, re-authenticating")

		replay, err := cloneRequest(req)
		if err != nil {
			return nil, fmt.Errorf("clone request for auth retry: %w", err)
		}

		resp, err = c.send(replay)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusUnauthorized {
			apiErr := ErrorFromResponse(resp)
			resp.Body.Close()
			apiErr.Err = auth.ErrUnauthorized
			errorsTotal.WithLabelValues(string(ErrorClassAuth)).Inc()
			requestsTotal.WithLabelValues(endpoint, "401").Inc()
			return nil, apiErr
		}
	}

	requestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		errorsTotal.WithLabelValues(string(classifyStatus(resp.StatusCode))).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Msg("Bulk API request error")
	}

	return resp, nil
}

// send executes a single attempt: token, headers, HTTP call, gzip decode.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	token, err := c.config.Auth.Token(req.Context())
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassAuth)).Inc()
		return nil, fmt.Errorf("obtain token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	c.logger.Debug().
		Str("endpoint", req.URL.Path).
		Str("method", req.Method).
		Msg("Executing bulk API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		c.logger.Error().Err(err).Str("endpoint", req.URL.Path).Msg("HTTP request failed")
		return nil, fmt.Errorf("bulk API request: %w", err)
	}

	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("open gzip body: %w", err)
		}
		resp.Body = &gzipBody{Reader: zr, raw: resp.Body}
		resp.Header.Del("Content-Encoding")
		resp.Header.Del("Content-Length")
		resp.ContentLength = -1
	}

	return resp, nil
}

// Get performs a GET request to a versioned REST path.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint(path), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.Do(req)
}

// PostJSON performs a POST with a JSON body to a versioned REST path.
func (c *Client) PostJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.sendJSON(ctx, http.MethodPost, path, body)
}

// PatchJSON performs a PATCH with a JSON body to a versioned REST path.
func (c *Client) PatchJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.sendJSON(ctx, http.MethodPatch, path, body)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	// bytes.Reader bodies get a GetBody from net/http, so the request stays
	// replayable for the auth retry.
	req, err := http.NewRequestWithContext(ctx, method, c.Endpoint(path), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.Do(req)
}

// cloneRequest duplicates a request for the auth-retry replay, restoring the
// body from GetBody when one exists.
func cloneRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	return clone, nil
}

// gzipBody decodes a gzip response body and closes both the decoder and the
// underlying connection body.
type gzipBody struct {
	*gzip.Reader
	raw io.Closer
}

// Close closes the gzip reader and the wrapped body.
func (g *gzipBody) Close() error {
	err := g.Reader.Close()
	if cerr := g.raw.Close(); err == nil {
		err = cerr
	}
	return err
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// APIVersion returns the configured REST API version.
func (c *Client) APIVersion() string {
	return c.config.APIVersion
}
