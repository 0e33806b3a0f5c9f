// Package pagination walks the locator-based result pages of a completed
// bulk query job and assembles them into a single live stream.
//
// Pages are strictly sequential: each page's locator is only revealed by the
// response that precedes it, so there is nothing to parallelize. The
// assembler does not fetch page N+1 until page N has been fully drained by
// the consumer, which gives a slow consumer natural backpressure over the
// fetch rate.
package pagination

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sfdctools/bulkquery/pkg/client"
)

// LocatorHeader carries the next page's locator in a results response.
const LocatorHeader = "Sforce-Locator"

// locatorNull is the literal the platform emits instead of omitting the
// header on the final page. Both spellings mean end of results.
const locatorNull = "null"

// Page is one fetched page of results.
type Page struct {
	// Body streams the raw page payload. The first line is a column-header
	// row. The caller owns closing it.
	Body io.ReadCloser

	// NextLocator identifies the following page; empty on the final page.
	NextLocator string
}

// Final returns true when no further pages exist.
func (p *Page) Final() bool {
	return p.NextLocator == ""
}

// FetchError represents a non-success results request.
type FetchError struct {
	JobID      string
	Locator    string
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Locator != "" {
		return fmt.Sprintf("fetch results for job %s (locator %s) failed (status %d): %s",
			e.JobID, e.Locator, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("fetch results for job %s failed (status %d): %s",
		e.JobID, e.StatusCode, e.Message)
}

// Fetcher retrieves single result pages for a completed job.
type Fetcher struct {
	api    *client.Client
	logger zerolog.Logger
}

// NewFetcher creates a fetcher on the given API client.
func NewFetcher(api *client.Client) *Fetcher {
	return &Fetcher{
		api:    api,
		logger: log.With().Str("component", "page-fetcher").Logger(),
	}
}

// FetchPage fetches one page of delimited-text results.
// locator selects the page (empty for the first); maxRecords hints the page
// size (zero for the server default). Both parameters are appended to the
// query string only when set. The page body is compressed on the wire when
// the server honors Accept-Encoding and is decoded transparently.
func (f *Fetcher) FetchPage(ctx context.Context, jobID, locator string, maxRecords int) (*Page, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job id is required")
	}

	path := "jobs/query/" + jobID + "/results"
	params := url.Values{}
	if locator != "" {
		params.Set("locator", locator)
	}
	if maxRecords > 0 {
		params.Set("maxRecords", strconv.Itoa(maxRecords))
	}
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.api.Endpoint(path), nil)
	if err != nil {
		return nil, fmt.Errorf("create results request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := f.api.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := client.ErrorFromResponse(resp)
		resp.Body.Close()
		return nil, &FetchError{
			JobID:      jobID,
			Locator:    locator,
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
		}
	}

	next := resp.Header.Get(LocatorHeader)
	if next == locatorNull {
		next = ""
	}

	pagesFetchedTotal.Inc()
	f.logger.Debug().
		Str("job_id", jobID).
		Str("locator", locator).
		Str("next_locator", next).
		Msg("Fetched result page")

	return &Page{
		Body:        resp.Body,
		NextLocator: next,
	}, nil
}
