// Package bulk wires the job lifecycle and result retrieval into one
// export pipeline: submit a query, poll the job to completion, and stream
// the paginated result set as a single delimited-text stream.
package bulk

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sfdctools/bulkquery/pkg/client"
	"github.com/sfdctools/bulkquery/pkg/job"
	"github.com/sfdctools/bulkquery/pkg/pagination"
)

// ExportOptions configures a single Export call.
type ExportOptions struct {
	// IncludeArchived selects the queryAll operation, including soft-deleted
	// and archived records.
	IncludeArchived bool

	// PollInterval between job status polls (default: job.DefaultPollInterval).
	PollInterval time.Duration

	// MaxWait bounds total polling time. Zero means unbounded.
	MaxWait time.Duration

	// MaxRecords hints the per-page record count. Zero uses the server
	// default.
	MaxRecords int
}

// Client runs complete bulk query exports.
type Client struct {
	submitter *job.Submitter
	poller    *job.Poller
	assembler *pagination.Assembler
	logger    zerolog.Logger
}

// New creates an export client on the given API client.
func New(api *client.Client) *Client {
	return &Client{
		submitter: job.NewSubmitter(api),
		poller:    job.NewPoller(api),
		assembler: pagination.NewAssembler(pagination.NewFetcher(api)),
		logger:    log.With().Str("component", "bulk-export").Logger(),
	}
}

// Export submits the query, waits for the job to complete, and returns a
// live stream of the full result set: one header line followed by every data
// row in page order. The stream is live; bytes arrive as pages are fetched,
// and memory use stays bounded by one page in flight. Errors after this
// call returns surface from Read on the stream.
//
// Each lifecycle failure keeps its own type: job.SubmissionError,
// job.TerminatedError, job.ErrPollTimeout, pagination.FetchError.
func (c *Client) Export(ctx context.Context, query string, opts ExportOptions) (io.ReadCloser, error) {
	jobID, err := c.submitter.Submit(ctx, query, opts.IncludeArchived)
	if err != nil {
		return nil, err
	}

	if _, err := c.poller.Wait(ctx, jobID, job.PollOptions{
		Interval: opts.PollInterval,
		MaxWait:  opts.MaxWait,
	}); err != nil {
		return nil, err
	}

	return c.assembler.Assemble(ctx, jobID, pagination.AssembleOptions{
		MaxRecords: opts.MaxRecords,
	}), nil
}

// Submit creates a job without waiting for it; callers that need the job id
// (for abort-on-interrupt, say) drive the poller and assembler themselves.
func (c *Client) Submit(ctx context.Context, query string, includeArchived bool) (string, error) {
	return c.submitter.Submit(ctx, query, includeArchived)
}

// Wait polls an already submitted job to a terminal state.
func (c *Client) Wait(ctx context.Context, jobID string, opts ExportOptions) error {
	_, err := c.poller.Wait(ctx, jobID, job.PollOptions{
		Interval: opts.PollInterval,
		MaxWait:  opts.MaxWait,
	})
	return err
}

// Stream assembles the result pages of a completed job.
func (c *Client) Stream(ctx context.Context, jobID string, opts ExportOptions) io.ReadCloser {
	return c.assembler.Assemble(ctx, jobID, pagination.AssembleOptions{
		MaxRecords: opts.MaxRecords,
	})
}

// Abort cancels a running job.
func (c *Client) Abort(ctx context.Context, jobID string) error {
	return c.submitter.Abort(ctx, jobID)
}
