package pagination

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sfdctools/bulkquery/pkg/stream"
)

// AssembleOptions configures a single Assemble call.
type AssembleOptions struct {
	// MaxRecords hints the per-page record count. Zero uses the server
	// default.
	MaxRecords int
}

// Assembler concatenates a job's result pages into one live stream.
type Assembler struct {
	fetcher *Fetcher
	logger  zerolog.Logger
}

// NewAssembler creates an assembler on the given fetcher.
func NewAssembler(fetcher *Fetcher) *Assembler {
	return &Assembler{
		fetcher: fetcher,
		logger:  log.With().Str("component", "stream-assembler").Logger(),
	}
}

// Assemble returns a live stream of the job's full result set: the first
// page verbatim (its header row is the single retained header line), then
// every later page with its repeated header row stripped, in locator order.
//
// Bytes become available as pages arrive; memory use is bounded by one page
// in flight regardless of result-set size. The stream is closed after the
// final page; a mid-stream failure surfaces from Read on the returned
// reader. Closing the reader aborts the page loop, and cancelling ctx
// aborts the in-flight fetch.
func (a *Assembler) Assemble(ctx context.Context, jobID string, opts AssembleOptions) io.ReadCloser {
	pr, pw := io.Pipe()

	go a.run(ctx, jobID, opts, pw)

	return pr
}

// run drives the sequential fetch-filter-append loop, closing the pipe with
// the loop's outcome.
func (a *Assembler) run(ctx context.Context, jobID string, opts AssembleOptions, pw *io.PipeWriter) {
	startTime := time.Now()
	locator := ""
	pageCount := 0
	var totalBytes int64

	for {
		page, err := a.fetcher.FetchPage(ctx, jobID, locator, opts.MaxRecords)
		if err != nil {
			a.logger.Error().
				Err(err).
				Str("job_id", jobID).
				Int("page", pageCount).
				Msg("Page fetch failed mid-stream")
			pw.CloseWithError(err)
			return
		}

		var src io.Reader = page.Body
		if pageCount > 0 {
			// Every page repeats the header row; only the first page's
			// header reaches the consumer.
			src = stream.NewHeaderStrippingReader(src)
		}

		// Blocks until the consumer drains the page: the next fetch cannot
		// start before this page is fully appended.
		n, err := io.Copy(pw, src)
		page.Body.Close()

		totalBytes += n
		resultBytesTotal.Add(float64(n))

		if err != nil {
			// Includes io.ErrClosedPipe when the consumer closed the stream.
			a.logger.Warn().
				Err(err).
				Str("job_id", jobID).
				Int("page", pageCount).
				Msg("Stream append aborted")
			pw.CloseWithError(err)
			return
		}

		a.logger.Debug().
			Str("job_id", jobID).
			Int("page", pageCount).
			Int64("bytes", n).
			Msg("Page appended to stream")

		pageCount++

		if page.Final() {
			break
		}
		locator = page.NextLocator
	}

	exportDuration.Observe(time.Since(startTime).Seconds())
	a.logger.Info().
		Str("job_id", jobID).
		Int("pages", pageCount).
		Int64("bytes", totalBytes).
		Dur("duration", time.Since(startTime)).
		Msg("Result stream assembled")

	pw.Close()
}
