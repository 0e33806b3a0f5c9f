package job

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sfdctools/bulkquery/pkg/client"
)

// DefaultPollInterval is the wait between status polls.
const DefaultPollInterval = 10 * time.Second

// PollOptions configures a single Wait call.
type PollOptions struct {
	// Interval between status polls (default: DefaultPollInterval).
	Interval time.Duration

	// MaxWait bounds the total polling duration. Zero means no bound,
	// matching the platform's own lack of a job deadline; exceeding a
	// non-zero bound returns ErrPollTimeout.
	MaxWait time.Duration
}

// Poller drives a job to a terminal state by polling its status.
type Poller struct {
	api    *client.Client
	logger zerolog.Logger
}

// NewPoller creates a poller on the given API client.
func NewPoller(api *client.Client) *Poller {
	return &Poller{
		api:    api,
		logger: log.With().Str("component", "job-poller").Logger(),
	}
}

// Wait polls the job until it reaches a terminal state.
// Returns StateJobComplete on success; a failure terminal surfaces as a
// TerminatedError carrying the job id, state, and any server error message.
// The wait between polls is an explicit loop with a cooperative sleep that
// honors context cancellation.
func (p *Poller) Wait(ctx context.Context, jobID string, opts PollOptions) (State, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	var deadline time.Time
	if opts.MaxWait > 0 {
		deadline = time.Now().Add(opts.MaxWait)
	}

	startTime := time.Now()

	for {
		info, err := p.status(ctx, jobID)
		if err != nil {
			return "", err
		}

		pollsTotal.WithLabelValues(string(info.State)).Inc()
		p.logger.Debug().
			Str("job_id", jobID).
			Str("state", string(info.State)).
			Msg("Polled job state")

		switch {
		case info.State.Succeeded():
			p.logger.Info().
				Str("job_id", jobID).
				Dur("duration", time.Since(startTime)).
				Msg("Job complete")
			return info.State, nil

		case info.State.IsTerminal():
			p.logger.Error().
				Str("job_id", jobID).
				Str("state", string(info.State)).
				Str("error_message", info.ErrorMessage).
				Msg("Job terminated without results")
			return info.State, &TerminatedError{
				JobID:   jobID,
				State:   info.State,
				Message: info.ErrorMessage,
			}
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return info.State, fmt.Errorf("%w: job %s still %s after %s",
				ErrPollTimeout, jobID, info.State, opts.MaxWait)
		}

		select {
		case <-ctx.Done():
			return info.State, fmt.Errorf("polling job %s: %w", jobID, ctx.Err())
		case <-time.After(interval):
		}
	}
}

// status fetches the current job resource.
func (p *Poller) status(ctx context.Context, jobID string) (*jobInfo, error) {
	resp, err := p.api.Get(ctx, "jobs/query/"+jobID)
	if err != nil {
		return nil, fmt.Errorf("poll job %s: %w", jobID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := client.ErrorFromResponse(resp)
		return nil, fmt.Errorf("poll job %s: %w", jobID, apiErr)
	}

	var info jobInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode job %s status: %w", jobID, err)
	}

	return &info, nil
}
