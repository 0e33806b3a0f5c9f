package job

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sfdctools/bulkquery/pkg/client"
)

// submitRequest is the job creation payload.
type submitRequest struct {
	Operation string `json:"operation"`
	Query     string `json:"query"`
}

// jobInfo is the job resource returned by create and status calls.
type jobInfo struct {
	ID           string `json:"id"`
	Operation    string `json:"operation"`
	State        State  `json:"state"`
	ErrorMessage string `json:"errorMessage"`
}

// Submitter creates and aborts bulk query jobs.
type Submitter struct {
	api    *client.Client
	logger zerolog.Logger
}

// NewSubmitter creates a submitter on the given API client.
func NewSubmitter(api *client.Client) *Submitter {
	return &Submitter{
		api:    api,
		logger: log.With().Str("component", "job-submitter").Logger(),
	}
}

// Submit posts a bulk query job and returns the platform-assigned job id.
// includeArchived selects the queryAll operation, which includes soft-deleted
// and archived records. A non-success status surfaces as a SubmissionError.
func (s *Submitter) Submit(ctx context.Context, query string, includeArchived bool) (string, error) {
	operation := operationFor(includeArchived)

	resp, err := s.api.PostJSON(ctx, "jobs/query", submitRequest{
		Operation: operation,
		Query:     query,
	})
	if err != nil {
		return "", fmt.Errorf("submit job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		apiErr := client.ErrorFromResponse(resp)

		s.logger.Error().
			Int("status", resp.StatusCode).
			Str("operation", operation).
			Str("error_code", apiErr.ErrorCode).
			Msg("Job submission rejected")

		return "", &SubmissionError{
			StatusCode: apiErr.StatusCode,
			ErrorCode:  apiErr.ErrorCode,
			Message:    apiErr.Message,
		}
	}

	var info jobInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("decode job response: %w", err)
	}
	if info.ID == "" {
		return "", fmt.Errorf("job response missing id")
	}

	jobsSubmittedTotal.WithLabelValues(operation).Inc()
	s.logger.Info().
		Str("job_id", info.ID).
		Str("operation", operation).
		Str("state", string(info.State)).
		Msg("Job submitted")

	return info.ID, nil
}

// Abort requests cancellation of a running job.
func (s *Submitter) Abort(ctx context.Context, jobID string) error {
	resp, err := s.api.PatchJSON(ctx, "jobs/query/"+jobID, map[string]string{
		"state": string(StateAborted),
	})
	if err != nil {
		return fmt.Errorf("abort job %s: %w", jobID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := client.ErrorFromResponse(resp)
		return fmt.Errorf("abort job %s: %w", jobID, apiErr)
	}

	jobsAbortedTotal.Inc()
	s.logger.Info().Str("job_id", jobID).Msg("Job aborted")

	return nil
}
