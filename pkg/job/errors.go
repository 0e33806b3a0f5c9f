package job

import (
	"errors"
	"fmt"
)

// Common errors returned by the job package.
var (
	// ErrPollTimeout is returned when a job does not reach a terminal state
	// within the configured maximum wait.
	ErrPollTimeout = errors.New("job polling exceeded maximum wait")
)

// SubmissionError represents a rejected job submission.
// Submission failures are terminal; there are no retries at this layer.
type SubmissionError struct {
	StatusCode int
	ErrorCode  string
	Message    string
}

// Error implements the error interface.
func (e *SubmissionError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("job submission rejected (status %d): %s: %s",
			e.StatusCode, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("job submission rejected (status %d): %s", e.StatusCode, e.Message)
}

// TerminatedError represents a job that reached a failure terminal state.
type TerminatedError struct {
	JobID   string
	State   State
	Message string
}

// Error implements the error interface.
func (e *TerminatedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("job %s terminated in state %s: %s", e.JobID, e.State, e.Message)
	}
	return fmt.Sprintf("job %s terminated in state %s", e.JobID, e.State)
}
