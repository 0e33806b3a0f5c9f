// Package job implements bulk query job submission and the poll loop that
// drives a job to a terminal state.
package job

// State represents a bulk query job state as reported by the platform.
type State string

// Job states. JobComplete is the only success terminal; Failed and Aborted
// are failure terminals. Every other state means the job is still running.
const (
	// StateQueued means the job is accepted and waiting to be processed.
	StateQueued State = "Queued"

	// StateUploadComplete is the queued state reported by the v2 query API.
	StateUploadComplete State = "UploadComplete"

	// StatePreparing means the platform is preparing to execute the query.
	StatePreparing State = "Preparing"

	// StateInProgress means the query is executing.
	StateInProgress State = "InProgress"

	// StateJobComplete means results are ready to be fetched.
	StateJobComplete State = "JobComplete"

	// StateFailed means the job ended with an error.
	StateFailed State = "Failed"

	// StateAborted means the job was cancelled.
	StateAborted State = "Aborted"
)

// IsTerminal returns true if no further state transitions occur.
func (s State) IsTerminal() bool {
	switch s {
	case StateJobComplete, StateFailed, StateAborted:
		return true
	default:
		return false
	}
}

// Succeeded returns true for the success terminal state.
func (s State) Succeeded() bool {
	return s == StateJobComplete
}

// operationFor maps the include-archived flag to the submission operation.
// queryAll includes soft-deleted and archived records; query does not.
// This is the single place the mapping lives.
func operationFor(includeArchived bool) string {
	if includeArchived {
		return "queryAll"
	}
	return "query"
}
