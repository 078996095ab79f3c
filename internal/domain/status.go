package domain

// Status is the closed vocabulary used for jobs and pipelines in published records.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailure   Status = "failure"
	StatusCancelled Status = "cancelled"
	StatusSkipped   Status = "skipped"
	StatusTimedOut  Status = "timed_out"
	StatusRunning   Status = "running"
	StatusQueued    Status = "queued"
	StatusPending   Status = "pending"
	// StatusUnknown is accepted when reading older records but is never produced.
	StatusUnknown Status = "unknown"
)

// Raw lifecycle states reported by providers.
const (
	StateQueued     = "queued"
	StateInProgress = "in_progress"
	StateWaiting    = "waiting"
	StateCompleted  = "completed"
)

// IsOutcome reports whether s is one of the terminal outcomes a provider may attach to a
// completed job or run.
func (s Status) IsOutcome() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusCancelled, StatusSkipped, StatusTimedOut:
		return true
	}
	return false
}

// IsActive reports whether s describes work that has not finished yet.
func (s Status) IsActive() bool {
	return s == StatusRunning || s == StatusPending || s == StatusQueued
}

// IsTerminal is the complement of IsActive for the statuses that are actually produced.
func (s Status) IsTerminal() bool {
	return s.IsOutcome()
}

// Valid reports whether s belongs to the closed status set.
func (s Status) Valid() bool {
	return s.IsOutcome() || s.IsActive() || s == StatusUnknown
}
