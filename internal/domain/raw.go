package domain

import "time"

// RawJob is a job as reported by the CI provider, before any normalization.
// Outcome is only meaningful when State is StateCompleted.
type RawJob struct {
	ID          int64
	Name        string
	State       string
	Outcome     string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RunnerName  string
	URL         string
}

// RawPipelineRun is a pipeline run as reported by the CI provider.
type RawPipelineRun struct {
	ID         int64
	WorkflowID int64
	Name       string
	Title      string
	State      string
	Outcome    string
	CreatedAt  *time.Time
	UpdatedAt  *time.Time
	Event      string
	Actor      string
	Ref        string
	HeadBranch string
	Attempt    int
	URL        string
}

// Completed reports whether the provider has finalized the run.
func (r RawPipelineRun) Completed() bool {
	return r.State == StateCompleted
}
