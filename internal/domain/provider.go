package domain

import "context"

// RunProvider is the port every CI provider adapter implements.
// ListJobs returns every job of the given attempt, flattened across pages, in provider order.
type RunProvider interface {
	Name() string
	GetRun(ctx context.Context, repo Repository, runID int64) (RawPipelineRun, error)
	ListJobs(ctx context.Context, repo Repository, runID int64, attempt int) ([]RawJob, error)
}
