// Package selfjob identifies the job a reporter is running in, so that a run never reports on its
// own execution.
//
// Resolution and exclusion are separate steps: Find works out "who am I", Exclude removes
// whoever that turned out to be. Both are pure.
package selfjob

import (
	"fmt"

	"github.com/waabox/pipemetrics/internal/domain"
)

// Resolution is the outcome of looking up the current job among a run's jobs.
// Warnings describe why nothing was resolved; they are for the caller to log.
type Resolution struct {
	JobID    int64
	Found    bool
	Warnings []string
}

// Find returns the id of the job named jobName. When several jobs share that name, runnerName is
// used to tell them apart; with no runner name, or when the runner does not single out one job,
// nothing is resolved. Dropping a real job is worse than keeping the reporter's own job, so Find
// never guesses.
func Find(jobs []domain.RawJob, jobName, runnerName string) Resolution {
	var named []domain.RawJob
	for _, j := range jobs {
		if j.Name == jobName {
			named = append(named, j)
		}
	}

	switch len(named) {
	case 0:
		return Resolution{Warnings: []string{
			fmt.Sprintf("no job named %q found in this run; nothing will be excluded", jobName),
		}}
	case 1:
		return Resolution{JobID: named[0].ID, Found: true}
	}

	if runnerName == "" {
		return Resolution{Warnings: []string{
			fmt.Sprintf("%d jobs are named %q and no runner name is available; nothing will be excluded", len(named), jobName),
		}}
	}

	var onRunner []domain.RawJob
	for _, j := range named {
		if j.RunnerName == runnerName {
			onRunner = append(onRunner, j)
		}
	}
	if len(onRunner) == 1 {
		return Resolution{JobID: onRunner[0].ID, Found: true}
	}
	return Resolution{Warnings: []string{
		fmt.Sprintf("%d jobs are named %q and %d of them ran on runner %q; nothing will be excluded",
			len(named), jobName, len(onRunner), runnerName),
	}}
}

// Exclude returns jobs without the resolved job, preserving order.
// It returns jobs unchanged when nothing was resolved.
func Exclude(jobs []domain.RawJob, r Resolution) []domain.RawJob {
	if !r.Found {
		return jobs
	}
	out := make([]domain.RawJob, 0, len(jobs))
	for _, j := range jobs {
		if j.ID != r.JobID {
			out = append(out, j)
		}
	}
	return out
}
