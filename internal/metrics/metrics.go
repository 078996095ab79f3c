// Package metrics turns a raw run and its jobs into a PipelineMetricsRecord.
//
// Aggregate is deterministic: the only notion of "now" it has is Input.Now, read once by the
// caller, so completion time and durations derived from it always agree with each other.
package metrics

import (
	"strconv"
	"time"

	"github.com/waabox/pipemetrics/internal/domain"
	"github.com/waabox/pipemetrics/internal/selfjob"
	"github.com/waabox/pipemetrics/internal/status"
)

// Input is everything Aggregate needs. SelfJobID is nil when no job should be excluded.
type Input struct {
	Provider   string
	Repository string
	Run        domain.RawPipelineRun
	Jobs       []domain.RawJob
	Mode       domain.Mode
	Branch     string
	SelfJobID  *int64
	Now        time.Time
}

// Aggregate builds the metrics record for in.Run.
func Aggregate(in Input) domain.PipelineMetricsRecord {
	jobs := NormalizeJobs(in.Jobs, in.SelfJobID)

	started := StartTime(in.Run, jobs)
	completed := CompletionTime(in.Run, in.Mode, in.Now)
	startedAt := in.Now
	if started != nil {
		startedAt = *started
	}

	return domain.PipelineMetricsRecord{
		Provider:        in.Provider,
		Repository:      in.Repository,
		PipelineID:      strconv.FormatInt(in.Run.WorkflowID, 10),
		PipelineName:    in.Run.Name,
		RunID:           strconv.FormatInt(in.Run.ID, 10),
		RunAttempt:      in.Run.Attempt,
		RunName:         runName(in.Run),
		RunURL:          in.Run.URL,
		Status:          status.InferPipelineStatus(jobs, in.Run.State, in.Run.Outcome),
		Mode:            in.Mode,
		ComputeSeconds:  ComputeSeconds(jobs),
		DurationSeconds: RunDuration(started, completed, in.Now),
		StartedAt:       startedAt,
		CompletedAt:     completed,
		Trigger:         in.Run.Event,
		Actor:           in.Run.Actor,
		Branch:          SelectBranch(in.Run, in.Mode, in.Branch),
		Jobs:            jobs,
	}
}

// NormalizeJobs maps raw jobs onto NormalizedJob in provider order, dropping the job whose id is
// selfJobID.
func NormalizeJobs(raw []domain.RawJob, selfJobID *int64) []domain.NormalizedJob {
	if selfJobID != nil {
		raw = selfjob.Exclude(raw, selfjob.Resolution{JobID: *selfJobID, Found: true})
	}
	jobs := make([]domain.NormalizedJob, 0, len(raw))
	for _, j := range raw {
		jobs = append(jobs, NormalizeJob(j))
	}
	return jobs
}

// NormalizeJob classifies a single raw job and computes its duration.
func NormalizeJob(j domain.RawJob) domain.NormalizedJob {
	return domain.NormalizedJob{
		Name:            j.Name,
		ID:              strconv.FormatInt(j.ID, 10),
		URL:             j.URL,
		Status:          status.ClassifyJob(j.State, j.Outcome),
		DurationSeconds: elapsedSeconds(j.StartedAt, j.CompletedAt),
		StartedAt:       copyTime(j.StartedAt),
		CompletedAt:     copyTime(j.CompletedAt),
	}
}

// ComputeSeconds sums the known job durations. It returns nil unless the sum is positive, so a
// run with no timing data is not reported as having used zero compute.
func ComputeSeconds(jobs []domain.NormalizedJob) *int64 {
	var total int64
	for _, j := range jobs {
		if j.DurationSeconds != nil {
			total += *j.DurationSeconds
		}
	}
	if total <= 0 {
		return nil
	}
	return &total
}

// StartTime is the run's creation time, or the earliest job start when the provider omitted it.
// It returns nil when neither is known; callers then report now with no duration.
func StartTime(run domain.RawPipelineRun, jobs []domain.NormalizedJob) *time.Time {
	if run.CreatedAt != nil {
		return copyTime(run.CreatedAt)
	}
	var earliest *time.Time
	for _, j := range jobs {
		if j.StartedAt != nil && (earliest == nil || j.StartedAt.Before(*earliest)) {
			earliest = j.StartedAt
		}
	}
	return copyTime(earliest)
}

// CompletionTime resolves when the run should be considered finished.
//   - a finalized run uses its own update timestamp;
//   - in inline mode the run is finishing now: its update timestamp if known, otherwise now;
//   - an external observer of an unfinished run reports no completion.
func CompletionTime(run domain.RawPipelineRun, mode domain.Mode, now time.Time) *time.Time {
	if run.Completed() && run.UpdatedAt != nil {
		return copyTime(run.UpdatedAt)
	}
	if mode == domain.ModeInline {
		if run.UpdatedAt != nil {
			return copyTime(run.UpdatedAt)
		}
		return &now
	}
	return nil
}

// RunDuration is completed - started, or the elapsed time so far when the run has no completion.
func RunDuration(started, completed *time.Time, now time.Time) *int64 {
	if started == nil {
		return nil
	}
	if completed != nil {
		return elapsedSeconds(started, completed)
	}
	return elapsedSeconds(started, &now)
}

// SelectBranch picks the branch to publish. An external observer prefers the inspected run's own
// head branch, since the invoking checkout may be on a different one.
func SelectBranch(run domain.RawPipelineRun, mode domain.Mode, resolved string) string {
	if mode == domain.ModeExternal && run.HeadBranch != "" {
		return run.HeadBranch
	}
	return resolved
}

func runName(run domain.RawPipelineRun) string {
	if run.Title != "" {
		return run.Title
	}
	return run.Name
}

// elapsedSeconds floors end - start to whole seconds. Clock skew can put end before start; that
// is reported as an instant interval.
func elapsedSeconds(start, end *time.Time) *int64 {
	if start == nil || end == nil {
		return nil
	}
	d := end.Sub(*start)
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return &secs
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
