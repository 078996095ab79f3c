// Package status maps raw provider lifecycle data onto the closed status vocabulary and infers an
// overall pipeline status from its jobs.
package status

import "github.com/waabox/pipemetrics/internal/domain"

// ClassifyJob maps a job's raw (state, outcome) pair onto the closed status set.
func ClassifyJob(state, outcome string) domain.Status {
	return classify(state, outcome)
}

// ClassifyPipeline maps a pipeline's raw (state, outcome) pair onto the closed status set.
func ClassifyPipeline(state, outcome string) domain.Status {
	return classify(state, outcome)
}

func classify(state, outcome string) domain.Status {
	if s := domain.Status(outcome); state == domain.StateCompleted && s.IsOutcome() {
		return s
	}
	return live(state)
}

// live maps a non-final state. Anything unrecognized, including a completed state whose outcome is
// not a known terminal outcome, is treated as still running.
func live(state string) domain.Status {
	switch state {
	case domain.StateQueued:
		return domain.StatusQueued
	case domain.StateInProgress:
		return domain.StatusRunning
	case domain.StateWaiting:
		return domain.StatusPending
	default:
		return domain.StatusRunning
	}
}

// InferPipelineStatus derives the overall status of a pipeline from its normalized jobs.
// A finalized pipeline outcome always wins. Otherwise failures and cancellations take precedence
// over jobs that are still active, and success is only claimed when no job is ambiguous.
func InferPipelineStatus(jobs []domain.NormalizedJob, pipelineState, pipelineOutcome string) domain.Status {
	if s := domain.Status(pipelineOutcome); pipelineState == domain.StateCompleted && s.IsOutcome() {
		return s
	}
	if len(jobs) == 0 {
		return live(pipelineState)
	}

	var failed, cancelled, pending, queued, running bool
	allSucceeded := true
	for _, j := range jobs {
		switch j.Status {
		case domain.StatusFailure:
			failed = true
		case domain.StatusCancelled:
			cancelled = true
		case domain.StatusPending:
			pending = true
		case domain.StatusQueued:
			queued = true
		case domain.StatusRunning:
			running = true
		}
		if j.Status != domain.StatusSuccess && j.Status != domain.StatusSkipped {
			allSucceeded = false
		}
	}

	switch {
	case failed:
		return domain.StatusFailure
	case cancelled:
		return domain.StatusCancelled
	case pending:
		return domain.StatusPending
	case queued:
		return domain.StatusQueued
	case running:
		return domain.StatusRunning
	case allSucceeded:
		return domain.StatusSuccess
	default:
		return live(pipelineState)
	}
}
