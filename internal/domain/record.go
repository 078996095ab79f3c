package domain

import "time"

// Mode tells whether the reporter runs inside the run it reports on or observes it from outside.
type Mode string

const (
	ModeInline   Mode = "inline"
	ModeExternal Mode = "external"
)

// NormalizedJob is a provider job mapped onto the closed status vocabulary.
// A nil DurationSeconds means the timestamps needed to compute it were missing.
type NormalizedJob struct {
	Name            string     `json:"name"`
	ID              string     `json:"id"`
	URL             string     `json:"url,omitempty"`
	Status          Status     `json:"status"`
	DurationSeconds *int64     `json:"duration_seconds,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// PipelineMetricsRecord is the provider-agnostic record handed to the ingestion endpoint.
// Optional metrics are omitted from JSON when absent, never serialized as null or zero.
type PipelineMetricsRecord struct {
	Provider        string          `json:"provider"`
	Repository      string          `json:"repository"`
	PipelineID      string          `json:"pipeline_id"`
	PipelineName    string          `json:"pipeline_name"`
	RunID           string          `json:"run_id"`
	RunAttempt      int             `json:"run_attempt"`
	RunName         string          `json:"run_name"`
	RunURL          string          `json:"run_url"`
	Status          Status          `json:"status"`
	Mode            Mode            `json:"mode"`
	ComputeSeconds  *int64          `json:"compute_seconds,omitempty"`
	DurationSeconds *int64          `json:"duration_seconds,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	Trigger         string          `json:"trigger"`
	Actor           string          `json:"actor"`
	Branch          string          `json:"branch,omitempty"`
	Jobs            []NormalizedJob `json:"jobs"`
}
