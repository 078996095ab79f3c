package report_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waabox/pipemetrics/internal/delivery"
	"github.com/waabox/pipemetrics/internal/domain"
	"github.com/waabox/pipemetrics/internal/logging"
	githubprovider "github.com/waabox/pipemetrics/internal/provider/github"
	"github.com/waabox/pipemetrics/internal/report"
	"github.com/waabox/pipemetrics/internal/testutil"
)

var now = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func run(status string) map[string]any {
	return map[string]any{
		"id":            float64(1001),
		"workflow_id":   float64(55),
		"name":          "CI",
		"display_title": "fix: login timeout",
		"status":        status,
		"conclusion":    nil,
		"created_at":    "2026-03-14T09:00:00Z",
		"updated_at":    "2026-03-14T09:04:30Z",
		"event":         "push",
		"actor":         map[string]any{"login": "waabox"},
		"head_branch":   "feature/login",
		"run_attempt":   float64(2),
		"html_url":      "https://github.com/waabox/pipemetrics/actions/runs/1001",
	}
}

func job(id int, name, status, conclusion, started, completed, runner string) map[string]any {
	j := map[string]any{
		"id":          float64(id),
		"name":        name,
		"status":      status,
		"runner_name": runner,
	}
	if conclusion != "" {
		j["conclusion"] = conclusion
	}
	if started != "" {
		j["started_at"] = started
	}
	if completed != "" {
		j["completed_at"] = completed
	}
	return j
}

type fixture struct {
	github *testutil.FakeGitHub
	ingest *testutil.IngestServer
	logs   *bytes.Buffer
	warn   *bytes.Buffer
	rep    *report.Reporter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		github: testutil.NewFakeGitHub(t, "waabox", "pipemetrics"),
		ingest: testutil.NewIngestServer(t),
		logs:   &bytes.Buffer{},
		warn:   &bytes.Buffer{},
	}
	calls := 0
	f.rep = &report.Reporter{
		Provider:  githubprovider.NewAdapter("test-token", f.github.URL()),
		Publisher: delivery.NewClient(f.ingest.Endpoint(), "key", time.Second),
		Log:       logging.New(f.logs, logging.Options{Annotations: f.warn}),
		Now: func() time.Time {
			calls++
			require.Equal(t, 1, calls, "clock must be read once per invocation")
			return now
		},
	}
	return f
}

func TestRun_InlineExcludesReportingJob(t *testing.T) {
	f := newFixture(t)
	f.github.AddRun(run("in_progress"),
		job(1, "build", "completed", "success", "2026-03-14T09:00:10Z", "2026-03-14T09:02:10Z", "GitHub Actions 1"),
		job(2, "test", "completed", "success", "2026-03-14T09:02:10Z", "2026-03-14T09:03:10Z", "GitHub Actions 2"),
		job(3, "metrics", "in_progress", "", "2026-03-14T09:03:20Z", "", "GitHub Actions 3"),
	)

	rec, err := f.rep.Run(context.Background(), report.Request{
		ContextRunID: "1001",
		RunAttempt:   "2",
		Repository:   "waabox/pipemetrics",
		Ref:          "refs/heads/main",
		JobName:      "metrics",
		RunnerName:   "GitHub Actions 3",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ModeInline, rec.Mode)
	assert.Equal(t, domain.StatusSuccess, rec.Status)
	assert.Equal(t, "main", rec.Branch)
	require.Len(t, rec.Jobs, 2)
	assert.Equal(t, []string{"build", "test"}, []string{rec.Jobs[0].Name, rec.Jobs[1].Name})
	require.NotNil(t, rec.ComputeSeconds)
	assert.EqualValues(t, 180, *rec.ComputeSeconds)
	require.NotNil(t, rec.DurationSeconds)
	assert.EqualValues(t, 270, *rec.DurationSeconds)
	require.NotNil(t, rec.CompletedAt)
	assert.True(t, rec.CompletedAt.Equal(time.Date(2026, 3, 14, 9, 4, 30, 0, time.UTC)))
	assert.Empty(t, f.warn.String())

	assert.Contains(t, f.github.Requests(), "/repos/waabox/pipemetrics/actions/runs/1001/attempts/2/jobs?per_page=100&page=1")

	deliveries := f.ingest.Deliveries()
	require.Len(t, deliveries, 1)
	var delivered domain.PipelineMetricsRecord
	require.NoError(t, deliveries[0].Decode(&delivered))
	assert.Equal(t, rec.RunID, delivered.RunID)
	assert.Equal(t, "fix: login timeout", delivered.RunName)
	assert.Len(t, delivered.Jobs, 2)
}

func TestRun_InlineAmbiguousJobNameKeepsEveryJob(t *testing.T) {
	f := newFixture(t)
	f.github.AddRun(run("in_progress"),
		job(1, "report", "in_progress", "", "2026-03-14T09:00:10Z", "", "GitHub Actions 1"),
		job(2, "report", "in_progress", "", "2026-03-14T09:00:10Z", "", "GitHub Actions 2"),
	)

	rec, err := f.rep.Build(context.Background(), report.Request{
		ContextRunID: "1001",
		Repository:   "waabox/pipemetrics",
		JobName:      "report",
	})
	require.NoError(t, err)

	assert.Len(t, rec.Jobs, 2)
	assert.Equal(t, domain.StatusRunning, rec.Status)
	assert.Equal(t, 1, bytes.Count(f.warn.Bytes(), []byte("::warning::")), f.warn.String())
}

func TestBuild_ExternalUsesRunBranchAndLeavesCompletionOpen(t *testing.T) {
	f := newFixture(t)
	f.github.AddRun(run("in_progress"),
		job(1, "build", "in_progress", "", "2026-03-14T09:00:10Z", "", "GitHub Actions 1"),
	)

	rec, err := f.rep.Build(context.Background(), report.Request{
		RunID:        "1001",
		ContextRunID: "2002",
		RunAttempt:   "7",
		Repository:   "waabox/pipemetrics",
		Ref:          "refs/heads/main",
		JobName:      "build",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ModeExternal, rec.Mode)
	assert.Equal(t, "feature/login", rec.Branch)
	assert.Nil(t, rec.CompletedAt)
	require.NotNil(t, rec.DurationSeconds)
	assert.EqualValues(t, 3600, *rec.DurationSeconds)
	assert.Nil(t, rec.ComputeSeconds)
	assert.Len(t, rec.Jobs, 1, "external mode excludes nothing")
	assert.Equal(t, domain.StatusRunning, rec.Status)

	// The caller's attempt belongs to another run; the target's own attempt is used.
	assert.Contains(t, f.github.Requests(), "/repos/waabox/pipemetrics/actions/runs/1001/attempts/2/jobs?per_page=100&page=1")
}

func TestBuild_RunNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.rep.Build(context.Background(), report.Request{RunID: "4040", Repository: "waabox/pipemetrics"})

	var notFound *domain.RunNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.EqualValues(t, 4040, notFound.RunID)
	assert.Equal(t, "waabox/pipemetrics", notFound.Repository)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "read access")
}

func TestValidate_RejectsBadInputBeforeAnyProviderCall(t *testing.T) {
	tests := []struct {
		name  string
		req   report.Request
		field string
	}{
		{"missing repository", report.Request{RunID: "1"}, "repository"},
		{"malformed repository", report.Request{RunID: "1", Repository: "pipemetrics"}, "repository"},
		{"no run id anywhere", report.Request{Repository: "waabox/pipemetrics"}, "run_id"},
		{"non numeric run id", report.Request{RunID: "abc", Repository: "waabox/pipemetrics"}, "run_id"},
		{"zero run id", report.Request{RunID: "0", Repository: "waabox/pipemetrics"}, "run_id"},
		{"negative run id", report.Request{RunID: "-4", Repository: "waabox/pipemetrics"}, "run_id"},
		{"bad context run id", report.Request{ContextRunID: "x", Repository: "waabox/pipemetrics"}, "context_run_id"},
		{"bad attempt", report.Request{ContextRunID: "5", RunAttempt: "first", Repository: "waabox/pipemetrics"}, "run_attempt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.rep.Build(context.Background(), tt.req)

			var inputErr *domain.InputError
			require.ErrorAs(t, err, &inputErr)
			assert.Equal(t, tt.field, inputErr.Field)
			assert.Empty(t, f.github.Requests())
		})
	}
}

func TestValidate_ModeResolution(t *testing.T) {
	target, err := report.Validate(report.Request{RunID: "12", ContextRunID: "12", RunAttempt: "3", Repository: "a/b"})
	require.NoError(t, err)
	assert.Equal(t, domain.ModeInline, target.Mode)
	assert.Equal(t, 3, target.Attempt)

	target, err = report.Validate(report.Request{RunID: "12", Repository: "a/b"})
	require.NoError(t, err)
	assert.Equal(t, domain.ModeExternal, target.Mode)
	assert.Zero(t, target.Attempt)

	target, err = report.Validate(report.Request{ContextRunID: "12", Repository: "group/sub/project"})
	require.NoError(t, err)
	assert.Equal(t, domain.ModeInline, target.Mode)
	assert.EqualValues(t, 12, target.RunID)
	assert.Equal(t, "group/sub", target.Repository.Owner)
}

func TestRun_TransportFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	f.ingest.Status = 503
	f.github.AddRun(run("completed"))

	_, err := f.rep.Run(context.Background(), report.Request{RunID: "1001", Repository: "waabox/pipemetrics"})

	var transportErr *delivery.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, 503, transportErr.StatusCode)
}

func TestRun_ProviderFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.rep.Provider = failingProvider{err: domain.ErrUnauthorized}

	_, err := f.rep.Run(context.Background(), report.Request{RunID: "1001", Repository: "waabox/pipemetrics"})

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	var notFound *domain.RunNotFoundError
	assert.False(t, errors.As(err, &notFound))
	assert.Empty(t, f.ingest.Deliveries())
}

type failingProvider struct{ err error }

func (p failingProvider) Name() string { return "failing" }

func (p failingProvider) GetRun(context.Context, domain.Repository, int64) (domain.RawPipelineRun, error) {
	return domain.RawPipelineRun{}, p.err
}

func (p failingProvider) ListJobs(context.Context, domain.Repository, int64, int) ([]domain.RawJob, error) {
	return nil, p.err
}

func TestJSONWriter_PrintsIndentedRecordWithoutNulls(t *testing.T) {
	var out bytes.Buffer
	rec := domain.PipelineMetricsRecord{
		Provider:  "github",
		RunID:     "1001",
		Status:    domain.StatusQueued,
		Mode:      domain.ModeExternal,
		StartedAt: now,
		Jobs:      []domain.NormalizedJob{},
	}

	require.NoError(t, report.JSONWriter{W: &out}.Deliver(context.Background(), rec))

	assert.Contains(t, out.String(), "\n  \"provider\": \"github\"")
	assert.NotContains(t, out.String(), "null")
	assert.NotContains(t, out.String(), "compute_seconds")
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, "queued", decoded["status"])
}

func TestWriteOutputs(t *testing.T) {
	duration := int64(270)
	rec := domain.PipelineMetricsRecord{
		Status:          domain.StatusFailure,
		Mode:            domain.ModeInline,
		DurationSeconds: &duration,
		Jobs:            make([]domain.NormalizedJob, 3),
	}
	path := filepath.Join(t.TempDir(), "outputs.env")

	require.NoError(t, report.WriteOutputs(path, rec))

	got, err := godotenv.Read(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"PIPELINE_STATUS":           "failure",
		"PIPELINE_MODE":             "inline",
		"PIPELINE_DURATION_SECONDS": "270",
		"PIPELINE_JOB_COUNT":        "3",
	}, got)
}
