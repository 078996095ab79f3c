// Package report runs one reporting invocation: validate the request, fetch the run, aggregate
// it into a metrics record and publish the result.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/waabox/pipemetrics/internal/branch"
	"github.com/waabox/pipemetrics/internal/domain"
	"github.com/waabox/pipemetrics/internal/git"
	"github.com/waabox/pipemetrics/internal/metrics"
	"github.com/waabox/pipemetrics/internal/selfjob"
)

// Request is the raw invocation input, as collected from flags and the CI environment.
type Request struct {
	// RunID is the run to report on. Empty means the run this process is part of.
	RunID string
	// ContextRunID is the id of the run this process executes in, if any.
	ContextRunID string
	// RunAttempt is the attempt of the context run. Only used in inline mode.
	RunAttempt string
	Repository string
	Ref        string
	HeadRef    string
	JobName    string
	RunnerName string
}

// Publisher hands a finished record to its destination.
type Publisher interface {
	Deliver(ctx context.Context, rec domain.PipelineMetricsRecord) error
}

// Target is a validated Request.
type Target struct {
	Repository domain.Repository
	RunID      int64
	Attempt    int
	Mode       domain.Mode
}

// Reporter builds and publishes metrics records for a single provider.
type Reporter struct {
	Provider  domain.RunProvider
	Publisher Publisher
	Log       *slog.Logger
	// Now is read exactly once per Build.
	Now func() time.Time
}

// Validate checks req and resolves the reporting mode. It never calls the provider.
func Validate(req Request) (Target, error) {
	var t Target
	if req.Repository == "" {
		return t, &domain.InputError{Field: "repository", Reason: "required"}
	}
	repo, err := git.ParseSlug(req.Repository)
	if err != nil {
		return t, &domain.InputError{Field: "repository", Reason: err.Error()}
	}
	t.Repository = repo

	var contextID int64
	if req.ContextRunID != "" {
		if contextID, err = parsePositive("context_run_id", req.ContextRunID); err != nil {
			return t, err
		}
	}

	switch {
	case req.RunID != "":
		if t.RunID, err = parsePositive("run_id", req.RunID); err != nil {
			return t, err
		}
	case contextID != 0:
		t.RunID = contextID
	default:
		return t, &domain.InputError{Field: "run_id", Reason: "required when not running inside a CI run"}
	}

	t.Mode = domain.ModeExternal
	if t.RunID == contextID {
		t.Mode = domain.ModeInline
	}

	if t.Mode == domain.ModeInline && req.RunAttempt != "" {
		attempt, err := parsePositive("run_attempt", req.RunAttempt)
		if err != nil {
			return t, err
		}
		t.Attempt = int(attempt)
	}
	return t, nil
}

func parsePositive(field, s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, &domain.InputError{Field: field, Reason: fmt.Sprintf("must be a positive integer, got %q", s)}
	}
	return n, nil
}

// Build validates req, fetches the run and its jobs, and aggregates them into a record.
func (r *Reporter) Build(ctx context.Context, req Request) (domain.PipelineMetricsRecord, error) {
	t, err := Validate(req)
	if err != nil {
		return domain.PipelineMetricsRecord{}, err
	}
	now := r.Now()
	log := r.logger().With("repository", t.Repository.FullName(), "run_id", t.RunID, "mode", t.Mode)

	run, err := r.Provider.GetRun(ctx, t.Repository, t.RunID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.PipelineMetricsRecord{}, &domain.RunNotFoundError{
				Repository: t.Repository.FullName(),
				RunID:      t.RunID,
				Err:        err,
			}
		}
		return domain.PipelineMetricsRecord{}, fmt.Errorf("fetching run %d: %w", t.RunID, err)
	}

	attempt := t.Attempt
	if attempt == 0 {
		attempt = run.Attempt
	}
	jobs, err := r.Provider.ListJobs(ctx, t.Repository, t.RunID, attempt)
	if err != nil {
		return domain.PipelineMetricsRecord{}, fmt.Errorf("listing jobs of run %d: %w", t.RunID, err)
	}
	log.Debug("fetched run", "state", run.State, "outcome", run.Outcome, "attempt", attempt, "jobs", len(jobs))

	ref := req.Ref
	if ref == "" {
		ref = run.Ref
	}

	in := metrics.Input{
		Provider:   r.Provider.Name(),
		Repository: t.Repository.FullName(),
		Run:        run,
		Jobs:       jobs,
		Mode:       t.Mode,
		Branch:     branch.Resolve(ref, req.HeadRef),
		Now:        now,
	}
	if t.Mode == domain.ModeInline {
		in.SelfJobID = r.resolveSelf(log, jobs, req)
	}
	return metrics.Aggregate(in), nil
}

func (r *Reporter) resolveSelf(log *slog.Logger, jobs []domain.RawJob, req Request) *int64 {
	if req.JobName == "" {
		log.Warn("current job name is unknown; the reporting job will be included in the record")
		return nil
	}
	res := selfjob.Find(jobs, req.JobName, req.RunnerName)
	for _, w := range res.Warnings {
		log.Warn(w)
	}
	if !res.Found {
		return nil
	}
	log.Debug("excluding reporting job", "job_id", res.JobID)
	id := res.JobID
	return &id
}

// Run builds the record for req and publishes it.
func (r *Reporter) Run(ctx context.Context, req Request) (domain.PipelineMetricsRecord, error) {
	rec, err := r.Build(ctx, req)
	if err != nil {
		return rec, err
	}
	if err := r.Publisher.Deliver(ctx, rec); err != nil {
		return rec, err
	}
	r.logger().Info("published metrics",
		"repository", rec.Repository,
		"run_id", rec.RunID,
		"status", rec.Status,
		"mode", rec.Mode,
		"jobs", len(rec.Jobs),
	)
	return rec, nil
}

func (r *Reporter) logger() *slog.Logger {
	if r.Log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Log
}
