package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/waabox/pipemetrics/internal/domain"
)

const (
	defaultBaseURL = "https://gitlab.com"
	jobsPerPage    = 100
)

// Adapter implements domain.RunProvider for GitLab CI.
type Adapter struct {
	token   string
	baseURL string
	client  *http.Client
}

// Ensure Adapter fully implements domain.RunProvider.
var _ domain.RunProvider = (*Adapter)(nil)

// NewAdapter creates a GitLab CI adapter.
// baseURL can be a self-hosted GitLab instance URL; pass empty string for gitlab.com.
func NewAdapter(token string, baseURL string) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{
		token:   token,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Name returns the provider tag used in published records.
func (a *Adapter) Name() string {
	return "gitlab"
}

// GetRun returns a single pipeline.
func (a *Adapter) GetRun(ctx context.Context, repo domain.Repository, runID int64) (domain.RawPipelineRun, error) {
	projectID := url.PathEscape(repo.FullName())
	apiURL := fmt.Sprintf("%s/api/v4/projects/%s/pipelines/%d", a.baseURL, projectID, runID)
	var p gitLabPipeline
	if _, err := a.get(ctx, apiURL, &p); err != nil {
		return domain.RawPipelineRun{}, err
	}
	return p.toRaw(), nil
}

// ListJobs returns every job of the pipeline in creation order.
// GitLab pipelines have no attempts; retried jobs are left out so each job appears once.
func (a *Adapter) ListJobs(ctx context.Context, repo domain.Repository, runID int64, _ int) ([]domain.RawJob, error) {
	projectID := url.PathEscape(repo.FullName())
	var jobs []domain.RawJob
	page := "1"
	for page != "" {
		apiURL := fmt.Sprintf("%s/api/v4/projects/%s/pipelines/%d/jobs?include_retried=false&per_page=%d&page=%s",
			a.baseURL, projectID, runID, jobsPerPage, page)
		var batch []gitLabJob
		header, err := a.get(ctx, apiURL, &batch)
		if err != nil {
			return nil, fmt.Errorf("listing jobs (page %s): %w", page, err)
		}
		for _, j := range batch {
			jobs = append(jobs, j.toRaw())
		}
		page = header.Get("X-Next-Page")
		if len(batch) == 0 {
			page = ""
		}
	}
	// The API lists newest jobs first.
	for i, j := 0, len(jobs)-1; i < j; i, j = i+1, j-1 {
		jobs[i], jobs[j] = jobs[j], jobs[i]
	}
	return jobs, nil
}

func (a *Adapter) get(ctx context.Context, apiURL string, target interface{}) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("gitlab API error: %s: %w", resp.Status, domain.ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("gitlab API error: %s: %w", resp.Status, domain.ErrNotFound)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("gitlab API error: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return resp.Header, nil
}

type gitLabPipeline struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
	Name      string `json:"name"`
	Ref       string `json:"ref"`
	Tag       bool   `json:"tag"`
	Status    string `json:"status"`
	Source    string `json:"source"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	WebURL    string `json:"web_url"`
	User      struct {
		Username string `json:"username"`
	} `json:"user"`
}

func (p gitLabPipeline) toRaw() domain.RawPipelineRun {
	state, outcome := translateStatus(p.Status, "")
	name := p.Name
	if name == "" {
		name = p.Ref
	}
	raw := domain.RawPipelineRun{
		ID:         p.ID,
		WorkflowID: p.ProjectID,
		Name:       name,
		State:      state,
		Outcome:    outcome,
		CreatedAt:  parseTime(p.CreatedAt),
		UpdatedAt:  parseTime(p.UpdatedAt),
		Event:      p.Source,
		Actor:      p.User.Username,
		Ref:        "refs/heads/" + p.Ref,
		HeadBranch: p.Ref,
		Attempt:    1,
		URL:        p.WebURL,
	}
	switch {
	case strings.HasPrefix(p.Ref, "refs/"):
		// Merge request pipelines run on refs/merge-requests/N/head, which names no branch.
		raw.Ref = p.Ref
		raw.HeadBranch = ""
	case p.Tag:
		raw.Ref = "refs/tags/" + p.Ref
		raw.HeadBranch = ""
	}
	return raw
}

type gitLabJob struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason"`
	StartedAt     string `json:"started_at"`
	FinishedAt    string `json:"finished_at"`
	WebURL        string `json:"web_url"`
	Runner        *struct {
		Description string `json:"description"`
	} `json:"runner"`
}

func (j gitLabJob) toRaw() domain.RawJob {
	state, outcome := translateStatus(j.Status, j.FailureReason)
	raw := domain.RawJob{
		ID:          j.ID,
		Name:        j.Name,
		State:       state,
		Outcome:     outcome,
		StartedAt:   parseTime(j.StartedAt),
		CompletedAt: parseTime(j.FinishedAt),
		URL:         j.WebURL,
	}
	if j.Runner != nil {
		raw.RunnerName = j.Runner.Description
	}
	return raw
}

// translateStatus expresses GitLab's single status field as the (state, outcome) pair used by
// the classifier. Unrecognized statuses are passed through as the state so the classifier's
// fallback applies.
func translateStatus(status, failureReason string) (state, outcome string) {
	switch status {
	case "success":
		return domain.StateCompleted, "success"
	case "failed":
		if failureReason == "job_execution_timeout" {
			return domain.StateCompleted, "timed_out"
		}
		return domain.StateCompleted, "failure"
	case "canceled":
		return domain.StateCompleted, "cancelled"
	case "skipped":
		return domain.StateCompleted, "skipped"
	case "running":
		return domain.StateInProgress, ""
	case "pending":
		return domain.StateQueued, ""
	case "created", "waiting_for_resource", "preparing", "scheduled", "manual":
		return domain.StateWaiting, ""
	default:
		return status, ""
	}
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
