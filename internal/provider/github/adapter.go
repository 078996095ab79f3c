package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/waabox/pipemetrics/internal/domain"
)

const (
	defaultBaseURL = "https://api.github.com"
	jobsPerPage    = 100
)

// Adapter implements domain.RunProvider for GitHub Actions.
type Adapter struct {
	token   string
	baseURL string
	client  *http.Client
}

// Ensure Adapter fully implements domain.RunProvider.
var _ domain.RunProvider = (*Adapter)(nil)

// NewAdapter creates a GitHub Actions adapter.
// baseURL is used for GitHub Enterprise and tests; pass empty string to use the real GitHub API.
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
	return "github"
}

// GetRun returns a single workflow run.
func (a *Adapter) GetRun(ctx context.Context, repo domain.Repository, runID int64) (domain.RawPipelineRun, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/actions/runs/%d", a.baseURL, repo.Owner, repo.Name, runID)
	var run workflowRun
	if err := a.get(ctx, url, &run); err != nil {
		return domain.RawPipelineRun{}, err
	}
	return run.toRaw(), nil
}

// ListJobs returns every job of the given run attempt, following pagination.
// An attempt below 1 lists the jobs of the latest attempt.
func (a *Adapter) ListJobs(ctx context.Context, repo domain.Repository, runID int64, attempt int) ([]domain.RawJob, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/actions/runs/%d/jobs?filter=latest&", a.baseURL, repo.Owner, repo.Name, runID)
	if attempt > 0 {
		endpoint = fmt.Sprintf("%s/repos/%s/%s/actions/runs/%d/attempts/%d/jobs?", a.baseURL, repo.Owner, repo.Name, runID, attempt)
	}

	var jobs []domain.RawJob
	for page := 1; ; page++ {
		var result struct {
			TotalCount int           `json:"total_count"`
			Jobs       []workflowJob `json:"jobs"`
		}
		url := fmt.Sprintf("%sper_page=%d&page=%d", endpoint, jobsPerPage, page)
		if err := a.get(ctx, url, &result); err != nil {
			return nil, fmt.Errorf("listing jobs (page %d): %w", page, err)
		}
		for _, j := range result.Jobs {
			jobs = append(jobs, j.toRaw())
		}
		if len(result.Jobs) == 0 || len(jobs) >= result.TotalCount {
			return jobs, nil
		}
	}
}

func (a *Adapter) get(ctx context.Context, url string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("github API error: %s: %w", resp.Status, domain.ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("github API error: %s: %w", resp.Status, domain.ErrNotFound)
	case resp.StatusCode >= 400:
		return fmt.Errorf("github API error: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

type account struct {
	Login string `json:"login"`
}

// workflowRun is the raw GitHub API response shape for a workflow run.
type workflowRun struct {
	ID              int64    `json:"id"`
	WorkflowID      int64    `json:"workflow_id"`
	Name            string   `json:"name"`
	DisplayTitle    string   `json:"display_title"`
	Status          string   `json:"status"`
	Conclusion      string   `json:"conclusion"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
	Event           string   `json:"event"`
	Actor           *account `json:"actor"`
	TriggeringActor *account `json:"triggering_actor"`
	HeadBranch      string   `json:"head_branch"`
	RunAttempt      int      `json:"run_attempt"`
	HTMLURL         string   `json:"html_url"`
}

func (r workflowRun) toRaw() domain.RawPipelineRun {
	actor := ""
	if r.TriggeringActor != nil && r.TriggeringActor.Login != "" {
		actor = r.TriggeringActor.Login
	} else if r.Actor != nil {
		actor = r.Actor.Login
	}
	return domain.RawPipelineRun{
		ID:         r.ID,
		WorkflowID: r.WorkflowID,
		Name:       r.Name,
		Title:      r.DisplayTitle,
		State:      r.Status,
		Outcome:    r.Conclusion,
		CreatedAt:  parseTime(r.CreatedAt),
		UpdatedAt:  parseTime(r.UpdatedAt),
		Event:      r.Event,
		Actor:      actor,
		// The runs API carries no full ref; head_branch doubles as the source ref.
		Ref:        r.HeadBranch,
		HeadBranch: r.HeadBranch,
		Attempt:    r.RunAttempt,
		URL:        r.HTMLURL,
	}
}

// workflowJob is the raw GitHub API response shape for a job.
type workflowJob struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Conclusion  string `json:"conclusion"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at"`
	RunnerName  string `json:"runner_name"`
	HTMLURL     string `json:"html_url"`
}

func (j workflowJob) toRaw() domain.RawJob {
	return domain.RawJob{
		ID:          j.ID,
		Name:        j.Name,
		State:       j.Status,
		Outcome:     j.Conclusion,
		StartedAt:   parseTime(j.StartedAt),
		CompletedAt: parseTime(j.CompletedAt),
		RunnerName:  j.RunnerName,
		URL:         j.HTMLURL,
	}
}

// parseTime returns nil for empty or malformed timestamps; a missing timestamp is not an error.
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
