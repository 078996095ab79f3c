// Package testutil provides fake provider and ingestion servers for tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// FakeGitHub serves the subset of the GitHub Actions REST API the github adapter uses.
// Runs and Jobs are keyed by run id and hold raw JSON-shaped maps.
type FakeGitHub struct {
	Owner string
	Repo  string

	mu       sync.Mutex
	runs     map[int64]map[string]any
	jobs     map[int64][]map[string]any
	requests []string
	server   *httptest.Server
}

// NewFakeGitHub starts a fake GitHub API for owner/repo and closes it when the test ends.
func NewFakeGitHub(t *testing.T, owner, repo string) *FakeGitHub {
	t.Helper()
	f := &FakeGitHub{
		Owner: owner,
		Repo:  repo,
		runs:  make(map[int64]map[string]any),
		jobs:  make(map[int64][]map[string]any),
	}

	r := chi.NewRouter()
	r.Use(f.record)
	r.Route("/repos/{owner}/{repo}/actions/runs/{runID}", func(r chi.Router) {
		r.Get("/", f.handleRun)
		r.Get("/jobs", f.handleJobs)
		r.Get("/attempts/{attempt}/jobs", f.handleJobs)
	})

	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

// URL is the base URL to hand to the github adapter.
func (f *FakeGitHub) URL() string {
	return f.server.URL
}

// AddRun registers a workflow run and its jobs.
func (f *FakeGitHub) AddRun(run map[string]any, jobs ...map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := toInt64(run["id"])
	f.runs[id] = run
	f.jobs[id] = jobs
}

// Requests returns the request URIs served so far.
func (f *FakeGitHub) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *FakeGitHub) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.URL.RequestURI())
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (f *FakeGitHub) lookup(w http.ResponseWriter, r *http.Request) (int64, bool) {
	if chi.URLParam(r, "owner") != f.Owner || chi.URLParam(r, "repo") != f.Repo {
		http.NotFound(w, r)
		return 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "runID"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return 0, false
	}
	f.mu.Lock()
	_, ok := f.runs[id]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}

func (f *FakeGitHub) handleRun(w http.ResponseWriter, r *http.Request) {
	id, ok := f.lookup(w, r)
	if !ok {
		return
	}
	f.mu.Lock()
	run := f.runs[id]
	f.mu.Unlock()
	writeJSON(w, run)
}

func (f *FakeGitHub) handleJobs(w http.ResponseWriter, r *http.Request) {
	id, ok := f.lookup(w, r)
	if !ok {
		return
	}
	perPage := queryInt(r, "per_page", 30)
	page := queryInt(r, "page", 1)

	f.mu.Lock()
	all := f.jobs[id]
	f.mu.Unlock()

	start := (page - 1) * perPage
	end := start + perPage
	if start > len(all) {
		start = len(all)
	}
	if end > len(all) {
		end = len(all)
	}
	writeJSON(w, map[string]any{
		"total_count": len(all),
		"jobs":        all[start:end],
	})
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 1 {
		return def
	}
	return v
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
