package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/waabox/pipemetrics/internal/domain"
)

// JobListModel is an immutable model for the jobs panel.
type JobListModel struct {
	jobs   []domain.NormalizedJob
	cursor int
}

// NewJobListModel creates a job list model.
func NewJobListModel(jobs []domain.NormalizedJob) JobListModel {
	return JobListModel{jobs: jobs, cursor: 0}
}

// Update replaces the jobs, keeping the cursor on the same job id when it is still listed.
func (m JobListModel) Update(jobs []domain.NormalizedJob) JobListModel {
	selected := m.Selected()
	m.jobs = jobs
	m.cursor = 0
	for i, j := range jobs {
		if j.ID == selected.ID {
			m.cursor = i
			break
		}
	}
	return m
}

// MoveDown returns a new model with the cursor moved down by one.
func (m JobListModel) MoveDown() JobListModel {
	if m.cursor < len(m.jobs)-1 {
		m.cursor++
	}
	return m
}

// MoveUp returns a new model with the cursor moved up by one.
func (m JobListModel) MoveUp() JobListModel {
	if m.cursor > 0 {
		m.cursor--
	}
	return m
}

// Selected returns the highlighted job, or a zero value when the list is empty.
func (m JobListModel) Selected() domain.NormalizedJob {
	if len(m.jobs) == 0 {
		return domain.NormalizedJob{}
	}
	return m.jobs[m.cursor]
}

// View renders the job list as a string.
func (m JobListModel) View() string {
	if len(m.jobs) == 0 {
		return "  No jobs yet.\n"
	}
	var sb strings.Builder
	for i, j := range m.jobs {
		prefix := "  "
		if i == m.cursor {
			prefix = "> "
		}
		fmt.Fprintf(&sb, "%s%s %-30s %-10s %s\n",
			prefix,
			statusIcon(j.Status),
			truncate(j.Name, 30),
			j.Status,
			formatSeconds(j.DurationSeconds),
		)
	}
	return sb.String()
}

func statusIcon(s domain.Status) string {
	switch s {
	case domain.StatusSuccess:
		return "✓"
	case domain.StatusFailure, domain.StatusTimedOut:
		return "✗"
	case domain.StatusRunning:
		return "●"
	case domain.StatusPending, domain.StatusQueued:
		return "↷"
	case domain.StatusCancelled:
		return "○"
	case domain.StatusSkipped:
		return "-"
	default:
		return "?"
	}
}

func formatSeconds(secs *int64) string {
	if secs == nil {
		return "--"
	}
	return (time.Duration(*secs) * time.Second).String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
