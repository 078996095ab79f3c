package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/waabox/pipemetrics/internal/domain"
	"github.com/waabox/pipemetrics/internal/report"
)

// DefaultInterval is the polling interval used when none is given.
const DefaultInterval = 5 * time.Second

// Builder produces a fresh record for a request. *report.Reporter satisfies it.
type Builder interface {
	Build(ctx context.Context, req report.Request) (domain.PipelineMetricsRecord, error)
}

// RecordLoadedMsg is sent when a poll of the watched run has finished.
// It is exported so that tests can inject it directly into WatchModel.Update.
type RecordLoadedMsg struct {
	Record domain.PipelineMetricsRecord
	Err    error
}

// tickMsg is sent by the polling ticker.
type tickMsg struct{}

// WatchModel is the root Bubbletea model for `pipemetrics watch`.
type WatchModel struct {
	ctx      context.Context
	builder  Builder
	req      report.Request
	interval time.Duration

	record   domain.PipelineMetricsRecord
	loaded   bool
	loading  bool
	finished bool
	err      error
	jobs     JobListModel
}

// NewWatchModel creates a model that polls req through builder every interval.
func NewWatchModel(ctx context.Context, builder Builder, req report.Request, interval time.Duration) WatchModel {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return WatchModel{
		ctx:      ctx,
		builder:  builder,
		req:      req,
		interval: interval,
		loading:  true,
		jobs:     NewJobListModel(nil),
	}
}

// Init triggers the first poll.
func (m WatchModel) Init() tea.Cmd {
	return m.load()
}

func (m WatchModel) load() tea.Cmd {
	return func() tea.Msg {
		rec, err := m.builder.Build(m.ctx, m.req)
		return RecordLoadedMsg{Record: rec, Err: err}
	}
}

// permanent reports whether polling again cannot fix err.
func permanent(err error) bool {
	var inputErr *domain.InputError
	var notFound *domain.RunNotFoundError
	return errors.As(err, &inputErr) || errors.As(err, &notFound) || errors.Is(err, domain.ErrUnauthorized)
}

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(_ time.Time) tea.Msg {
		return tickMsg{}
	})
}

// Update handles all incoming messages and key events.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case RecordLoadedMsg:
		m.loading = false
		if msg.Err != nil {
			m.err = msg.Err
			if permanent(msg.Err) {
				return m, tea.Quit
			}
			return m, tickEvery(m.interval)
		}
		m.err = nil
		m.loaded = true
		m.record = msg.Record
		m.jobs = m.jobs.Update(msg.Record.Jobs)
		if msg.Record.Status.IsTerminal() {
			m.finished = true
			return m, tea.Quit
		}
		return m, tickEvery(m.interval)

	case tickMsg:
		if m.loading {
			return m, nil
		}
		m.loading = true
		return m, m.load()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "ctrl+r":
			if m.loading {
				return m, nil
			}
			m.loading = true
			return m, m.load()
		case "down":
			m.jobs = m.jobs.MoveDown()
		case "up":
			m.jobs = m.jobs.MoveUp()
		}
	}
	return m, nil
}

// Record returns the most recent record and whether its status was terminal.
func (m WatchModel) Record() (domain.PipelineMetricsRecord, bool) {
	return m.record, m.finished
}

// Err returns the error of the most recent poll, if it failed.
func (m WatchModel) Err() error {
	return m.err
}

// View renders the watch screen.
func (m WatchModel) View() string {
	if !m.loaded {
		if m.err != nil {
			return fmt.Sprintf("Error: %v\n\nRetrying every %s. Press 'ctrl+r' to retry now or 'q' to quit.\n", m.err, m.interval)
		}
		return "Loading run...\n"
	}

	rec := m.record
	separator := "────────────────────────────────────────────────────────────\n"
	header := fmt.Sprintf(" pipemetrics | %s #%s (attempt %d)\n", rec.Repository, rec.RunID, rec.RunAttempt)
	summary := fmt.Sprintf(" %s %-10s %s", statusIcon(rec.Status), rec.Status, rec.RunName)
	if rec.Branch != "" {
		summary += fmt.Sprintf("  ⎇ %s", rec.Branch)
	}
	summary += "\n"
	timing := fmt.Sprintf(" elapsed %s   compute %s   %d jobs\n",
		formatSeconds(rec.DurationSeconds), formatSeconds(rec.ComputeSeconds), len(rec.Jobs))

	footer := " ↑/↓: navigate   ctrl+r: refresh   q: quit\n"
	switch {
	case m.err != nil:
		footer = fmt.Sprintf(" Last refresh failed: %v\n", m.err)
	case m.finished:
		footer = " Run finished.\n"
	}
	return header + separator + summary + timing + separator + m.jobs.View() + separator + footer
}

// Run starts the Bubbletea program and blocks until the watched run reaches a terminal status
// or the user quits. It returns the last record seen and whether it was terminal.
func Run(ctx context.Context, builder Builder, req report.Request, interval time.Duration) (domain.PipelineMetricsRecord, bool, error) {
	p := tea.NewProgram(NewWatchModel(ctx, builder, req, interval), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return domain.PipelineMetricsRecord{}, false, fmt.Errorf("running watch view: %w", err)
	}
	m := final.(WatchModel)
	rec, finished := m.Record()
	if m.err != nil && (!m.loaded || permanent(m.err)) {
		return rec, false, m.err
	}
	return rec, finished, nil
}
