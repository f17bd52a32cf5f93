package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-http-probe-swarm/internal/stats"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// DefaultRefresh is how often the dashboard pulls a new report.
const DefaultRefresh = 500 * time.Millisecond

// logLines is the number of recent log lines shown in the log panel.
const logLines = 8

// Model represents the TUI state.
type Model struct {
	// Configuration
	runID       string
	source      string
	metricsAddr string
	refresh     time.Duration

	// Current state
	report       *stats.Report
	startTime    time.Time
	lastUpdate   time.Time
	detailedView bool
	showLogs     bool

	// Display options
	width  int
	height int

	reports  ReportSource
	settings SettingsSource
	logs     LogSource

	// Quit flag
	quitting bool
}

// ReportSource provides the most recent report.
type ReportSource interface {
	Latest() *stats.Report
}

// SettingsSource reports the per-target cap currently in effect.
type SettingsSource interface {
	RequestsPerTarget() int64
}

// LogSource provides recent log lines. Optional.
type LogSource interface {
	RecentLines(n int) []string
}

// Config holds TUI configuration.
type Config struct {
	RunID       string
	Source      string
	MetricsAddr string
	Refresh     time.Duration

	Reports  ReportSource
	Settings SettingsSource
	Logs     LogSource
}

// New creates a new TUI model.
func New(cfg Config) Model {
	refresh := cfg.Refresh
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	return Model{
		runID:       cfg.RunID,
		source:      cfg.Source,
		metricsAddr: cfg.MetricsAddr,
		refresh:     refresh,
		reports:     cfg.Reports,
		settings:    cfg.Settings,
		logs:        cfg.Logs,
		showLogs:    cfg.Logs != nil,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	// Note: tea.WithAltScreen() is passed when creating the program,
	// so we don't need tea.EnterAltScreen here.
	return tickCmd(m.refresh)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "d":
			m.detailedView = !m.detailedView
			return m, nil
		case "l":
			if m.logs != nil {
				m.showLogs = !m.showLogs
			}
			return m, nil
		case "r":
			m.pull()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.pull()
		return m, tickCmd(m.refresh)

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) pull() {
	if m.reports == nil {
		return
	}
	if r := m.reports.Latest(); r != nil {
		m.report = r
		m.lastUpdate = time.Now()
	}
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.detailedView {
		return m.renderDetailedView()
	}
	return m.renderSummaryView()
}

// =============================================================================
// Commands
// =============================================================================

func tickCmd(every time.Duration) tea.Cmd {
	return tea.Tick(every, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the dashboard started.
func (m Model) Elapsed() time.Duration {
	if m.report != nil && m.report.Uptime > 0 {
		return m.report.Uptime
	}
	return time.Since(m.startTime)
}

// Quitting reports whether the user asked to quit.
func (m Model) Quitting() bool {
	return m.quitting
}

// RequestsPerTarget returns the cap in effect, or 0 when unknown.
func (m Model) RequestsPerTarget() int64 {
	if m.settings == nil {
		return 0
	}
	return m.settings.RequestsPerTarget()
}

// Saturation is in-flight probes over total capacity (targets x cap).
func (m Model) Saturation() float64 {
	limit := m.RequestsPerTarget()
	if m.report == nil || m.report.Targets == 0 || limit == 0 {
		return 0
	}
	return float64(m.report.InFlight) / float64(int64(m.report.Targets)*limit)
}

// ErrorRate is the fraction of ranked targets' requests that failed.
func (m Model) ErrorRate() float64 {
	if m.report == nil {
		return 0
	}
	var reqs, errs int64
	for _, row := range m.report.Ranked {
		reqs += row.Requests
		errs += row.Errors + row.ReadErrors
	}
	if reqs == 0 {
		return 0
	}
	return float64(errs) / float64(reqs)
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}
