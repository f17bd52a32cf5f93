package tui

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-http-probe-swarm/internal/stats"
)

// =============================================================================
// Main View Rendering
// =============================================================================

// renderSummaryView renders the main dashboard: totals and the ranked table.
func (m Model) renderSummaryView() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderSaturation())

	if m.report != nil {
		sections = append(sections, m.renderTotals())
		sections = append(sections, m.renderThroughput())
		sections = append(sections, m.renderTargetTable(false))
	} else {
		sections = append(sections, boxStyle.Width(m.width-2).Render(
			dimStyle.Render("Waiting for the first report..."),
		))
	}

	if m.showLogs {
		sections = append(sections, m.renderLogs())
	}

	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderDetailedView adds per-target latency and error columns.
func (m Model) renderDetailedView() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderTargetTable(true))
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	var targets int
	var inFlight int64
	if m.report != nil {
		targets = m.report.Targets
		inFlight = m.report.InFlight
	}

	header := fmt.Sprintf(
		" go-http-probe-swarm │ %s │ Targets: %d │ In flight: %d │ Elapsed: %s ",
		GetErrorRateLabel(m.ErrorRate()),
		targets,
		inFlight,
		stats.FormatDuration(m.Elapsed()),
	)

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Saturation
// =============================================================================

func (m Model) renderSaturation() string {
	saturation := m.Saturation()

	barWidth := m.width - 30
	if barWidth < 20 {
		barWidth = 20
	}

	limit := m.RequestsPerTarget()
	var status string
	switch {
	case limit == 0:
		status = dimStyle.Render("Cap unknown")
	case saturation >= 1.0:
		status = statusOK.Render(fmt.Sprintf("✓ Every target at its cap of %d", limit))
	default:
		status = statusInfo.Render(fmt.Sprintf("Cap %d per target", limit))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("In-Flight Saturation"),
		RenderProgressBar(saturation, barWidth),
		status,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Totals
// =============================================================================

func (m Model) renderTotals() string {
	r := m.report

	rows := []string{
		renderStatRow("Requests", stats.FormatNumber(r.TotalRequests), stats.FormatRate(r.IntervalRps)),
		renderStatRow("Received", stats.FormatBytes(r.TotalBytes), fmt.Sprintf("%.0f kbps", r.IntervalKbps)),
		RenderKeyValueWide("Smoothed kbps", fmt.Sprintf("%.2f", r.SmoothedKbps)),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelWideStyle.Render("Error Rate:"),
			GetErrorRateStyle(m.ErrorRate()).Render(formatPercent(m.ErrorRate())),
		),
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Totals")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

func renderStatRow(label, value, rate string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelWideStyle.Render(label+":"),
		valueStyle.Width(12).Render(value),
		mutedStyle.Render(" ("),
		valueStyle.Render(rate),
		mutedStyle.Render(")"),
	)
}

// =============================================================================
// Throughput windows
// =============================================================================

func (m Model) renderThroughput() string {
	t := m.report.Throughput

	left := []string{
		RenderKeyValue("Last 30s", stats.FormatBytes(int64(t.Last30s))+"/s"),
		RenderKeyValue("Last 60s", stats.FormatBytes(int64(t.Last60s))+"/s"),
	}
	right := []string{
		RenderKeyValue("Last 300s", stats.FormatBytes(int64(t.Last300s))+"/s"),
		RenderKeyValue("Overall", stats.FormatBytes(int64(t.Overall))+"/s"),
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Throughput"),
		renderTwoColumns(left, right),
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Target table
// =============================================================================

// tableColumn is one column of the ranked target table. The URL column
// takes whatever width remains.
type tableColumn struct {
	title string
	width int
	cell  func(stats.Row) string
}

var summaryColumns = []tableColumn{
	{"Reqs", 14, func(r stats.Row) string { return fmt.Sprintf("%d (%d)", r.InFlight, r.Requests) }},
	{"Kbps", 8, func(r stats.Row) string { return fmt.Sprintf("%d", int64(r.Kbps)) }},
	{"Kbps(avg)", 10, func(r stats.Row) string { return fmt.Sprintf("%.2f", r.EMAKbps) }},
	{"Rps(avg)", 9, func(r stats.Row) string { return fmt.Sprintf("%.2f", r.EMARps) }},
	{"2xx/3xx/4xx/5xx", 16, stats.Row.StatusString},
}

var detailColumns = []tableColumn{
	{"Errs", 11, func(r stats.Row) string { return fmt.Sprintf("%d/%d", r.Errors, r.ReadErrors) }},
	{"Timeouts", 14, func(r stats.Row) string { return fmt.Sprintf("%d (%.1f%%)", r.Timeouts, r.TimeoutPct) }},
	{"P50", 9, func(r stats.Row) string { return stats.FormatMs(r.LatencyP50) }},
	{"P95", 9, func(r stats.Row) string { return stats.FormatMs(r.LatencyP95) }},
	{"P99", 9, func(r stats.Row) string { return stats.FormatMs(r.LatencyP99) }},
	{"Rx", 10, func(r stats.Row) string { return stats.FormatBytes(r.Bytes) }},
}

func (m Model) renderTargetTable(detailed bool) string {
	if m.report == nil || len(m.report.Rows) == 0 {
		return boxStyle.Width(m.width - 2).Render(
			dimStyle.Render("No targets. Add URLs to the targets source."),
		)
	}

	columns := summaryColumns
	title := "Targets by Smoothed Kbps"
	if detailed {
		columns = detailColumns
		title = "Target Details (press 'd' to go back)"
	}

	urlWidth := m.width - 6
	for _, c := range columns {
		urlWidth -= c.width + 1
	}
	if urlWidth < 20 {
		urlWidth = 20
	}

	titles := []string{fmt.Sprintf("%-*s", urlWidth, "Target")}
	for _, c := range columns {
		titles = append(titles, fmt.Sprintf("%-*s", c.width, c.title))
	}
	header := tableHeaderStyle.Render(strings.Join(titles, " "))

	maxRows := m.height - 16
	if detailed {
		maxRows = m.height - 8
	}
	if maxRows < 5 {
		maxRows = 5
	}

	var rows []string
	for i, row := range m.report.Rows {
		if i >= maxRows {
			rows = append(rows, dimStyle.Render(fmt.Sprintf("... and %d more targets", len(m.report.Rows)-maxRows)))
			break
		}

		cells := []string{padRight(truncate(row.URL, urlWidth), urlWidth)}
		for _, c := range columns {
			cells = append(cells, padRight(truncate(c.cell(row), c.width), c.width))
		}

		rowStyle := tableRowEvenStyle
		if i%2 == 1 {
			rowStyle = tableRowOddStyle
		}
		if row.Status[stats.Class5xx] > 0 || row.Errors > 0 {
			rowStyle = valueWarnStyle
		}
		rows = append(rows, rowStyle.Render(strings.Join(cells, " ")))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render(title), header}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// truncate cuts s to width runes, marking the cut with "...".
func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}

// padRight pads s with spaces to width runes.
func padRight(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// =============================================================================
// Logs
// =============================================================================

func (m Model) renderLogs() string {
	if m.logs == nil {
		return ""
	}

	lines := m.logs.RecentLines(logLines)
	if len(lines) == 0 {
		lines = []string{dimStyle.Render("(no log output)")}
	}

	maxLen := m.width - 6
	if maxLen < 20 {
		maxLen = 20
	}
	rendered := make([]string, len(lines))
	for i, l := range lines {
		rendered[i] = mutedStyle.Render(truncate(l, maxLen))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Recent Logs")}, rendered...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{
		"q: quit",
		"d: toggle details",
		"r: refresh",
	}
	if m.logs != nil {
		shortcuts = append(shortcuts, "l: toggle logs")
	}

	info := "Source: " + m.source
	if m.metricsAddr != "" {
		info += " │ Metrics: " + m.metricsAddr
	}
	maxInfoLen := m.width - 60
	if maxInfoLen > 10 {
		info = truncate(info, maxInfoLen)
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	right := dimStyle.Render(info)

	// Pad to fill width
	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			right,
		),
	)
}

// =============================================================================
// Two-Column Layout Helper
// =============================================================================

// renderTwoColumns renders two columns side-by-side with a separator.
func renderTwoColumns(left, right []string) string {
	leftContent := lipgloss.JoinVertical(lipgloss.Left, left...)
	rightContent := lipgloss.JoinVertical(lipgloss.Left, right...)

	separator := mutedStyle.Render(" │ ")
	return lipgloss.JoinHorizontal(lipgloss.Top, leftContent, separator, rightContent)
}

func formatPercent(value float64) string {
	return fmt.Sprintf("%.1f%%", value*100)
}
