// This file implements the exit summary printed when the prober stops.

package stats

import (
	"fmt"
	"strings"
	"time"
)

const (
	ruleHeavy = "═══════════════════════════════════════════════════════════════════════════════\n"
	ruleLight = "───────────────────────────────────────────────────────────────────────────────\n"
)

// SummaryConfig holds the run information that is not part of a Report.
type SummaryConfig struct {
	// RunID identifies this process run in logs and metrics
	RunID string

	// Duration is the total run duration
	Duration time.Duration

	// MetricsAddr is the Prometheus endpoint address (empty = disabled)
	MetricsAddr string

	// TopTargets limits the per-target table (0 = all)
	TopTargets int

	// Reloads and ReloadFailures come from the reload coordinator
	Reloads        int64
	ReloadFailures int64
}

// FormatExitSummary formats the final report for display at exit.
func FormatExitSummary(r *Report, cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(ruleHeavy)
	b.WriteString("                        go-http-probe-swarm Exit Summary\n")
	b.WriteString(ruleHeavy + "\n")

	fmt.Fprintf(&b, "Run ID:                 %s\n", cfg.RunID)
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Config Reloads:         %d (%d failed)\n", cfg.Reloads, cfg.ReloadFailures)

	if r == nil {
		b.WriteString("\n(no report was produced)\n")
		b.WriteString(ruleHeavy)
		return b.String()
	}
	fmt.Fprintf(&b, "Targets:                %d\n\n", r.Targets)

	section(&b, "Request Statistics")
	var avgRps float64
	if secs := cfg.Duration.Seconds(); secs > 0 {
		avgRps = float64(r.TotalRequests) / secs
	}
	fmt.Fprintf(&b, "  Total Requests:       %s  (%s)\n", FormatNumber(r.TotalRequests), FormatRate(avgRps))
	fmt.Fprintf(&b, "  Total Received:       %s\n", FormatBytes(r.TotalBytes))
	fmt.Fprintf(&b, "  Throughput 60s:       %s/s\n", FormatBytes(int64(r.Throughput.Last60s)))
	fmt.Fprintf(&b, "  Throughput overall:   %s/s\n\n", FormatBytes(int64(r.Throughput.Overall)))

	var status [numStatusClasses]int64
	var errs, readErrs, timeouts, reqs int64
	for _, row := range r.Ranked {
		for i, n := range row.Status {
			status[i] += n
		}
		errs += row.Errors
		readErrs += row.ReadErrors
		timeouts += row.Timeouts
		reqs += row.Requests
	}

	section(&b, "Responses")
	for _, c := range StatusClasses {
		fmt.Fprintf(&b, "  %-22s%d\n", c.String()+":", status[c])
	}
	b.WriteString("\n")

	if errs > 0 || readErrs > 0 || timeouts > 0 {
		section(&b, "Errors")
		fmt.Fprintf(&b, "  Errors:               %d\n", errs)
		fmt.Fprintf(&b, "  Read Errors:          %d\n", readErrs)
		fmt.Fprintf(&b, "  Timeouts:             %d\n", timeouts)
		if reqs > 0 {
			fmt.Fprintf(&b, "  Error Rate:           %.2f%%\n", float64(errs+readErrs)*100/float64(reqs))
		}
		b.WriteString("\n")
	}

	rows := TopN(r.Ranked, cfg.TopTargets)
	if len(rows) > 0 {
		section(&b, "Targets (by smoothed kbps)")
		fmt.Fprintf(&b, "  %-40s %10s %12s %10s %10s\n", "Target", "Requests", "Received", "Kbps(avg)", "p95")
		b.WriteString("  " + strings.Repeat("─", 86) + "\n")
		for _, row := range rows {
			url := row.URL
			if len(url) > 40 {
				url = url[:37] + "..."
			}
			fmt.Fprintf(&b, "  %-40s %10s %12s %10.2f %10s\n",
				url,
				FormatNumber(row.Requests),
				FormatBytes(row.Bytes),
				row.EMAKbps,
				FormatMs(row.LatencyP95),
			)
		}
		b.WriteString("\n")
	}

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}
	b.WriteString(ruleHeavy)
	return b.String()
}

func section(b *strings.Builder, title string) {
	b.WriteString(ruleLight)
	pad := (len(ruleLight)/3 - len(title)) / 2
	if pad < 0 {
		pad = 0
	}
	b.WriteString(strings.Repeat(" ", pad) + title + "\n")
	b.WriteString(ruleLight + "\n")
}

// =============================================================================
// Formatting helpers (shared with the TUI)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatBytes formats bytes with KB/MB/GB suffixes.
func FormatBytes(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// FormatRate formats a per-second rate.
func FormatRate(rate float64) string {
	if rate >= 1000 {
		return fmt.Sprintf("%.1fK/s", rate/1000)
	}
	if rate >= 1 {
		return fmt.Sprintf("%.1f/s", rate)
	}
	return fmt.Sprintf("%.2f/s", rate)
}
