package stats

import (
	"fmt"
	"strings"
	"time"

	"github.com/randomizedcoder/go-http-probe-swarm/internal/timeseries"
)

// Report is an immutable snapshot produced by one Aggregate call.
type Report struct {
	Timestamp time.Time     `json:"timestamp"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Uptime    time.Duration `json:"uptime_ns"`

	Targets  int   `json:"targets"`
	InFlight int64 `json:"in_flight"`

	// This interval
	IntervalBytes    int64   `json:"interval_bytes"`
	IntervalRequests int64   `json:"interval_requests"`
	IntervalRps      float64 `json:"interval_rps"`
	IntervalKbps     float64 `json:"interval_kbps"`
	SmoothedKbps     float64 `json:"smoothed_kbps"`

	// Lifetime
	TotalBytes    int64            `json:"total_bytes"`
	TotalRequests int64            `json:"total_requests"`
	Throughput    timeseries.Rates `json:"throughput"`

	// Ranked holds every target, highest smoothed kbps first; Rows is the
	// displayed prefix of Ranked.
	Ranked []Row `json:"-"`
	Rows   []Row `json:"rows"`
}

// Row is the per-target line of a report.
type Row struct {
	URL        string                  `json:"url"`
	InFlight   int64                   `json:"in_flight"`
	Requests   int64                   `json:"requests"`
	Bytes      int64                   `json:"bytes"`
	Errors     int64                   `json:"errors"`
	ReadErrors int64                   `json:"read_errors"`
	Timeouts   int64                   `json:"timeouts"`
	TimeoutPct float64                 `json:"timeout_pct"`
	Status     [numStatusClasses]int64 `json:"status_classes"`
	Kbps       float64                 `json:"kbps"`
	Rps        float64                 `json:"rps"`
	EMAKbps    float64                 `json:"ema_kbps"`
	EMARps     float64                 `json:"ema_rps"`
	LatencyP50 time.Duration           `json:"latency_p50_ns"`
	LatencyP95 time.Duration           `json:"latency_p95_ns"`
	LatencyP99 time.Duration           `json:"latency_p99_ns"`
}

// StatusString renders the class breakdown as "2xx/3xx/4xx/5xx".
func (r Row) StatusString() string {
	return fmt.Sprintf("%d/%d/%d/%d", r.Status[Class2xx], r.Status[Class3xx], r.Status[Class4xx], r.Status[Class5xx])
}

// TotalMb returns cumulative received megabytes.
func (r *Report) TotalMb() int64 {
	return r.TotalBytes / (1024 * 1024)
}

// =============================================================================
// Plain text rendering
// =============================================================================

// Column layout of the plain report. Cells longer than their width are cut.
var reportColumns = []struct {
	title string
	width int
}{
	{"Target", 40},
	{"Errs", 11},
	{"Reqs", 14},
	{"Kbps", 8},
	{"Kbps(avg)", 10},
	{"2xx/3xx/4xx/5xx", 20},
	{"Rps(avg)", 9},
	{"Timeouts", 14},
}

// FormatReport renders a report as the fixed-column console table.
func FormatReport(r *Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  targets=%d  in-flight=%d\n", r.Timestamp.Format(time.DateTime), r.Targets, r.InFlight)

	titles := make([]string, len(reportColumns))
	for i, c := range reportColumns {
		titles[i] = c.title
	}
	writeCells(&b, titles)

	for _, row := range r.Rows {
		writeCells(&b, []string{
			row.URL,
			fmt.Sprintf("%d/%d", row.Errors, row.ReadErrors),
			fmt.Sprintf("%d (%d)", row.InFlight, row.Requests),
			fmt.Sprintf("%d", int64(row.Kbps)),
			fmt.Sprintf("%.2f", row.EMAKbps),
			row.StatusString(),
			fmt.Sprintf("%.2f", row.EMARps),
			fmt.Sprintf("%d (%.1f%%)", row.Timeouts, row.TimeoutPct),
		})
	}

	fmt.Fprintf(&b, "Total kbps: %d\n", int64(r.IntervalKbps))
	fmt.Fprintf(&b, "Total rx: %d Mb\n", r.TotalMb())
	fmt.Fprintf(&b, "Requests: %d RPS: %.2f\n", r.TotalRequests, r.IntervalRps)
	return b.String()
}

func writeCells(b *strings.Builder, cells []string) {
	for i, c := range reportColumns {
		if i >= len(cells) {
			break
		}
		// Cut and pad by runes so IDN and decoded URLs stay valid UTF-8
		cell := []rune(cells[i])
		if len(cell) > c.width {
			cell = cell[:c.width]
		}
		b.WriteString(string(cell))
		b.WriteString(strings.Repeat(" ", c.width-len(cell)+1))
	}
	b.WriteString("\n")
}
