// This file implements the Aggregator which turns raw per-target counters
// into a ranked Report once per reporting interval.

package stats

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-http-probe-swarm/internal/timeseries"
)

// DefaultSmoothing is the EMA factor applied to kbps and rps.
const DefaultSmoothing = 0.1

// Totals are process-wide lifetime counters. They survive target removal.
type Totals struct {
	Requests atomic.Int64
	Bytes    atomic.Int64
}

// Aggregator drains interval counters and publishes Reports.
//
// Aggregate must be called from a single goroutine; it is the only writer
// of the rate fields on Target. Latest may be called from anywhere.
type Aggregator struct {
	registry   *Registry
	totals     *Totals
	throughput *timeseries.ThroughputTracker
	smoothing  float64

	startTime  time.Time
	lastReport time.Time

	latest atomic.Pointer[Report]
}

// NewAggregator creates an aggregator over registry. A smoothing factor
// outside (0, 1] falls back to DefaultSmoothing.
func NewAggregator(registry *Registry, totals *Totals, smoothing float64) *Aggregator {
	if smoothing <= 0 || smoothing > 1 {
		smoothing = DefaultSmoothing
	}
	now := time.Now()
	return &Aggregator{
		registry:   registry,
		totals:     totals,
		throughput: timeseries.NewThroughputTracker(timeseries.DefaultCapacity),
		smoothing:  smoothing,
		startTime:  now,
		lastReport: now,
	}
}

// Aggregate drains every target, updates its rates and returns a Report
// ranked by smoothed kbps holding at most rows rows (rows <= 0 means all).
//
// Nothing is drained when no time has passed since the previous call.
func (a *Aggregator) Aggregate(now time.Time, rows int) *Report {
	elapsed := now.Sub(a.lastReport)
	targets := a.registry.Snapshot()

	report := &Report{
		Timestamp: now,
		Elapsed:   elapsed,
		Uptime:    now.Sub(a.startTime),
		Targets:   len(targets),
	}

	if elapsed > 0 {
		secs := elapsed.Seconds()
		var drainedBytes, drainedReqs int64
		for _, t := range targets {
			bytes, reqs := t.Drain()
			drainedBytes += bytes
			drainedReqs += reqs

			t.kbps = float64(bytes) / (secs * 1024)
			t.rps = float64(reqs) / secs
			t.emaKbps = EMA(t.emaKbps, t.kbps, a.smoothing)
			t.emaRps = EMA(t.emaRps, t.rps, a.smoothing)

			report.IntervalKbps += t.kbps
			report.SmoothedKbps += t.emaKbps
		}
		report.IntervalBytes = drainedBytes
		report.IntervalRequests = drainedReqs
		report.IntervalRps = float64(drainedReqs) / secs

		a.totals.Bytes.Add(drainedBytes)
		a.throughput.Add(drainedBytes)
		a.throughput.Sample()
		a.lastReport = now
	}

	report.TotalBytes = a.totals.Bytes.Load()
	report.TotalRequests = a.totals.Requests.Load()
	report.Throughput = a.throughput.Rates()

	ranked := make([]Row, 0, len(targets))
	for _, t := range targets {
		ranked = append(ranked, rowFor(t))
		report.InFlight += t.InFlight()
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].EMAKbps > ranked[j].EMAKbps
	})
	report.Ranked = ranked
	report.Rows = TopN(ranked, rows)

	a.latest.Store(report)
	return report
}

// Latest returns the most recent report, or nil before the first Aggregate.
func (a *Aggregator) Latest() *Report {
	return a.latest.Load()
}

// StartTime returns when the aggregator was created.
func (a *Aggregator) StartTime() time.Time {
	return a.startTime
}

// TopN returns the first n rows, or all of them when n <= 0 or n exceeds
// the number of rows.
func TopN(rows []Row, n int) []Row {
	if n <= 0 || n >= len(rows) {
		return rows
	}
	return rows[:n]
}

func rowFor(t *Target) Row {
	p50, p95, p99 := t.LatencyPercentiles()
	reqs := t.RequestsTotal()
	timeouts := t.Timeouts()

	var timeoutPct float64
	if reqs > 0 {
		timeoutPct = float64(timeouts) * 100 / float64(reqs)
	}

	return Row{
		URL:        t.URL,
		InFlight:   t.InFlight(),
		Requests:   reqs,
		Bytes:      t.BytesTotal(),
		Errors:     t.Errors(),
		ReadErrors: t.ReadErrors(),
		Timeouts:   timeouts,
		TimeoutPct: timeoutPct,
		Status:     t.StatusCounts(),
		Kbps:       t.kbps,
		Rps:        t.rps,
		EMAKbps:    t.emaKbps,
		EMARps:     t.emaRps,
		LatencyP50: p50,
		LatencyP95: p95,
		LatencyP99: p99,
	}
}
