// Package metrics provides Prometheus metrics for go-http-probe-swarm.
//
// Metrics are organized into two tiers:
//   - Tier 1 (always enabled): process-wide totals, rates and reload health
//   - Tier 2 (optional, --per-target-metrics): one series set per target URL
//
// Every counter is fed from cumulative values via deltas, so the collector
// can be driven straight from the aggregator's reports.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-http-probe-swarm/internal/probe"
	"github.com/randomizedcoder/go-http-probe-swarm/internal/stats"
)

const namespace = "probe_swarm"

// CollectorConfig holds the static labels of the info metric.
type CollectorConfig struct {
	RunID            string
	Version          string
	Source           string
	Admission        string
	PerTargetMetrics bool
}

// OutcomeSource exposes cumulative probe outcome counts.
type OutcomeSource interface {
	OutcomeCount(o probe.Outcome) int64
}

// Collector owns every metric and the previous cumulative values needed to
// turn them into counter increments.
type Collector struct {
	// --- Tier 1: overview ---
	info              *prometheus.GaugeVec
	targets           prometheus.Gauge
	inFlight          prometheus.Gauge
	requestsPerTarget prometheus.Gauge
	uptimeSeconds     prometheus.Gauge

	// --- Tier 1: requests and throughput ---
	requestsTotal    prometheus.Counter
	bytesTotal       prometheus.Counter
	requestsPerSec   prometheus.Gauge
	intervalKbps     prometheus.Gauge
	smoothedKbps     prometheus.Gauge
	throughputWindow *prometheus.GaugeVec
	outcomesTotal    *prometheus.CounterVec
	statusTotal      *prometheus.CounterVec

	// --- Tier 1: configuration ---
	reloadsTotal *prometheus.CounterVec

	// --- Tier 2: per target ---
	perTarget      bool
	targetRequests *prometheus.CounterVec
	targetBytes    *prometheus.CounterVec
	targetErrors   *prometheus.CounterVec
	targetStatus   *prometheus.CounterVec
	targetInFlight *prometheus.GaugeVec
	targetKbps     *prometheus.GaugeVec
	targetRps      *prometheus.GaugeVec
	targetLatency  *prometheus.GaugeVec

	// Internal tracking for delta calculations
	mu              sync.Mutex
	prevRequests    int64
	prevBytes       int64
	prevOutcomes    [len(probe.Outcomes)]int64
	prevReloads     int64
	prevFailures    int64
	prevTargetStats map[string]targetPrev
}

type targetPrev struct {
	requests   int64
	bytes      int64
	errors     int64
	readErrors int64
	timeouts   int64
	status     [len(stats.StatusClasses)]int64
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Information about the probe run (value always 1)",
		}, []string{"run_id", "version", "source", "admission"}),
		targets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "targets",
			Help:      "Number of targets currently registered",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight",
			Help:      "Probes currently executing across all targets",
		}),
		requestsPerTarget: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_per_target",
			Help:      "Per-target in-flight cap in effect",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the run started",
		}),

		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Probes dispatched",
		}),
		bytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "received_bytes_total",
			Help:      "Response body bytes received",
		}),
		requestsPerSec: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_per_second",
			Help:      "Dispatch rate over the last report interval",
		}),
		intervalKbps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "interval_kbps",
			Help:      "Summed receive rate over the last report interval, KiB/s",
		}),
		smoothedKbps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "smoothed_kbps",
			Help:      "Summed smoothed receive rate, KiB/s",
		}),
		throughputWindow: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "throughput_bytes_per_second",
			Help:      "Receive rate averaged over a rolling window",
		}, []string{"window"}),
		outcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_outcomes_total",
			Help:      "Finished probes by outcome",
		}, []string{"outcome"}),
		statusTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Responses by status class across all targets",
		}, []string{"class"}),

		reloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Targets source reloads by result",
		}, []string{"result"}),

		perTarget:       cfg.PerTargetMetrics,
		prevTargetStats: make(map[string]targetPrev),
	}

	// Register Tier 1 metrics (always)
	registry.MustRegister(
		c.info,
		c.targets,
		c.inFlight,
		c.requestsPerTarget,
		c.uptimeSeconds,
		c.requestsTotal,
		c.bytesTotal,
		c.requestsPerSec,
		c.intervalKbps,
		c.smoothedKbps,
		c.throughputWindow,
		c.outcomesTotal,
		c.statusTotal,
		c.reloadsTotal,
	)

	// Register Tier 2 metrics (optional)
	if c.perTarget {
		c.initPerTargetMetrics(registry)
	}

	c.info.WithLabelValues(cfg.RunID, cfg.Version, cfg.Source, cfg.Admission).Set(1)

	// Pre-create label sets so they export as zero before the first probe
	for _, o := range probe.Outcomes {
		c.outcomesTotal.WithLabelValues(o.String())
	}
	for _, class := range stats.StatusClasses {
		c.statusTotal.WithLabelValues(class.String())
	}
	c.reloadsTotal.WithLabelValues("success")
	c.reloadsTotal.WithLabelValues("failure")

	return c
}

func (c *Collector) initPerTargetMetrics(registry prometheus.Registerer) {
	c.targetRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "target_requests_total",
		Help:      "Probes dispatched per target",
	}, []string{"url"})
	c.targetBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "target_received_bytes_total",
		Help:      "Body bytes received per target",
	}, []string{"url"})
	c.targetErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "target_errors_total",
		Help:      "Errors per target by kind (error, read_error, timeout)",
	}, []string{"url", "kind"})
	c.targetStatus = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "target_responses_total",
		Help:      "Responses per target by status class",
	}, []string{"url", "class"})
	c.targetInFlight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "target_in_flight",
		Help:      "Probes executing per target",
	}, []string{"url"})
	c.targetKbps = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "target_smoothed_kbps",
		Help:      "Smoothed receive rate per target, KiB/s",
	}, []string{"url"})
	c.targetRps = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "target_smoothed_rps",
		Help:      "Smoothed request rate per target",
	}, []string{"url"})
	c.targetLatency = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "target_latency_seconds",
		Help:      "Time to response headers per target",
	}, []string{"url", "quantile"})

	registry.MustRegister(
		c.targetRequests,
		c.targetBytes,
		c.targetErrors,
		c.targetStatus,
		c.targetInFlight,
		c.targetKbps,
		c.targetRps,
		c.targetLatency,
	)
}

// =============================================================================
// Recording
// =============================================================================

// RecordReport updates every report-derived metric.
func (c *Collector) RecordReport(r *stats.Report) {
	if r == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.targets.Set(float64(r.Targets))
	c.inFlight.Set(float64(r.InFlight))
	c.uptimeSeconds.Set(r.Uptime.Seconds())
	c.requestsPerSec.Set(r.IntervalRps)
	c.intervalKbps.Set(r.IntervalKbps)
	c.smoothedKbps.Set(r.SmoothedKbps)

	c.throughputWindow.WithLabelValues("30s").Set(r.Throughput.Last30s)
	c.throughputWindow.WithLabelValues("60s").Set(r.Throughput.Last60s)
	c.throughputWindow.WithLabelValues("300s").Set(r.Throughput.Last300s)
	c.throughputWindow.WithLabelValues("overall").Set(r.Throughput.Overall)

	// Calculate deltas and add to counters
	addDelta(c.requestsTotal, r.TotalRequests, &c.prevRequests)
	addDelta(c.bytesTotal, r.TotalBytes, &c.prevBytes)

	seen := make(map[string]struct{}, len(r.Ranked))
	for _, row := range r.Ranked {
		seen[row.URL] = struct{}{}
		prev := c.prevTargetStats[row.URL]

		for _, class := range stats.StatusClasses {
			delta := row.Status[class] - prev.status[class]
			if delta > 0 {
				c.statusTotal.WithLabelValues(class.String()).Add(float64(delta))
			}
		}

		if c.perTarget {
			c.recordTarget(row, &prev)
		}

		prev.status = row.Status
		prev.requests = row.Requests
		prev.bytes = row.Bytes
		prev.errors = row.Errors
		prev.readErrors = row.ReadErrors
		prev.timeouts = row.Timeouts
		c.prevTargetStats[row.URL] = prev
	}

	// Removed targets: drop their series and forget their baseline so a
	// re-added URL starts from zero like its fresh Target does.
	for url := range c.prevTargetStats {
		if _, ok := seen[url]; ok {
			continue
		}
		delete(c.prevTargetStats, url)
		if c.perTarget {
			c.deleteTarget(url)
		}
	}
}

// recordTarget requires mu held.
func (c *Collector) recordTarget(row stats.Row, prev *targetPrev) {
	url := row.URL

	if d := row.Requests - prev.requests; d > 0 {
		c.targetRequests.WithLabelValues(url).Add(float64(d))
	}
	if d := row.Bytes - prev.bytes; d > 0 {
		c.targetBytes.WithLabelValues(url).Add(float64(d))
	}
	if d := row.Errors - prev.errors; d > 0 {
		c.targetErrors.WithLabelValues(url, "error").Add(float64(d))
	}
	if d := row.ReadErrors - prev.readErrors; d > 0 {
		c.targetErrors.WithLabelValues(url, "read_error").Add(float64(d))
	}
	if d := row.Timeouts - prev.timeouts; d > 0 {
		c.targetErrors.WithLabelValues(url, "timeout").Add(float64(d))
	}
	for _, class := range stats.StatusClasses {
		if d := row.Status[class] - prev.status[class]; d > 0 {
			c.targetStatus.WithLabelValues(url, class.String()).Add(float64(d))
		}
	}

	c.targetInFlight.WithLabelValues(url).Set(float64(row.InFlight))
	c.targetKbps.WithLabelValues(url).Set(row.EMAKbps)
	c.targetRps.WithLabelValues(url).Set(row.EMARps)
	c.targetLatency.WithLabelValues(url, "0.5").Set(row.LatencyP50.Seconds())
	c.targetLatency.WithLabelValues(url, "0.95").Set(row.LatencyP95.Seconds())
	c.targetLatency.WithLabelValues(url, "0.99").Set(row.LatencyP99.Seconds())
}

// deleteTarget requires mu held.
func (c *Collector) deleteTarget(url string) {
	match := prometheus.Labels{"url": url}
	c.targetRequests.DeletePartialMatch(match)
	c.targetBytes.DeletePartialMatch(match)
	c.targetErrors.DeletePartialMatch(match)
	c.targetStatus.DeletePartialMatch(match)
	c.targetInFlight.DeletePartialMatch(match)
	c.targetKbps.DeletePartialMatch(match)
	c.targetRps.DeletePartialMatch(match)
	c.targetLatency.DeletePartialMatch(match)
}

// RecordOutcomes adds finished probe outcomes since the previous call.
func (c *Collector) RecordOutcomes(src OutcomeSource) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, o := range probe.Outcomes {
		n := src.OutcomeCount(o)
		if d := n - c.prevOutcomes[i]; d > 0 {
			c.outcomesTotal.WithLabelValues(o.String()).Add(float64(d))
		}
		c.prevOutcomes[i] = n
	}
}

// RecordReloads takes cumulative reload success and failure counts.
func (c *Collector) RecordReloads(successes, failures int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d := successes - c.prevReloads; d > 0 {
		c.reloadsTotal.WithLabelValues("success").Add(float64(d))
	}
	if d := failures - c.prevFailures; d > 0 {
		c.reloadsTotal.WithLabelValues("failure").Add(float64(d))
	}
	c.prevReloads = successes
	c.prevFailures = failures
}

// SetRequestsPerTarget records the cap in effect.
func (c *Collector) SetRequestsPerTarget(n int64) {
	c.requestsPerTarget.Set(float64(n))
}

func addDelta(counter prometheus.Counter, current int64, prev *int64) {
	if d := current - *prev; d > 0 {
		counter.Add(float64(d))
	}
	*prev = current
}
