// Package stats provides per-target counters, the target registry and the
// interval aggregator for HTTP probing.
//
// This file implements Target which tracks metrics for a single probed URL:
// - In-flight probes (admission input)
// - Interval request/byte counters (drained once per report)
// - Lifetime request, byte, error and status class counters
// - Time-to-headers latency digest
// - Smoothed rates (owned by the aggregator)
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/influxdata/tdigest"
)

// StatusClass buckets an HTTP status code.
type StatusClass int

const (
	Class2xx StatusClass = iota // everything below 300
	Class3xx
	Class4xx
	Class5xx // 500 and above

	numStatusClasses = 4
)

// String returns the conventional label for the class.
func (c StatusClass) String() string {
	switch c {
	case Class2xx:
		return "2xx"
	case Class3xx:
		return "3xx"
	case Class4xx:
		return "4xx"
	case Class5xx:
		return "5xx"
	default:
		return "unknown"
	}
}

// StatusClasses lists every class in display order.
var StatusClasses = [numStatusClasses]StatusClass{Class2xx, Class3xx, Class4xx, Class5xx}

// ClassifyStatus maps a numeric status code to exactly one class.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code < 300:
		return Class2xx
	case code < 400:
		return Class3xx
	case code < 500:
		return Class4xx
	default:
		return Class5xx
	}
}

// Target holds the counters for one probed URL.
//
// Thread-safe: counters are atomics mutated by concurrent probes. The rate
// fields (kbps, rps, ema*) are written only by the Aggregator.
type Target struct {
	URL     string
	AddedAt time.Time

	inFlight atomic.Int64

	// Interval counters, drained by the aggregator
	requestsInterval atomic.Int64
	bytesInterval    atomic.Int64

	// Lifetime counters, never reset
	requestsTotal atomic.Int64
	bytesTotal    atomic.Int64
	errors        atomic.Int64
	readErrors    atomic.Int64
	timeouts      atomic.Int64
	statusClasses [numStatusClasses]atomic.Int64

	// tdigest is not thread-safe
	latencyMu     sync.Mutex
	latencyDigest *tdigest.TDigest

	// Aggregator-owned
	kbps    float64
	rps     float64
	emaKbps float64
	emaRps  float64
}

// NewTarget creates a zeroed target for url.
func NewTarget(url string) *Target {
	return &Target{
		URL:           url,
		AddedAt:       time.Now(),
		latencyDigest: tdigest.NewWithCompression(100),
	}
}

// --- Probe lifecycle ---

// BeginProbe records a dispatch: one more probe in flight and one more request
// in both the interval and lifetime counters.
func (t *Target) BeginProbe() {
	t.inFlight.Add(1)
	t.requestsTotal.Add(1)
	t.requestsInterval.Add(1)
}

// EndProbe releases the in-flight slot taken by BeginProbe. It must be called
// exactly once per probe.
func (t *Target) EndProbe() {
	t.inFlight.Add(-1)
}

// InFlight returns the number of probes currently executing.
func (t *Target) InFlight() int64 {
	return t.inFlight.Load()
}

// --- Outcome recording ---

// RecordStatus counts a received status line. Anything other than 200 also
// counts as an error.
func (t *Target) RecordStatus(code int) {
	t.statusClasses[ClassifyStatus(code)].Add(1)
	if code != 200 {
		t.errors.Add(1)
	}
}

// AddBytes adds received body bytes to the interval and lifetime totals.
func (t *Target) AddBytes(n int64) {
	if n <= 0 {
		return
	}
	t.bytesInterval.Add(n)
	t.bytesTotal.Add(n)
}

// RecordTransportError counts a failure before any response was obtained.
func (t *Target) RecordTransportError(timeout bool) {
	t.errors.Add(1)
	if timeout {
		t.timeouts.Add(1)
	}
}

// RecordReadError counts a body read failure after the response arrived.
func (t *Target) RecordReadError() {
	t.readErrors.Add(1)
}

// RecordLatency adds a time-to-headers observation.
func (t *Target) RecordLatency(d time.Duration) {
	t.latencyMu.Lock()
	t.latencyDigest.Add(float64(d)/float64(time.Millisecond), 1)
	t.latencyMu.Unlock()
}

// LatencyPercentiles returns p50/p95/p99 time-to-headers. Zero until the
// first response.
func (t *Target) LatencyPercentiles() (p50, p95, p99 time.Duration) {
	t.latencyMu.Lock()
	defer t.latencyMu.Unlock()

	if t.latencyDigest.Count() == 0 {
		return 0, 0, 0
	}
	ms := func(q float64) time.Duration {
		return time.Duration(t.latencyDigest.Quantile(q) * float64(time.Millisecond))
	}
	return ms(0.50), ms(0.95), ms(0.99)
}

// --- Interval drain ---

// Drain atomically takes and zeroes the interval counters. Increments that
// race with the drain land in the next interval, never lost or counted twice.
func (t *Target) Drain() (bytes, requests int64) {
	return t.bytesInterval.Swap(0), t.requestsInterval.Swap(0)
}

// --- Lifetime accessors ---

func (t *Target) RequestsTotal() int64 { return t.requestsTotal.Load() }
func (t *Target) BytesTotal() int64    { return t.bytesTotal.Load() }
func (t *Target) Errors() int64        { return t.errors.Load() }
func (t *Target) ReadErrors() int64    { return t.readErrors.Load() }
func (t *Target) Timeouts() int64      { return t.timeouts.Load() }

// StatusCount returns the lifetime count for one class.
func (t *Target) StatusCount(c StatusClass) int64 {
	return t.statusClasses[c].Load()
}

// StatusCounts returns all class counts in StatusClasses order.
func (t *Target) StatusCounts() [numStatusClasses]int64 {
	var out [numStatusClasses]int64
	for _, c := range StatusClasses {
		out[c] = t.StatusCount(c)
	}
	return out
}

// EMA folds sample into prev with smoothing factor k.
func EMA(prev, sample, k float64) float64 {
	return prev*(1-k) + sample*k
}
