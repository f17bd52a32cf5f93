// Package timeseries keeps a short history of cumulative byte counts so the
// reporter can show process-wide throughput over rolling windows.
//
// Add is lock-free; Sample and Rates take the ring buffer lock.
package timeseries

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCapacity holds five minutes of history at one sample per second.
const DefaultCapacity = 300

// Rolling windows reported by Rates.
const (
	Window30s  = 30 * time.Second
	Window60s  = 60 * time.Second
	Window300s = 300 * time.Second
)

// Clock allows deterministic time in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type point struct {
	at    time.Time
	bytes int64
}

// ThroughputTracker records cumulative bytes and derives rolling averages.
//
//	tracker := NewThroughputTracker(DefaultCapacity)
//	tracker.Add(n)       // from the aggregator drain
//	tracker.Sample()     // once per report interval
//	r := tracker.Rates() // for the report
type ThroughputTracker struct {
	total atomic.Int64

	mu     sync.RWMutex
	points []point
	next   int
	limit  int

	start time.Time
	clock Clock
}

// Rates are bytes per second over each window.
type Rates struct {
	TotalBytes int64
	Last30s    float64
	Last60s    float64
	Last300s   float64
	Overall    float64
}

// NewThroughputTracker creates a tracker using wall-clock time.
func NewThroughputTracker(capacity int) *ThroughputTracker {
	return NewThroughputTrackerWithClock(capacity, realClock{})
}

// NewThroughputTrackerWithClock creates a tracker with an injected clock.
func NewThroughputTrackerWithClock(capacity int, clock Clock) *ThroughputTracker {
	if capacity < 2 {
		capacity = DefaultCapacity
	}
	now := clock.Now()
	t := &ThroughputTracker{
		points: make([]point, 0, capacity),
		limit:  capacity,
		start:  now,
		clock:  clock,
	}
	t.points = append(t.points, point{at: now})
	return t
}

// Add accumulates received bytes.
func (t *ThroughputTracker) Add(n int64) {
	if n > 0 {
		t.total.Add(n)
	}
}

// Total returns cumulative bytes.
func (t *ThroughputTracker) Total() int64 {
	return t.total.Load()
}

// Sample stores the current cumulative total with a timestamp, overwriting
// the oldest point once the buffer is full.
func (t *ThroughputTracker) Sample() {
	p := point{at: t.clock.Now(), bytes: t.total.Load()}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.points) < t.limit {
		t.points = append(t.points, p)
		return
	}
	t.points[t.next] = p
	t.next = (t.next + 1) % t.limit
}

// Rates computes the rolling averages. With less history than a window, the
// oldest available point is used.
func (t *ThroughputTracker) Rates() Rates {
	now := t.clock.Now()
	total := t.total.Load()

	t.mu.RLock()
	defer t.mu.RUnlock()

	r := Rates{TotalBytes: total}
	if secs := now.Sub(t.start).Seconds(); secs > 0 {
		r.Overall = float64(total) / secs
	}
	r.Last30s = t.rateSince(now, total, Window30s)
	r.Last60s = t.rateSince(now, total, Window60s)
	r.Last300s = t.rateSince(now, total, Window300s)
	return r
}

// rateSince requires mu held.
func (t *ThroughputTracker) rateSince(now time.Time, total int64, window time.Duration) float64 {
	cutoff := now.Add(-window)

	// Newest point at or before the cutoff
	var base *point
	for i := range t.points {
		p := &t.points[i]
		if p.at.After(cutoff) {
			continue
		}
		if base == nil || p.at.After(base.at) {
			base = p
		}
	}
	if base == nil {
		base = t.oldest()
	}

	secs := now.Sub(base.at).Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(total-base.bytes) / secs
}

// oldest requires mu held.
func (t *ThroughputTracker) oldest() *point {
	if len(t.points) < t.limit {
		return &t.points[0]
	}
	return &t.points[t.next]
}

// Len returns the number of stored points.
func (t *ThroughputTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.points)
}
