package stats

import (
	"math"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func newTestAggregator(urls ...string) (*Aggregator, *Registry, *Totals) {
	reg := NewRegistry()
	reg.Reconcile(urls)
	totals := &Totals{}
	return NewAggregator(reg, totals, DefaultSmoothing), reg, totals
}

// =============================================================================
// Rates and drain
// =============================================================================

func TestAggregator_Rates(t *testing.T) {
	agg, reg, totals := newTestAggregator("http://a")
	a := reg.Get("http://a")

	for i := 0; i < 4; i++ {
		a.BeginProbe()
		totals.Requests.Add(1)
		a.EndProbe()
	}
	a.AddBytes(2048)

	now := agg.lastReport.Add(2 * time.Second)
	r := agg.Aggregate(now, 0)

	// 2048 bytes over 2s = 1 KiB/s
	if math.Abs(r.IntervalKbps-1) > 1e-9 {
		t.Errorf("IntervalKbps = %v, want 1", r.IntervalKbps)
	}
	if math.Abs(r.IntervalRps-2) > 1e-9 {
		t.Errorf("IntervalRps = %v, want 2", r.IntervalRps)
	}
	if math.Abs(a.emaKbps-0.1) > 1e-9 {
		t.Errorf("emaKbps = %v, want 0.1", a.emaKbps)
	}
	if math.Abs(a.emaRps-0.2) > 1e-9 {
		t.Errorf("emaRps = %v, want 0.2", a.emaRps)
	}
	if r.TotalBytes != 2048 {
		t.Errorf("TotalBytes = %d, want 2048", r.TotalBytes)
	}
	if r.TotalRequests != 4 {
		t.Errorf("TotalRequests = %d, want 4", r.TotalRequests)
	}

	if b, q := a.bytesInterval.Load(), a.requestsInterval.Load(); b != 0 || q != 0 {
		t.Errorf("after Aggregate pending = (%d, %d), want (0, 0)", b, q)
	}
}

func TestAggregator_DrainStrict(t *testing.T) {
	agg, reg, _ := newTestAggregator("http://a")
	a := reg.Get("http://a")
	a.AddBytes(1024)

	t0 := agg.lastReport
	agg.Aggregate(t0.Add(time.Second), 0)

	// Bytes after the drain belong to the next interval only
	a.AddBytes(512)
	r := agg.Aggregate(t0.Add(2*time.Second), 0)

	if r.IntervalBytes != 512 {
		t.Errorf("IntervalBytes = %d, want 512", r.IntervalBytes)
	}
	if r.TotalBytes != 1536 {
		t.Errorf("TotalBytes = %d, want 1536", r.TotalBytes)
	}
}

func TestAggregator_ZeroElapsed(t *testing.T) {
	agg, reg, _ := newTestAggregator("http://a")
	a := reg.Get("http://a")
	a.AddBytes(100)

	r := agg.Aggregate(agg.lastReport, 0)

	if r.IntervalBytes != 0 || r.IntervalKbps != 0 {
		t.Errorf("zero-elapsed report drained: bytes=%d kbps=%v", r.IntervalBytes, r.IntervalKbps)
	}
	if got := a.bytesInterval.Load(); got != 100 {
		t.Errorf("interval bytes = %d, want 100 (not drained)", got)
	}
}

func TestAggregator_TotalsSurviveRemoval(t *testing.T) {
	agg, reg, _ := newTestAggregator("http://a", "http://b")
	reg.Get("http://a").AddBytes(1000)

	t0 := agg.lastReport
	agg.Aggregate(t0.Add(time.Second), 0)

	reg.Reconcile([]string{"http://b"})
	r := agg.Aggregate(t0.Add(2*time.Second), 0)

	if r.TotalBytes != 1000 {
		t.Errorf("TotalBytes = %d, want 1000 after removal", r.TotalBytes)
	}
	if r.Targets != 1 {
		t.Errorf("Targets = %d, want 1", r.Targets)
	}
}

// =============================================================================
// Ranking
// =============================================================================

func TestAggregator_Ranking(t *testing.T) {
	agg, reg, _ := newTestAggregator("http://a", "http://b", "http://c")
	reg.Get("http://a").emaKbps = 5.0
	reg.Get("http://b").emaKbps = 12.3
	reg.Get("http://c").emaKbps = 0.0

	// No elapsed time keeps the seeded EMAs untouched
	r := agg.Aggregate(agg.lastReport, 2)

	if len(r.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(r.Rows))
	}
	if r.Rows[0].EMAKbps != 12.3 || r.Rows[1].EMAKbps != 5.0 {
		t.Errorf("Rows EMAs = [%v, %v], want [12.3, 5.0]", r.Rows[0].EMAKbps, r.Rows[1].EMAKbps)
	}
	if len(r.Ranked) != 3 {
		t.Errorf("len(Ranked) = %d, want 3", len(r.Ranked))
	}
}

func TestAggregator_RankingTiesStable(t *testing.T) {
	agg, _, _ := newTestAggregator("http://a", "http://b", "http://c")

	r := agg.Aggregate(agg.lastReport, 0)

	want := []string{"http://a", "http://b", "http://c"}
	for i, row := range r.Rows {
		if row.URL != want[i] {
			t.Errorf("Rows[%d] = %s, want %s", i, row.URL, want[i])
		}
	}
}

func TestTopN(t *testing.T) {
	rows := []Row{{URL: "a"}, {URL: "b"}, {URL: "c"}}
	tests := []struct {
		n    int
		want int
	}{
		{-1, 3},
		{0, 3},
		{1, 1},
		{2, 2},
		{3, 3},
		{10, 3},
	}

	for _, tt := range tests {
		if got := len(TopN(rows, tt.n)); got != tt.want {
			t.Errorf("len(TopN(rows, %d)) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestAggregator_Latest(t *testing.T) {
	agg, _, _ := newTestAggregator("http://a")
	if agg.Latest() != nil {
		t.Fatal("Latest() before Aggregate should be nil")
	}
	r := agg.Aggregate(agg.lastReport.Add(time.Second), 0)
	if agg.Latest() != r {
		t.Error("Latest() did not return the last report")
	}
}

func TestNewAggregator_SmoothingFallback(t *testing.T) {
	for _, k := range []float64{0, -1, 1.5} {
		agg := NewAggregator(NewRegistry(), &Totals{}, k)
		if agg.smoothing != DefaultSmoothing {
			t.Errorf("smoothing %v -> %v, want %v", k, agg.smoothing, DefaultSmoothing)
		}
	}
}

// =============================================================================
// Plain text report
// =============================================================================

func TestFormatReport(t *testing.T) {
	agg, reg, totals := newTestAggregator("http://a")
	a := reg.Get("http://a")
	a.BeginProbe()
	totals.Requests.Add(1)
	a.RecordStatus(200)
	a.AddBytes(3 * 1024 * 1024)
	a.EndProbe()

	r := agg.Aggregate(agg.lastReport.Add(time.Second), 0)
	out := FormatReport(r)

	for _, want := range []string{
		"Target",
		"2xx/3xx/4xx/5xx",
		"http://a",
		"1/0/0/0",
		"Total kbps: 3072",
		"Total rx: 3 Mb",
		"Requests: 1 RPS: 1.00",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatReport missing %q\n%s", want, out)
		}
	}
}

func TestFormatReport_TruncatesLongURL(t *testing.T) {
	long := "http://" + strings.Repeat("x", 80)
	agg, _, _ := newTestAggregator(long)

	out := FormatReport(agg.Aggregate(agg.lastReport, 0))
	if strings.Contains(out, long) {
		t.Error("long URL was not truncated")
	}
	if !strings.Contains(out, long[:40]) {
		t.Error("truncated URL prefix missing")
	}
}

func TestFormatReport_TruncatesMultibyteURL(t *testing.T) {
	// 7 ASCII bytes then 3-byte runes, so a byte cut at 40 lands mid-rune
	long := "http://" + strings.Repeat("日本", 30)
	agg, _, _ := newTestAggregator(long)

	out := FormatReport(agg.Aggregate(agg.lastReport, 0))
	if !utf8.ValidString(out) {
		t.Fatal("report is not valid UTF-8")
	}
	want := string([]rune(long)[:40])
	if !strings.Contains(out, want+" ") {
		t.Errorf("URL cell not cut at 40 runes:\n%s", out)
	}

	// Columns after the URL line up with the header
	lines := strings.Split(out, "\n")
	header, row := lines[1], lines[2]
	if got, wantCol := utf8.RuneCountInString(row[:strings.Index(row, "0/0")]), strings.Index(header, "Errs"); got != wantCol {
		t.Errorf("Errs column starts at rune %d, header at %d", got, wantCol)
	}
}
