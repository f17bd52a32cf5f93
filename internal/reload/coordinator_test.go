package reload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/randomizedcoder/go-http-probe-swarm/internal/source"
	"github.com/randomizedcoder/go-http-probe-swarm/internal/stats"
)

// scriptedSource returns queued snapshots or errors in order, repeating the
// last entry.
type scriptedSource struct {
	steps []step
	calls int
}

type step struct {
	snap *source.Snapshot
	err  error
}

func (s *scriptedSource) Load(ctx context.Context) (*source.Snapshot, error) {
	i := s.calls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.calls++
	st := s.steps[i]
	if st.err != nil {
		return nil, st.err
	}
	cp := *st.snap
	return &cp, nil
}

func (s *scriptedSource) Location() string { return "scripted" }
func (s *scriptedSource) Close() error     { return nil }

func urls(r *stats.Registry) []string {
	var out []string
	for _, t := range r.Snapshot() {
		out = append(out, t.URL)
	}
	return out
}

func TestCoordinator_Reload(t *testing.T) {
	src := &scriptedSource{steps: []step{
		{snap: &source.Snapshot{RequestsPerTarget: 5, ReportRows: 3, Targets: []string{"http://a", "http://b"}}},
		{snap: &source.Snapshot{RequestsPerTarget: 6, ReportRows: 3, Targets: []string{"http://b", "http://c"}}},
	}}
	reg := stats.NewRegistry()
	c := NewCoordinator(src, reg, nil)

	if c.Loaded() {
		t.Fatal("Loaded() before first Reload")
	}

	res, err := c.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if !reflect.DeepEqual(res.Added, []string{"http://a", "http://b"}) {
		t.Errorf("Added = %v", res.Added)
	}
	if got := c.Settings(); got.RequestsPerTarget != 5 || got.ReportRows != 3 || got.Targets != 2 {
		t.Errorf("Settings() = %+v", got)
	}

	res, err = c.Reload(context.Background())
	if err != nil {
		t.Fatalf("second Reload() error = %v", err)
	}
	if !reflect.DeepEqual(res.Added, []string{"http://c"}) || !reflect.DeepEqual(res.Removed, []string{"http://a"}) {
		t.Errorf("Added = %v Removed = %v", res.Added, res.Removed)
	}
	if got := urls(reg); !reflect.DeepEqual(got, []string{"http://b", "http://c"}) {
		t.Errorf("registry = %v", got)
	}
	if c.Settings().RequestsPerTarget != 6 {
		t.Errorf("RequestsPerTarget = %d, want 6", c.Settings().RequestsPerTarget)
	}
	if c.Reloads() != 2 {
		t.Errorf("Reloads() = %d, want 2", c.Reloads())
	}
}

func TestCoordinator_FailureKeepsPrevious(t *testing.T) {
	src := &scriptedSource{steps: []step{
		{snap: &source.Snapshot{RequestsPerTarget: 5, ReportRows: 3, Targets: []string{"http://a"}}},
		{err: errors.New("disk on fire")},
	}}
	reg := stats.NewRegistry()
	c := NewCoordinator(src, reg, nil)

	if _, err := c.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	a := reg.Get("http://a")
	before := c.Settings()

	if _, err := c.Reload(context.Background()); err == nil {
		t.Fatal("Reload() should surface the load error")
	}

	if got := c.Settings(); got != before {
		t.Errorf("Settings changed on failure: %+v -> %+v", before, got)
	}
	if reg.Get("http://a") != a {
		t.Error("registry changed on failure")
	}
	if c.Failures() != 1 {
		t.Errorf("Failures() = %d, want 1", c.Failures())
	}
	if c.Reloads() != 1 {
		t.Errorf("Reloads() = %d, want 1", c.Reloads())
	}
}

func TestCoordinator_InitialFailure(t *testing.T) {
	src := &scriptedSource{steps: []step{{err: errors.New("missing")}}}
	c := NewCoordinator(src, stats.NewRegistry(), nil)

	if _, err := c.Reload(context.Background()); err == nil {
		t.Fatal("Reload() error = nil")
	}
	if c.Loaded() {
		t.Error("Loaded() after failed initial load")
	}
	if got := c.Settings(); got != (Settings{}) {
		t.Errorf("Settings() = %+v, want zero", got)
	}
}

func TestCoordinator_Clamps(t *testing.T) {
	tests := []struct {
		cap, rows int
		wantCap   int64
		wantRows  int
	}{
		{0, 0, 1, 1},
		{-4, -2, 1, 1},
		{1, 1, 1, 1},
		{12, 30, 12, 30},
	}

	for _, tt := range tests {
		src := &scriptedSource{steps: []step{
			{snap: &source.Snapshot{RequestsPerTarget: tt.cap, ReportRows: tt.rows}},
		}}
		c := NewCoordinator(src, stats.NewRegistry(), nil)
		if _, err := c.Reload(context.Background()); err != nil {
			t.Fatal(err)
		}
		got := c.Settings()
		if got.RequestsPerTarget != tt.wantCap || got.ReportRows != tt.wantRows {
			t.Errorf("cap=%d rows=%d -> %d/%d, want %d/%d",
				tt.cap, tt.rows, got.RequestsPerTarget, got.ReportRows, tt.wantCap, tt.wantRows)
		}
	}
}

func TestCoordinator_IdempotentReload(t *testing.T) {
	snap := &source.Snapshot{RequestsPerTarget: 2, ReportRows: 2, Targets: []string{"http://a", "http://b"}}
	src := &scriptedSource{steps: []step{{snap: snap}}}
	reg := stats.NewRegistry()
	c := NewCoordinator(src, reg, nil)

	if _, err := c.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := reg.Snapshot()

	res, err := c.Reload(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Added) != 0 || len(res.Removed) != 0 {
		t.Errorf("identical reload changed targets: %+v", res)
	}
	for i, tgt := range reg.Snapshot() {
		if tgt != first[i] {
			t.Errorf("target %d replaced", i)
		}
	}
}

func TestCoordinator_FileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.yaml")
	write := func(s string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(s), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("requests_per_target: 3\ntargets: |\n  http://a\n")
	reg := stats.NewRegistry()
	c := NewCoordinator(source.NewFileSource(path), reg, nil)
	if _, err := c.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}

	// A broken edit is ignored until fixed
	write("requests_per_target: [\n")
	if _, err := c.Reload(context.Background()); err == nil {
		t.Error("Reload() of malformed file should fail")
	}
	if reg.Len() != 1 || c.Settings().RequestsPerTarget != 3 {
		t.Errorf("state after failed reload: targets=%d cap=%d", reg.Len(), c.Settings().RequestsPerTarget)
	}

	write("requests_per_target: 4\ntargets: |\n  http://a\n  http://b\n")
	if _, err := c.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if reg.Len() != 2 || c.Settings().RequestsPerTarget != 4 {
		t.Errorf("state after fix: targets=%d cap=%d", reg.Len(), c.Settings().RequestsPerTarget)
	}
}

func TestCoordinator_TruncatedFileKeepsTargets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.yaml")
	write := func(s string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(s), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	original := "requests_per_target: 3\ntargets: |\n  http://a\n  http://b\n"
	write(original)
	reg := stats.NewRegistry()
	c := NewCoordinator(source.NewFileSource(path), reg, nil)
	if _, err := c.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	a := reg.Get("http://a")
	a.BeginProbe()
	a.EndProbe()

	for _, partial := range []string{"", "requests_per_target: 5\n"} {
		write(partial)
		if _, err := c.Reload(context.Background()); err == nil {
			t.Errorf("Reload() of %q should fail", partial)
		}
		if reg.Len() != 2 {
			t.Errorf("after %q: targets = %d, want 2", partial, reg.Len())
		}
		if c.Settings().RequestsPerTarget != 3 {
			t.Errorf("after %q: cap = %d, want 3", partial, c.Settings().RequestsPerTarget)
		}
	}

	write(original)
	if _, err := c.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := reg.Get("http://a"); got != a {
		t.Error("target replaced after the file was restored")
	}
	if got := reg.Get("http://a").RequestsTotal(); got != 1 {
		t.Errorf("RequestsTotal = %d, want 1", got)
	}
	if c.Failures() != 2 {
		t.Errorf("Failures() = %d, want 2", c.Failures())
	}
}
