package source

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func newTestSQLite(t *testing.T) *SQLiteSource {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "targets.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteSource_Empty(t *testing.T) {
	s := newTestSQLite(t)

	snap, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if snap.RequestsPerTarget != DefaultRequestsPerTarget || snap.ReportRows != DefaultReportRows {
		t.Errorf("defaults = %d/%d", snap.RequestsPerTarget, snap.ReportRows)
	}
	if len(snap.Targets) != 0 {
		t.Errorf("Targets = %v, want none", snap.Targets)
	}
}

func TestSQLiteSource_Load(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	for _, u := range []string{"https://b", "https://a", "https://c"} {
		if err := s.AddTarget(ctx, u); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.DisableTarget(ctx, "https://a"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSetting(ctx, "requests_per_target", 4); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSetting(ctx, "report_rows", 7); err != nil {
		t.Fatal(err)
	}
	// Upsert overwrites
	if err := s.SetSetting(ctx, "report_rows", 8); err != nil {
		t.Fatal(err)
	}

	snap, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if snap.RequestsPerTarget != 4 {
		t.Errorf("RequestsPerTarget = %d, want 4", snap.RequestsPerTarget)
	}
	if snap.ReportRows != 8 {
		t.Errorf("ReportRows = %d, want 8", snap.ReportRows)
	}
	if want := []string{"https://b", "https://c"}; !reflect.DeepEqual(snap.Targets, want) {
		t.Errorf("Targets = %v, want %v", snap.Targets, want)
	}

	// Re-enabling restores the target
	if err := s.AddTarget(ctx, "https://a"); err != nil {
		t.Fatal(err)
	}
	snap, err = s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Targets) != 3 {
		t.Errorf("Targets after re-enable = %v, want 3", snap.Targets)
	}
}

func TestSQLiteSource_BadSetting(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	if _, err := s.db.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES ('report_rows', 'many')`); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(ctx); err == nil || !strings.Contains(err.Error(), "report_rows") {
		t.Errorf("Load() error = %v, want report_rows parse error", err)
	}
}

func TestSQLiteSource_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "targets.db")

	s, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddTarget(ctx, "https://a"); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	snap, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Targets) != 1 || snap.Targets[0] != "https://a" {
		t.Errorf("Targets = %v, want [https://a]", snap.Targets)
	}
	if got := s.Location(); got != "sqlite:"+path {
		t.Errorf("Location() = %q", got)
	}
}
