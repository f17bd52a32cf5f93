package source

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseTargetList(t *testing.T) {
	tests := []struct {
		name  string
		block string
		want  []string
	}{
		{"empty", "", []string{}},
		{"single", "https://a", []string{"https://a"}},
		{"crlf and tabs", "https://a\r\n\thttps://b \r\n", []string{"https://a", "https://b"}},
		{"blank lines dropped", "\n\nhttps://a\n   \n\nhttps://b\n", []string{"https://a", "https://b"}},
		{"duplicates keep first", "https://b\nhttps://a\nhttps://b\n", []string{"https://b", "https://a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTargetList(tt.block)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseTargetList(%q) = %v, want %v", tt.block, got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		wantCap     int
		wantRows    int
		wantTargets []string
		wantErr     bool
	}{
		{
			name: "block scalar",
			yaml: `
requests_per_target: 5
report_rows: 3
targets: |
  https://a.example
  https://b.example
`,
			wantCap:     5,
			wantRows:    3,
			wantTargets: []string{"https://a.example", "https://b.example"},
		},
		{
			name: "sequence",
			yaml: `
requests_per_target: 2
targets:
  - https://a.example
  - " https://b.example "
  - https://a.example
`,
			wantCap:     2,
			wantRows:    DefaultReportRows,
			wantTargets: []string{"https://a.example", "https://b.example"},
		},
		{
			name:        "defaults",
			yaml:        "targets: https://only.example\n",
			wantCap:     DefaultRequestsPerTarget,
			wantRows:    DefaultReportRows,
			wantTargets: []string{"https://only.example"},
		},
		{
			name:     "negative kept for clamping",
			yaml:     "requests_per_target: -3\nreport_rows: -1\ntargets: []\n",
			wantCap:  -3,
			wantRows: -1,
		},
		{
			name:     "explicit empty list",
			yaml:     "targets: []\n",
			wantCap:  DefaultRequestsPerTarget,
			wantRows: DefaultReportRows,
		},
		{
			name:    "empty document",
			yaml:    "",
			wantErr: true,
		},
		{
			name:    "whitespace only",
			yaml:    "\n  \n",
			wantErr: true,
		},
		{
			name:    "targets key missing",
			yaml:    "requests_per_target: 5\n",
			wantErr: true,
		},
		{
			name:    "targets null",
			yaml:    "targets:\n",
			wantErr: true,
		},
		{
			name:    "targets mapping rejected",
			yaml:    "targets:\n  a: b\n",
			wantErr: true,
		},
		{
			name:    "malformed",
			yaml:    "requests_per_target: [",
			wantErr: true,
		},
		{
			name:    "wrong type",
			yaml:    "requests_per_target: lots\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.yaml))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.RequestsPerTarget != tt.wantCap {
				t.Errorf("RequestsPerTarget = %d, want %d", got.RequestsPerTarget, tt.wantCap)
			}
			if got.ReportRows != tt.wantRows {
				t.Errorf("ReportRows = %d, want %d", got.ReportRows, tt.wantRows)
			}
			if len(got.Targets) != len(tt.wantTargets) {
				t.Fatalf("Targets = %v, want %v", got.Targets, tt.wantTargets)
			}
			for i := range tt.wantTargets {
				if got.Targets[i] != tt.wantTargets[i] {
					t.Errorf("Targets[%d] = %q, want %q", i, got.Targets[i], tt.wantTargets[i])
				}
			}
		})
	}
}

func TestFileSource_Load(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "targets.yaml")

	src := NewFileSource(path)
	if _, err := src.Load(context.Background()); err == nil {
		t.Fatal("Load() of missing file should fail")
	}

	if err := os.WriteFile(path, []byte("targets: |\n  https://a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	snap, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(snap.Targets) != 1 {
		t.Errorf("Targets = %v, want one", snap.Targets)
	}

	// Edits are visible on the next Load
	if err := os.WriteFile(path, []byte("targets: |\n  https://a\n  https://b\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	snap, err = src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(snap.Targets) != 2 {
		t.Errorf("Targets after edit = %v, want two", snap.Targets)
	}

	// A truncated file is an error, not an empty target list
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := src.Load(context.Background()); err == nil {
		t.Error("Load() of empty file should fail")
	}

	if src.Location() != path {
		t.Errorf("Location() = %q, want %q", src.Location(), path)
	}
	if err := src.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestFileSource_LoadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewFileSource("whatever.yaml").Load(ctx); err == nil {
		t.Error("Load() with cancelled context should fail")
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	tests := []struct {
		location   string
		wantSQLite bool
		wantErr    bool
	}{
		{filepath.Join(dir, "targets.yaml"), false, false},
		{filepath.Join(dir, "a.db"), true, false},
		{filepath.Join(dir, "b.SQLITE"), true, false},
		{"sqlite:" + filepath.Join(dir, "c.data"), true, false},
		{"", false, true},
	}

	for _, tt := range tests {
		src, err := Open(ctx, tt.location)
		if (err != nil) != tt.wantErr {
			t.Errorf("Open(%q) error = %v, wantErr %v", tt.location, err, tt.wantErr)
			continue
		}
		if err != nil {
			continue
		}
		_, isSQLite := src.(*SQLiteSource)
		if isSQLite != tt.wantSQLite {
			t.Errorf("Open(%q) sqlite = %v, want %v", tt.location, isSQLite, tt.wantSQLite)
		}
		_ = src.Close()
	}
}
