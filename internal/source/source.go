// Package source loads the reloadable probe configuration: the target list,
// the per-target in-flight cap and the number of report rows.
//
// Two backends are provided:
//   - FileSource reads a YAML document
//   - SQLiteSource reads a settings table and a targets table
//
// Open picks the backend from the location string.
package source

import (
	"context"
	"fmt"
	"strings"
)

const (
	// DefaultRequestsPerTarget applies when the source does not set a cap.
	DefaultRequestsPerTarget = 10

	// DefaultReportRows applies when the source does not set a row count.
	DefaultReportRows = 20
)

// Snapshot is one successful read of the configuration.
type Snapshot struct {
	RequestsPerTarget int      `json:"requests_per_target"`
	ReportRows        int      `json:"report_rows"`
	Targets           []string `json:"targets"`
}

// Source produces configuration snapshots on demand.
type Source interface {
	// Load reads the current configuration. A failed Load must not be
	// treated as an empty configuration.
	Load(ctx context.Context) (*Snapshot, error)

	// Location describes where the configuration comes from, for logs.
	Location() string

	// Close releases any resources held by the source.
	Close() error
}

// ParseTargetList splits a newline separated block into target URLs.
// Entries are trimmed of spaces, tabs and carriage returns; blank lines are
// dropped.
func ParseTargetList(block string) []string {
	var out []string
	for _, line := range strings.Split(block, "\n") {
		if s := strings.Trim(line, " \t\r"); s != "" {
			out = append(out, s)
		}
	}
	return Dedupe(out)
}

// Dedupe trims entries, drops blanks and keeps the first occurrence of each
// URL, preserving order.
func Dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.Trim(u, " \t\r")
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// applyDefaults fills unset fields. Negative values are left for the reload
// coordinator to clamp.
func (s *Snapshot) applyDefaults() {
	if s.RequestsPerTarget == 0 {
		s.RequestsPerTarget = DefaultRequestsPerTarget
	}
	if s.ReportRows == 0 {
		s.ReportRows = DefaultReportRows
	}
	s.Targets = Dedupe(s.Targets)
}

// Open returns the source for location.
//
//	sqlite:/var/lib/probe/targets.db  -> SQLiteSource
//	targets.db, targets.sqlite        -> SQLiteSource
//	anything else                     -> FileSource (YAML)
func Open(ctx context.Context, location string) (Source, error) {
	if location == "" {
		return nil, fmt.Errorf("no targets source configured")
	}
	if path, ok := strings.CutPrefix(location, "sqlite:"); ok {
		return OpenSQLite(ctx, path)
	}
	lower := strings.ToLower(location)
	if strings.HasSuffix(lower, ".db") || strings.HasSuffix(lower, ".sqlite") {
		return OpenSQLite(ctx, location)
	}
	return NewFileSource(location), nil
}
