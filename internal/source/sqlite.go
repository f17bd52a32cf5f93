package source

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	_ "modernc.org/sqlite"
)

// SQLiteSource reads configuration from a SQLite database.
//
// Schema (created if missing):
//
//	settings(key TEXT PRIMARY KEY, value TEXT)   -- requests_per_target, report_rows
//	targets(url TEXT PRIMARY KEY, enabled INTEGER, added_at TEXT)
//
// Targets are returned in insertion order; disabled rows are skipped.
type SQLiteSource struct {
	path string
	db   *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	s := &SQLiteSource{path: path, db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteSource) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS targets (
	url      TEXT PRIMARY KEY,
	enabled  INTEGER NOT NULL DEFAULT 1,
	added_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Load implements Source.
func (s *SQLiteSource) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		switch key {
		case "requests_per_target":
			n, err := strconv.Atoi(value)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("setting %s: %w", key, err)
			}
			snap.RequestsPerTarget = n
		case "report_rows":
			n, err := strconv.Atoi(value)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("setting %s: %w", key, err)
			}
			snap.ReportRows = n
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT url FROM targets WHERE enabled != 0 ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		snap.Targets = append(snap.Targets, url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read targets: %w", err)
	}

	snap.applyDefaults()
	return snap, nil
}

// SetSetting upserts a settings row.
func (s *SQLiteSource) SetSetting(ctx context.Context, key string, value int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, strconv.Itoa(value))
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// AddTarget inserts url, or re-enables it if already present.
func (s *SQLiteSource) AddTarget(ctx context.Context, url string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO targets (url, enabled) VALUES (?, 1)
ON CONFLICT(url) DO UPDATE SET enabled = 1`,
		url)
	if err != nil {
		return fmt.Errorf("failed to add target: %w", err)
	}
	return nil
}

// DisableTarget stops url from being probed without deleting its row.
func (s *SQLiteSource) DisableTarget(ctx context.Context, url string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE targets SET enabled = 0 WHERE url = ?`, url)
	if err != nil {
		return fmt.Errorf("failed to disable target: %w", err)
	}
	return nil
}

// Location implements Source.
func (s *SQLiteSource) Location() string { return "sqlite:" + s.path }

// Close implements Source.
func (s *SQLiteSource) Close() error { return s.db.Close() }
