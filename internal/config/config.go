// Package config provides process configuration for go-http-probe-swarm.
//
// These are the settings fixed for the life of the process. The target list,
// per-target cap and report rows come from the reloadable targets source.
package config

import "time"

// Config holds all configuration options for the orchestrator.
type Config struct {
	// Targets source (YAML file, or SQLite via sqlite: prefix or .db suffix)
	TargetsPath string `json:"targets_path"`

	// Scheduling
	TickInterval   time.Duration `json:"tick_interval"`
	DispatchBudget int           `json:"dispatch_budget"` // probes started per tick, at most
	ReportInterval time.Duration `json:"report_interval"`
	ReloadInterval time.Duration `json:"reload_interval"`
	Admission      string        `json:"admission"` // max-deficit, first-fit
	EMAFactor      float64       `json:"ema_factor"`
	Duration       time.Duration `json:"duration"` // 0 = forever
	ShutdownGrace  time.Duration `json:"shutdown_grace"`

	// Probe client
	Timeout   time.Duration `json:"timeout"`
	MaxConns  int           `json:"max_conns"`
	Insecure  bool          `json:"insecure"`
	HTTP2     bool          `json:"http2"`
	UserAgent string        `json:"user_agent"`
	Headers   []string      `json:"headers"` // extra "Name: value" headers

	// Observability
	MetricsAddr      string `json:"metrics_addr"`
	MetricsSnapshot  string `json:"metrics_snapshot"` // file written on exit
	PerTargetMetrics bool   `json:"per_target_metrics"`
	TUI              bool   `json:"tui"`
	Verbose          bool   `json:"verbose"`
	LogFormat        string `json:"log_format"` // json, text
	LogLevel         string `json:"log_level"`

	// Diagnostics
	SkipPreflight bool `json:"skip_preflight"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		TargetsPath: "targets.yaml",

		// Scheduling
		TickInterval:   50 * time.Millisecond,
		DispatchBudget: 150,
		ReportInterval: time.Second,
		ReloadInterval: 2 * time.Second,
		Admission:      "max-deficit",
		EMAFactor:      0.1,
		Duration:       0, // Forever
		ShutdownGrace:  10 * time.Second,

		// Probe client
		Timeout:   7 * time.Second,
		MaxConns:  1000,
		Insecure:  true,
		HTTP2:     true,
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/98.0.4758.102 Safari/537.36",

		// Observability
		MetricsAddr: "0.0.0.0:17092",
		TUI:         false,
		LogFormat:   "json",
		LogLevel:    "info",
	}
}
