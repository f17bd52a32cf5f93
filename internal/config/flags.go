package config

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/pflag"
)

// BindFlags registers every process flag on fs, writing into cfg. Defaults
// are taken from cfg, so pass DefaultConfig() unless overriding them.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVarP(&cfg.TargetsPath, "targets", "t", cfg.TargetsPath,
		"Targets source: YAML file, or SQLite database (sqlite:<path>, *.db, *.sqlite)")

	// Scheduling
	fs.DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval, "Scheduler tick interval")
	fs.IntVar(&cfg.DispatchBudget, "dispatch-budget", cfg.DispatchBudget, "Maximum probes started per tick")
	fs.DurationVar(&cfg.ReportInterval, "report-interval", cfg.ReportInterval, "Interval between reports")
	fs.DurationVar(&cfg.ReloadInterval, "reload-interval", cfg.ReloadInterval, "Interval between targets source reloads")
	fs.StringVar(&cfg.Admission, "admission", cfg.Admission, "Admission policy: max-deficit, first-fit")
	fs.Float64Var(&cfg.EMAFactor, "ema-factor", cfg.EMAFactor, "Smoothing factor for kbps/rps averages (0 < k <= 1)")
	fs.DurationVarP(&cfg.Duration, "duration", "d", cfg.Duration, "Run duration (0 = forever)")
	fs.DurationVar(&cfg.ShutdownGrace, "shutdown-grace", cfg.ShutdownGrace, "How long to wait for in-flight probes at exit")

	// Probe client
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-probe timeout")
	fs.IntVar(&cfg.MaxConns, "max-conns", cfg.MaxConns, "Minimum size of the idle connection pool")
	fs.BoolVar(&cfg.Insecure, "insecure", cfg.Insecure, "Skip TLS certificate verification")
	fs.BoolVar(&cfg.HTTP2, "http2", cfg.HTTP2, "Negotiate HTTP/2 with TLS targets")
	fs.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "User-Agent header sent with every probe")
	fs.StringArrayVarP(&cfg.Headers, "header", "H", cfg.Headers, "Extra request header \"Name: value\" (repeatable)")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address (empty = disabled)")
	fs.StringVar(&cfg.MetricsSnapshot, "metrics-snapshot", cfg.MetricsSnapshot, "Write a Prometheus text snapshot to this file on exit")
	fs.BoolVar(&cfg.PerTargetMetrics, "per-target-metrics", cfg.PerTargetMetrics, "Export one metric series set per target URL")
	fs.BoolVar(&cfg.TUI, "tui", cfg.TUI, "Show the live terminal dashboard")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Debug logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: json, text")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")

	// Diagnostics
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip file descriptor and port range checks")
}

// ParseHeader splits a "Name: value" flag value.
func ParseHeader(s string) (name, value string, err error) {
	name, value, ok := strings.Cut(s, ":")
	if !ok {
		return "", "", fmt.Errorf("header %q must be in \"Name: value\" form", s)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", fmt.Errorf("header %q has an empty name", s)
	}
	return http.CanonicalHeaderKey(name), strings.TrimSpace(value), nil
}

// ExtraHeaders parses cfg.Headers into an http.Header.
func (c *Config) ExtraHeaders() (http.Header, error) {
	h := make(http.Header, len(c.Headers))
	for _, raw := range c.Headers {
		name, value, err := ParseHeader(raw)
		if err != nil {
			return nil, err
		}
		h.Add(name, value)
	}
	return h, nil
}
