package config

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or every problem found joined into one error.
func Validate(cfg *Config) error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.TargetsPath == "" {
		add("targets", "a targets source is required")
	}

	// Scheduling
	if cfg.TickInterval < time.Millisecond {
		add("tick", "must be at least 1ms (got %v)", cfg.TickInterval)
	}
	if cfg.DispatchBudget < 1 {
		add("dispatch_budget", "must be at least 1")
	}
	if cfg.ReportInterval < cfg.TickInterval {
		add("report_interval", "must be >= tick (%v), got %v", cfg.TickInterval, cfg.ReportInterval)
	}
	if cfg.ReloadInterval < cfg.TickInterval {
		add("reload_interval", "must be >= tick (%v), got %v", cfg.TickInterval, cfg.ReloadInterval)
	}
	validAdmission := map[string]bool{"max-deficit": true, "first-fit": true}
	if !validAdmission[cfg.Admission] {
		add("admission", "must be 'max-deficit' or 'first-fit' (got %q)", cfg.Admission)
	}
	if cfg.EMAFactor <= 0 || cfg.EMAFactor > 1 {
		add("ema_factor", "must be in (0, 1] (got %v)", cfg.EMAFactor)
	}
	if cfg.Duration < 0 {
		add("duration", "must not be negative")
	}
	if cfg.ShutdownGrace < 0 {
		add("shutdown_grace", "must not be negative")
	}

	// Probe client
	if cfg.Timeout <= 0 {
		add("timeout", "must be positive")
	}
	if cfg.MaxConns < 1 {
		add("max_conns", "must be at least 1")
	}
	for _, h := range cfg.Headers {
		if _, _, err := ParseHeader(h); err != nil {
			add("header", "%v", err)
		}
	}

	// Observability
	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			add("metrics", "must be host:port (got %q)", cfg.MetricsAddr)
		}
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		add("log_format", "must be 'json' or 'text' (got %q)", cfg.LogFormat)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[cfg.LogLevel] {
		add("log_level", "must be one of debug, info, warn, error (got %q)", cfg.LogLevel)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
