// Package reload applies configuration snapshots to the target registry.
//
// A failed load never disturbs the running configuration: the previous
// settings and target set stay in effect until a later load succeeds.
package reload

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-http-probe-swarm/internal/source"
	"github.com/randomizedcoder/go-http-probe-swarm/internal/stats"
)

// Settings are the reloadable values in effect.
type Settings struct {
	RequestsPerTarget int64     `json:"requests_per_target"`
	ReportRows        int       `json:"report_rows"`
	Targets           int       `json:"targets"`
	LoadedAt          time.Time `json:"loaded_at"`
}

// Result describes one successful reload.
type Result struct {
	Settings Settings
	Added    []string
	Removed  []string
}

// Coordinator loads snapshots from a Source and reconciles the registry.
//
// Reload is called from the scheduling goroutine; Settings and the counters
// may be read from anywhere.
type Coordinator struct {
	source   source.Source
	registry *stats.Registry
	logger   *slog.Logger

	settings atomic.Pointer[Settings]
	reloads  atomic.Int64
	failures atomic.Int64
}

// NewCoordinator creates a coordinator. Nothing is loaded until Reload.
func NewCoordinator(src source.Source, registry *stats.Registry, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		source:   src,
		registry: registry,
		logger:   logger,
	}
}

// Reload fetches a snapshot and applies it. On error nothing changes and
// the error is returned for the caller to log; the next Reload retries.
func (c *Coordinator) Reload(ctx context.Context) (*Result, error) {
	snap, err := c.source.Load(ctx)
	if err != nil {
		c.failures.Add(1)
		return nil, fmt.Errorf("load %s: %w", c.source.Location(), err)
	}

	settings := Settings{
		RequestsPerTarget: int64(max(snap.RequestsPerTarget, 1)),
		ReportRows:        max(snap.ReportRows, 1),
		LoadedAt:          time.Now(),
	}

	rec := c.registry.Reconcile(snap.Targets)
	settings.Targets = c.registry.Len()

	prev := c.settings.Swap(&settings)
	c.reloads.Add(1)

	res := &Result{Settings: settings, Added: rec.Added}
	for _, t := range rec.Removed {
		res.Removed = append(res.Removed, t.URL)
	}

	if rec.Changed() || prev == nil || prev.RequestsPerTarget != settings.RequestsPerTarget || prev.ReportRows != settings.ReportRows {
		c.logger.Info("config_reloaded",
			"source", c.source.Location(),
			"targets", settings.Targets,
			"added", len(res.Added),
			"removed", len(res.Removed),
			"requests_per_target", settings.RequestsPerTarget,
			"report_rows", settings.ReportRows,
		)
	}
	return res, nil
}

// Settings returns the settings in effect, or the zero value before the
// first successful Reload.
func (c *Coordinator) Settings() Settings {
	if s := c.settings.Load(); s != nil {
		return *s
	}
	return Settings{}
}

// RequestsPerTarget returns the per-target cap in effect, 0 before the
// first successful Reload.
func (c *Coordinator) RequestsPerTarget() int64 {
	return c.Settings().RequestsPerTarget
}

// Loaded reports whether at least one Reload has succeeded.
func (c *Coordinator) Loaded() bool {
	return c.settings.Load() != nil
}

// Reloads returns the number of successful reloads.
func (c *Coordinator) Reloads() int64 { return c.reloads.Load() }

// Failures returns the number of failed reloads.
func (c *Coordinator) Failures() int64 { return c.failures.Load() }
