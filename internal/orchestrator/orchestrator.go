// Package orchestrator runs the scheduling loop: it dispatches admitted
// probes every tick, publishes reports and reloads the targets source.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/randomizedcoder/go-http-probe-swarm/internal/admission"
	"github.com/randomizedcoder/go-http-probe-swarm/internal/config"
	"github.com/randomizedcoder/go-http-probe-swarm/internal/logging"
	"github.com/randomizedcoder/go-http-probe-swarm/internal/metrics"
	"github.com/randomizedcoder/go-http-probe-swarm/internal/preflight"
	"github.com/randomizedcoder/go-http-probe-swarm/internal/probe"
	"github.com/randomizedcoder/go-http-probe-swarm/internal/reload"
	"github.com/randomizedcoder/go-http-probe-swarm/internal/source"
	"github.com/randomizedcoder/go-http-probe-swarm/internal/stats"
	"github.com/randomizedcoder/go-http-probe-swarm/internal/tui"
)

// summaryTopTargets is the number of targets listed in the exit summary.
const summaryTopTargets = 10

// Dispatcher starts probes. *probe.Executor is the production implementation.
type Dispatcher interface {
	Dispatch(t *stats.Target)
	InFlight() int64
	OutcomeCount(o probe.Outcome) int64
	Wait(ctx context.Context) error
	Close()
}

// Options wires the orchestrator to its collaborators.
type Options struct {
	RunID   string
	Version string

	// Source is the reloadable targets source. Required.
	Source source.Source

	// Out receives the plain report and the exit summary. Defaults to stdout.
	Out io.Writer

	// LogBuffer holds recent log lines for the dashboard. Optional.
	LogBuffer *logging.LineBuffer

	// Dispatcher replaces the HTTP executor. Used by tests.
	Dispatcher Dispatcher
}

// Orchestrator coordinates all components of a probe run.
type Orchestrator struct {
	config *config.Config
	logger *slog.Logger
	opts   Options
	out    io.Writer

	policy      admission.Policy
	registry    *stats.Registry
	totals      *stats.Totals
	coordinator *reload.Coordinator
	aggregator  *stats.Aggregator
	dispatcher  Dispatcher

	promRegistry  *prometheus.Registry
	metrics       *metrics.Collector
	metricsServer *metrics.Server

	program *tea.Program
	tuiDone chan struct{}

	startTime  time.Time
	lastReport time.Time
	lastReload time.Time
	started    bool
}

// New creates an Orchestrator. cfg must already be validated.
func New(cfg *config.Config, opts Options, logger *slog.Logger) (*Orchestrator, error) {
	if opts.Source == nil {
		return nil, errors.New("orchestrator: a targets source is required")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	policy, err := admission.ParsePolicy(cfg.Admission)
	if err != nil {
		return nil, err
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	registry := stats.NewRegistry()
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	collector := metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		RunID:            opts.RunID,
		Version:          opts.Version,
		Source:           opts.Source.Location(),
		Admission:        policy.String(),
		PerTargetMetrics: cfg.PerTargetMetrics,
	}, promRegistry)

	return &Orchestrator{
		config:       cfg,
		logger:       logger,
		opts:         opts,
		out:          out,
		policy:       policy,
		registry:     registry,
		totals:       &stats.Totals{},
		coordinator:  reload.NewCoordinator(opts.Source, registry, logger),
		dispatcher:   opts.Dispatcher,
		promRegistry: promRegistry,
		metrics:      collector,
	}, nil
}

// Run executes the probe loop. It blocks until a signal, the configured
// duration, a dashboard quit or ctx cancellation, then shuts down.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.Start(ctx); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if o.config.TUI {
		o.startTUI()
	}

	reason := o.loop(ctx)
	o.logger.Info("shutdown_started", "reason", reason, "in_flight", o.dispatcher.InFlight())

	return o.Shutdown()
}

// Start loads the targets source, runs preflight checks and brings up the
// executor and metrics server. An initial load failure is fatal.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.startTime = time.Now()

	if _, err := o.coordinator.Reload(ctx); err != nil {
		return fmt.Errorf("initial targets load: %w", err)
	}
	settings := o.coordinator.Settings()
	o.lastReload = o.startTime

	poolSize, perHost := transportSizing(o.config.MaxConns, settings)

	if !o.config.SkipPreflight {
		result := preflight.RunAll(preflight.Requirements{
			MaxInFlight: int(settings.RequestsPerTarget) * settings.Targets,
			IdleConns:   poolSize,
			Targets:     urls(o.registry.Snapshot()),
		})
		preflight.PrintResults(o.out, result)
		if !result.Passed {
			return errors.New("preflight checks failed (use --skip-preflight to override)")
		}
	}

	if o.dispatcher == nil {
		headers, err := o.config.ExtraHeaders()
		if err != nil {
			return err
		}
		exec, err := probe.NewExecutor(probe.Options{
			Timeout:      o.config.Timeout,
			PoolSize:     poolSize,
			PerHostConns: perHost,
			Insecure:     o.config.Insecure,
			HTTP2:        o.config.HTTP2,
			UserAgent:    o.config.UserAgent,
			Headers:      headers,
		}, o.totals, o.logger)
		if err != nil {
			return fmt.Errorf("create probe executor: %w", err)
		}
		o.dispatcher = exec
	}

	o.aggregator = stats.NewAggregator(o.registry, o.totals, o.config.EMAFactor)
	o.lastReport = time.Now()

	o.metrics.SetRequestsPerTarget(settings.RequestsPerTarget)
	o.metrics.RecordReloads(o.coordinator.Reloads(), o.coordinator.Failures())

	if o.config.MetricsAddr != "" {
		o.metricsServer = metrics.NewServer(o.config.MetricsAddr, metrics.ServerOptions{
			Gatherer: o.promRegistry,
			Ready:    o.coordinator.Loaded,
			Report:   o.aggregator.Latest,
		}, o.logger)
		if err := o.metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	o.started = true
	o.logger.Info("probing_started",
		"targets", settings.Targets,
		"requests_per_target", settings.RequestsPerTarget,
		"admission", o.policy.String(),
		"tick", o.config.TickInterval.String(),
		"dispatch_budget", o.config.DispatchBudget,
		"pool_size", poolSize,
	)
	return nil
}

// loop ticks until it is told to stop and returns why it stopped.
func (o *Orchestrator) loop(ctx context.Context) string {
	ticker := time.NewTicker(o.config.TickInterval)
	defer ticker.Stop()

	var durationTimer <-chan time.Time
	if o.config.Duration > 0 {
		timer := time.NewTimer(o.config.Duration)
		defer timer.Stop()
		durationTimer = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return "signal"
		case <-durationTimer:
			return "duration_elapsed"
		case <-o.tuiDone:
			return "dashboard_quit"
		case now := <-ticker.C:
			o.Tick(ctx, now)
		}
	}
}

// Tick performs one scheduling step: dispatch up to the budget, then report
// and reload when their intervals have elapsed. Returns the number of
// probes dispatched.
func (o *Orchestrator) Tick(ctx context.Context, now time.Time) int {
	dispatched := o.dispatch()

	if now.Sub(o.lastReport) >= o.config.ReportInterval {
		o.report(now)
	}
	if now.Sub(o.lastReload) >= o.config.ReloadInterval {
		o.reload(ctx, now)
	}
	return dispatched
}

// dispatch admits probes until the budget is spent or no target has room.
// Dispatch raises the chosen target's in-flight count before returning, so
// each Select sees the previous admissions.
func (o *Orchestrator) dispatch() int {
	targets := o.registry.Snapshot()
	limit := o.coordinator.RequestsPerTarget()

	n := 0
	for ; n < o.config.DispatchBudget; n++ {
		t := o.policy.Select(targets, limit)
		if t == nil {
			break
		}
		o.dispatcher.Dispatch(t)
	}
	return n
}

func (o *Orchestrator) report(now time.Time) *stats.Report {
	r := o.aggregator.Aggregate(now, o.coordinator.Settings().ReportRows)
	o.lastReport = now

	o.metrics.RecordReport(r)
	o.metrics.RecordOutcomes(o.dispatcher)

	if !o.config.TUI {
		fmt.Fprint(o.out, stats.FormatReport(r))
	}
	return r
}

func (o *Orchestrator) reload(ctx context.Context, now time.Time) {
	o.lastReload = now

	if _, err := o.coordinator.Reload(ctx); err != nil {
		o.logger.Warn("reload_failed",
			"error", err,
			"failures", o.coordinator.Failures(),
		)
	}
	o.metrics.SetRequestsPerTarget(o.coordinator.RequestsPerTarget())
	o.metrics.RecordReloads(o.coordinator.Reloads(), o.coordinator.Failures())
}

func (o *Orchestrator) startTUI() {
	model := tui.New(tui.Config{
		RunID:       o.opts.RunID,
		Source:      o.opts.Source.Location(),
		MetricsAddr: o.metricsAddr(),
		Reports:     o.aggregator,
		Settings:    o.coordinator,
		Logs:        o.logSource(),
	})
	o.program = tea.NewProgram(model, tea.WithAltScreen())
	o.tuiDone = make(chan struct{})

	go func() {
		defer close(o.tuiDone)
		if _, err := o.program.Run(); err != nil {
			o.logger.Error("tui_error", "error", err)
		}
	}()
}

// logSource avoids handing the dashboard a typed nil.
func (o *Orchestrator) logSource() tui.LogSource {
	if o.opts.LogBuffer == nil {
		return nil
	}
	return o.opts.LogBuffer
}

// Shutdown stops the dashboard, waits up to the grace period for in-flight
// probes, prints the exit summary and writes the metrics snapshot.
func (o *Orchestrator) Shutdown() error {
	if !o.started {
		return nil
	}
	o.started = false

	graceCtx, cancel := context.WithTimeout(context.Background(), o.config.ShutdownGrace)
	defer cancel()
	if err := o.dispatcher.Wait(graceCtx); err != nil {
		o.logger.Warn("shutdown_incomplete", "error", err)
	}

	// Final report so the summary includes the last partial interval
	final := o.report(time.Now())

	if o.program != nil {
		tui.SendQuit(o.program)
		<-o.tuiDone
	}

	fmt.Fprint(o.out, stats.FormatExitSummary(final, stats.SummaryConfig{
		RunID:          o.opts.RunID,
		Duration:       time.Since(o.startTime),
		MetricsAddr:    o.metricsAddr(),
		TopTargets:     summaryTopTargets,
		Reloads:        o.coordinator.Reloads(),
		ReloadFailures: o.coordinator.Failures(),
	}))

	var errs []error
	if o.config.MetricsSnapshot != "" {
		if err := metrics.WriteSnapshot(o.config.MetricsSnapshot, o.promRegistry); err != nil {
			errs = append(errs, fmt.Errorf("metrics snapshot: %w", err))
		} else {
			o.logger.Info("metrics_snapshot_written", "path", o.config.MetricsSnapshot)
		}
	}

	if o.metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := o.metricsServer.Shutdown(shutdownCtx); err != nil {
			o.logger.Warn("metrics_server_shutdown_error", "error", err)
		}
	}

	o.dispatcher.Close()
	return errors.Join(errs...)
}

func (o *Orchestrator) metricsAddr() string {
	if o.metricsServer != nil {
		return o.metricsServer.Addr()
	}
	return o.config.MetricsAddr
}

// =============================================================================
// Accessors
// =============================================================================

// Registry returns the target registry.
func (o *Orchestrator) Registry() *stats.Registry {
	return o.registry
}

// Coordinator returns the reload coordinator.
func (o *Orchestrator) Coordinator() *reload.Coordinator {
	return o.coordinator
}

// Latest returns the most recent report, or nil before Start.
func (o *Orchestrator) Latest() *stats.Report {
	if o.aggregator == nil {
		return nil
	}
	return o.aggregator.Latest()
}

// Gatherer exposes the metrics registry.
func (o *Orchestrator) Gatherer() prometheus.Gatherer {
	return o.promRegistry
}

// transportSizing returns the idle pool size and the per-host idle limit.
// The pool holds every target's full cap of connections. The per-host limit
// is the whole pool, since several targets can share a host and a reload may
// raise the cap above its starting value.
func transportSizing(maxConns int, settings reload.Settings) (pool, perHost int) {
	pool = max(maxConns, int(settings.RequestsPerTarget)*settings.Targets)
	return pool, pool
}

func urls(targets []*stats.Target) []string {
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = t.URL
	}
	return out
}
