// Package main provides the go-http-probe-swarm CLI entry point.
//
// go-http-probe-swarm keeps a bounded number of HTTP GET probes in flight
// against every target in a reloadable list and reports per-target
// throughput, status classes and errors.
//
// Usage:
//
//	go-http-probe-swarm -t targets.yaml           # Probe until interrupted
//	go-http-probe-swarm -t sqlite:targets.db --tui
//	go-http-probe-swarm validate -t targets.yaml  # Check a targets source
//	go-http-probe-swarm targets add -t targets.db http://host/path
//	go-http-probe-swarm version
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/randomizedcoder/go-http-probe-swarm/internal/config"
	"github.com/randomizedcoder/go-http-probe-swarm/internal/logging"
	"github.com/randomizedcoder/go-http-probe-swarm/internal/orchestrator"
	"github.com/randomizedcoder/go-http-probe-swarm/internal/source"
)

// Version information, set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-http-probe-swarm
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// cfg receives the root command's flags.
var cfg = config.DefaultConfig()

// rootCmd probes the configured targets when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "go-http-probe-swarm",
	Short: "Continuous multi-target HTTP probing",
	Long: `go-http-probe-swarm keeps up to requests_per_target GET probes in flight
against every target and reports throughput, status classes, errors and
timeouts per target.

The targets source is re-read every --reload-interval. A YAML file looks like:

  requests_per_target: 10
  report_rows: 20
  targets:
    - https://cdn.example.com/a.bin
    - https://cdn.example.com/b.bin

A SQLite database (sqlite:<path>, *.db, *.sqlite) can be edited while the
probe runs with the "targets" subcommands.`,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE:         runProbe,
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "go-http-probe-swarm %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", date)
	},
}

func init() {
	config.BindFlags(rootCmd.Flags(), cfg)
	rootCmd.Version = version
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already printed the error
		os.Exit(1)
	}
}

func runProbe(cmd *cobra.Command, args []string) error {
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("configuration error:\n%w", err)
	}

	runID := uuid.NewString()

	// Log lines would tear the dashboard, so they go to the log panel instead
	var logBuffer *logging.LineBuffer
	var logOut io.Writer = os.Stderr
	if cfg.TUI {
		logBuffer = logging.NewLineBuffer(logging.DefaultBufferedLines)
		logOut = logBuffer
	}
	logger := logging.WithRun(logging.NewLoggerWithWriter(logOut, cfg.LogFormat, cfg.LogLevel, cfg.Verbose), runID)
	logging.SetDefault(logger)

	ctx := cmd.Context()

	src, err := source.Open(ctx, cfg.TargetsPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Warn("source_close_failed", "error", err)
		}
	}()

	logger.Info("starting",
		"version", version,
		"source", src.Location(),
		"admission", cfg.Admission,
		"metrics_addr", cfg.MetricsAddr,
	)
	if !cfg.TUI {
		printBanner(cmd.OutOrStdout(), runID, src.Location())
	}

	orch, err := orchestrator.New(cfg, orchestrator.Options{
		RunID:     runID,
		Version:   version,
		Source:    src,
		Out:       cmd.OutOrStdout(),
		LogBuffer: logBuffer,
	}, logger)
	if err != nil {
		return err
	}
	if err := orch.Run(ctx); err != nil {
		logger.Error("orchestrator_failed", "error", err)
		return err
	}
	return nil
}

// printBanner prints the startup banner.
func printBanner(w io.Writer, runID, location string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                      go-http-probe-swarm                          ║")
	fmt.Fprintln(w, "║          Continuous HTTP Probing with Per-Target Caps             ║")
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Run ID:      %s\n", runID)
	fmt.Fprintf(w, "  Targets:     %s (reload every %s)\n", location, cfg.ReloadInterval)
	fmt.Fprintf(w, "  Admission:   %s, %d probes per %s tick\n", cfg.Admission, cfg.DispatchBudget, cfg.TickInterval)
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(w, "  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	}
	if cfg.Insecure {
		fmt.Fprintln(w, "  TLS:         certificate verification disabled")
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Press Ctrl+C to stop.")
	fmt.Fprintln(w)
}

// newCLILogger is used by the one-shot subcommands.
func newCLILogger() *slog.Logger {
	return logging.NewLogger("text", "warn", false)
}
