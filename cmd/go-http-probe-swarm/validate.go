package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randomizedcoder/go-http-probe-swarm/internal/preflight"
	"github.com/randomizedcoder/go-http-probe-swarm/internal/source"
)

// validateCmd loads a targets source once without probing anything.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a targets source",
	Long: `Load a targets source once, print the effective settings and check
every target URL. Nothing is probed.

Exit codes:
  0 - Source loaded
  1 - Source could not be read or parsed

Example:
  go-http-probe-swarm validate -t targets.yaml
  go-http-probe-swarm validate -t sqlite:/var/lib/probe/targets.db`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("targets", "t", "targets.yaml", "targets source to validate")
	validateCmd.Flags().Bool("list", false, "print every target URL")
}

func runValidate(cmd *cobra.Command, args []string) error {
	location, _ := cmd.Flags().GetString("targets")
	list, _ := cmd.Flags().GetBool("list")

	src, err := source.Open(cmd.Context(), location)
	if err != nil {
		return err
	}
	defer src.Close()

	snap, err := src.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("invalid targets source: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Targets source is valid!\n")
	fmt.Fprintf(out, "  Source:              %s\n", src.Location())
	fmt.Fprintf(out, "  Targets:             %d\n", len(snap.Targets))
	fmt.Fprintf(out, "  Requests per target: %d\n", snap.RequestsPerTarget)
	fmt.Fprintf(out, "  Report rows:         %d\n", snap.ReportRows)
	fmt.Fprintln(out)

	if list {
		for _, u := range snap.Targets {
			fmt.Fprintf(out, "  %s\n", u)
		}
		fmt.Fprintln(out)
	}

	result := preflight.RunAll(preflight.Requirements{
		MaxInFlight: snap.RequestsPerTarget * len(snap.Targets),
		Targets:     snap.Targets,
	})
	preflight.PrintResults(out, result)
	return nil
}
