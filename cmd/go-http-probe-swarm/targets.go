package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/randomizedcoder/go-http-probe-swarm/internal/source"
)

// targetsCmd groups edits to a SQLite targets source. A running probe picks
// them up on its next reload.
var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Edit a SQLite targets source",
	Long: `Edit a SQLite targets source. A running probe picks up the change on
its next reload.

Example:
  go-http-probe-swarm targets add -t targets.db https://cdn.example.com/a.bin
  go-http-probe-swarm targets disable -t targets.db https://cdn.example.com/a.bin
  go-http-probe-swarm targets set -t targets.db requests_per_target 25`,
}

var targetsAddCmd = &cobra.Command{
	Use:   "add URL...",
	Short: "Add or re-enable targets",
	Args:  cobra.MinimumNArgs(1),
	RunE: withSQLite(func(cmd *cobra.Command, db *source.SQLiteSource, args []string) error {
		for _, u := range args {
			if err := db.AddTarget(cmd.Context(), u); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added %d targets to %s\n", len(args), db.Location())
		return nil
	}),
}

var targetsDisableCmd = &cobra.Command{
	Use:   "disable URL...",
	Short: "Stop probing targets without deleting them",
	Args:  cobra.MinimumNArgs(1),
	RunE: withSQLite(func(cmd *cobra.Command, db *source.SQLiteSource, args []string) error {
		for _, u := range args {
			if err := db.DisableTarget(cmd.Context(), u); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "disabled %d targets in %s\n", len(args), db.Location())
		return nil
	}),
}

// settingKeys are the settings the probe reads on every reload.
var settingKeys = map[string]bool{
	"requests_per_target": true,
	"report_rows":         true,
}

var targetsSetCmd = &cobra.Command{
	Use:       "set KEY VALUE",
	Short:     "Set requests_per_target or report_rows",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"requests_per_target", "report_rows"},
	RunE: withSQLite(func(cmd *cobra.Command, db *source.SQLiteSource, args []string) error {
		key := args[0]
		if !settingKeys[key] {
			return fmt.Errorf("unknown setting %q (want requests_per_target or report_rows)", key)
		}
		value, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		if err := db.SetSetting(cmd.Context(), key, value); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %d in %s\n", key, value, db.Location())
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(targetsCmd)
	targetsCmd.PersistentFlags().StringP("targets", "t", "targets.db", "SQLite targets database")
	targetsCmd.AddCommand(targetsAddCmd, targetsDisableCmd, targetsSetCmd)
}

// withSQLite opens the database named by --targets around fn.
func withSQLite(fn func(cmd *cobra.Command, db *source.SQLiteSource, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		location, _ := cmd.Flags().GetString("targets")

		src, err := source.Open(cmd.Context(), location)
		if err != nil {
			return err
		}
		defer func() {
			if err := src.Close(); err != nil {
				newCLILogger().Warn("source_close_failed", "error", err)
			}
		}()

		db, ok := src.(*source.SQLiteSource)
		if !ok {
			return fmt.Errorf("%s is not a SQLite source; edit the YAML file directly", location)
		}
		return fn(cmd, db, args)
	}
}
