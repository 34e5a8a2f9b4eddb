package main

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docflow/internal/core/usecase"
)

const allSweeps = "all"

var sweepCmd = &cobra.Command{
	Use:   "sweep <name>",
	Short: "Run a maintenance sweep",
	Long: `Run one maintenance sweep across every tenant, or all of them in order.

Sweeps: classify, retry, dispatch, route, cleanup, usage, all.

A sweep already running elsewhere is reported as skipped. Each report is
printed as one JSON line.

Examples:
  docflowctl sweep cleanup
  docflowctl sweep all`,
	Args:      validateSweepArgs,
	ValidArgs: append(usecase.SweepNames(), allSweeps),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := openApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		names := []string{args[0]}
		if args[0] == allSweeps {
			names = usecase.SweepNames()
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, name := range names {
			report, err := app.SweepUC.Run(ctx, name)
			if err != nil {
				return fmt.Errorf("sweep %s: %w", name, err)
			}
			if err := enc.Encode(report); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func validateSweepArgs(_ *cobra.Command, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one sweep name")
	}
	if args[0] != allSweeps && !slices.Contains(usecase.SweepNames(), args[0]) {
		return fmt.Errorf("unknown sweep %q, want one of %v or %q", args[0], usecase.SweepNames(), allSweeps)
	}
	return nil
}
