package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docflow/internal/infrastructure/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed <file>",
	Short: "Load tenants, queues and rules from a YAML file",
	Long: `Load a seed file. Existing tenants get their limits and settings
updated; queues and rules that already exist by name are left alone, so the
command can be re-run safely.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := seed.ParseFile(args[0])
		if err != nil {
			return err
		}
		app, err := openApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		summary, err := app.SeedLoader.Apply(cmd.Context(), file)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %d tenants, %d queues, %d rules\n", summary.Tenants, summary.Queues, summary.Rules)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
