package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docflow/internal/bootstrap"
	"github.com/kirillkom/docflow/internal/config"
	"github.com/kirillkom/docflow/internal/observability/logging"
)

var rootCmd = &cobra.Command{
	Use:   "docflowctl",
	Short: "Operate a docflow deployment",
	Long: `docflowctl runs maintenance sweeps, schema migrations and seed loading
against the store configured through the usual docflow environment variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "Override LOG_LEVEL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger writes JSON logs to stderr so stdout stays parseable.
func newLogger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	level := cfg.LogLevel
	if override, _ := cmd.Flags().GetString("log-level"); override != "" {
		level = override
	}
	return logging.NewJSONLoggerTo(cmd.ErrOrStderr(), "docflowctl", level)
}

// openApp bootstraps without the event bus. Commands write through the
// outbox and the worker relays the events.
func openApp(ctx context.Context, cmd *cobra.Command) (*bootstrap.App, error) {
	cfg := config.Load()
	cfg.NATSURL = ""
	app, err := bootstrap.New(ctx, cfg, newLogger(cmd, cfg))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return app, nil
}
