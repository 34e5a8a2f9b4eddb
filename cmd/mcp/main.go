package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/docflow/internal/adapters/mcp"
	"github.com/kirillkom/docflow/internal/bootstrap"
	"github.com/kirillkom/docflow/internal/config"
	"github.com/kirillkom/docflow/internal/observability/logging"
)

var version = "dev"

func main() {
	cfg := config.Load()
	// The stdio transport owns stdout.
	logger := logging.NewJSONLoggerTo(os.Stderr, "docflow-mcp", cfg.LogLevel)
	cfg.NATSURL = ""

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap mcp: %v", err)
	}
	defer app.Close()

	tools := mcpadapter.NewTools(mcpadapter.Services{
		Documents: app.DocumentUC,
		Rules:     app.RuleUC,
		Tenants:   app.TenantUC,
		Verifier:  app.Signer,
	}, logger)

	logger.Info("mcp_server_started", "transport", "stdio")
	if err := server.ServeStdio(mcpadapter.NewServer(tools, version)); err != nil {
		logger.Error("mcp_server_failed", "error", err)
		app.Close()
		os.Exit(1)
	}
}
