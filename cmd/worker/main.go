package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/docflow/internal/bootstrap"
	"github.com/kirillkom/docflow/internal/config"
	"github.com/kirillkom/docflow/internal/core/usecase"
	"github.com/kirillkom/docflow/internal/observability/logging"
	"github.com/kirillkom/docflow/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("docflow-worker", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("docflow-worker")
	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.WithObserver(workerMetrics))
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if app.Bus == nil {
		logger.Error("worker_requires_nats", "hint", "set NATS_URL")
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("worker_subscribed", "event_types", app.Reactor.Subscriptions())
		return app.Bus.Subscribe(gctx, app.Reactor.Subscriptions(), workerMetrics.Instrument(app.Reactor.Handle))
	})
	g.Go(func() error {
		runEvery(gctx, cfg.OutboxRelayInterval, func(ctx context.Context) {
			published, err := app.Relay.RelayOnce(ctx)
			workerMetrics.RecordRelay(published, err)
			if err != nil && ctx.Err() == nil {
				logger.Warn("outbox_relay_failed", "error", err)
			}
		})
		return nil
	})
	if cfg.SweepInterval > 0 {
		g.Go(func() error {
			runEvery(gctx, cfg.SweepInterval, func(ctx context.Context) {
				runSweeps(ctx, app.SweepUC, workerMetrics, logger)
			})
			return nil
		})
	}
	g.Go(func() error {
		logger.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker_stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("worker_stopped")
}

func runEvery(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// runSweeps runs every sweep in order. The sweep lock keeps replicas from
// running the same sweep twice.
func runSweeps(ctx context.Context, sweeps *usecase.SweepUseCase, m *metrics.WorkerMetrics, logger *slog.Logger) {
	for _, name := range usecase.SweepNames() {
		if ctx.Err() != nil {
			return
		}
		report, err := sweeps.Run(ctx, name)
		m.RecordSweep(name, report.Skipped, report.Processed, report.Failed, report.Duration, err)
		if err != nil {
			logger.Warn("sweep_failed", "sweep", name, "error", err)
		}
	}
}
