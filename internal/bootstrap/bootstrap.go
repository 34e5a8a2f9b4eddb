package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/docflow/internal/config"
	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/core/service"
	"github.com/kirillkom/docflow/internal/core/usecase"
	"github.com/kirillkom/docflow/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/docflow/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docflow/internal/infrastructure/report/xlsx"
	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
	"github.com/kirillkom/docflow/internal/infrastructure/seed"
	"github.com/kirillkom/docflow/internal/infrastructure/webhook"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	// Bus is nil when NATS_URL is empty.
	Bus     *nats.EventBus
	Tenants ports.TenantRepository

	IngestUC   *usecase.IngestDocumentUseCase
	ClassifyUC *usecase.ClassifyDocumentUseCase
	DocumentUC *usecase.DocumentUseCase
	RouteUC    *usecase.RouteDocumentUseCase
	DispatchUC *usecase.DispatchWebhookUseCase
	RuleUC     *usecase.RuleUseCase
	QueueUC    *usecase.QueueUseCase
	TenantUC   *usecase.TenantUseCase
	SweepUC    *usecase.SweepUseCase
	Reactor    *usecase.EventReactor
	Relay      *usecase.OutboxRelay
	Signer     service.Signer
	SeedLoader *seed.Loader

	closeFn func()
}

type Option func(*options)

type options struct {
	observer resilience.Observer
}

// WithObserver reports retries and breaker transitions of every outbound
// client to observer.
func WithObserver(observer resilience.Observer) Option {
	return func(o *options) {
		o.observer = observer
	}
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	minConfidence, err := domain.NewConfidenceScore(cfg.AIMinConfidence)
	if err != nil {
		return nil, fmt.Errorf("ai min confidence: %w", err)
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	closers := []func(){st.close}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	blobs, err := openBlobStore(cfg, logger)
	if err != nil {
		closeAll()
		return nil, err
	}

	executorOpts := []resilience.Option{resilience.WithLogger(logger)}
	if o.observer != nil {
		executorOpts = append(executorOpts, resilience.WithObserver(o.observer))
	}
	executor := resilience.NewExecutor(resilienceConfig(cfg), executorOpts...)

	oracle, err := newOracle(cfg, executor)
	if err != nil {
		closeAll()
		return nil, err
	}

	var bus *nats.EventBus
	if cfg.NATSURL != "" {
		bus, err = nats.Connect(cfg.NATSURL, nats.Options{
			SubjectPrefix: cfg.NATSSubjectPrefix,
			QueueGroup:    cfg.NATSQueueGroup,
			Executor:      executor,
			Logger:        logger,
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("init event bus: %w", err)
		}
		closers = append(closers, bus.Close)
	}

	evaluator := service.NewRuleEvaluator(logger, cfg.RegexTimeout)
	signer := service.NewSigner()
	extractor := pdftext.NewExtractor(0, logger)
	sender := webhook.NewSender(webhook.Options{
		Timeout:   cfg.WebhookTimeout,
		HostRPS:   cfg.WebhookRateLimitRPS,
		HostBurst: cfg.WebhookRateLimitBurst,
		Executor:  executor,
	})

	ingestUC := usecase.NewIngestDocumentUseCase(st.docs, st.tenants, blobs, pdftext.NewPageCounter(), cfg.DocumentContainer, logger)
	classifyUC := usecase.NewClassifyDocumentUseCase(st.docs, st.rules, st.queues, blobs, extractor, oracle, evaluator, minConfidence, logger)
	documentUC := usecase.NewDocumentUseCase(st.docs, st.deliveries, st.queues, blobs, extractor, oracle, minConfidence, logger)
	routeUC := usecase.NewRouteDocumentUseCase(st.docs, st.rules, st.queues, st.deliveries, blobs, service.NewRoutingManager(logger), logger)
	dispatchUC := usecase.NewDispatchWebhookUseCase(st.deliveries, st.docs, st.queues, st.tenants, sender, signer, cfg.WebhookSecret, logger)
	ruleUC := usecase.NewRuleUseCase(st.rules, st.queues, evaluator, logger)
	queueUC := usecase.NewQueueUseCase(st.queues, logger)

	sweepUC := usecase.NewSweepUseCase(
		sweepConfig(cfg),
		st.tenants,
		st.docs,
		st.queues,
		st.deliveries,
		blobs,
		st.lock,
		classifyUC,
		routeUC,
		dispatchUC,
		xlsx.NewWriter(),
		logger,
	)

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Bus:     bus,
		Tenants: st.tenants,

		IngestUC:   ingestUC,
		ClassifyUC: classifyUC,
		DocumentUC: documentUC,
		RouteUC:    routeUC,
		DispatchUC: dispatchUC,
		RuleUC:     ruleUC,
		QueueUC:    queueUC,
		TenantUC:   usecase.NewTenantUseCase(st.tenants, st.docs),
		SweepUC:    sweepUC,
		Reactor:    usecase.NewEventReactor(classifyUC, routeUC, dispatchUC, logger),
		Signer:     signer,
		SeedLoader: seed.NewLoader(st.tenants, queueUC, ruleUC, logger),

		closeFn: closeAll,
	}
	if bus != nil {
		app.Relay = usecase.NewOutboxRelay(st.outbox, bus, cfg.OutboxBatchSize, logger)
	}
	return app, nil
}

// ApplySeed loads SEED_FILE when configured. It is safe to run on every
// start.
func (a *App) ApplySeed(ctx context.Context) error {
	if a.Config.SeedFile == "" {
		return nil
	}
	file, err := seed.ParseFile(a.Config.SeedFile)
	if err != nil {
		return err
	}
	summary, err := a.SeedLoader.Apply(ctx, file)
	if err != nil {
		return fmt.Errorf("apply seed: %w", err)
	}
	a.Logger.Info("seed_applied",
		"file", a.Config.SeedFile,
		"tenants", summary.Tenants,
		"queues", summary.Queues,
		"rules", summary.Rules,
	)
	return nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:    cfg.ResilienceRetryMaxAttempts,
		RetryInitialBackoff: cfg.ResilienceRetryInitialBackoff,
		RetryMaxBackoff:     cfg.ResilienceRetryMaxBackoff,
		BreakerEnabled:      cfg.ResilienceBreakerEnabled,
		BreakerMinRequests:  uint32(max(cfg.ResilienceBreakerMinRequests, 0)),
		BreakerFailureRatio: cfg.ResilienceBreakerFailureRatio,
		BreakerOpenTimeout:  cfg.ResilienceBreakerOpenTimeout,
	}
}

func sweepConfig(cfg config.Config) usecase.SweepConfig {
	sc := usecase.DefaultSweepConfig()
	if cfg.SweepClassifyBatchSize > 0 {
		sc.ClassifyBatchSize = cfg.SweepClassifyBatchSize
	}
	if cfg.SweepRetryBatchSize > 0 {
		sc.RetryBatchSize = cfg.SweepRetryBatchSize
	}
	if cfg.SweepDispatchBatchSize > 0 {
		sc.DispatchBatchSize = cfg.SweepDispatchBatchSize
	}
	if cfg.SweepRouteBatchSize > 0 {
		sc.RouteBatchSize = cfg.SweepRouteBatchSize
	}
	if cfg.SweepCleanupBatchSize > 0 {
		sc.CleanupBatchSize = cfg.SweepCleanupBatchSize
	}
	if cfg.RetryMaxAttempts > 0 {
		sc.MaxRetries = cfg.RetryMaxAttempts
	}
	if cfg.SweepTenantConcurrency > 0 {
		sc.TenantConcurrency = cfg.SweepTenantConcurrency
	}
	if cfg.SweepDispatchGrace > 0 {
		sc.DispatchGrace = cfg.SweepDispatchGrace
	}
	if cfg.SweepClassifyLease > 0 {
		sc.ClassifyLease = cfg.SweepClassifyLease
	}
	return sc
}
