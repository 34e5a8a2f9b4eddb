package usecase

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

const (
	SweepClassify = "classify"
	SweepRetry    = "retry"
	SweepDispatch = "dispatch"
	SweepRoute    = "route"
	SweepCleanup  = "cleanup"
	SweepUsage    = "usage"

	DefaultReportContainer = "reports"
	xlsxContentType        = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// SweepNames lists every sweep accepted by Run.
func SweepNames() []string {
	return []string{SweepClassify, SweepRetry, SweepDispatch, SweepRoute, SweepCleanup, SweepUsage}
}

// SweepConfig sizes the batches. DispatchGrace leaves fresh Pending
// deliveries to the event-driven worker.
type SweepConfig struct {
	ClassifyBatchSize int
	RetryBatchSize    int
	DispatchBatchSize int
	RouteBatchSize    int
	CleanupBatchSize  int
	MaxRetries        int
	TenantConcurrency int
	DispatchGrace     time.Duration
	ClassifyLease     time.Duration
	ReportContainer   string
}

func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		ClassifyBatchSize: 100,
		RetryBatchSize:    50,
		DispatchBatchSize: 100,
		RouteBatchSize:    100,
		CleanupBatchSize:  100,
		MaxRetries:        3,
		TenantConcurrency: 4,
		DispatchGrace:     time.Minute,
		ClassifyLease:     10 * time.Minute,
		ReportContainer:   DefaultReportContainer,
	}
}

type SweepReport struct {
	Sweep      string        `json:"sweep"`
	Skipped    bool          `json:"skipped"`
	Tenants    int           `json:"tenants"`
	Processed  int64         `json:"processed"`
	Failed     int64         `json:"failed"`
	Duration   time.Duration `json:"duration"`
	ReportBlob string        `json:"report_blob,omitempty"`
}

type sweepCounters struct {
	processed atomic.Int64
	failed    atomic.Int64
}

type SweepUseCase struct {
	cfg        SweepConfig
	tenants    ports.TenantRepository
	docs       ports.DocumentRepository
	queues     ports.QueueRepository
	deliveries ports.DeliveryRepository
	blobs      ports.BlobStore
	lock       ports.SweepLock
	classify   *ClassifyDocumentUseCase
	route      *RouteDocumentUseCase
	dispatch   *DispatchWebhookUseCase
	reports    ports.UsageReportWriter
	logger     *slog.Logger
	now        func() time.Time
}

// NewSweepUseCase wires the periodic drivers. reports may be nil, in which
// case the usage sweep only refreshes quota counters.
var errClassifyLeaseExpired = errors.New("classification lease expired")

func NewSweepUseCase(
	cfg SweepConfig,
	tenants ports.TenantRepository,
	docs ports.DocumentRepository,
	queues ports.QueueRepository,
	deliveries ports.DeliveryRepository,
	blobs ports.BlobStore,
	lock ports.SweepLock,
	classify *ClassifyDocumentUseCase,
	route *RouteDocumentUseCase,
	dispatch *DispatchWebhookUseCase,
	reports ports.UsageReportWriter,
	logger *slog.Logger,
) *SweepUseCase {
	defaults := DefaultSweepConfig()
	if cfg.ClassifyBatchSize <= 0 {
		cfg.ClassifyBatchSize = defaults.ClassifyBatchSize
	}
	if cfg.RetryBatchSize <= 0 {
		cfg.RetryBatchSize = defaults.RetryBatchSize
	}
	if cfg.DispatchBatchSize <= 0 {
		cfg.DispatchBatchSize = defaults.DispatchBatchSize
	}
	if cfg.RouteBatchSize <= 0 {
		cfg.RouteBatchSize = defaults.RouteBatchSize
	}
	if cfg.CleanupBatchSize <= 0 {
		cfg.CleanupBatchSize = defaults.CleanupBatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.TenantConcurrency <= 0 {
		cfg.TenantConcurrency = defaults.TenantConcurrency
	}
	if cfg.DispatchGrace < 0 {
		cfg.DispatchGrace = 0
	}
	if cfg.ClassifyLease <= 0 {
		cfg.ClassifyLease = defaults.ClassifyLease
	}
	if cfg.ReportContainer == "" {
		cfg.ReportContainer = defaults.ReportContainer
	}
	return &SweepUseCase{
		cfg:        cfg,
		tenants:    tenants,
		docs:       docs,
		queues:     queues,
		deliveries: deliveries,
		blobs:      blobs,
		lock:       lock,
		classify:   classify,
		route:      route,
		dispatch:   dispatch,
		reports:    reports,
		logger:     componentLogger(logger, "sweep"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run executes the named sweep once.
func (uc *SweepUseCase) Run(ctx context.Context, name string) (SweepReport, error) {
	switch name {
	case SweepClassify:
		return uc.ClassifyPending(ctx)
	case SweepRetry:
		return uc.RetryFailed(ctx)
	case SweepDispatch:
		return uc.DispatchWebhooks(ctx)
	case SweepRoute:
		return uc.RouteClassified(ctx)
	case SweepCleanup:
		return uc.Cleanup(ctx)
	case SweepUsage:
		return uc.Usage(ctx)
	default:
		return SweepReport{}, domain.WrapError(domain.ErrInvalidInput, "run sweep", fmt.Errorf("unknown sweep %q", name))
	}
}

// ClassifyPending classifies Pending documents. Documents left in
// Classifying longer than ClassifyLease belong to a worker that died
// mid-claim; they are failed so the retry sweep can requeue them.
func (uc *SweepUseCase) ClassifyPending(ctx context.Context) (SweepReport, error) {
	return uc.run(ctx, SweepClassify, func(ctx context.Context, tenant *domain.Tenant, c *sweepCounters) error {
		if err := uc.reclaimStale(ctx, tenant.ID(), c); err != nil {
			return err
		}
		docs, err := uc.docs.ListByStatus(ctx, tenant.ID(), domain.StatusPending, uc.cfg.ClassifyBatchSize)
		if err != nil {
			return fmt.Errorf("list pending documents: %w", err)
		}
		for _, doc := range docs {
			uc.item(c, "classify", doc.ID(), uc.classify.ClassifyByID(ctx, tenant.ID(), doc.ID()))
		}
		return nil
	})
}

func (uc *SweepUseCase) reclaimStale(ctx context.Context, tenantID string, c *sweepCounters) error {
	docs, err := uc.docs.ListByStatus(ctx, tenantID, domain.StatusClassifying, uc.cfg.ClassifyBatchSize)
	if err != nil {
		return fmt.Errorf("list classifying documents: %w", err)
	}
	cutoff := uc.now().Add(-uc.cfg.ClassifyLease)
	for _, doc := range docs {
		if doc.UpdatedAt().After(cutoff) {
			continue
		}
		err := doc.RecordClassificationFailure(domain.ErrorMessageFrom(errClassifyLeaseExpired))
		if err == nil {
			err = uc.docs.Update(ctx, doc)
		}
		uc.item(c, "reclaim", doc.ID(), err)
	}
	return nil
}

// RetryFailed returns Failed documents with budget left to Pending and
// dead-letters the rest.
func (uc *SweepUseCase) RetryFailed(ctx context.Context) (SweepReport, error) {
	return uc.run(ctx, SweepRetry, func(ctx context.Context, tenant *domain.Tenant, c *sweepCounters) error {
		docs, err := uc.docs.ListByStatus(ctx, tenant.ID(), domain.StatusFailed, uc.cfg.RetryBatchSize)
		if err != nil {
			return fmt.Errorf("list failed documents: %w", err)
		}
		for _, doc := range docs {
			var err error
			if doc.CanRetry(uc.cfg.MaxRetries) {
				err = doc.RetryClassification()
			} else {
				err = doc.SendToDeadLetter()
			}
			if err == nil {
				err = uc.docs.Update(ctx, doc)
			}
			uc.item(c, "retry", doc.ID(), err)
		}
		return nil
	})
}

// DispatchWebhooks delivers Pending deliveries older than the grace period,
// reschedules Failed deliveries whose retry delay has passed and
// dead-letters those out of budget.
func (uc *SweepUseCase) DispatchWebhooks(ctx context.Context) (SweepReport, error) {
	return uc.run(ctx, SweepDispatch, func(ctx context.Context, tenant *domain.Tenant, c *sweepCounters) error {
		now := uc.now()
		pending, err := uc.deliveries.ListByStatus(ctx, tenant.ID(), domain.DeliveryPending, uc.cfg.DispatchBatchSize)
		if err != nil {
			return fmt.Errorf("list pending deliveries: %w", err)
		}
		for _, delivery := range pending {
			if now.Sub(delivery.UpdatedAt()) < uc.cfg.DispatchGrace {
				continue
			}
			uc.item(c, "dispatch", delivery.ID(), uc.dispatch.Deliver(ctx, tenant.ID(), delivery.ID()))
		}

		failed, err := uc.deliveries.ListByStatus(ctx, tenant.ID(), domain.DeliveryFailed, uc.cfg.DispatchBatchSize)
		if err != nil {
			return fmt.Errorf("list failed deliveries: %w", err)
		}
		webhooks := make(map[string]domain.WebhookConfiguration)
		for _, delivery := range failed {
			webhook, ok := webhooks[delivery.QueueID()]
			if !ok {
				queue, err := uc.queues.GetByID(ctx, tenant.ID(), delivery.QueueID())
				if err != nil {
					uc.item(c, "dispatch_retry", delivery.ID(), err)
					continue
				}
				if webhook, ok = queue.Webhook(); !ok {
					uc.item(c, "dispatch_retry", delivery.ID(), fmt.Errorf("queue %s is not a webhook queue", queue.ID()))
					continue
				}
				webhooks[delivery.QueueID()] = webhook
			}

			var err error
			switch {
			case !delivery.CanRetry(webhook.MaxRetryAttempts()):
				err = delivery.MarkDeadLetter(webhook.MaxRetryAttempts())
			case retryDue(delivery, webhook, now):
				err = delivery.RetryDelivery()
			default:
				continue
			}
			if err == nil {
				err = uc.deliveries.Update(ctx, delivery)
			}
			uc.item(c, "dispatch_retry", delivery.ID(), err)
		}
		return nil
	})
}

// RouteClassified retries routing for documents that stayed Classified.
func (uc *SweepUseCase) RouteClassified(ctx context.Context) (SweepReport, error) {
	return uc.run(ctx, SweepRoute, func(ctx context.Context, tenant *domain.Tenant, c *sweepCounters) error {
		docs, err := uc.docs.ListByStatus(ctx, tenant.ID(), domain.StatusClassified, uc.cfg.RouteBatchSize)
		if err != nil {
			return fmt.Errorf("list classified documents: %w", err)
		}
		for _, doc := range docs {
			routed, err := uc.route.RouteByID(ctx, tenant.ID(), doc.ID())
			if err != nil || routed {
				uc.item(c, "route", doc.ID(), err)
			}
		}
		return nil
	})
}

// Cleanup expires documents past the tenant retention window and deletes
// their content. A failed blob delete does not undo the expiry.
func (uc *SweepUseCase) Cleanup(ctx context.Context) (SweepReport, error) {
	return uc.run(ctx, SweepCleanup, func(ctx context.Context, tenant *domain.Tenant, c *sweepCounters) error {
		cutoff := tenant.Settings().RetentionCutoff(uc.now())
		docs, err := uc.docs.ListExpired(ctx, tenant.ID(), cutoff, uc.cfg.CleanupBatchSize)
		if err != nil {
			return fmt.Errorf("list expired documents: %w", err)
		}
		for _, doc := range docs {
			err := doc.MarkAsExpired()
			if err == nil {
				err = uc.docs.Update(ctx, doc)
			}
			uc.item(c, "expire", doc.ID(), err)
			if err != nil {
				continue
			}
			if err := uc.blobs.Delete(ctx, doc.Blob()); err != nil {
				uc.logger.Warn("blob_delete_failed", "document_id", doc.ID(), "blob", doc.Blob().String(), "error", err)
			}
		}
		return nil
	})
}

// Usage recomputes quota counters from the document store, which blocks or
// unblocks tenants, and writes the usage workbook.
func (uc *SweepUseCase) Usage(ctx context.Context) (SweepReport, error) {
	var (
		mu   sync.Mutex
		rows []ports.UsageReportRow
	)
	report, err := uc.run(ctx, SweepUsage, func(ctx context.Context, tenant *domain.Tenant, c *sweepCounters) error {
		usage, err := uc.docs.Usage(ctx, tenant.ID())
		if err != nil {
			return fmt.Errorf("measure usage: %w", err)
		}
		tenant.UpdateUsage(usage.Documents, usage.StorageBytes)
		err = uc.tenants.Save(ctx, tenant)
		uc.item(c, "usage", tenant.ID(), err)

		quota := tenant.Quota()
		mu.Lock()
		rows = append(rows, ports.UsageReportRow{
			TenantID:        tenant.ID(),
			TenantName:      tenant.Name(),
			Documents:       usage.Documents,
			MaxDocuments:    quota.MaxDocuments(),
			StorageBytes:    usage.StorageBytes,
			MaxStorageBytes: quota.MaxStorageBytes(),
			IsBlocked:       quota.IsBlocked(),
			BlockReason:     quota.BlockReason(),
		})
		mu.Unlock()
		return nil
	})
	if err != nil || report.Skipped || uc.reports == nil {
		return report, err
	}

	generatedAt := uc.now()
	slices.SortFunc(rows, func(a, b ports.UsageReportRow) int { return cmp.Compare(a.TenantID, b.TenantID) })
	workbook, err := uc.reports.WriteUsageReport(rows, generatedAt)
	if err != nil {
		return report, fmt.Errorf("write usage report: %w", err)
	}
	ref, err := domain.NewBlobReference(uc.cfg.ReportContainer, "usage-"+generatedAt.Format("20060102")+".xlsx")
	if err != nil {
		return report, err
	}
	if err := uc.blobs.Save(ctx, ref, bytes.NewReader(workbook), xlsxContentType); err != nil {
		return report, fmt.Errorf("save usage report: %w", err)
	}
	report.ReportBlob = ref.String()
	uc.logger.Info("usage_report_written", "blob", ref.String(), "tenants", len(rows))
	return report, nil
}

func (uc *SweepUseCase) run(ctx context.Context, name string, perTenant func(context.Context, *domain.Tenant, *sweepCounters) error) (SweepReport, error) {
	started := time.Now()
	report := SweepReport{Sweep: name}
	log := uc.logger.With("sweep", name)

	release, acquired, err := uc.lock.TryAcquire(ctx, "docflow.sweep."+name)
	if err != nil {
		log.Error("sweep_lock_failed", "error", err)
		return report, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !acquired {
		report.Skipped = true
		log.Info("sweep_skipped", "reason", "already running")
		return report, nil
	}
	defer release()

	tenants, err := uc.tenants.List(ctx)
	if err != nil {
		log.Error("sweep_list_tenants_failed", "error", err)
		return report, fmt.Errorf("list tenants: %w", err)
	}
	report.Tenants = len(tenants)

	var counters sweepCounters
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(uc.cfg.TenantConcurrency)
	for _, tenant := range tenants {
		group.Go(func() error {
			if err := perTenant(groupCtx, tenant, &counters); err != nil {
				return fmt.Errorf("tenant %s: %w", tenant.ID(), err)
			}
			return nil
		})
	}
	err = group.Wait()

	report.Processed = counters.processed.Load()
	report.Failed = counters.failed.Load()
	report.Duration = time.Since(started)
	if err != nil {
		log.Error("sweep_failed", "error", err, "processed", report.Processed, "failed", report.Failed)
		return report, err
	}
	log.Info("sweep_finished",
		"tenants", report.Tenants,
		"processed", report.Processed,
		"failed", report.Failed,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}

// item counts one unit of work. Failures are logged and never stop the batch.
func (uc *SweepUseCase) item(c *sweepCounters, action, id string, err error) {
	if err == nil {
		c.processed.Add(1)
		return
	}
	c.failed.Add(1)
	level := slog.LevelWarn
	if domain.IsKind(err, domain.ErrConcurrencyConflict) || errors.Is(err, context.Canceled) {
		level = slog.LevelInfo
	}
	uc.logger.Log(context.Background(), level, "sweep_item_failed", "action", action, "id", id, "error", err)
}
