package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
)

func newSweep(h *harness, cfg SweepConfig, reports *reportWriterFake) *SweepUseCase {
	uc := NewSweepUseCase(cfg, h.store.Tenants(), h.store.Documents(), h.store.Queues(), h.store.Deliveries(),
		h.blobs, h.store.SweepLock(), h.classify, h.route, h.dispatch, nil, discardLogger())
	if reports != nil {
		uc.reports = reports
	}
	return uc
}

func TestSweepClassifyPendingAcrossTenants(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createRule(t, "acme", invoiceRule(""))
	h.createRule(t, "globex", invoiceRule(""))
	a := h.upload(t, "acme", "invoice-a.pdf", "application/pdf", "x")
	b := h.upload(t, "globex", "invoice-b.pdf", "application/pdf", "x")
	c := h.upload(t, "globex", "notes.pdf", "application/pdf", "x")

	report, err := newSweep(h, SweepConfig{}, nil).Run(ctx, SweepClassify)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Tenants != 2 || report.Processed != 3 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if h.document(t, "acme", a.ID()).Status() != domain.StatusClassified ||
		h.document(t, "globex", b.ID()).Status() != domain.StatusClassified {
		t.Fatalf("invoices should be classified")
	}
	if h.document(t, "globex", c.ID()).Status() != domain.StatusFailed {
		t.Fatalf("unmatched document should fail")
	}
}

func TestSweepRetryFailedDeadLettersExhausted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, "acme", "notes.pdf", "application/pdf", "x")
	sweep := newSweep(h, SweepConfig{MaxRetries: 2}, nil)

	for round := 1; round <= 2; round++ {
		if _, err := sweep.ClassifyPending(ctx); err != nil {
			t.Fatalf("classify round %d: %v", round, err)
		}
		if _, err := sweep.RetryFailed(ctx); err != nil {
			t.Fatalf("retry round %d: %v", round, err)
		}
	}

	got := h.document(t, "acme", doc.ID())
	if got.Status() != domain.StatusDeadLetter || got.RetryCount() != 2 {
		t.Fatalf("expected dead letter after 2 failures, got %s/%d", got.Status(), got.RetryCount())
	}
}

func TestSweepSkipsWhenLocked(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	release, ok, err := h.store.SweepLock().TryAcquire(ctx, "docflow.sweep."+SweepRoute)
	if err != nil || !ok {
		t.Fatalf("acquire: %v %v", ok, err)
	}
	defer release()

	report, err := newSweep(h, SweepConfig{}, nil).RouteClassified(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !report.Skipped {
		t.Fatalf("expected skipped report, got %+v", report)
	}
}

func TestSweepRouteClassified(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	queue := h.webhookQueue(t, "acme", 3)
	h.createRule(t, "acme", invoiceRule(queue.ID()))
	doc := classifiedDocument(t, h, "invoice-11.pdf", "x")

	report, err := newSweep(h, SweepConfig{}, nil).RouteClassified(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Processed != 1 {
		t.Fatalf("expected one routed document, got %+v", report)
	}
	if got := h.document(t, "acme", doc.ID()); got.Status() != domain.StatusRouted {
		t.Fatalf("expected routed, got %s", got.Status())
	}
}

func TestSweepDispatchWebhooks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, delivery := webhookRoutedDocument(t, h, 2)
	h.sender.err = errors.New("connection refused")
	sweep := newSweep(h, SweepConfig{}, nil)

	if _, err := sweep.DispatchWebhooks(ctx); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	got, _ := h.store.Deliveries().GetByID(ctx, "acme", delivery.ID())
	if got.Status() != domain.DeliveryFailed || got.AttemptCount() != 1 {
		t.Fatalf("expected one failed attempt, got %s/%d", got.Status(), got.AttemptCount())
	}

	sweep.now = func() time.Time { return time.Now().UTC().Add(2 * time.Second) }
	if _, err := sweep.DispatchWebhooks(ctx); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	got, _ = h.store.Deliveries().GetByID(ctx, "acme", delivery.ID())
	if got.Status() != domain.DeliveryPending {
		t.Fatalf("due delivery should be rescheduled, got %s", got.Status())
	}

	sweep.now = func() time.Time { return time.Now().UTC().Add(time.Minute) }
	if _, err := sweep.DispatchWebhooks(ctx); err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	got, _ = h.store.Deliveries().GetByID(ctx, "acme", delivery.ID())
	if got.Status() != domain.DeliveryDeadLetter || got.AttemptCount() != 2 {
		t.Fatalf("expected dead letter after budget, got %s/%d", got.Status(), got.AttemptCount())
	}
}

func TestSweepCleanupExpiresAndDeletesBlobs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, "acme", "old.pdf", "application/pdf", "x")
	h.blobs.deleteErr = errors.New("blob locked")
	sweep := newSweep(h, SweepConfig{}, nil)

	report, err := sweep.Cleanup(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if report.Processed != 0 {
		t.Fatalf("fresh documents must not expire, got %+v", report)
	}

	sweep.now = func() time.Time { return time.Now().UTC().AddDate(0, 0, domain.DefaultRetentionDays+1) }
	report, err = sweep.Cleanup(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if report.Processed != 1 {
		t.Fatalf("expected one expired document, got %+v", report)
	}
	if got := h.document(t, "acme", doc.ID()); got.Status() != domain.StatusExpired {
		t.Fatalf("expected expired despite blob error, got %s", got.Status())
	}
	if len(h.blobs.deleted) != 1 || h.blobs.deleted[0] != doc.Blob().String() {
		t.Fatalf("expected blob delete attempt, got %v", h.blobs.deleted)
	}
}

func TestSweepUsageBlocksAndReports(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.upload(t, "acme", "a.pdf", "application/pdf", "x")
	h.upload(t, "acme", "b.pdf", "application/pdf", "y")

	tenant, err := h.store.Tenants().GetByID(ctx, "acme")
	if err != nil {
		t.Fatalf("get tenant: %v", err)
	}
	if err := tenant.UpdateLimits(2, 1<<20); err != nil {
		t.Fatalf("limits: %v", err)
	}
	if err := h.store.Tenants().Save(ctx, tenant); err != nil {
		t.Fatalf("save: %v", err)
	}

	writer := &reportWriterFake{}
	sweep := newSweep(h, SweepConfig{}, writer)
	fixed := time.Date(2026, 3, 9, 4, 0, 0, 0, time.UTC)
	sweep.now = func() time.Time { return fixed }

	report, err := sweep.Usage(ctx)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if report.ReportBlob != "reports/usage-20260309.xlsx" || !h.blobs.has(report.ReportBlob) {
		t.Fatalf("expected workbook in blob store, got %q", report.ReportBlob)
	}
	if len(writer.rows) != 1 || writer.rows[0].Documents != 2 || !writer.rows[0].IsBlocked {
		t.Fatalf("unexpected report rows: %+v", writer.rows)
	}

	tenant, _ = h.store.Tenants().GetByID(ctx, "acme")
	if !tenant.Quota().IsBlocked() {
		t.Fatalf("tenant at its document limit should be blocked")
	}
}

func TestSweepRunUnknownName(t *testing.T) {
	h := newHarness(t)
	if _, err := newSweep(h, SweepConfig{}, nil).Run(context.Background(), "vacuum"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
