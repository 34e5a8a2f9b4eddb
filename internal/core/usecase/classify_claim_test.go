package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/core/service"
)

// flakyDocuments fails the Update call with the given 1-based index.
type flakyDocuments struct {
	ports.DocumentRepository
	failOn  int
	updates int
}

func (f *flakyDocuments) Update(ctx context.Context, doc *domain.Document) error {
	f.updates++
	if f.updates == f.failOn {
		return errors.New("db connection reset")
	}
	return f.DocumentRepository.Update(ctx, doc)
}

func TestClassifyByIDReleasesClaimWhenSaveFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createRule(t, "acme", invoiceRule(""))
	doc := h.upload(t, "acme", "invoice-9.pdf", "application/pdf", "x")

	logger := discardLogger()
	minConfidence, err := domain.NewConfidenceScore(0.7)
	if err != nil {
		t.Fatalf("confidence: %v", err)
	}
	docs := &flakyDocuments{DocumentRepository: h.store.Documents(), failOn: 2}
	classify := NewClassifyDocumentUseCase(docs, h.store.Rules(), h.store.Queues(), h.blobs, extractorFake{}, nil,
		service.NewRuleEvaluator(logger, 0), minConfidence, logger)

	if err := classify.ClassifyByID(ctx, "acme", doc.ID()); err == nil {
		t.Fatalf("expected save error")
	}
	got := h.document(t, "acme", doc.ID())
	if got.Status() != domain.StatusFailed {
		t.Fatalf("expected failed after interrupted classification, got %s", got.Status())
	}

	retried, err := h.docs.Retry(ctx, "acme", doc.ID())
	if err != nil {
		t.Fatalf("operator retry: %v", err)
	}
	if retried.Status() != domain.StatusPending {
		t.Fatalf("expected pending after retry, got %s", retried.Status())
	}
	if err := h.classify.ClassifyByID(ctx, "acme", doc.ID()); err != nil {
		t.Fatalf("reclassify: %v", err)
	}
	if got := h.document(t, "acme", doc.ID()); got.Status() != domain.StatusClassified {
		t.Fatalf("expected classified, got %s", got.Status())
	}
}

func TestSweepReclaimsStaleClassifyingDocuments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createRule(t, "acme", invoiceRule(""))
	stale := h.upload(t, "acme", "invoice-1.pdf", "application/pdf", "x")

	// A worker claimed the document and died before saving the result.
	claimed := h.document(t, "acme", stale.ID())
	if err := claimed.BeginClassification(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := h.store.Documents().Update(ctx, claimed); err != nil {
		t.Fatalf("save claim: %v", err)
	}

	sweep := newSweep(h, SweepConfig{ClassifyLease: time.Minute, MaxRetries: 3}, nil)
	if _, err := sweep.Run(ctx, SweepClassify); err != nil {
		t.Fatalf("sweep within lease: %v", err)
	}
	if got := h.document(t, "acme", stale.ID()); got.Status() != domain.StatusClassifying {
		t.Fatalf("claim inside the lease must be left alone, got %s", got.Status())
	}

	sweep.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	report, err := sweep.Run(ctx, SweepClassify)
	if err != nil {
		t.Fatalf("sweep after lease: %v", err)
	}
	if report.Processed != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if got := h.document(t, "acme", stale.ID()); got.Status() != domain.StatusFailed {
		t.Fatalf("expected failed after lease expiry, got %s", got.Status())
	}

	if _, err := sweep.Run(ctx, SweepRetry); err != nil {
		t.Fatalf("retry sweep: %v", err)
	}
	if got := h.document(t, "acme", stale.ID()); got.Status() != domain.StatusPending {
		t.Fatalf("expected pending after retry sweep, got %s", got.Status())
	}
}
