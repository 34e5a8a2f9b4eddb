package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/core/service"
	"github.com/kirillkom/docflow/internal/infrastructure/repository/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type blobFake struct {
	mu        sync.Mutex
	objects   map[string][]byte
	saveErr   error
	deleteErr error
	deleted   []string
}

func newBlobFake() *blobFake {
	return &blobFake{objects: make(map[string][]byte)}
}

func (f *blobFake) Save(_ context.Context, ref domain.BlobReference, body io.Reader, _ string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.objects[ref.String()] = raw
	f.mu.Unlock()
	return nil
}

func (f *blobFake) Open(_ context.Context, ref domain.BlobReference) (io.ReadCloser, error) {
	f.mu.Lock()
	raw, ok := f.objects[ref.String()]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("blob %s not found", ref)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *blobFake) Delete(_ context.Context, ref domain.BlobReference) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref.String())
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, ref.String())
	return nil
}

func (f *blobFake) has(ref string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[ref]
	return ok
}

// extractorFake returns the blob content as text.
type extractorFake struct{}

func (extractorFake) ExtractText(_ context.Context, _ domain.MimeType, body io.Reader) string {
	raw, err := io.ReadAll(body)
	if err != nil {
		return ""
	}
	return string(raw)
}

type pageCounterFake struct {
	pages int
	err   error
}

func (f pageCounterFake) CountPages(context.Context, domain.MimeType, io.ReadSeeker) (int, error) {
	return f.pages, f.err
}

type oracleFake struct {
	suggestion *domain.AiSuggestion
	err        error
	calls      int
	lastInput  ports.SuggestionInput
}

func (f *oracleFake) Suggest(_ context.Context, input ports.SuggestionInput) (*domain.AiSuggestion, error) {
	f.calls++
	f.lastInput = input
	return f.suggestion, f.err
}

type sentWebhook struct {
	url     string
	headers map[string]string
	body    []byte
}

type senderFake struct {
	mu   sync.Mutex
	err  error
	sent []sentWebhook
}

func (f *senderFake) Send(_ context.Context, url string, headers map[string]string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentWebhook{url: url, headers: headers, body: body})
	return f.err
}

type publisherFake struct {
	published []domain.Event
	failAt    int
}

func (f *publisherFake) Publish(_ context.Context, event domain.Event) error {
	if f.failAt > 0 && len(f.published)+1 == f.failAt {
		return errors.New("bus unavailable")
	}
	f.published = append(f.published, event)
	return nil
}

type reportWriterFake struct {
	rows []ports.UsageReportRow
}

func (f *reportWriterFake) WriteUsageReport(rows []ports.UsageReportRow, _ time.Time) ([]byte, error) {
	f.rows = rows
	return []byte("xlsx"), nil
}

// harness wires every use case over one in-memory store.
type harness struct {
	store    *memory.Store
	blobs    *blobFake
	oracle   *oracleFake
	sender   *senderFake
	ingest   *IngestDocumentUseCase
	classify *ClassifyDocumentUseCase
	route    *RouteDocumentUseCase
	dispatch *DispatchWebhookUseCase
	docs     *DocumentUseCase
	rules    *RuleUseCase
	queues   *QueueUseCase
	tenants  *TenantUseCase
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	oracle bool
}

func withOracle() harnessOption {
	return func(c *harnessConfig) { c.oracle = true }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	var cfg harnessConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := discardLogger()
	store := memory.NewStore()
	h := &harness{
		store:  store,
		blobs:  newBlobFake(),
		oracle: &oracleFake{},
		sender: &senderFake{},
	}
	var oracle ports.ClassificationOracle
	if cfg.oracle {
		oracle = h.oracle
	}
	minConfidence, err := domain.NewConfidenceScore(0.7)
	if err != nil {
		t.Fatalf("confidence: %v", err)
	}
	evaluator := service.NewRuleEvaluator(logger, 0)

	h.ingest = NewIngestDocumentUseCase(store.Documents(), store.Tenants(), h.blobs, pageCounterFake{pages: 3}, "", logger)
	h.classify = NewClassifyDocumentUseCase(store.Documents(), store.Rules(), store.Queues(), h.blobs, extractorFake{}, oracle, evaluator, minConfidence, logger)
	h.route = NewRouteDocumentUseCase(store.Documents(), store.Rules(), store.Queues(), store.Deliveries(), h.blobs, service.NewRoutingManager(logger), logger)
	h.dispatch = NewDispatchWebhookUseCase(store.Deliveries(), store.Documents(), store.Queues(), store.Tenants(), h.sender, service.NewSigner(), "global-secret", logger)
	h.docs = NewDocumentUseCase(store.Documents(), store.Deliveries(), store.Queues(), h.blobs, extractorFake{}, oracle, minConfidence, logger)
	h.rules = NewRuleUseCase(store.Rules(), store.Queues(), evaluator, logger)
	h.queues = NewQueueUseCase(store.Queues(), logger)
	h.tenants = NewTenantUseCase(store.Tenants(), store.Documents())
	return h
}

func (h *harness) upload(t *testing.T, tenantID, fileName, mimeType, body string) *domain.Document {
	t.Helper()
	doc, err := h.ingest.Upload(context.Background(), ports.UploadInput{
		TenantID: tenantID,
		FileName: fileName,
		MimeType: mimeType,
		Body:     bytes.NewBufferString(body),
	})
	if err != nil {
		t.Fatalf("upload %s: %v", fileName, err)
	}
	return doc
}

func (h *harness) createRule(t *testing.T, tenantID string, input ports.RuleInput) *domain.ClassificationRule {
	t.Helper()
	rule, err := h.rules.Create(context.Background(), tenantID, input)
	if err != nil {
		t.Fatalf("create rule %s: %v", input.Name, err)
	}
	return rule
}

func (h *harness) webhookQueue(t *testing.T, tenantID string, maxRetries int) *domain.RoutingQueue {
	t.Helper()
	queue, err := h.queues.Create(context.Background(), tenantID, ports.QueueInput{
		Name: "erp",
		Type: "webhook",
		Webhook: &ports.WebhookInput{
			URL:               "https://erp.example.com/hooks/docs",
			Headers:           map[string]string{"Authorization": "Bearer token"},
			MaxRetryAttempts:  &maxRetries,
			RetryDelaySeconds: 1,
		},
	})
	if err != nil {
		t.Fatalf("create webhook queue: %v", err)
	}
	return queue
}

func (h *harness) document(t *testing.T, tenantID, id string) *domain.Document {
	t.Helper()
	doc, err := h.store.Documents().GetByID(context.Background(), tenantID, id)
	if err != nil {
		t.Fatalf("get document %s: %v", id, err)
	}
	return doc
}

func invoiceRule(targetQueueID string) ports.RuleInput {
	return ports.RuleInput{
		Name:     "invoices",
		Priority: 10,
		Conditions: []domain.ConditionSnapshot{
			{Type: "FileNameRegex", Pattern: "invoice.*"},
			{Type: "FileSize", Pattern: "0-2000000"},
		},
		ApplyTags:     []string{"Invoice"},
		TargetQueueID: targetQueueID,
	}
}
