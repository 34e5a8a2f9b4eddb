package seed

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/docflow/internal/core/service"
	"github.com/kirillkom/docflow/internal/core/usecase"
	"github.com/kirillkom/docflow/internal/infrastructure/repository/memory"
)

const sample = `
tenants:
  - id: acme
    name: Acme Corp
    max_documents: 500
    retention_days: 45
    webhook_signature_key: 0123456789abcdef0123456789abcdef
    queues:
      - name: Accounts payable
        type: webhook
        webhook:
          url: https://erp.example.com/hooks/ap
          max_retry_attempts: 5
          retry_delay_seconds: 30
      - name: Archive
        type: folder
        folder_path: /tmp/docflow-archive
    rules:
      - name: invoices
        priority: 10
        conditions:
          - type: FileNameRegex
            pattern: "invoice.*"
        apply_tags: [Invoice]
        target_queue: accounts payable
      - name: scans
        priority: 20
        conditions:
          - type: MimeType
            pattern: image/tiff
        apply_tags: [Scan]
        inactive: true
`

func newLoader(store *memory.Store) *Loader {
	queues := usecase.NewQueueUseCase(store.Queues(), nil)
	rules := usecase.NewRuleUseCase(store.Rules(), store.Queues(), service.NewRuleEvaluator(nil, time.Second), nil)
	return NewLoader(store.Tenants(), queues, rules, nil)
}

func TestApplyIsIdempotent(t *testing.T) {
	file, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	store := memory.NewStore()
	loader := newLoader(store)
	ctx := context.Background()

	first, err := loader.Apply(ctx, file)
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if first != (Summary{Tenants: 1, Queues: 2, Rules: 2}) {
		t.Fatalf("unexpected first summary %+v", first)
	}
	second, err := loader.Apply(ctx, file)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if second != (Summary{}) {
		t.Fatalf("second apply must create nothing, got %+v", second)
	}

	tenant, err := store.Tenants().GetByID(ctx, "acme")
	if err != nil {
		t.Fatalf("tenant: %v", err)
	}
	if tenant.Name() != "Acme Corp" || tenant.Quota().MaxDocuments() != 500 || tenant.Settings().RetentionDays() != 45 {
		t.Fatalf("unexpected tenant %+v", tenant.Snapshot())
	}

	rules, err := store.Rules().List(ctx, "acme", false)
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	queues, _ := store.Queues().List(ctx, "acme")
	var apID string
	for _, q := range queues {
		if q.Name() == "Accounts payable" {
			apID = q.ID()
		}
	}
	for _, r := range rules {
		switch r.Name() {
		case "invoices":
			if r.TargetQueueID() != apID || apID == "" {
				t.Fatalf("invoice rule must target the AP queue, got %q", r.TargetQueueID())
			}
		case "scans":
			if r.IsActive() {
				t.Fatalf("scans rule should be inactive")
			}
		}
	}
}

func TestApplyRejectsUnknownTargetQueue(t *testing.T) {
	file, err := Parse(strings.NewReader(`
tenants:
  - id: acme
    rules:
      - name: orphan
        priority: 1
        conditions: [{type: FileNameRegex, pattern: "x"}]
        apply_tags: [X]
        target_queue: nowhere
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, err = newLoader(memory.NewStore()).Apply(context.Background(), file)
	if err == nil || !strings.Contains(err.Error(), "unknown target queue") {
		t.Fatalf("expected unknown queue error, got %v", err)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	if _, err := Parse(strings.NewReader("tenants:\n  - id: acme\n    colour: blue\n")); err == nil {
		t.Fatalf("expected error for unknown field")
	}
	if _, err := Parse(strings.NewReader("tenants:\n  - name: nameless\n")); err == nil {
		t.Fatalf("expected error for missing id")
	}
	file, err := Parse(strings.NewReader(""))
	if err != nil || len(file.Tenants) != 0 {
		t.Fatalf("empty seed should parse, got %v", err)
	}
}
