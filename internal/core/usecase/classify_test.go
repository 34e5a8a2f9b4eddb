package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

func TestClassifyByIDAppliesMatchingRule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rule := h.createRule(t, "acme", invoiceRule(""))
	doc := h.upload(t, "acme", "invoice-2024.pdf", "application/pdf", "total due")

	if err := h.classify.ClassifyByID(ctx, "acme", doc.ID()); err != nil {
		t.Fatalf("classify: %v", err)
	}

	got := h.document(t, "acme", doc.ID())
	if got.Status() != domain.StatusClassified {
		t.Fatalf("expected classified, got %s (%s)", got.Status(), got.LastError())
	}
	if names := got.TagNames(); len(names) != 1 || names[0] != "Invoice" {
		t.Fatalf("unexpected tags: %v", names)
	}
	history := got.History()
	if len(history) != 1 || history[0].RuleID() != rule.ID() {
		t.Fatalf("expected one history entry for rule %s, got %+v", rule.ID(), history)
	}
}

func TestClassifyByIDTextContentRule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createRule(t, "acme", ports.RuleInput{
		Name:       "contracts",
		Priority:   5,
		Conditions: []domain.ConditionSnapshot{{Type: "TextContent", Pattern: "hereby agree"}},
		ApplyTags:  []string{"Contract"},
	})
	doc := h.upload(t, "acme", "scan.png", "image/png", "The parties HEREBY AGREE to the terms")

	if err := h.classify.ClassifyByID(ctx, "acme", doc.ID()); err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got := h.document(t, "acme", doc.ID()); !got.HasTag(domain.MustTagName("contract")) {
		t.Fatalf("expected Contract tag, got %v", got.TagNames())
	}
}

func TestClassifyByIDNoMatchRecordsFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createRule(t, "acme", invoiceRule(""))
	doc := h.upload(t, "acme", "holiday.png", "image/png", "beach")

	if err := h.classify.ClassifyByID(ctx, "acme", doc.ID()); err != nil {
		t.Fatalf("classify: %v", err)
	}

	got := h.document(t, "acme", doc.ID())
	if got.Status() != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status())
	}
	if got.LastError().String() != noRuleMatchedMessage {
		t.Fatalf("unexpected last error: %q", got.LastError())
	}
	if got.RetryCount() != 1 {
		t.Fatalf("expected retry count 1, got %d", got.RetryCount())
	}
}

func TestClassifyByIDSkipsNonPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createRule(t, "acme", invoiceRule(""))
	doc := h.upload(t, "acme", "invoice-1.pdf", "application/pdf", "x")

	if err := h.classify.ClassifyByID(ctx, "acme", doc.ID()); err != nil {
		t.Fatalf("first classify: %v", err)
	}
	before := h.document(t, "acme", doc.ID()).Version()
	if err := h.classify.ClassifyByID(ctx, "acme", doc.ID()); err != nil {
		t.Fatalf("second classify: %v", err)
	}
	if after := h.document(t, "acme", doc.ID()).Version(); after != before {
		t.Fatalf("redelivered classification must not write, version %d -> %d", before, after)
	}
}

func TestClassifyByIDUnknownDocument(t *testing.T) {
	h := newHarness(t)
	err := h.classify.ClassifyByID(context.Background(), "acme", "missing")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClassifyByIDFallsBackToOracle(t *testing.T) {
	h := newHarness(t, withOracle())
	ctx := context.Background()
	queue := h.webhookQueue(t, "acme", 3)

	suggestion, err := domain.NewAiSuggestion([]domain.SuggestedTag{
		{TagName: domain.MustTagName("Receipt"), Confidence: mustConfidence(t, 0.9), Reasoning: "store name and totals"},
		{TagName: domain.MustTagName("Travel"), Confidence: mustConfidence(t, 0.4)},
	}, queue.ID(), mustConfidence(t, 0.85), "a receipt", time.Now())
	if err != nil {
		t.Fatalf("suggestion: %v", err)
	}
	h.oracle.suggestion = suggestion

	doc := h.upload(t, "acme", "scan-001.png", "image/png", "TOTAL 12.50 EUR")
	if err := h.classify.ClassifyByID(ctx, "acme", doc.ID()); err != nil {
		t.Fatalf("classify: %v", err)
	}

	got := h.document(t, "acme", doc.ID())
	if got.Status() != domain.StatusClassified {
		t.Fatalf("expected classified, got %s (%s)", got.Status(), got.LastError())
	}
	tags := got.Tags()
	if len(tags) != 1 || tags[0].Source() != domain.TagSourceAiApplied || tags[0].Name().String() != "Receipt" {
		t.Fatalf("expected only the confident tag as AiApplied, got %+v", got.TagNames())
	}
	if got.AiSuggestion() == nil {
		t.Fatalf("suggestion should be stored on the document")
	}
	if h.oracle.lastInput.Text != "TOTAL 12.50 EUR" {
		t.Fatalf("oracle should receive extracted text, got %q", h.oracle.lastInput.Text)
	}
	if len(h.oracle.lastInput.Queues) != 1 || h.oracle.lastInput.Queues[0].ID != queue.ID() {
		t.Fatalf("oracle should see active queues, got %+v", h.oracle.lastInput.Queues)
	}
}

func TestClassifyByIDOracleWithoutConfidentTags(t *testing.T) {
	h := newHarness(t, withOracle())
	suggestion, err := domain.NewAiSuggestion([]domain.SuggestedTag{
		{TagName: domain.MustTagName("Maybe"), Confidence: mustConfidence(t, 0.3)},
	}, "", mustConfidence(t, 0.3), "", time.Now())
	if err != nil {
		t.Fatalf("suggestion: %v", err)
	}
	h.oracle.suggestion = suggestion

	doc := h.upload(t, "acme", "scan.png", "image/png", "?")
	if err := h.classify.ClassifyByID(context.Background(), "acme", doc.ID()); err != nil {
		t.Fatalf("classify: %v", err)
	}
	got := h.document(t, "acme", doc.ID())
	if got.Status() != domain.StatusFailed || got.AiSuggestion() == nil {
		t.Fatalf("expected failed with stored suggestion, got %s", got.Status())
	}
}

func TestClassifyByIDOracleErrorStillFails(t *testing.T) {
	h := newHarness(t, withOracle())
	h.oracle.err = errors.New("model offline")

	doc := h.upload(t, "acme", "scan.png", "image/png", "?")
	if err := h.classify.ClassifyByID(context.Background(), "acme", doc.ID()); err != nil {
		t.Fatalf("classify: %v", err)
	}
	got := h.document(t, "acme", doc.ID())
	if got.Status() != domain.StatusFailed || got.LastError().String() != noRuleMatchedMessage {
		t.Fatalf("expected no-match failure, got %s %q", got.Status(), got.LastError())
	}
	if h.oracle.calls != 1 {
		t.Fatalf("expected one oracle call, got %d", h.oracle.calls)
	}
}

func mustConfidence(t *testing.T, value float64) domain.ConfidenceScore {
	t.Helper()
	score, err := domain.NewConfidenceScore(value)
	if err != nil {
		t.Fatalf("confidence %v: %v", value, err)
	}
	return score
}
