package httpadapter

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/kirillkom/docflow/internal/config"
	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/core/service"
)

func testDocument(t *testing.T, id string) *domain.Document {
	t.Helper()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	doc, err := domain.RestoreDocument(domain.DocumentSnapshot{
		ID:            id,
		TenantID:      "acme",
		FileName:      "invoice.pdf",
		SizeBytes:     5,
		MimeType:      "application/pdf",
		BlobContainer: "documents",
		BlobName:      "acme/" + id + "_invoice.pdf",
		Status:        domain.StatusPending,
		Version:       1,
		UploadedAt:    now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("restore document: %v", err)
	}
	return doc
}

type ingestFake struct {
	doc   *domain.Document
	err   error
	input ports.UploadInput
	body  []byte
}

func (f *ingestFake) Upload(_ context.Context, input ports.UploadInput) (*domain.Document, error) {
	raw, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.input = input
	f.body = raw
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

// documentsFake embeds the port so tests only implement what they call.
type documentsFake struct {
	ports.DocumentService
	doc           *domain.Document
	err           error
	filter        domain.DocumentFilter
	page          domain.PageRequest
	minConfidence float64
}

func (f *documentsFake) Get(context.Context, string, string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

func (f *documentsFake) Search(_ context.Context, _ string, filter domain.DocumentFilter, page domain.PageRequest) (domain.PageResult[*domain.Document], error) {
	f.filter = filter
	f.page = page
	if f.err != nil {
		return domain.PageResult[*domain.Document]{}, f.err
	}
	return domain.NewPageResult([]*domain.Document{f.doc}, 1, page), nil
}

func (f *documentsFake) ApplySuggestion(_ context.Context, _, _ string, minConfidence float64) (*domain.Document, int, error) {
	f.minConfidence = minConfidence
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.doc, 2, nil
}

type rulesFake struct {
	ports.RuleService
	err error
}

func (f rulesFake) Update(context.Context, string, string, ports.RuleInput) (*domain.ClassificationRule, error) {
	return nil, f.err
}

func (f rulesFake) DryRun(_ context.Context, _ string, input ports.DryRunInput) ([]service.DryRunResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []service.DryRunResult{{RuleID: "r1", RuleName: input.FileName, Matched: true}}, nil
}

type verifierFake struct{}

func (verifierFake) VerifySignature(payload, signature, secret string) bool {
	return payload == "body" && signature == "sha256=ok" && secret == "shh"
}

type routerOptions struct {
	cfg       config.Config
	ingest    *ingestFake
	documents *documentsFake
	rules     rulesFake
}

func newTestHandler(t *testing.T, opts routerOptions) http.Handler {
	t.Helper()
	if opts.ingest == nil {
		opts.ingest = &ingestFake{doc: testDocument(t, "doc-1")}
	}
	if opts.documents == nil {
		opts.documents = &documentsFake{doc: testDocument(t, "doc-1")}
	}
	return NewRouter(opts.cfg, Services{
		Ingest:    opts.ingest,
		Documents: opts.documents,
		Rules:     opts.rules,
		Verifier:  verifierFake{},
	}).Handler()
}
