package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/docflow/internal/core/domain"
)

func folderQueue(t *testing.T, dir string) *domain.RoutingQueue {
	t.Helper()
	folder, err := domain.NewFolderPath(dir)
	if err != nil {
		t.Fatalf("NewFolderPath() error = %v", err)
	}
	queue, err := domain.CreateFolderQueue("queue-1", "tenant-a", "Archive", "", folder)
	if err != nil {
		t.Fatalf("CreateFolderQueue() error = %v", err)
	}
	return queue
}

func TestRouteDocumentToFolder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "invoices", "2024")
	manager := NewRoutingManager(discardLogger())
	doc := testDocument(t, "invoice-2024.pdf", 3, "application/pdf")

	if !manager.RouteDocumentToQueue(context.Background(), doc, folderQueue(t, dir), strings.NewReader("pdf")) {
		t.Fatalf("expected routing to succeed")
	}
	raw, err := os.ReadFile(filepath.Join(dir, "invoice-2024.pdf"))
	if err != nil {
		t.Fatalf("read routed file: %v", err)
	}
	if string(raw) != "pdf" {
		t.Fatalf("unexpected routed content %q", raw)
	}
}

func TestRouteDocumentRefusesInactiveQueue(t *testing.T) {
	manager := NewRoutingManager(discardLogger())
	doc := testDocument(t, "a.pdf", 1, "application/pdf")
	queue := folderQueue(t, t.TempDir())
	queue.Deactivate()

	if manager.RouteDocumentToQueue(context.Background(), doc, queue, strings.NewReader("x")) {
		t.Fatalf("expected inactive queue to refuse routing")
	}
}

func TestRouteDocumentReturnsFalseOnIOError(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	manager := NewRoutingManager(discardLogger())
	doc := testDocument(t, "a.pdf", 1, "application/pdf")

	if manager.RouteDocumentToQueue(context.Background(), doc, folderQueue(t, filepath.Join(blocker, "sub")), strings.NewReader("x")) {
		t.Fatalf("expected routing under a regular file to fail")
	}
	if manager.RouteDocumentToQueue(context.Background(), doc, folderQueue(t, base), nil) {
		t.Fatalf("expected nil content to fail")
	}
}

func TestRouteDocumentWebhookReadiness(t *testing.T) {
	cfg, err := domain.NewWebhookConfiguration("https://hooks.example.com/docs", nil, 3, 60)
	if err != nil {
		t.Fatalf("NewWebhookConfiguration() error = %v", err)
	}
	queue, err := domain.CreateWebhookQueue("queue-2", "tenant-a", "Hook", "", cfg)
	if err != nil {
		t.Fatalf("CreateWebhookQueue() error = %v", err)
	}
	manager := NewRoutingManager(discardLogger())
	doc := testDocument(t, "a.pdf", 1, "application/pdf")

	if !manager.RouteDocumentToQueue(context.Background(), doc, queue, nil) {
		t.Fatalf("expected webhook queue to be ready")
	}
}

func TestRouteDocumentRecoversFromPanics(t *testing.T) {
	manager := NewRoutingManager(discardLogger())
	doc := testDocument(t, "a.pdf", 1, "application/pdf")

	if manager.RouteDocumentToQueue(context.Background(), doc, folderQueue(t, t.TempDir()), panicReader{}) {
		t.Fatalf("expected panic to be converted to false")
	}
}

func TestRouteDocumentRejectsMissingArguments(t *testing.T) {
	manager := NewRoutingManager(discardLogger())
	doc := testDocument(t, "a.pdf", 1, "application/pdf")

	if manager.RouteDocumentToQueue(context.Background(), doc, nil, nil) {
		t.Fatalf("expected false for nil queue")
	}
	if manager.RouteDocumentToQueue(context.Background(), nil, folderQueue(t, t.TempDir()), strings.NewReader("x")) {
		t.Fatalf("expected false for nil document")
	}
}

type panicReader struct{}

func (panicReader) Read([]byte) (int, error) { panic("boom") }
