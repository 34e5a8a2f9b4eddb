package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/docflow/internal/core/domain"
)

func mustRef(t *testing.T, container, blob string) domain.BlobReference {
	t.Helper()
	ref, err := domain.NewBlobReference(container, blob)
	if err != nil {
		t.Fatalf("blob reference: %v", err)
	}
	return ref
}

func TestSaveOpenDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	ref := mustRef(t, "documents", "acme/doc-1_invoice.pdf")

	if err := store.Save(ctx, ref, strings.NewReader("%PDF-1.4"), "application/pdf"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "documents", "acme", "doc-1_invoice.pdf")); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}

	rc, err := store.Open(ctx, ref)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "%PDF-1.4" {
		t.Fatalf("unexpected content %q", data)
	}

	if err := store.Delete(ctx, ref); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, ref); err != nil {
		t.Fatalf("second delete must be a no-op: %v", err)
	}
	if _, err := store.Open(ctx, ref); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestRejectsEscapingReferences(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, ref := range []domain.BlobReference{
		mustRef(t, "documents", "../../etc/passwd"),
		mustRef(t, "..", "x.pdf"),
		mustRef(t, "a/b", "x.pdf"),
	} {
		err := store.Save(context.Background(), ref, strings.NewReader("x"), "")
		if !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", ref, err)
		}
	}
}
