package azureblob

import (
	"context"
	"strings"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/kirillkom/docflow/internal/core/domain"
)

const devConnectionString = "DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;" +
	"AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;" +
	"BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;"

func TestNewRequiresConnectionString(t *testing.T) {
	if _, err := New("  ", nil); err == nil {
		t.Fatalf("expected error for empty connection string")
	}
	if _, err := New(devConnectionString, nil); err != nil {
		t.Fatalf("expected valid client, got %v", err)
	}
}

func TestRejectsTraversal(t *testing.T) {
	store, err := New(devConnectionString, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ref, err := domain.NewBlobReference("documents", "../secrets.pdf")
	if err != nil {
		t.Fatalf("ref: %v", err)
	}
	err = store.Save(context.Background(), ref, strings.NewReader("x"), "application/pdf")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := store.Open(context.Background(), ref); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input on open, got %v", err)
	}
}

func TestClassifyMarksServerErrorsTemporary(t *testing.T) {
	ref, err := domain.NewBlobReference("documents", "acme/a.pdf")
	if err != nil {
		t.Fatalf("ref: %v", err)
	}
	if err := classify("upload blob", ref, &azcore.ResponseError{StatusCode: 503}); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error for 503, got %v", err)
	}
	if err := classify("upload blob", ref, &azcore.ResponseError{StatusCode: 403}); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("403 must not be temporary: %v", err)
	}
}
