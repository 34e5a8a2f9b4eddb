package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

const DefaultDocumentContainer = "documents"

type IngestDocumentUseCase struct {
	docs      ports.DocumentRepository
	tenants   ports.TenantRepository
	blobs     ports.BlobStore
	pages     ports.PageCounter
	container string
	logger    *slog.Logger
}

// NewIngestDocumentUseCase wires the upload path. pages may be nil.
func NewIngestDocumentUseCase(
	docs ports.DocumentRepository,
	tenants ports.TenantRepository,
	blobs ports.BlobStore,
	pages ports.PageCounter,
	container string,
	logger *slog.Logger,
) *IngestDocumentUseCase {
	if strings.TrimSpace(container) == "" {
		container = DefaultDocumentContainer
	}
	return &IngestDocumentUseCase{
		docs:      docs,
		tenants:   tenants,
		blobs:     blobs,
		pages:     pages,
		container: container,
		logger:    componentLogger(logger, "ingest"),
	}
}

func (uc *IngestDocumentUseCase) Upload(ctx context.Context, input ports.UploadInput) (*domain.Document, error) {
	fileName, err := domain.NewFileName(input.FileName)
	if err != nil {
		return nil, err
	}
	mimeType, err := domain.NewMimeType(input.MimeType)
	if err != nil {
		return nil, err
	}
	if input.Body == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("file body is required"))
	}
	raw, err := io.ReadAll(io.LimitReader(input.Body, domain.MaxFileSizeBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload body: %w", err)
	}
	size, err := domain.NewFileSize(int64(len(raw)))
	if err != nil {
		return nil, err
	}

	tenant, err := loadOrProvisionTenant(ctx, uc.tenants, input.TenantID)
	if err != nil {
		return nil, err
	}
	if err := tenant.CheckUpload(size); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	blob, err := domain.NewBlobReference(uc.container, fmt.Sprintf("%s/%s_%s", tenant.ID(), id, sanitizeFilename(fileName.String())))
	if err != nil {
		return nil, err
	}
	doc, err := domain.RegisterUpload(id, tenant.ID(), fileName, size, mimeType, blob)
	if err != nil {
		return nil, err
	}
	uc.countPages(ctx, doc, raw)

	if err := uc.blobs.Save(ctx, blob, bytes.NewReader(raw), mimeType.String()); err != nil {
		return nil, fmt.Errorf("save to blob store: %w", err)
	}
	if err := uc.docs.Create(ctx, doc); err != nil {
		if delErr := uc.blobs.Delete(ctx, blob); delErr != nil {
			uc.logger.Warn("orphan_blob_cleanup_failed", "blob", blob.String(), "error", delErr)
		}
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	tenant.RecordUpload(size)
	if err := uc.tenants.Save(ctx, tenant); err != nil {
		// The usage sweep recomputes counters from the document store.
		uc.logger.Warn("tenant_usage_update_failed", "tenant_id", tenant.ID(), "error", err)
	}

	uc.logger.Info("document_uploaded",
		"tenant_id", tenant.ID(),
		"document_id", doc.ID(),
		"size_bytes", size.Bytes(),
		"mime_type", mimeType.String(),
	)
	return doc, nil
}

func (uc *IngestDocumentUseCase) countPages(ctx context.Context, doc *domain.Document, raw []byte) {
	if uc.pages == nil || !doc.MimeType().IsPDF() {
		return
	}
	pages, err := uc.pages.CountPages(ctx, doc.MimeType(), bytes.NewReader(raw))
	if err != nil {
		uc.logger.Warn("page_count_failed", "document_id", doc.ID(), "error", err)
		return
	}
	doc.SetPageCount(pages)
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}
