// Package azureblob stores document content in Azure Blob Storage. The
// reference container maps to an Azure container created on first write.
package azureblob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type Storage struct {
	client *azblob.Client
	logger *slog.Logger

	mu    sync.Mutex
	ready map[string]bool
}

func New(connectionString string, logger *slog.Logger) (*Storage, error) {
	if strings.TrimSpace(connectionString) == "" {
		return nil, fmt.Errorf("azure blob connection string is required")
	}
	client, err := azblob.NewClientFromConnectionString(connectionString, &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry:     policy.RetryOptions{MaxRetries: 3},
			Telemetry: policy.TelemetryOptions{ApplicationID: "docflow"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Storage{
		client: client,
		logger: logger.With("component", "azure_blob"),
		ready:  make(map[string]bool),
	}, nil
}

func (s *Storage) Save(ctx context.Context, ref domain.BlobReference, body io.Reader, contentType string) error {
	if err := validate(ref); err != nil {
		return err
	}
	if err := s.ensureContainer(ctx, ref.Container()); err != nil {
		return err
	}

	opts := &azblob.UploadStreamOptions{}
	if contentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: &contentType}
	}
	if _, err := s.client.UploadStream(ctx, ref.Container(), ref.Blob(), body, opts); err != nil {
		return classify("upload blob", ref, err)
	}
	return nil
}

func (s *Storage) Open(ctx context.Context, ref domain.BlobReference) (io.ReadCloser, error) {
	if err := validate(ref); err != nil {
		return nil, err
	}
	resp, err := s.client.DownloadStream(ctx, ref.Container(), ref.Blob(), nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "open blob", err)
		}
		return nil, classify("download blob", ref, err)
	}
	return resp.Body, nil
}

func (s *Storage) Delete(ctx context.Context, ref domain.BlobReference) error {
	if err := validate(ref); err != nil {
		return err
	}
	if _, err := s.client.DeleteBlob(ctx, ref.Container(), ref.Blob(), nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil
		}
		return classify("delete blob", ref, err)
	}
	return nil
}

func (s *Storage) ensureContainer(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready[name] {
		return nil
	}
	if _, err := s.client.CreateContainer(ctx, name, nil); err != nil {
		if !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return fmt.Errorf("create container %s: %w", name, err)
		}
	} else {
		s.logger.Info("container_created", "container", name)
	}
	s.ready[name] = true
	return nil
}

// classify marks throttling and server-side failures as temporary so sweeps
// retry them.
func classify(op string, ref domain.BlobReference, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && (respErr.StatusCode == 429 || respErr.StatusCode >= 500) {
		return domain.WrapError(domain.ErrTemporary, op, fmt.Errorf("%s: %w", ref, err))
	}
	return fmt.Errorf("%s %s: %w", op, ref, err)
}

func validate(ref domain.BlobReference) error {
	if ref.Container() == "" || ref.Blob() == "" || strings.Contains(ref.Blob(), "..") {
		return domain.WrapError(domain.ErrInvalidInput, "blob reference", fmt.Errorf("invalid blob reference %q", ref.String()))
	}
	return nil
}
