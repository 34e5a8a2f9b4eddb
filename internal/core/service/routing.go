package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// RoutingManager delivers a classified document to its queue. Folder queues
// receive a copy of the content; webhook queues are only checked for
// readiness, delivery happens in the dispatch stage.
type RoutingManager struct {
	logger *slog.Logger
}

func NewRoutingManager(logger *slog.Logger) *RoutingManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoutingManager{logger: logger.With("component", "routing_manager")}
}

// RouteDocumentToQueue reports whether the document reached the queue. It
// never returns an error or panics; callers may retry on false.
func (m *RoutingManager) RouteDocumentToQueue(ctx context.Context, doc *domain.Document, queue *domain.RoutingQueue, content io.Reader) (routed bool) {
	log := m.logger
	defer func() {
		if r := recover(); r != nil {
			log.Error("routing_panic", "panic", fmt.Sprint(r))
			routed = false
		}
	}()
	if doc == nil || queue == nil {
		log.Error("routing_refused", "reason", "document and queue are required")
		return false
	}
	log = log.With("document_id", doc.ID(), "queue_id", queue.ID(), "tenant_id", doc.TenantID())

	if !queue.IsActive() {
		log.Warn("routing_refused", "reason", "queue inactive")
		return false
	}
	if err := ctx.Err(); err != nil {
		log.Warn("routing_cancelled", "error", err)
		return false
	}

	switch queue.Type() {
	case domain.QueueTypeFolder:
		folder, ok := queue.Folder()
		if !ok {
			log.Error("routing_failed", "error", "folder queue without folder path")
			return false
		}
		if err := copyToFolder(ctx, folder, doc.FileName(), content); err != nil {
			log.Error("routing_failed", "folder", folder.String(), "error", err)
			return false
		}
		log.Info("document_routed_to_folder", "folder", folder.String())
		return true
	case domain.QueueTypeWebhook:
		webhook, ok := queue.Webhook()
		if !ok || webhook.URL() == "" {
			log.Error("routing_failed", "error", "webhook queue without configuration")
			return false
		}
		log.Info("document_ready_for_webhook", "url", webhook.URL())
		return true
	default:
		log.Error("routing_failed", "error", "unknown queue type", "queue_type", string(queue.Type()))
		return false
	}
}

func copyToFolder(ctx context.Context, folder domain.FolderPath, fileName domain.FileName, content io.Reader) error {
	if content == nil {
		return errors.New("content stream is required")
	}
	if err := os.MkdirAll(folder.String(), 0o755); err != nil {
		return fmt.Errorf("create folder: %w", err)
	}
	target := filepath.Join(folder.String(), filepath.Base(fileName.String()))
	file, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create target file: %w", err)
	}
	if _, err := io.Copy(file, contextReader{ctx: ctx, r: content}); err != nil {
		_ = file.Close()
		_ = os.Remove(target)
		return fmt.Errorf("copy content: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close target file: %w", err)
	}
	return nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
