package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/core/service"
)

type RouteDocumentUseCase struct {
	docs       ports.DocumentRepository
	rules      ports.RuleRepository
	queues     ports.QueueRepository
	deliveries ports.DeliveryRepository
	blobs      ports.BlobStore
	manager    *service.RoutingManager
	logger     *slog.Logger
}

func NewRouteDocumentUseCase(
	docs ports.DocumentRepository,
	rules ports.RuleRepository,
	queues ports.QueueRepository,
	deliveries ports.DeliveryRepository,
	blobs ports.BlobStore,
	manager *service.RoutingManager,
	logger *slog.Logger,
) *RouteDocumentUseCase {
	return &RouteDocumentUseCase{
		docs:       docs,
		rules:      rules,
		queues:     queues,
		deliveries: deliveries,
		blobs:      blobs,
		manager:    manager,
		logger:     componentLogger(logger, "route"),
	}
}

// RouteByID picks the queue for a Classified document: the first matching
// rule with a target queue wins, then the AI suggested queue. A document with
// neither stays Classified and false is returned.
func (uc *RouteDocumentUseCase) RouteByID(ctx context.Context, tenantID, documentID string) (bool, error) {
	doc, err := uc.docs.GetByID(ctx, tenantID, documentID)
	if err != nil {
		return false, fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.Status() != domain.StatusClassified {
		uc.logger.Debug("routing_skipped", "document_id", documentID, "status", string(doc.Status()))
		return false, nil
	}

	queueID, err := uc.selectQueue(ctx, doc)
	if err != nil {
		return false, err
	}
	if queueID == "" {
		uc.logger.Info("no_target_queue", "tenant_id", tenantID, "document_id", documentID)
		return false, nil
	}
	queue, err := uc.queues.GetByID(ctx, tenantID, queueID)
	if err != nil {
		if domain.IsKind(err, domain.ErrQueueNotFound) {
			uc.logger.Warn("target_queue_missing", "document_id", documentID, "queue_id", queueID)
			return false, nil
		}
		return false, fmt.Errorf("fetch queue: %w", err)
	}
	if !queue.IsActive() {
		uc.logger.Info("target_queue_inactive", "document_id", documentID, "queue_id", queueID)
		return false, nil
	}
	return uc.route(ctx, doc, queue)
}

// RouteToQueue routes a Classified document to an explicitly chosen queue.
func (uc *RouteDocumentUseCase) RouteToQueue(ctx context.Context, tenantID, documentID, queueID string) (*domain.Document, error) {
	doc, err := uc.docs.GetByID(ctx, tenantID, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.Status() != domain.StatusClassified {
		return nil, domain.WrapError(domain.ErrInvalidTransition, "route document",
			fmt.Errorf("document is %s, expected classified", doc.Status()))
	}
	queue, err := uc.queues.GetByID(ctx, tenantID, queueID)
	if err != nil {
		return nil, fmt.Errorf("fetch queue: %w", err)
	}
	if !queue.IsActive() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "route document", errors.New("target queue is inactive"))
	}
	routed, err := uc.route(ctx, doc, queue)
	if err != nil {
		return nil, err
	}
	if !routed {
		return nil, domain.WrapError(domain.ErrTemporary, "route document", errors.New("queue did not accept the document"))
	}
	return doc, nil
}

func (uc *RouteDocumentUseCase) selectQueue(ctx context.Context, doc *domain.Document) (string, error) {
	for _, entry := range doc.History() {
		if entry.RuleID() == "" {
			continue
		}
		rule, err := uc.rules.GetByID(ctx, doc.TenantID(), entry.RuleID())
		if err != nil {
			if domain.IsKind(err, domain.ErrRuleNotFound) {
				continue
			}
			return "", fmt.Errorf("fetch rule: %w", err)
		}
		if rule.TargetQueueID() != "" {
			return rule.TargetQueueID(), nil
		}
	}
	if suggestion := doc.AiSuggestion(); suggestion != nil {
		return suggestion.SuggestedQueueID(), nil
	}
	return "", nil
}

func (uc *RouteDocumentUseCase) route(ctx context.Context, doc *domain.Document, queue *domain.RoutingQueue) (bool, error) {
	var routed bool
	switch queue.Type() {
	case domain.QueueTypeFolder:
		content, err := uc.blobs.Open(ctx, doc.Blob())
		if err != nil {
			return false, domain.WrapError(domain.ErrTemporary, "open document content", err)
		}
		routed = uc.manager.RouteDocumentToQueue(ctx, doc, queue, content)
		_ = content.Close()
	default:
		routed = uc.manager.RouteDocumentToQueue(ctx, doc, queue, nil)
	}
	if !routed {
		return false, nil
	}

	if queue.Type() == domain.QueueTypeWebhook {
		if err := uc.ensureDelivery(ctx, doc, queue); err != nil {
			return false, err
		}
	}

	if err := doc.MarkAsRouted(queue.ID()); err != nil {
		return false, err
	}
	if err := uc.docs.Update(ctx, doc); err != nil {
		return false, fmt.Errorf("save routed document: %w", err)
	}
	uc.logger.Info("document_routed",
		"tenant_id", doc.TenantID(),
		"document_id", doc.ID(),
		"queue_id", queue.ID(),
		"queue_type", string(queue.Type()),
	)
	return true, nil
}

// ensureDelivery creates the webhook delivery once per document and queue.
func (uc *RouteDocumentUseCase) ensureDelivery(ctx context.Context, doc *domain.Document, queue *domain.RoutingQueue) error {
	existing, err := uc.deliveries.ListByDocument(ctx, doc.TenantID(), doc.ID())
	if err != nil {
		return fmt.Errorf("list deliveries: %w", err)
	}
	for _, delivery := range existing {
		if delivery.QueueID() == queue.ID() {
			return nil
		}
	}
	delivery, err := domain.NewWebhookDelivery(uuid.NewString(), doc.TenantID(), doc.ID(), queue.ID())
	if err != nil {
		return err
	}
	if err := uc.deliveries.Create(ctx, delivery); err != nil {
		return fmt.Errorf("create delivery: %w", err)
	}
	return nil
}
