package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

type QueueUseCase struct {
	queues ports.QueueRepository
	logger *slog.Logger
}

func NewQueueUseCase(queues ports.QueueRepository, logger *slog.Logger) *QueueUseCase {
	return &QueueUseCase{queues: queues, logger: componentLogger(logger, "queues")}
}

func (uc *QueueUseCase) Create(ctx context.Context, tenantID string, input ports.QueueInput) (*domain.RoutingQueue, error) {
	queue, err := BuildQueue(uuid.NewString(), tenantID, input)
	if err != nil {
		return nil, err
	}
	if err := uc.queues.Create(ctx, queue); err != nil {
		return nil, fmt.Errorf("create queue: %w", err)
	}
	uc.logger.Info("queue_created", "tenant_id", tenantID, "queue_id", queue.ID(), "type", string(queue.Type()))
	return queue, nil
}

func (uc *QueueUseCase) Get(ctx context.Context, tenantID, queueID string) (*domain.RoutingQueue, error) {
	queue, err := uc.queues.GetByID(ctx, tenantID, queueID)
	if err != nil {
		return nil, fmt.Errorf("fetch queue: %w", err)
	}
	return queue, nil
}

func (uc *QueueUseCase) List(ctx context.Context, tenantID string) ([]*domain.RoutingQueue, error) {
	queues, err := uc.queues.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	return queues, nil
}

func (uc *QueueUseCase) SetActive(ctx context.Context, tenantID, queueID string, active bool) (*domain.RoutingQueue, error) {
	queue, err := uc.Get(ctx, tenantID, queueID)
	if err != nil {
		return nil, err
	}
	if active {
		queue.Activate()
	} else {
		queue.Deactivate()
	}
	if err := uc.queues.Update(ctx, queue); err != nil {
		return nil, fmt.Errorf("update queue: %w", err)
	}
	uc.logger.Info("queue_state_changed", "tenant_id", tenantID, "queue_id", queueID, "active", active)
	return queue, nil
}

// BuildQueue validates wire-level queue fields into a new queue.
func BuildQueue(id, tenantID string, input ports.QueueInput) (*domain.RoutingQueue, error) {
	queueType, err := domain.ParseQueueType(input.Type)
	if err != nil {
		return nil, err
	}
	switch queueType {
	case domain.QueueTypeFolder:
		folder, err := domain.NewFolderPath(input.FolderPath)
		if err != nil {
			return nil, err
		}
		return domain.CreateFolderQueue(id, tenantID, input.Name, input.Description, folder)
	default:
		if input.Webhook == nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "create queue", fmt.Errorf("webhook configuration is required"))
		}
		raw := domain.WebhookSnapshot{
			URL:               input.Webhook.URL,
			Headers:           input.Webhook.Headers,
			MaxRetryAttempts:  domain.DefaultWebhookRetries,
			RetryDelaySeconds: input.Webhook.RetryDelaySeconds,
		}
		if input.Webhook.MaxRetryAttempts != nil {
			raw.MaxRetryAttempts = *input.Webhook.MaxRetryAttempts
		}
		webhook, err := raw.Build()
		if err != nil {
			return nil, err
		}
		return domain.CreateWebhookQueue(id, tenantID, input.Name, input.Description, webhook)
	}
}
