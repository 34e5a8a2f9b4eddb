package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/core/service"
)

const (
	HeaderSignature = "X-DocFlow-Signature"
	HeaderDelivery  = "X-DocFlow-Delivery"
	HeaderTimestamp = "X-DocFlow-Timestamp"

	webhookEventName = "document.routed"
)

// WebhookPayload is the JSON body posted to webhook queues.
type WebhookPayload struct {
	Event      string    `json:"event"`
	DeliveryID string    `json:"delivery_id"`
	DocumentID string    `json:"document_id"`
	TenantID   string    `json:"tenant_id"`
	QueueID    string    `json:"queue_id"`
	FileName   string    `json:"file_name"`
	MimeType   string    `json:"mime_type"`
	SizeBytes  int64     `json:"size_bytes"`
	PageCount  int       `json:"page_count,omitempty"`
	Tags       []string  `json:"tags"`
	RoutedAt   time.Time `json:"routed_at"`
	Attempt    int       `json:"attempt"`
}

type DispatchWebhookUseCase struct {
	deliveries   ports.DeliveryRepository
	docs         ports.DocumentRepository
	queues       ports.QueueRepository
	tenants      ports.TenantRepository
	sender       ports.WebhookSender
	signer       service.Signer
	globalSecret string
	logger       *slog.Logger
	now          func() time.Time
}

func NewDispatchWebhookUseCase(
	deliveries ports.DeliveryRepository,
	docs ports.DocumentRepository,
	queues ports.QueueRepository,
	tenants ports.TenantRepository,
	sender ports.WebhookSender,
	signer service.Signer,
	globalSecret string,
	logger *slog.Logger,
) *DispatchWebhookUseCase {
	return &DispatchWebhookUseCase{
		deliveries:   deliveries,
		docs:         docs,
		queues:       queues,
		tenants:      tenants,
		sender:       sender,
		signer:       signer,
		globalSecret: globalSecret,
		logger:       componentLogger(logger, "dispatch"),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Deliver makes one attempt for a Pending delivery. A failed send is recorded
// on the delivery and is not an error; the delivery is dead-lettered once its
// retry budget is spent.
func (uc *DispatchWebhookUseCase) Deliver(ctx context.Context, tenantID, deliveryID string) error {
	delivery, err := uc.deliveries.GetByID(ctx, tenantID, deliveryID)
	if err != nil {
		return fmt.Errorf("fetch delivery: %w", err)
	}
	if delivery.Status() != domain.DeliveryPending {
		uc.logger.Debug("dispatch_skipped", "delivery_id", deliveryID, "status", string(delivery.Status()))
		return nil
	}

	queue, err := uc.queues.GetByID(ctx, tenantID, delivery.QueueID())
	if err != nil {
		return fmt.Errorf("fetch queue: %w", err)
	}
	webhook, ok := queue.Webhook()
	if !ok {
		return domain.WrapError(domain.ErrInvalidInput, "deliver webhook", fmt.Errorf("queue %s is not a webhook queue", queue.ID()))
	}
	doc, err := uc.docs.GetByID(ctx, tenantID, delivery.DocumentID())
	if err != nil {
		return fmt.Errorf("fetch document: %w", err)
	}
	tenant, err := loadOrProvisionTenant(ctx, uc.tenants, tenantID)
	if err != nil {
		return err
	}

	now := uc.now()
	body, err := json.Marshal(WebhookPayload{
		Event:      webhookEventName,
		DeliveryID: delivery.ID(),
		DocumentID: doc.ID(),
		TenantID:   doc.TenantID(),
		QueueID:    queue.ID(),
		FileName:   doc.FileName().String(),
		MimeType:   doc.MimeType().String(),
		SizeBytes:  doc.FileSize().Bytes(),
		PageCount:  doc.PageCount(),
		Tags:       doc.TagNames(),
		RoutedAt:   doc.UpdatedAt(),
		Attempt:    delivery.AttemptCount() + 1,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	headers := webhook.Headers()
	if headers == nil {
		headers = make(map[string]string, 4)
	}
	headers["Content-Type"] = "application/json"
	headers[HeaderDelivery] = delivery.ID()
	headers[HeaderTimestamp] = strconv.FormatInt(now.Unix(), 10)
	if secret := tenant.Settings().SigningKey(uc.globalSecret); secret != "" {
		headers[HeaderSignature] = uc.signer.GenerateSignature(string(body), secret)
	}

	sendErr := uc.sender.Send(ctx, webhook.URL(), headers, body)
	if sendErr != nil {
		if err := delivery.RecordDeliveryAttempt(false, domain.ErrorMessageFrom(sendErr)); err != nil {
			return err
		}
		if !delivery.CanRetry(webhook.MaxRetryAttempts()) {
			if err := delivery.MarkDeadLetter(webhook.MaxRetryAttempts()); err != nil {
				return err
			}
		}
	} else if err := delivery.RecordDeliveryAttempt(true, domain.ErrorMessage{}); err != nil {
		return err
	}

	if err := uc.deliveries.Update(ctx, delivery); err != nil {
		return fmt.Errorf("save delivery attempt: %w", err)
	}

	log := uc.logger.With(
		"tenant_id", tenantID,
		"delivery_id", delivery.ID(),
		"document_id", doc.ID(),
		"attempt", delivery.AttemptCount(),
		"status", string(delivery.Status()),
	)
	if sendErr != nil {
		log.Warn("webhook_delivery_failed", "error", sendErr)
	} else {
		log.Info("webhook_delivered")
	}
	return nil
}

// Requeue gives a failed or dead-lettered delivery another run.
func (uc *DispatchWebhookUseCase) Requeue(ctx context.Context, tenantID, deliveryID string) (*domain.WebhookDelivery, error) {
	delivery, err := uc.deliveries.GetByID(ctx, tenantID, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("fetch delivery: %w", err)
	}
	if err := delivery.Requeue(); err != nil {
		return nil, err
	}
	if err := uc.deliveries.Update(ctx, delivery); err != nil {
		return nil, fmt.Errorf("save delivery: %w", err)
	}
	uc.logger.Info("delivery_requeued", "tenant_id", tenantID, "delivery_id", deliveryID)
	return delivery, nil
}

// retryDue reports whether a Failed delivery has waited out the queue's
// retry delay.
func retryDue(delivery *domain.WebhookDelivery, webhook domain.WebhookConfiguration, now time.Time) bool {
	last, ok := delivery.LastAttemptAt()
	if !ok {
		return true
	}
	return !now.Before(last.Add(webhook.RetryDelay()))
}
