package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/service"
)

type UploadInput struct {
	TenantID string
	FileName string
	MimeType string
	Body     io.Reader
}

type RuleInput struct {
	Name          string                     `json:"name" yaml:"name"`
	Description   string                     `json:"description" yaml:"description"`
	Priority      int                        `json:"priority" yaml:"priority"`
	Conditions    []domain.ConditionSnapshot `json:"conditions" yaml:"conditions"`
	ApplyTags     []string                   `json:"apply_tags" yaml:"apply_tags"`
	TargetQueueID string                     `json:"target_queue_id" yaml:"target_queue_id"`
}

// DryRunInput describes a hypothetical document. When Candidate is set it
// is evaluated alongside the stored rules without being saved.
type DryRunInput struct {
	FileName  string     `json:"file_name"`
	MimeType  string     `json:"mime_type"`
	SizeBytes int64      `json:"size_bytes"`
	Text      string     `json:"text"`
	Candidate *RuleInput `json:"candidate,omitempty"`
}

type QueueInput struct {
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description" yaml:"description"`
	Type        string        `json:"type" yaml:"type"`
	FolderPath  string        `json:"folder_path" yaml:"folder_path"`
	Webhook     *WebhookInput `json:"webhook" yaml:"webhook"`
}

// WebhookInput is the wire form of a webhook destination. A nil
// MaxRetryAttempts means "use the default"; an explicit 0 disables retries.
type WebhookInput struct {
	URL               string            `json:"url" yaml:"url"`
	Headers           map[string]string `json:"headers,omitempty" yaml:"headers"`
	MaxRetryAttempts  *int              `json:"max_retry_attempts,omitempty" yaml:"max_retry_attempts"`
	RetryDelaySeconds int               `json:"retry_delay_seconds" yaml:"retry_delay_seconds"`
}

type TenantUsageView struct {
	Tenant   domain.TenantSnapshot `json:"tenant"`
	Measured domain.TenantUsage    `json:"measured"`
}

// DocumentIngestor is the inbound contract for document upload.
type DocumentIngestor interface {
	Upload(ctx context.Context, input UploadInput) (*domain.Document, error)
}

// DocumentService is the inbound read and operator contract for documents.
type DocumentService interface {
	Get(ctx context.Context, tenantID, documentID string) (*domain.Document, error)
	Search(ctx context.Context, tenantID string, filter domain.DocumentFilter, page domain.PageRequest) (domain.PageResult[*domain.Document], error)
	ListDeliveries(ctx context.Context, tenantID, documentID string) ([]*domain.WebhookDelivery, error)
	Retry(ctx context.Context, tenantID, documentID string) (*domain.Document, error)
	AddTag(ctx context.Context, tenantID, documentID, tag string) (*domain.Document, error)
	RemoveTag(ctx context.Context, tenantID, documentID, tag string) (*domain.Document, error)
	GenerateSuggestion(ctx context.Context, tenantID, documentID string) (*domain.Document, error)
	ApplySuggestion(ctx context.Context, tenantID, documentID string, minConfidence float64) (*domain.Document, int, error)
}

// DocumentRouter routes a classified document to an operator-chosen queue.
type DocumentRouter interface {
	RouteToQueue(ctx context.Context, tenantID, documentID, queueID string) (*domain.Document, error)
}

// DeliveryService is the operator contract for webhook deliveries.
type DeliveryService interface {
	Requeue(ctx context.Context, tenantID, deliveryID string) (*domain.WebhookDelivery, error)
}

type RuleService interface {
	Create(ctx context.Context, tenantID string, input RuleInput) (*domain.ClassificationRule, error)
	Update(ctx context.Context, tenantID, ruleID string, input RuleInput) (*domain.ClassificationRule, error)
	SetActive(ctx context.Context, tenantID, ruleID string, active bool) (*domain.ClassificationRule, error)
	Get(ctx context.Context, tenantID, ruleID string) (*domain.ClassificationRule, error)
	List(ctx context.Context, tenantID string, activeOnly bool) ([]*domain.ClassificationRule, error)
	DryRun(ctx context.Context, tenantID string, input DryRunInput) ([]service.DryRunResult, error)
}

type QueueService interface {
	Create(ctx context.Context, tenantID string, input QueueInput) (*domain.RoutingQueue, error)
	List(ctx context.Context, tenantID string) ([]*domain.RoutingQueue, error)
	SetActive(ctx context.Context, tenantID, queueID string, active bool) (*domain.RoutingQueue, error)
}

type TenantService interface {
	Usage(ctx context.Context, tenantID string) (*TenantUsageView, error)
}

// WebhookVerifier checks a received webhook signature.
type WebhookVerifier interface {
	VerifySignature(payload, signature, secret string) bool
}
