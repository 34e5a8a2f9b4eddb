package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// DocumentRepository persists documents. Update is optimistic on Version and
// writes the drained aggregate events to the outbox in the same transaction.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	Update(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Document, error)
	ListByStatus(ctx context.Context, tenantID string, status domain.DocumentStatus, limit int) ([]*domain.Document, error)
	Search(ctx context.Context, tenantID string, filter domain.DocumentFilter, page domain.PageRequest) (domain.PageResult[*domain.Document], error)
	ListExpired(ctx context.Context, tenantID string, uploadedBefore time.Time, limit int) ([]*domain.Document, error)
	Usage(ctx context.Context, tenantID string) (domain.TenantUsage, error)
}

type RuleRepository interface {
	Create(ctx context.Context, rule *domain.ClassificationRule) error
	Update(ctx context.Context, rule *domain.ClassificationRule) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.ClassificationRule, error)
	List(ctx context.Context, tenantID string, activeOnly bool) ([]*domain.ClassificationRule, error)
}

type QueueRepository interface {
	Create(ctx context.Context, queue *domain.RoutingQueue) error
	Update(ctx context.Context, queue *domain.RoutingQueue) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.RoutingQueue, error)
	List(ctx context.Context, tenantID string) ([]*domain.RoutingQueue, error)
}

type DeliveryRepository interface {
	Create(ctx context.Context, delivery *domain.WebhookDelivery) error
	Update(ctx context.Context, delivery *domain.WebhookDelivery) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.WebhookDelivery, error)
	ListByDocument(ctx context.Context, tenantID, documentID string) ([]*domain.WebhookDelivery, error)
	ListByStatus(ctx context.Context, tenantID string, status domain.DeliveryStatus, limit int) ([]*domain.WebhookDelivery, error)
}

type TenantRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
	List(ctx context.Context) ([]*domain.Tenant, error)
	Save(ctx context.Context, tenant *domain.Tenant) error
}

// OutboxStore exposes recorded events that have not reached the bus yet.
type OutboxStore interface {
	ListUnpublished(ctx context.Context, limit int) ([]domain.Event, error)
	MarkPublished(ctx context.Context, eventID string, publishedAt time.Time) error
}

// BlobStore keeps document content. It is opaque to the core.
type BlobStore interface {
	Save(ctx context.Context, ref domain.BlobReference, body io.Reader, contentType string) error
	Open(ctx context.Context, ref domain.BlobReference) (io.ReadCloser, error)
	Delete(ctx context.Context, ref domain.BlobReference) error
}

// TextExtractor is best-effort: failures yield an empty string.
type TextExtractor interface {
	ExtractText(ctx context.Context, mimeType domain.MimeType, body io.Reader) string
}

// PageCounter reports the page count of paged formats.
type PageCounter interface {
	CountPages(ctx context.Context, mimeType domain.MimeType, body io.ReadSeeker) (int, error)
}

type QueueOption struct {
	ID          string
	Name        string
	Description string
}

type SuggestionInput struct {
	FileName string
	MimeType string
	Text     string
	Queues   []QueueOption
}

// ClassificationOracle proposes tags and a queue for a document.
type ClassificationOracle interface {
	Suggest(ctx context.Context, input SuggestionInput) (*domain.AiSuggestion, error)
}

type WebhookSender interface {
	Send(ctx context.Context, url string, headers map[string]string, body []byte) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

type EventHandler func(ctx context.Context, event domain.Event) error

type EventSubscriber interface {
	Subscribe(ctx context.Context, types []domain.EventType, handler EventHandler) error
}

// SweepLock keeps two runs of the same sweep apart. When acquired is false
// another holder exists and release is nil.
type SweepLock interface {
	TryAcquire(ctx context.Context, name string) (release func(), acquired bool, err error)
}

type UsageReportRow struct {
	TenantID        string
	TenantName      string
	Documents       int
	MaxDocuments    int
	StorageBytes    int64
	MaxStorageBytes int64
	IsBlocked       bool
	BlockReason     string
}

type UsageReportWriter interface {
	WriteUsageReport(rows []UsageReportRow, generatedAt time.Time) ([]byte, error)
}
