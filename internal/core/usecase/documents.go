package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

type DocumentUseCase struct {
	docs          ports.DocumentRepository
	deliveries    ports.DeliveryRepository
	suggester     suggester
	minConfidence domain.ConfidenceScore
	logger        *slog.Logger
}

func NewDocumentUseCase(
	docs ports.DocumentRepository,
	deliveries ports.DeliveryRepository,
	queues ports.QueueRepository,
	blobs ports.BlobStore,
	extractor ports.TextExtractor,
	oracle ports.ClassificationOracle,
	minConfidence domain.ConfidenceScore,
	logger *slog.Logger,
) *DocumentUseCase {
	logger = componentLogger(logger, "documents")
	return &DocumentUseCase{
		docs:       docs,
		deliveries: deliveries,
		suggester: suggester{
			oracle:    oracle,
			queues:    queues,
			blobs:     blobs,
			extractor: extractor,
			logger:    logger,
		},
		minConfidence: minConfidence,
		logger:        logger,
	}
}

func (uc *DocumentUseCase) Get(ctx context.Context, tenantID, documentID string) (*domain.Document, error) {
	doc, err := uc.docs.GetByID(ctx, tenantID, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *DocumentUseCase) Search(ctx context.Context, tenantID string, filter domain.DocumentFilter, page domain.PageRequest) (domain.PageResult[*domain.Document], error) {
	result, err := uc.docs.Search(ctx, tenantID, filter, page.Normalize())
	if err != nil {
		return domain.PageResult[*domain.Document]{}, fmt.Errorf("search documents: %w", err)
	}
	return result, nil
}

func (uc *DocumentUseCase) ListDeliveries(ctx context.Context, tenantID, documentID string) ([]*domain.WebhookDelivery, error) {
	if _, err := uc.Get(ctx, tenantID, documentID); err != nil {
		return nil, err
	}
	deliveries, err := uc.deliveries.ListByDocument(ctx, tenantID, documentID)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	return deliveries, nil
}

// Retry sends a Failed document back to Pending. Operators may retry past
// the automatic budget.
func (uc *DocumentUseCase) Retry(ctx context.Context, tenantID, documentID string) (*domain.Document, error) {
	return uc.mutate(ctx, tenantID, documentID, "retry_requested", func(doc *domain.Document) error {
		return doc.RetryClassification()
	})
}

func (uc *DocumentUseCase) AddTag(ctx context.Context, tenantID, documentID, tag string) (*domain.Document, error) {
	name, err := domain.NewTagName(tag)
	if err != nil {
		return nil, err
	}
	return uc.mutate(ctx, tenantID, documentID, "manual_tag_added", func(doc *domain.Document) error {
		doc.AddManualTag(name)
		return nil
	})
}

func (uc *DocumentUseCase) RemoveTag(ctx context.Context, tenantID, documentID, tag string) (*domain.Document, error) {
	name, err := domain.NewTagName(tag)
	if err != nil {
		return nil, err
	}
	return uc.mutate(ctx, tenantID, documentID, "manual_tag_removed", func(doc *domain.Document) error {
		return doc.RemoveManualTag(name)
	})
}

// GenerateSuggestion asks the oracle for tags and stores the result on the
// document without applying it.
func (uc *DocumentUseCase) GenerateSuggestion(ctx context.Context, tenantID, documentID string) (*domain.Document, error) {
	doc, err := uc.Get(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	if !uc.suggester.enabled() {
		return nil, domain.WrapError(domain.ErrTemporary, "generate suggestion", fmt.Errorf("classification oracle is disabled"))
	}
	text := uc.suggester.extractText(ctx, doc)
	suggestion, err := uc.suggester.suggest(ctx, doc, text)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "generate suggestion", err)
	}
	if err := doc.StoreAiSuggestion(suggestion); err != nil {
		return nil, err
	}
	if err := uc.docs.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("save suggestion: %w", err)
	}
	uc.logger.Info("ai_suggestion_generated",
		"tenant_id", tenantID,
		"document_id", documentID,
		"tags", len(suggestion.Tags()),
		"confidence", suggestion.Confidence().Value(),
	)
	return doc, nil
}

// ApplySuggestion adds stored suggested tags at or above minConfidence. A
// zero threshold falls back to the configured one.
func (uc *DocumentUseCase) ApplySuggestion(ctx context.Context, tenantID, documentID string, minConfidence float64) (*domain.Document, int, error) {
	threshold := uc.minConfidence
	if minConfidence > 0 {
		score, err := domain.NewConfidenceScore(minConfidence)
		if err != nil {
			return nil, 0, err
		}
		threshold = score
	}
	var added int
	doc, err := uc.mutate(ctx, tenantID, documentID, "ai_suggestions_applied", func(doc *domain.Document) error {
		n, err := doc.ApplyAiSuggestions(threshold)
		added = n
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return doc, added, nil
}

func (uc *DocumentUseCase) mutate(ctx context.Context, tenantID, documentID, logEvent string, fn func(*domain.Document) error) (*domain.Document, error) {
	started := time.Now()
	doc, err := uc.Get(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	if err := fn(doc); err != nil {
		return nil, err
	}
	if err := uc.docs.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	uc.logger.Info(logEvent,
		"tenant_id", tenantID,
		"document_id", documentID,
		"status", string(doc.Status()),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return doc, nil
}
