package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

const aiConditionPrefix = "AI suggestion"

// suggester asks the classification oracle about a document. A nil oracle
// disables it.
type suggester struct {
	oracle    ports.ClassificationOracle
	queues    ports.QueueRepository
	blobs     ports.BlobStore
	extractor ports.TextExtractor
	logger    *slog.Logger
}

func (s suggester) enabled() bool {
	return s.oracle != nil
}

// extractText is best-effort; any failure yields an empty string.
func (s suggester) extractText(ctx context.Context, doc *domain.Document) string {
	if s.extractor == nil || s.blobs == nil {
		return ""
	}
	body, err := s.blobs.Open(ctx, doc.Blob())
	if err != nil {
		s.logger.Warn("text_extraction_skipped", "document_id", doc.ID(), "error", err)
		return ""
	}
	defer body.Close()
	return s.extractor.ExtractText(ctx, doc.MimeType(), io.Reader(body))
}

func (s suggester) suggest(ctx context.Context, doc *domain.Document, text string) (*domain.AiSuggestion, error) {
	if !s.enabled() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "suggest tags", errors.New("no classification oracle is configured"))
	}
	input := ports.SuggestionInput{
		FileName: doc.FileName().String(),
		MimeType: doc.MimeType().String(),
		Text:     text,
	}
	if s.queues != nil {
		queues, err := s.queues.List(ctx, doc.TenantID())
		if err != nil {
			return nil, fmt.Errorf("list queues for oracle: %w", err)
		}
		for _, queue := range queues {
			if !queue.IsActive() {
				continue
			}
			input.Queues = append(input.Queues, ports.QueueOption{
				ID:          queue.ID(),
				Name:        queue.Name(),
				Description: queue.Description(),
			})
		}
	}
	suggestion, err := s.oracle.Suggest(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("ask classification oracle: %w", err)
	}
	return suggestion, nil
}

// confidentTags turns suggested tags at or above minConfidence into
// AiApplied tags with matching history entries.
func confidentTags(suggestion *domain.AiSuggestion, minConfidence domain.ConfidenceScore, now time.Time) ([]domain.Tag, []domain.ClassificationHistoryEntry, error) {
	var (
		tags    []domain.Tag
		history []domain.ClassificationHistoryEntry
	)
	for _, suggested := range suggestion.Tags() {
		if suggested.Confidence.Value() < minConfidence.Value() {
			continue
		}
		condition := aiConditionPrefix
		if reason := strings.TrimSpace(suggested.Reasoning); reason != "" {
			condition += ": " + reason
		}
		if runes := []rune(condition); len(runes) > 500 {
			condition = string(runes[:500])
		}
		entry, err := domain.NewClassificationHistoryEntry("", suggested.TagName, condition, suggested.Confidence, now)
		if err != nil {
			return nil, nil, err
		}
		tags = append(tags, domain.NewAiAppliedTag(suggested.TagName, suggested.Confidence))
		history = append(history, entry)
	}
	return tags, history, nil
}
