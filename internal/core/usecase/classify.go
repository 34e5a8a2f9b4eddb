package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/core/service"
)

const (
	noRuleMatchedMessage = "no classification rule matched"
	releaseClaimTimeout  = 5 * time.Second
)

type ClassifyDocumentUseCase struct {
	docs          ports.DocumentRepository
	rules         ports.RuleRepository
	evaluator     *service.RuleEvaluator
	suggester     suggester
	minConfidence domain.ConfidenceScore
	logger        *slog.Logger
	now           func() time.Time
}

// NewClassifyDocumentUseCase wires rule evaluation. oracle may be nil, in
// which case unmatched documents fail without an AI fallback.
func NewClassifyDocumentUseCase(
	docs ports.DocumentRepository,
	rules ports.RuleRepository,
	queues ports.QueueRepository,
	blobs ports.BlobStore,
	extractor ports.TextExtractor,
	oracle ports.ClassificationOracle,
	evaluator *service.RuleEvaluator,
	minConfidence domain.ConfidenceScore,
	logger *slog.Logger,
) *ClassifyDocumentUseCase {
	logger = componentLogger(logger, "classify")
	return &ClassifyDocumentUseCase{
		docs:      docs,
		rules:     rules,
		evaluator: evaluator,
		suggester: suggester{
			oracle:    oracle,
			queues:    queues,
			blobs:     blobs,
			extractor: extractor,
			logger:    logger,
		},
		minConfidence: minConfidence,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// ClassifyByID runs a Pending document through the active rules. Documents
// in any other status are left alone, so redelivered events are harmless.
func (uc *ClassifyDocumentUseCase) ClassifyByID(ctx context.Context, tenantID, documentID string) error {
	doc, err := uc.docs.GetByID(ctx, tenantID, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.Status() != domain.StatusPending {
		uc.logger.Debug("classification_skipped", "document_id", documentID, "status", string(doc.Status()))
		return nil
	}

	if err := doc.BeginClassification(); err != nil {
		return err
	}
	if err := uc.docs.Update(ctx, doc); err != nil {
		if domain.IsKind(err, domain.ErrConcurrencyConflict) {
			uc.logger.Info("classification_claim_lost", "document_id", documentID)
			return nil
		}
		return fmt.Errorf("claim document: %w", err)
	}

	if err := uc.classify(ctx, doc); err != nil {
		if failErr := doc.RecordClassificationFailure(domain.ErrorMessageFrom(err)); failErr != nil {
			return fmt.Errorf("%w; record failure: %v", err, failErr)
		}
	}
	if err := uc.docs.Update(ctx, doc); err != nil {
		uc.releaseClaim(ctx, tenantID, documentID, err)
		return fmt.Errorf("save classification: %w", err)
	}

	uc.logger.Info("document_classification_finished",
		"tenant_id", tenantID,
		"document_id", documentID,
		"status", string(doc.Status()),
		"tags", doc.TagNames(),
	)
	return nil
}

// releaseClaim moves a document stuck in Classifying to Failed so the retry
// sweep and operators can pick it up again. It runs detached from ctx so a
// cancelled caller still releases the claim.
func (uc *ClassifyDocumentUseCase) releaseClaim(ctx context.Context, tenantID, documentID string, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseClaimTimeout)
	defer cancel()

	doc, err := uc.docs.GetByID(ctx, tenantID, documentID)
	if err != nil {
		uc.logger.Error("classification_claim_release_failed", "document_id", documentID, "error", err)
		return
	}
	if doc.Status() != domain.StatusClassifying {
		return
	}
	if err := doc.RecordClassificationFailure(domain.ErrorMessageFrom(fmt.Errorf("classification interrupted: %w", cause))); err != nil {
		uc.logger.Error("classification_claim_release_failed", "document_id", documentID, "error", err)
		return
	}
	if err := uc.docs.Update(ctx, doc); err != nil {
		uc.logger.Error("classification_claim_release_failed", "document_id", documentID, "error", err)
		return
	}
	uc.logger.Warn("classification_claim_released", "document_id", documentID, "cause", cause)
}

func (uc *ClassifyDocumentUseCase) classify(ctx context.Context, doc *domain.Document) error {
	rules, err := uc.rules.List(ctx, doc.TenantID(), true)
	if err != nil {
		return fmt.Errorf("list active rules: %w", err)
	}

	var text string
	if needsText(rules) || uc.suggester.enabled() {
		text = uc.suggester.extractText(ctx, doc)
	}

	if matches := uc.evaluator.EvaluateRules(doc, rules, text); len(matches) > 0 {
		tags, history, err := uc.evaluator.BuildClassification(matches, uc.now())
		if err != nil {
			return err
		}
		return doc.ApplyClassificationResult(tags, history)
	}

	if uc.suggester.enabled() {
		applied, err := uc.applyOracle(ctx, doc, text)
		if err != nil {
			uc.logger.Warn("oracle_fallback_failed", "document_id", doc.ID(), "error", err)
		}
		if applied {
			return nil
		}
	}

	msg, err := domain.NewErrorMessage(noRuleMatchedMessage)
	if err != nil {
		return err
	}
	return doc.RecordClassificationFailure(msg)
}

func (uc *ClassifyDocumentUseCase) applyOracle(ctx context.Context, doc *domain.Document, text string) (bool, error) {
	suggestion, err := uc.suggester.suggest(ctx, doc, text)
	if err != nil {
		return false, err
	}
	if err := doc.StoreAiSuggestion(suggestion); err != nil {
		return false, err
	}
	tags, history, err := confidentTags(suggestion, uc.minConfidence, uc.now())
	if err != nil {
		return false, err
	}
	if len(tags) == 0 {
		return false, nil
	}
	if err := doc.ApplyClassificationResult(tags, history); err != nil {
		return false, err
	}
	return true, nil
}

func needsText(rules []*domain.ClassificationRule) bool {
	for _, rule := range rules {
		for _, condition := range rule.Conditions() {
			if condition.Type() == domain.ConditionTextContent {
				return true
			}
		}
	}
	return false
}
