package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/core/service"
)

type RuleUseCase struct {
	rules     ports.RuleRepository
	queues    ports.QueueRepository
	evaluator *service.RuleEvaluator
	logger    *slog.Logger
}

func NewRuleUseCase(rules ports.RuleRepository, queues ports.QueueRepository, evaluator *service.RuleEvaluator, logger *slog.Logger) *RuleUseCase {
	return &RuleUseCase{
		rules:     rules,
		queues:    queues,
		evaluator: evaluator,
		logger:    componentLogger(logger, "rules"),
	}
}

func (uc *RuleUseCase) Create(ctx context.Context, tenantID string, input ports.RuleInput) (*domain.ClassificationRule, error) {
	def, err := uc.definition(ctx, tenantID, input)
	if err != nil {
		return nil, err
	}
	rule, err := domain.DefineRule(uuid.NewString(), tenantID, def)
	if err != nil {
		return nil, err
	}
	if err := uc.rules.Create(ctx, rule); err != nil {
		return nil, fmt.Errorf("create rule: %w", err)
	}
	uc.logger.Info("rule_created", "tenant_id", tenantID, "rule_id", rule.ID(), "priority", rule.Priority().Value())
	return rule, nil
}

func (uc *RuleUseCase) Update(ctx context.Context, tenantID, ruleID string, input ports.RuleInput) (*domain.ClassificationRule, error) {
	def, err := uc.definition(ctx, tenantID, input)
	if err != nil {
		return nil, err
	}
	rule, err := uc.Get(ctx, tenantID, ruleID)
	if err != nil {
		return nil, err
	}
	if err := rule.Update(def); err != nil {
		return nil, err
	}
	if err := uc.rules.Update(ctx, rule); err != nil {
		return nil, fmt.Errorf("update rule: %w", err)
	}
	uc.logger.Info("rule_updated", "tenant_id", tenantID, "rule_id", ruleID)
	return rule, nil
}

func (uc *RuleUseCase) SetActive(ctx context.Context, tenantID, ruleID string, active bool) (*domain.ClassificationRule, error) {
	rule, err := uc.Get(ctx, tenantID, ruleID)
	if err != nil {
		return nil, err
	}
	if active {
		rule.Activate()
	} else {
		rule.Deactivate()
	}
	if err := uc.rules.Update(ctx, rule); err != nil {
		return nil, fmt.Errorf("update rule: %w", err)
	}
	uc.logger.Info("rule_state_changed", "tenant_id", tenantID, "rule_id", ruleID, "active", active)
	return rule, nil
}

func (uc *RuleUseCase) Get(ctx context.Context, tenantID, ruleID string) (*domain.ClassificationRule, error) {
	rule, err := uc.rules.GetByID(ctx, tenantID, ruleID)
	if err != nil {
		return nil, fmt.Errorf("fetch rule: %w", err)
	}
	return rule, nil
}

func (uc *RuleUseCase) List(ctx context.Context, tenantID string, activeOnly bool) ([]*domain.ClassificationRule, error) {
	rules, err := uc.rules.List(ctx, tenantID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

// DryRun evaluates every stored rule, active or not, against the input.
func (uc *RuleUseCase) DryRun(ctx context.Context, tenantID string, input ports.DryRunInput) ([]service.DryRunResult, error) {
	if strings.TrimSpace(input.FileName) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "dry run", fmt.Errorf("file_name is required"))
	}
	rules, err := uc.List(ctx, tenantID, false)
	if err != nil {
		return nil, err
	}
	if input.Candidate != nil {
		def, err := domain.ParseRuleDefinition(
			input.Candidate.Name,
			input.Candidate.Description,
			input.Candidate.Priority,
			input.Candidate.Conditions,
			input.Candidate.ApplyTags,
			input.Candidate.TargetQueueID,
		)
		if err != nil {
			return nil, err
		}
		candidate, err := domain.DefineRule("candidate", tenantID, def)
		if err != nil {
			return nil, err
		}
		rules = append(rules, candidate)
	}
	return uc.evaluator.DryRun(service.Subject{
		FileName:  input.FileName,
		MimeType:  input.MimeType,
		SizeBytes: input.SizeBytes,
		Text:      input.Text,
	}, rules), nil
}

func (uc *RuleUseCase) definition(ctx context.Context, tenantID string, input ports.RuleInput) (domain.RuleDefinition, error) {
	def, err := domain.ParseRuleDefinition(input.Name, input.Description, input.Priority, input.Conditions, input.ApplyTags, input.TargetQueueID)
	if err != nil {
		return domain.RuleDefinition{}, err
	}
	if def.TargetQueueID != "" {
		if _, err := uc.queues.GetByID(ctx, tenantID, strings.TrimSpace(def.TargetQueueID)); err != nil {
			if domain.IsKind(err, domain.ErrQueueNotFound) {
				return domain.RuleDefinition{}, domain.WrapError(domain.ErrInvalidInput, "rule target queue", err)
			}
			return domain.RuleDefinition{}, fmt.Errorf("fetch target queue: %w", err)
		}
	}
	return def, nil
}
