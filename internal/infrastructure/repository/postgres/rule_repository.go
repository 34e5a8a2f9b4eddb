package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/docflow/internal/core/domain"
)

const ruleColumns = `id, tenant_id, name, description, priority, is_active, conditions, apply_tags, target_queue_id,
	created_at, updated_at`

type RuleRepository struct {
	db *sql.DB
}

func NewRuleRepository(db *sql.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

func (r *RuleRepository) Create(ctx context.Context, rule *domain.ClassificationRule) error {
	s := rule.Snapshot()
	conditions, tags, err := encodeRuleJSON(s)
	if err != nil {
		return err
	}
	events := rule.PullEvents()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO classification_rules (`+ruleColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
			s.ID, s.TenantID, s.Name, nullString(s.Description), s.Priority, s.IsActive, conditions, tags,
			nullString(s.TargetQueueID), s.CreatedAt, s.UpdatedAt,
		)
		if err != nil {
			return mapError("insert rule", err, domain.ErrRuleNotFound)
		}
		return insertEvents(ctx, tx, events)
	})
}

func (r *RuleRepository) Update(ctx context.Context, rule *domain.ClassificationRule) error {
	s := rule.Snapshot()
	conditions, tags, err := encodeRuleJSON(s)
	if err != nil {
		return err
	}
	events := rule.PullEvents()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		err := execExpectOne(ctx, tx, `
UPDATE classification_rules
SET name = $3, description = $4, priority = $5, is_active = $6, conditions = $7, apply_tags = $8,
	target_queue_id = $9, updated_at = $10
WHERE tenant_id = $1 AND id = $2
`,
			s.TenantID, s.ID, s.Name, nullString(s.Description), s.Priority, s.IsActive, conditions, tags,
			nullString(s.TargetQueueID), s.UpdatedAt,
		)
		if err != nil {
			return mapError("update rule", err, domain.ErrRuleNotFound)
		}
		return insertEvents(ctx, tx, events)
	})
}

func (r *RuleRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.ClassificationRule, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+ruleColumns+`
FROM classification_rules
WHERE tenant_id = $1 AND id = $2
`, tenantID, id)

	rule, err := scanRule(row)
	if err != nil {
		return nil, mapError("get rule", err, domain.ErrRuleNotFound)
	}
	return rule, nil
}

func (r *RuleRepository) List(ctx context.Context, tenantID string, activeOnly bool) ([]*domain.ClassificationRule, error) {
	query := `
SELECT ` + ruleColumns + `
FROM classification_rules
WHERE tenant_id = $1
`
	if activeOnly {
		query += "AND is_active\n"
	}
	query += "ORDER BY priority, created_at, id"

	rules, err := queryMany(ctx, r.db, query, []any{tenantID}, scanRule)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

func encodeRuleJSON(s domain.RuleSnapshot) (conditions, tags []byte, err error) {
	if conditions, err = json.Marshal(s.Conditions); err != nil {
		return nil, nil, fmt.Errorf("marshal conditions: %w", err)
	}
	if tags, err = json.Marshal(s.ApplyTags); err != nil {
		return nil, nil, fmt.Errorf("marshal apply tags: %w", err)
	}
	return conditions, tags, nil
}

func scanRule(row scanner) (*domain.ClassificationRule, error) {
	var s domain.RuleSnapshot
	var description, targetQueue sql.NullString
	var conditionsRaw, tagsRaw []byte

	err := row.Scan(
		&s.ID, &s.TenantID, &s.Name, &description, &s.Priority, &s.IsActive, &conditionsRaw, &tagsRaw,
		&targetQueue, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Description = description.String
	s.TargetQueueID = targetQueue.String
	if err := json.Unmarshal(conditionsRaw, &s.Conditions); err != nil {
		return nil, fmt.Errorf("unmarshal conditions: %w", err)
	}
	if err := json.Unmarshal(tagsRaw, &s.ApplyTags); err != nil {
		return nil, fmt.Errorf("unmarshal apply tags: %w", err)
	}
	return domain.RestoreRule(s)
}
