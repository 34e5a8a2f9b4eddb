package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/docflow/internal/core/domain"
)

const queueColumns = `id, tenant_id, name, description, queue_type, folder_path, webhook, is_active, created_at, updated_at`

type QueueRepository struct {
	db *sql.DB
}

func NewQueueRepository(db *sql.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

func (r *QueueRepository) Create(ctx context.Context, queue *domain.RoutingQueue) error {
	s := queue.Snapshot()
	webhook, err := encodeWebhook(s.Webhook)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO routing_queues (`+queueColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		s.ID, s.TenantID, s.Name, nullString(s.Description), string(s.Type), nullString(s.FolderPath), webhook,
		s.IsActive, s.CreatedAt, s.UpdatedAt,
	)
	return mapError("insert queue", err, domain.ErrQueueNotFound)
}

func (r *QueueRepository) Update(ctx context.Context, queue *domain.RoutingQueue) error {
	s := queue.Snapshot()
	webhook, err := encodeWebhook(s.Webhook)
	if err != nil {
		return err
	}
	err = execExpectOne(ctx, r.db, `
UPDATE routing_queues
SET name = $3, description = $4, queue_type = $5, folder_path = $6, webhook = $7, is_active = $8, updated_at = $9
WHERE tenant_id = $1 AND id = $2
`,
		s.TenantID, s.ID, s.Name, nullString(s.Description), string(s.Type), nullString(s.FolderPath), webhook,
		s.IsActive, s.UpdatedAt,
	)
	return mapError("update queue", err, domain.ErrQueueNotFound)
}

func (r *QueueRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.RoutingQueue, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+queueColumns+`
FROM routing_queues
WHERE tenant_id = $1 AND id = $2
`, tenantID, id)

	queue, err := scanQueue(row)
	if err != nil {
		return nil, mapError("get queue", err, domain.ErrQueueNotFound)
	}
	return queue, nil
}

func (r *QueueRepository) List(ctx context.Context, tenantID string) ([]*domain.RoutingQueue, error) {
	queues, err := queryMany(ctx, r.db, `
SELECT `+queueColumns+`
FROM routing_queues
WHERE tenant_id = $1
ORDER BY name, id
`, []any{tenantID}, scanQueue)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	return queues, nil
}

func encodeWebhook(webhook *domain.WebhookSnapshot) ([]byte, error) {
	if webhook == nil {
		return nil, nil
	}
	raw, err := json.Marshal(webhook)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook config: %w", err)
	}
	return raw, nil
}

func scanQueue(row scanner) (*domain.RoutingQueue, error) {
	var s domain.QueueSnapshot
	var queueType string
	var description, folder sql.NullString
	var webhookRaw []byte

	err := row.Scan(
		&s.ID, &s.TenantID, &s.Name, &description, &queueType, &folder, &webhookRaw, &s.IsActive,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Type = domain.QueueType(queueType)
	s.Description = description.String
	s.FolderPath = folder.String
	if len(webhookRaw) > 0 {
		var webhook domain.WebhookSnapshot
		if err := json.Unmarshal(webhookRaw, &webhook); err != nil {
			return nil, fmt.Errorf("unmarshal webhook config: %w", err)
		}
		s.Webhook = &webhook
	}
	return domain.RestoreQueue(s)
}
