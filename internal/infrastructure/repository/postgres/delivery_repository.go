package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/docflow/internal/core/domain"
)

const deliveryColumns = `id, tenant_id, document_id, queue_id, attempt_count, status, last_error, last_attempt_at,
	succeeded_at, version, created_at, updated_at`

type DeliveryRepository struct {
	db *sql.DB
}

func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

func (r *DeliveryRepository) Create(ctx context.Context, delivery *domain.WebhookDelivery) error {
	s := delivery.Snapshot()
	events := delivery.PullEvents()

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO webhook_deliveries (`+deliveryColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
			s.ID, s.TenantID, s.DocumentID, s.QueueID, s.AttemptCount, string(s.Status), nullString(s.LastError),
			s.LastAttemptAt, s.SucceededAt, int64(1), s.CreatedAt, s.UpdatedAt,
		)
		if err != nil {
			return mapError("insert delivery", err, domain.ErrDeliveryNotFound)
		}
		return insertEvents(ctx, tx, events)
	})
	if err != nil {
		return err
	}
	delivery.SetVersion(1)
	return nil
}

func (r *DeliveryRepository) Update(ctx context.Context, delivery *domain.WebhookDelivery) error {
	s := delivery.Snapshot()
	events := delivery.PullEvents()

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		err := execExpectOne(ctx, tx, `
UPDATE webhook_deliveries
SET attempt_count = $4, status = $5, last_error = $6, last_attempt_at = $7, succeeded_at = $8, updated_at = $9,
	version = version + 1
WHERE tenant_id = $1 AND id = $2 AND version = $3
`,
			s.TenantID, s.ID, s.Version, s.AttemptCount, string(s.Status), nullString(s.LastError), s.LastAttemptAt,
			s.SucceededAt, s.UpdatedAt,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return checkVersion(ctx, tx, "update delivery", "webhook_deliveries", s.TenantID, s.ID, s.Version, domain.ErrDeliveryNotFound)
		}
		if err != nil {
			return mapError("update delivery", err, domain.ErrDeliveryNotFound)
		}
		return insertEvents(ctx, tx, events)
	})
	if err != nil {
		return err
	}
	delivery.SetVersion(s.Version + 1)
	return nil
}

func (r *DeliveryRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.WebhookDelivery, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+deliveryColumns+`
FROM webhook_deliveries
WHERE tenant_id = $1 AND id = $2
`, tenantID, id)

	delivery, err := scanDelivery(row)
	if err != nil {
		return nil, mapError("get delivery", err, domain.ErrDeliveryNotFound)
	}
	return delivery, nil
}

func (r *DeliveryRepository) ListByDocument(ctx context.Context, tenantID, documentID string) ([]*domain.WebhookDelivery, error) {
	deliveries, err := queryMany(ctx, r.db, `
SELECT `+deliveryColumns+`
FROM webhook_deliveries
WHERE tenant_id = $1 AND document_id = $2
ORDER BY created_at, id
`, []any{tenantID, documentID}, scanDelivery)
	if err != nil {
		return nil, fmt.Errorf("list deliveries by document: %w", err)
	}
	return deliveries, nil
}

func (r *DeliveryRepository) ListByStatus(ctx context.Context, tenantID string, status domain.DeliveryStatus, limit int) ([]*domain.WebhookDelivery, error) {
	deliveries, err := queryMany(ctx, r.db, `
SELECT `+deliveryColumns+`
FROM webhook_deliveries
WHERE tenant_id = $1 AND status = $2
ORDER BY created_at, id
LIMIT NULLIF($3, 0)
`, []any{tenantID, string(status), limit}, scanDelivery)
	if err != nil {
		return nil, fmt.Errorf("list deliveries by status: %w", err)
	}
	return deliveries, nil
}

func scanDelivery(row scanner) (*domain.WebhookDelivery, error) {
	var s domain.DeliverySnapshot
	var status string
	var lastError sql.NullString
	var lastAttempt, succeeded sql.NullTime

	err := row.Scan(
		&s.ID, &s.TenantID, &s.DocumentID, &s.QueueID, &s.AttemptCount, &status, &lastError, &lastAttempt,
		&succeeded, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Status = domain.DeliveryStatus(status)
	s.LastError = lastError.String
	if lastAttempt.Valid {
		s.LastAttemptAt = &lastAttempt.Time
	}
	if succeeded.Valid {
		s.SucceededAt = &succeeded.Time
	}
	return domain.RestoreDelivery(s)
}
