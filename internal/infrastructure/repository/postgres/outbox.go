package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type OutboxStore struct {
	db *sql.DB
}

func NewOutboxStore(db *sql.DB) *OutboxStore {
	return &OutboxStore{db: db}
}

// insertEvents writes drained aggregate events inside the caller's transaction.
func insertEvents(ctx context.Context, tx executor, events []domain.Event) error {
	for _, event := range events {
		attrs, err := json.Marshal(event.Attributes)
		if err != nil {
			return fmt.Errorf("marshal event attributes: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO outbox (id, event_type, tenant_id, aggregate_id, attributes, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, event.ID, string(event.Type), event.TenantID, event.AggregateID, attrs, event.OccurredAt)
		if err != nil {
			return fmt.Errorf("insert outbox event %s: %w", event.Type, err)
		}
	}
	return nil
}

func (o *OutboxStore) ListUnpublished(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	events, err := queryMany(ctx, o.db, `
SELECT id, event_type, tenant_id, aggregate_id, attributes, occurred_at
FROM outbox
WHERE published_at IS NULL
ORDER BY seq
LIMIT $1
`, []any{limit}, scanEvent)
	if err != nil {
		return nil, fmt.Errorf("list unpublished events: %w", err)
	}
	return events, nil
}

func (o *OutboxStore) MarkPublished(ctx context.Context, eventID string, publishedAt time.Time) error {
	err := execExpectOne(ctx, o.db, `UPDATE outbox SET published_at = $2 WHERE id = $1`, eventID, publishedAt)
	if err != nil {
		return mapError("mark event published", err, domain.ErrInvalidInput)
	}
	return nil
}

func scanEvent(row scanner) (domain.Event, error) {
	var event domain.Event
	var eventType string
	var attrs []byte
	if err := row.Scan(&event.ID, &eventType, &event.TenantID, &event.AggregateID, &attrs, &event.OccurredAt); err != nil {
		return domain.Event{}, fmt.Errorf("scan event: %w", err)
	}
	event.Type = domain.EventType(eventType)
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &event.Attributes); err != nil {
			return domain.Event{}, fmt.Errorf("unmarshal event attributes: %w", err)
		}
	}
	return event, nil
}
