package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/docflow/internal/core/ports"
)

const defaultOutboxBatchSize = 100

// OutboxRelay moves recorded events from the outbox onto the bus.
type OutboxRelay struct {
	outbox    ports.OutboxStore
	publisher ports.EventPublisher
	batchSize int
	logger    *slog.Logger
}

func NewOutboxRelay(outbox ports.OutboxStore, publisher ports.EventPublisher, batchSize int, logger *slog.Logger) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = defaultOutboxBatchSize
	}
	return &OutboxRelay{
		outbox:    outbox,
		publisher: publisher,
		batchSize: batchSize,
		logger:    componentLogger(logger, "outbox_relay"),
	}
}

// RelayOnce publishes one batch in recording order and returns how many
// events went out. It stops at the first publish failure so later events
// are not published ahead of an earlier one.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	events, err := r.outbox.ListUnpublished(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list unpublished events: %w", err)
	}
	published := 0
	for _, event := range events {
		if err := r.publisher.Publish(ctx, event); err != nil {
			r.logger.Warn("outbox_publish_failed", "event_id", event.ID, "event_type", string(event.Type), "error", err)
			return published, fmt.Errorf("publish event %s: %w", event.ID, err)
		}
		if err := r.outbox.MarkPublished(ctx, event.ID, time.Now().UTC()); err != nil {
			return published, fmt.Errorf("mark event %s published: %w", event.ID, err)
		}
		published++
	}
	if published > 0 {
		r.logger.Debug("outbox_relayed", "events", published)
	}
	return published, nil
}
