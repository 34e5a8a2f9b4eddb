package usecase

import (
	"context"
	"log/slog"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// EventReactor drives the pipeline from bus events: uploads are classified,
// classified documents are routed and enqueued deliveries are dispatched.
type EventReactor struct {
	classify *ClassifyDocumentUseCase
	route    *RouteDocumentUseCase
	dispatch *DispatchWebhookUseCase
	logger   *slog.Logger
}

func NewEventReactor(classify *ClassifyDocumentUseCase, route *RouteDocumentUseCase, dispatch *DispatchWebhookUseCase, logger *slog.Logger) *EventReactor {
	return &EventReactor{
		classify: classify,
		route:    route,
		dispatch: dispatch,
		logger:   componentLogger(logger, "event_reactor"),
	}
}

// Subscriptions lists the event types Handle reacts to.
func (r *EventReactor) Subscriptions() []domain.EventType {
	return []domain.EventType{
		domain.EventDocumentUploaded,
		domain.EventDocumentRetryInitiated,
		domain.EventDocumentClassified,
		domain.EventDeliveryEnqueued,
		domain.EventDeliveryRetryScheduled,
	}
}

func (r *EventReactor) Handle(ctx context.Context, event domain.Event) error {
	switch event.Type {
	case domain.EventDocumentUploaded, domain.EventDocumentRetryInitiated:
		return r.classify.ClassifyByID(ctx, event.TenantID, event.AggregateID)
	case domain.EventDocumentClassified:
		_, err := r.route.RouteByID(ctx, event.TenantID, event.AggregateID)
		return err
	case domain.EventDeliveryEnqueued, domain.EventDeliveryRetryScheduled:
		return r.dispatch.Deliver(ctx, event.TenantID, event.AggregateID)
	default:
		r.logger.Debug("event_ignored", "event_type", string(event.Type), "event_id", event.ID)
		return nil
	}
}
