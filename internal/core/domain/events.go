package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventDocumentUploaded             EventType = "document.uploaded"
	EventDocumentClassified           EventType = "document.classified"
	EventDocumentClassificationFailed EventType = "document.classification_failed"
	EventDocumentRetryInitiated       EventType = "document.retry_initiated"
	EventDocumentRouted               EventType = "document.routed"
	EventDocumentDeadLettered         EventType = "document.dead_lettered"
	EventDocumentExpired              EventType = "document.expired"
	EventManualTagAdded               EventType = "document.manual_tag_added"
	EventManualTagRemoved             EventType = "document.manual_tag_removed"
	EventAiSuggestionGenerated        EventType = "document.ai_suggestion_generated"
	EventAiSuggestionsApplied         EventType = "document.ai_suggestions_applied"

	EventRuleCreated     EventType = "rule.created"
	EventRuleUpdated     EventType = "rule.updated"
	EventRuleActivated   EventType = "rule.activated"
	EventRuleDeactivated EventType = "rule.deactivated"

	EventDeliveryEnqueued       EventType = "delivery.enqueued"
	EventDeliverySucceeded      EventType = "delivery.succeeded"
	EventDeliveryFailed         EventType = "delivery.failed"
	EventDeliveryRetryScheduled EventType = "delivery.retry_scheduled"
	EventDeliveryDeadLettered   EventType = "delivery.dead_lettered"
)

// Event is a fact recorded by an aggregate. Events are drained after the
// aggregate is persisted and published from the outbox.
type Event struct {
	ID          string            `json:"id"`
	Type        EventType         `json:"type"`
	TenantID    string            `json:"tenant_id"`
	AggregateID string            `json:"aggregate_id"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

type eventRecorder struct {
	pending []Event
}

func (r *eventRecorder) record(eventType EventType, tenantID, aggregateID string, now time.Time, kv ...string) {
	var attrs map[string]string
	if len(kv) > 0 {
		attrs = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			attrs[kv[i]] = kv[i+1]
		}
	}
	r.pending = append(r.pending, Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		TenantID:    tenantID,
		AggregateID: aggregateID,
		Attributes:  attrs,
		OccurredAt:  now,
	})
}

// PullEvents returns the recorded events and clears them.
func (r *eventRecorder) PullEvents() []Event {
	out := r.pending
	r.pending = nil
	return out
}

// PendingEvents returns the recorded events without clearing them.
func (r *eventRecorder) PendingEvents() []Event {
	out := make([]Event, len(r.pending))
	copy(out, r.pending)
	return out
}
