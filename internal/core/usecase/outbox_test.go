package usecase

import (
	"context"
	"testing"

	"github.com/kirillkom/docflow/internal/core/domain"
)

func TestOutboxRelayPublishesInOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createRule(t, "acme", invoiceRule(""))
	doc := h.upload(t, "acme", "invoice-1.pdf", "application/pdf", "x")
	if err := h.classify.ClassifyByID(ctx, "acme", doc.ID()); err != nil {
		t.Fatalf("classify: %v", err)
	}

	publisher := &publisherFake{}
	relay := NewOutboxRelay(h.store.Outbox(), publisher, 0, discardLogger())
	n, err := relay.RelayOnce(ctx)
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	want := []domain.EventType{domain.EventRuleCreated, domain.EventDocumentUploaded, domain.EventDocumentClassified}
	if n != len(want) || len(publisher.published) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), n)
	}
	for i, eventType := range want {
		if publisher.published[i].Type != eventType {
			t.Fatalf("event %d: expected %s, got %s", i, eventType, publisher.published[i].Type)
		}
	}

	n, err = relay.RelayOnce(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second relay should publish nothing, got %d %v", n, err)
	}
}

func TestOutboxRelayStopsAtFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.upload(t, "acme", "a.pdf", "application/pdf", "x")
	h.upload(t, "acme", "b.pdf", "application/pdf", "y")

	relay := NewOutboxRelay(h.store.Outbox(), &publisherFake{failAt: 2}, 10, discardLogger())
	n, err := relay.RelayOnce(ctx)
	if err == nil || n != 1 {
		t.Fatalf("expected one event and an error, got %d %v", n, err)
	}

	pending, err := h.store.Outbox().ListUnpublished(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("failed event must stay unpublished, got %d", len(pending))
	}
}

func TestOutboxRelayDrivesPipelineThroughReactor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	queue := h.webhookQueue(t, "acme", 3)
	h.createRule(t, "acme", invoiceRule(queue.ID()))
	h.upload(t, "acme", "invoice-1.pdf", "application/pdf", "x")

	reactor := NewEventReactor(h.classify, h.route, h.dispatch, discardLogger())
	relay := NewOutboxRelay(h.store.Outbox(), &reactorPublisher{ctx: ctx, t: t, reactor: reactor}, 0, discardLogger())
	for i := 0; i < 5; i++ {
		if _, err := relay.RelayOnce(ctx); err != nil {
			t.Fatalf("relay round %d: %v", i, err)
		}
	}

	if len(h.sender.sent) != 1 {
		t.Fatalf("expected the webhook to be delivered once, got %d", len(h.sender.sent))
	}
	result, err := h.docs.Search(ctx, "acme", domain.DocumentFilter{Status: domain.StatusRouted}, domain.PageRequest{})
	if err != nil || result.Total != 1 {
		t.Fatalf("expected one routed document, got %d %v", result.Total, err)
	}
}

// reactorPublisher hands published events straight to the reactor.
type reactorPublisher struct {
	ctx     context.Context
	t       *testing.T
	reactor *EventReactor
}

func (p *reactorPublisher) Publish(_ context.Context, event domain.Event) error {
	for _, eventType := range p.reactor.Subscriptions() {
		if eventType == event.Type {
			return p.reactor.Handle(p.ctx, event)
		}
	}
	return nil
}
