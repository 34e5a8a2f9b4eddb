package nats

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docflow/internal/core/domain"
)

func testBus(t *testing.T, options Options) (*EventBus, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	return newEventBus(nil, options, logger), &buf
}

func TestSubjectUsesPrefix(t *testing.T) {
	bus, _ := testBus(t, Options{SubjectPrefix: "acme.events."})
	if got := bus.Subject(domain.EventDocumentUploaded); got != "acme.events.document.uploaded" {
		t.Fatalf("unexpected subject %q", got)
	}

	defaults, _ := testBus(t, Options{})
	if defaults.prefix != DefaultSubjectPrefix || defaults.queueGroup != DefaultQueueGroup {
		t.Fatalf("expected defaults, got %q/%q", defaults.prefix, defaults.queueGroup)
	}
}

func TestEncodeCarriesEventID(t *testing.T) {
	bus, _ := testBus(t, Options{})
	event := domain.Event{
		ID:          "evt-1",
		Type:        domain.EventDocumentUploaded,
		TenantID:    "acme",
		AggregateID: "doc-1",
		OccurredAt:  time.Unix(1700000000, 0).UTC(),
	}
	msg, err := bus.encode(event)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if msg.Header.Get(headerEventID) != "evt-1" {
		t.Fatalf("expected dedupe header, got %v", msg.Header)
	}
	decoded, err := decodeEvent(msg.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.AggregateID != "doc-1" || !decoded.OccurredAt.Equal(event.OccurredAt) {
		t.Fatalf("unexpected decoded event %+v", decoded)
	}
}

func TestHandleDropsMalformedPayload(t *testing.T) {
	bus, logs := testBus(t, Options{})
	called := false
	bus.handle(context.Background(), &nats.Msg{Subject: "docflow.events.x", Data: []byte(`{"id":""}`)}, func(context.Context, domain.Event) error {
		called = true
		return nil
	})
	if called {
		t.Fatalf("handler must not run for incomplete envelopes")
	}
	if !bytes.Contains(logs.Bytes(), []byte("event_decode_failed")) {
		t.Fatalf("expected decode failure log, got %s", logs.String())
	}
}

func TestHandleLogsHandlerFailure(t *testing.T) {
	bus, logs := testBus(t, Options{HandlerTimeout: time.Second})
	data := []byte(`{"id":"evt-2","type":"document.uploaded","tenant_id":"acme","aggregate_id":"doc-9"}`)

	var got domain.Event
	bus.handle(context.Background(), &nats.Msg{Data: data}, func(ctx context.Context, event domain.Event) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Fatalf("handler context must carry a deadline")
		}
		got = event
		return errors.New("boom")
	})
	if got.AggregateID != "doc-9" {
		t.Fatalf("handler did not receive event: %+v", got)
	}
	if !bytes.Contains(logs.Bytes(), []byte("event_handler_failed")) {
		t.Fatalf("expected handler failure log, got %s", logs.String())
	}
}

func TestSubscribeRejectsEmptyTypes(t *testing.T) {
	bus, _ := testBus(t, Options{})
	err := bus.Subscribe(context.Background(), nil, func(context.Context, domain.Event) error { return nil })
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestClassifyNATSError(t *testing.T) {
	if c := classifyNATSError(nats.ErrNoServers); !c.Retryable {
		t.Fatalf("no servers should be retryable")
	}
	if c := classifyNATSError(context.Canceled); c.Retryable || c.RecordFailure {
		t.Fatalf("cancel should be ignored: %+v", c)
	}
	if c := classifyNATSError(nats.ErrBadSubject); c.Retryable {
		t.Fatalf("bad subject is permanent")
	}
	if c := classifyNATSError(nats.ErrMaxPayload); c.Retryable || c.RecordFailure {
		t.Fatalf("oversized payload must not trip the breaker: %+v", c)
	}
	if c := classifyNATSError(errors.New("boom")); c.Retryable || !c.RecordFailure {
		t.Fatalf("unknown errors are permanent failures: %+v", c)
	}
}
