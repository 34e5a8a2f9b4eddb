// Package nats carries outbox events over core NATS subjects named
// <prefix>.<event type>. Workers share a queue group so each event is
// handled once per deployment.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
)

const (
	DefaultSubjectPrefix = "docflow.events"
	DefaultQueueGroup    = "docflow-workers"
	headerEventID        = "Nats-Msg-Id"
)

type Options struct {
	SubjectPrefix        string
	QueueGroup           string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	HandlerTimeout       time.Duration
	Executor             *resilience.Executor
	Logger               *slog.Logger
}

type EventBus struct {
	conn           *nats.Conn
	prefix         string
	queueGroup     string
	handlerTimeout time.Duration
	executor       *resilience.Executor
	logger         *slog.Logger
}

func Connect(url string, options Options) (*EventBus, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "nats_bus")

	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("docflow"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newEventBus(conn, options, logger), nil
}

func newEventBus(conn *nats.Conn, options Options, logger *slog.Logger) *EventBus {
	prefix := strings.TrimSuffix(strings.TrimSpace(options.SubjectPrefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	group := strings.TrimSpace(options.QueueGroup)
	if group == "" {
		group = DefaultQueueGroup
	}
	timeout := options.HandlerTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &EventBus{
		conn:           conn,
		prefix:         prefix,
		queueGroup:     group,
		handlerTimeout: timeout,
		executor:       options.Executor,
		logger:         logger,
	}
}

func (b *EventBus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

func (b *EventBus) Subject(eventType domain.EventType) string {
	return b.prefix + "." + string(eventType)
}

func (b *EventBus) Publish(ctx context.Context, event domain.Event) error {
	msg, err := b.encode(event)
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := b.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("nats publish %s: %w", msg.Subject, err)
		}
		return nil
	}
	if err := b.executor.Execute(ctx, "nats.publish", call, classifyNATSError); err != nil {
		return resilience.Temporary("nats publish", err, classifyNATSError)
	}
	return nil
}

// Subscribe blocks until ctx is done, then drains the subscriptions so
// in-flight handlers finish.
func (b *EventBus) Subscribe(ctx context.Context, types []domain.EventType, handler ports.EventHandler) error {
	if len(types) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "nats subscribe", errors.New("no event types"))
	}

	subs := make([]*nats.Subscription, 0, len(types))
	for _, eventType := range types {
		sub, err := b.conn.QueueSubscribe(b.Subject(eventType), b.queueGroup, func(msg *nats.Msg) {
			b.handle(ctx, msg, handler)
		})
		if err != nil {
			return fmt.Errorf("nats subscribe %s: %w", eventType, err)
		}
		subs = append(subs, sub)
	}
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	b.logger.Info("nats_subscribed", "subjects", len(subs), "queue_group", b.queueGroup)

	<-ctx.Done()
	var drainErr error
	for _, sub := range subs {
		if err := sub.Drain(); err != nil {
			drainErr = errors.Join(drainErr, fmt.Errorf("nats drain %s: %w", sub.Subject, err))
		}
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		drainErr = errors.Join(drainErr, fmt.Errorf("nats flush after drain: %w", err))
	}
	return drainErr
}

func (b *EventBus) handle(ctx context.Context, msg *nats.Msg, handler ports.EventHandler) {
	if ctx.Err() != nil {
		return
	}
	event, err := decodeEvent(msg.Data)
	if err != nil {
		b.logger.Error("event_decode_failed", "subject", msg.Subject, "error", err)
		return
	}

	handlerCtx, cancel := context.WithTimeout(ctx, b.handlerTimeout)
	defer cancel()
	if err := handler(handlerCtx, event); err != nil {
		b.logger.Error("event_handler_failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"tenant_id", event.TenantID,
			"aggregate_id", event.AggregateID,
			"error", err,
		)
	}
}

func (b *EventBus) encode(event domain.Event) (*nats.Msg, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", event.ID, err)
	}
	msg := nats.NewMsg(b.Subject(event.Type))
	msg.Data = data
	msg.Header.Set(headerEventID, event.ID)
	return msg, nil
}

func decodeEvent(data []byte) (domain.Event, error) {
	var event domain.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if event.ID == "" || event.Type == "" || event.TenantID == "" {
		return domain.Event{}, fmt.Errorf("incomplete event envelope")
	}
	return event, nil
}
