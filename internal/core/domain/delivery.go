package domain

import (
	"strconv"
	"strings"
	"time"
)

type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliverySucceeded  DeliveryStatus = "succeeded"
	DeliveryFailed     DeliveryStatus = "failed"
	DeliveryDeadLetter DeliveryStatus = "dead_letter"
)

func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	switch status := DeliveryStatus(strings.ToLower(strings.TrimSpace(value))); status {
	case DeliveryPending, DeliverySucceeded, DeliveryFailed, DeliveryDeadLetter:
		return status, nil
	default:
		return "", invalidInput("delivery status", "unknown delivery status %q", value)
	}
}

// WebhookDelivery tracks the attempts to push one routed document to one
// webhook queue.
type WebhookDelivery struct {
	eventRecorder

	id            string
	tenantID      string
	documentID    string
	queueID       string
	attemptCount  int
	status        DeliveryStatus
	lastError     ErrorMessage
	lastAttemptAt *time.Time
	succeededAt   *time.Time
	version       int64
	createdAt     time.Time
	updatedAt     time.Time
}

func NewWebhookDelivery(id, tenantID, documentID, queueID string) (*WebhookDelivery, error) {
	const op = "create webhook delivery"
	if strings.TrimSpace(id) == "" || strings.TrimSpace(tenantID) == "" {
		return nil, invalidInput(op, "delivery id and tenant id are required")
	}
	if strings.TrimSpace(documentID) == "" || strings.TrimSpace(queueID) == "" {
		return nil, invalidInput(op, "document id and queue id are required")
	}
	now := timeNow()
	delivery := &WebhookDelivery{
		id:         id,
		tenantID:   tenantID,
		documentID: documentID,
		queueID:    queueID,
		status:     DeliveryPending,
		createdAt:  now,
		updatedAt:  now,
	}
	delivery.record(EventDeliveryEnqueued, tenantID, id, now,
		"document_id", documentID,
		"queue_id", queueID,
	)
	return delivery, nil
}

func (w *WebhookDelivery) ID() string { return w.id }
func (w *WebhookDelivery) TenantID() string { return w.tenantID }
func (w *WebhookDelivery) DocumentID() string { return w.documentID }
func (w *WebhookDelivery) QueueID() string { return w.queueID }
func (w *WebhookDelivery) AttemptCount() int { return w.attemptCount }
func (w *WebhookDelivery) Status() DeliveryStatus { return w.status }
func (w *WebhookDelivery) LastError() ErrorMessage { return w.lastError }
func (w *WebhookDelivery) Version() int64 { return w.version }
func (w *WebhookDelivery) CreatedAt() time.Time { return w.createdAt }
func (w *WebhookDelivery) UpdatedAt() time.Time { return w.updatedAt }

func (w *WebhookDelivery) LastAttemptAt() (time.Time, bool) {
	if w.lastAttemptAt == nil {
		return time.Time{}, false
	}
	return *w.lastAttemptAt, true
}

func (w *WebhookDelivery) SucceededAt() (time.Time, bool) {
	if w.succeededAt == nil {
		return time.Time{}, false
	}
	return *w.succeededAt, true
}

// RecordDeliveryAttempt counts an attempt from Pending. A failed attempt
// needs a non-empty message.
func (w *WebhookDelivery) RecordDeliveryAttempt(success bool, message ErrorMessage) error {
	const op = "record delivery attempt"
	if w.status != DeliveryPending {
		return invalidTransition(op, w.status, "pending")
	}
	if !success && message.IsZero() {
		return invalidInput(op, "error message is required for a failed attempt")
	}

	now := timeNow()
	w.attemptCount++
	w.lastAttemptAt = &now
	w.updatedAt = now
	attempt := strconv.Itoa(w.attemptCount)

	if success {
		w.status = DeliverySucceeded
		w.lastError = ErrorMessage{}
		w.succeededAt = &now
		w.record(EventDeliverySucceeded, w.tenantID, w.id, now, "document_id", w.documentID, "attempt", attempt)
		return nil
	}
	w.status = DeliveryFailed
	w.lastError = message
	w.record(EventDeliveryFailed, w.tenantID, w.id, now,
		"document_id", w.documentID,
		"attempt", attempt,
		"error", message.String(),
	)
	return nil
}

// CanRetry reports whether another attempt fits the retry budget.
func (w *WebhookDelivery) CanRetry(maxRetries int) bool {
	return w.attemptCount < maxRetries && w.status == DeliveryFailed
}

// RetryDelivery puts a Failed delivery back to Pending.
func (w *WebhookDelivery) RetryDelivery() error {
	if w.status != DeliveryFailed {
		return invalidTransition("retry delivery", w.status, "failed")
	}
	w.status = DeliveryPending
	w.lastError = ErrorMessage{}
	w.updatedAt = timeNow()

	w.record(EventDeliveryRetryScheduled, w.tenantID, w.id, w.updatedAt,
		"document_id", w.documentID,
		"attempt", strconv.Itoa(w.attemptCount),
	)
	return nil
}

// MarkDeadLetter parks a Failed delivery whose retry budget is spent.
func (w *WebhookDelivery) MarkDeadLetter(maxRetries int) error {
	const op = "mark delivery dead letter"
	if w.status != DeliveryFailed {
		return invalidTransition(op, w.status, "failed")
	}
	if w.CanRetry(maxRetries) {
		return invalidTransition(op, w.status, "an exhausted retry budget")
	}
	w.status = DeliveryDeadLetter
	w.updatedAt = timeNow()

	w.record(EventDeliveryDeadLettered, w.tenantID, w.id, w.updatedAt,
		"document_id", w.documentID,
		"attempts", strconv.Itoa(w.attemptCount),
	)
	return nil
}

// Requeue is the operator path out of DeadLetter. The attempt counter is
// reset so the delivery gets a fresh budget.
func (w *WebhookDelivery) Requeue() error {
	switch w.status {
	case DeliveryDeadLetter:
		w.status = DeliveryFailed
		w.attemptCount = 0
		return w.RetryDelivery()
	case DeliveryFailed:
		return w.RetryDelivery()
	default:
		return invalidTransition("requeue delivery", w.status, "failed or dead_letter")
	}
}

func (w *WebhookDelivery) SetVersion(version int64) {
	w.version = version
}

type DeliverySnapshot struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"`
	DocumentID    string         `json:"document_id"`
	QueueID       string         `json:"queue_id"`
	AttemptCount  int            `json:"attempt_count"`
	Status        DeliveryStatus `json:"status"`
	LastError     string         `json:"last_error,omitempty"`
	LastAttemptAt *time.Time     `json:"last_attempt_at,omitempty"`
	SucceededAt   *time.Time     `json:"succeeded_at,omitempty"`
	Version       int64          `json:"version"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (w *WebhookDelivery) Snapshot() DeliverySnapshot {
	return DeliverySnapshot{
		ID:            w.id,
		TenantID:      w.tenantID,
		DocumentID:    w.documentID,
		QueueID:       w.queueID,
		AttemptCount:  w.attemptCount,
		Status:        w.status,
		LastError:     w.lastError.String(),
		LastAttemptAt: w.lastAttemptAt,
		SucceededAt:   w.succeededAt,
		Version:       w.version,
		CreatedAt:     w.createdAt,
		UpdatedAt:     w.updatedAt,
	}
}

func RestoreDelivery(s DeliverySnapshot) (*WebhookDelivery, error) {
	status, err := ParseDeliveryStatus(string(s.Status))
	if err != nil {
		return nil, err
	}
	if s.AttemptCount < 0 {
		return nil, invalidInput("restore delivery", "attempt count cannot be negative")
	}
	w := &WebhookDelivery{
		id:            s.ID,
		tenantID:      s.TenantID,
		documentID:    s.DocumentID,
		queueID:       s.QueueID,
		attemptCount:  s.AttemptCount,
		status:        status,
		lastAttemptAt: s.LastAttemptAt,
		succeededAt:   s.SucceededAt,
		version:       s.Version,
		createdAt:     s.CreatedAt,
		updatedAt:     s.UpdatedAt,
	}
	if strings.TrimSpace(s.LastError) != "" {
		w.lastError = ErrorMessageFrom(errorString(s.LastError))
	}
	return w, nil
}
