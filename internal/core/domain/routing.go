package domain

import (
	"fmt"
	"maps"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

const (
	maxFolderPathLength      = 260
	MaxWebhookRetryAttempts  = 10
	DefaultWebhookRetries    = 3
	MinWebhookRetryDelay     = 1
	MaxWebhookRetryDelay     = 3600
	DefaultWebhookRetryDelay = 60
)

type QueueType string

const (
	QueueTypeFolder  QueueType = "folder"
	QueueTypeWebhook QueueType = "webhook"
)

func ParseQueueType(value string) (QueueType, error) {
	switch t := QueueType(strings.ToLower(strings.TrimSpace(value))); t {
	case QueueTypeFolder, QueueTypeWebhook:
		return t, nil
	default:
		return "", invalidInput("queue type", "unknown queue type %q", value)
	}
}

// FolderPath is a cleaned destination directory for folder queues.
type FolderPath struct {
	value string
}

func NewFolderPath(path string) (FolderPath, error) {
	const op = "folder path"
	if strings.TrimSpace(path) == "" {
		return FolderPath{}, invalidInput(op, "folder path cannot be empty")
	}
	if len(path) > maxFolderPathLength {
		return FolderPath{}, invalidInput(op, "folder path cannot exceed %d characters", maxFolderPathLength)
	}
	if strings.ContainsFunc(path, func(r rune) bool { return r < 32 }) {
		return FolderPath{}, invalidInput(op, "folder path contains invalid characters")
	}
	for _, pattern := range []string{"..", "~", "$", "|", "<", ">"} {
		if strings.Contains(path, pattern) {
			return FolderPath{}, invalidInput(op, "folder path %q looks suspicious", path)
		}
	}
	return FolderPath{value: filepath.Clean(path)}, nil
}

func (p FolderPath) String() string { return p.value }

// WebhookConfiguration describes how deliveries to a webhook queue are sent.
type WebhookConfiguration struct {
	url               string
	headers           map[string]string
	maxRetryAttempts  int
	retryDelaySeconds int
}

func NewWebhookConfiguration(rawURL string, headers map[string]string, maxRetryAttempts, retryDelaySeconds int) (WebhookConfiguration, error) {
	const op = "webhook configuration"
	if strings.TrimSpace(rawURL) == "" {
		return WebhookConfiguration{}, invalidInput(op, "webhook url cannot be empty")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return WebhookConfiguration{}, invalidInput(op, "webhook url %q must be an absolute http or https url", rawURL)
	}
	if maxRetryAttempts < 0 || maxRetryAttempts > MaxWebhookRetryAttempts {
		return WebhookConfiguration{}, invalidInput(op, "max retry attempts must be between 0 and %d", MaxWebhookRetryAttempts)
	}
	if retryDelaySeconds < MinWebhookRetryDelay || retryDelaySeconds > MaxWebhookRetryDelay {
		return WebhookConfiguration{}, invalidInput(op, "retry delay must be between %d and %d seconds", MinWebhookRetryDelay, MaxWebhookRetryDelay)
	}
	safe := make(map[string]string, len(headers))
	maps.Copy(safe, headers)
	return WebhookConfiguration{
		url:               rawURL,
		headers:           safe,
		maxRetryAttempts:  maxRetryAttempts,
		retryDelaySeconds: retryDelaySeconds,
	}, nil
}

func (w WebhookConfiguration) URL() string { return w.url }

func (w WebhookConfiguration) Headers() map[string]string { return maps.Clone(w.headers) }

func (w WebhookConfiguration) MaxRetryAttempts() int { return w.maxRetryAttempts }

func (w WebhookConfiguration) RetryDelay() time.Duration {
	return time.Duration(w.retryDelaySeconds) * time.Second
}

func (w WebhookConfiguration) String() string {
	return fmt.Sprintf("%s (max %d retries, %ds delay)", w.url, w.maxRetryAttempts, w.retryDelaySeconds)
}

// RoutingQueue is a destination for classified documents. Exactly one of
// folder or webhook is set, matching queueType.
type RoutingQueue struct {
	id          string
	tenantID    string
	name        string
	description string
	queueType   QueueType
	folder      *FolderPath
	webhook     *WebhookConfiguration
	isActive    bool
	createdAt   time.Time
	updatedAt   time.Time
}

func newRoutingQueue(id, tenantID, name, description string, queueType QueueType) (*RoutingQueue, error) {
	if strings.TrimSpace(id) == "" || strings.TrimSpace(tenantID) == "" {
		return nil, invalidInput("create queue", "queue id and tenant id are required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, invalidInput("create queue", "queue name is required")
	}
	now := timeNow()
	return &RoutingQueue{
		id:          id,
		tenantID:    tenantID,
		name:        strings.TrimSpace(name),
		description: strings.TrimSpace(description),
		queueType:   queueType,
		isActive:    true,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

func CreateFolderQueue(id, tenantID, name, description string, folder FolderPath) (*RoutingQueue, error) {
	if folder.String() == "" {
		return nil, invalidInput("create folder queue", "folder path is required")
	}
	queue, err := newRoutingQueue(id, tenantID, name, description, QueueTypeFolder)
	if err != nil {
		return nil, err
	}
	queue.folder = &folder
	return queue, nil
}

func CreateWebhookQueue(id, tenantID, name, description string, webhook WebhookConfiguration) (*RoutingQueue, error) {
	if webhook.URL() == "" {
		return nil, invalidInput("create webhook queue", "webhook configuration is required")
	}
	queue, err := newRoutingQueue(id, tenantID, name, description, QueueTypeWebhook)
	if err != nil {
		return nil, err
	}
	queue.webhook = &webhook
	return queue, nil
}

// UpdateDestination replaces the destination matching the queue type.
func (q *RoutingQueue) UpdateDestination(folder *FolderPath, webhook *WebhookConfiguration) error {
	switch q.queueType {
	case QueueTypeFolder:
		if folder == nil {
			return invalidInput("update destination", "folder path is required for a folder queue")
		}
		q.folder, q.webhook = folder, nil
	case QueueTypeWebhook:
		if webhook == nil {
			return invalidInput("update destination", "webhook configuration is required for a webhook queue")
		}
		q.webhook, q.folder = webhook, nil
	}
	q.updatedAt = timeNow()
	return nil
}

func (q *RoutingQueue) Activate() {
	q.isActive = true
	q.updatedAt = timeNow()
}

func (q *RoutingQueue) Deactivate() {
	q.isActive = false
	q.updatedAt = timeNow()
}

func (q *RoutingQueue) ID() string { return q.id }
func (q *RoutingQueue) TenantID() string { return q.tenantID }
func (q *RoutingQueue) Name() string { return q.name }
func (q *RoutingQueue) Description() string { return q.description }
func (q *RoutingQueue) Type() QueueType { return q.queueType }
func (q *RoutingQueue) IsActive() bool { return q.isActive }
func (q *RoutingQueue) CreatedAt() time.Time { return q.createdAt }
func (q *RoutingQueue) UpdatedAt() time.Time { return q.updatedAt }

func (q *RoutingQueue) Folder() (FolderPath, bool) {
	if q.folder == nil {
		return FolderPath{}, false
	}
	return *q.folder, true
}

func (q *RoutingQueue) Webhook() (WebhookConfiguration, bool) {
	if q.webhook == nil {
		return WebhookConfiguration{}, false
	}
	return *q.webhook, true
}

type WebhookSnapshot struct {
	URL               string            `json:"url" yaml:"url"`
	Headers           map[string]string `json:"headers,omitempty" yaml:"headers"`
	MaxRetryAttempts  int               `json:"max_retry_attempts" yaml:"max_retry_attempts"`
	RetryDelaySeconds int               `json:"retry_delay_seconds" yaml:"retry_delay_seconds"`
}

type QueueSnapshot struct {
	ID          string           `json:"id"`
	TenantID    string           `json:"tenant_id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Type        QueueType        `json:"type"`
	FolderPath  string           `json:"folder_path,omitempty"`
	Webhook     *WebhookSnapshot `json:"webhook,omitempty"`
	IsActive    bool             `json:"is_active"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func (q *RoutingQueue) Snapshot() QueueSnapshot {
	s := QueueSnapshot{
		ID:          q.id,
		TenantID:    q.tenantID,
		Name:        q.name,
		Description: q.description,
		Type:        q.queueType,
		IsActive:    q.isActive,
		CreatedAt:   q.createdAt,
		UpdatedAt:   q.updatedAt,
	}
	if q.folder != nil {
		s.FolderPath = q.folder.String()
	}
	if q.webhook != nil {
		s.Webhook = &WebhookSnapshot{
			URL:               q.webhook.url,
			Headers:           q.webhook.Headers(),
			MaxRetryAttempts:  q.webhook.maxRetryAttempts,
			RetryDelaySeconds: q.webhook.retryDelaySeconds,
		}
	}
	return s
}

func RestoreQueue(s QueueSnapshot) (*RoutingQueue, error) {
	queueType, err := ParseQueueType(string(s.Type))
	if err != nil {
		return nil, err
	}
	q := &RoutingQueue{
		id:          s.ID,
		tenantID:    s.TenantID,
		name:        s.Name,
		description: s.Description,
		queueType:   queueType,
		isActive:    s.IsActive,
		createdAt:   s.CreatedAt,
		updatedAt:   s.UpdatedAt,
	}
	switch queueType {
	case QueueTypeFolder:
		folder, err := NewFolderPath(s.FolderPath)
		if err != nil {
			return nil, err
		}
		q.folder = &folder
	case QueueTypeWebhook:
		if s.Webhook == nil {
			return nil, invalidInput("restore queue", "webhook queue %s has no configuration", s.ID)
		}
		webhook, err := s.Webhook.Build()
		if err != nil {
			return nil, err
		}
		q.webhook = &webhook
	}
	return q, nil
}

// Build validates the snapshot, applying defaults for unset retry settings.
func (s WebhookSnapshot) Build() (WebhookConfiguration, error) {
	delay := s.RetryDelaySeconds
	if delay == 0 {
		delay = DefaultWebhookRetryDelay
	}
	return NewWebhookConfiguration(s.URL, s.Headers, s.MaxRetryAttempts, delay)
}
