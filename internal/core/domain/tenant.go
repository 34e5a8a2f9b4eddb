package domain

import (
	"strings"
	"time"
)

const (
	MinRetentionDays       = 30
	MaxRetentionDays       = 3650
	DefaultRetentionDays   = 365
	MinSignatureKeyLength  = 32
	MaxSignatureKeyLength  = 256
	quotaExceededReason    = "quota exceeded"
	defaultMaxDocuments    = 10000
	defaultMaxStorageBytes = 10 << 30
)

// TenantQuota bounds how much a tenant may store. Usage updates block and
// unblock uploads automatically; a manual block survives usage updates.
type TenantQuota struct {
	maxDocuments        int
	maxStorageBytes     int64
	currentDocuments    int
	currentStorageBytes int64
	isBlocked           bool
	blockReason         string
}

func NewTenantQuota(maxDocuments int, maxStorageBytes int64) (TenantQuota, error) {
	if err := validateQuotaLimits(maxDocuments, maxStorageBytes); err != nil {
		return TenantQuota{}, err
	}
	return TenantQuota{maxDocuments: maxDocuments, maxStorageBytes: maxStorageBytes}, nil
}

func DefaultTenantQuota() TenantQuota {
	return TenantQuota{maxDocuments: defaultMaxDocuments, maxStorageBytes: defaultMaxStorageBytes}
}

func validateQuotaLimits(maxDocuments int, maxStorageBytes int64) error {
	if maxDocuments <= 0 {
		return invalidInput("tenant quota", "max documents must be greater than zero")
	}
	if maxStorageBytes <= 0 {
		return invalidInput("tenant quota", "max storage must be greater than zero")
	}
	return nil
}

func (q TenantQuota) MaxDocuments() int { return q.maxDocuments }
func (q TenantQuota) MaxStorageBytes() int64 { return q.maxStorageBytes }
func (q TenantQuota) CurrentDocuments() int { return q.currentDocuments }
func (q TenantQuota) CurrentStorageBytes() int64 { return q.currentStorageBytes }
func (q TenantQuota) IsBlocked() bool { return q.isBlocked }
func (q TenantQuota) BlockReason() string { return q.blockReason }

// IsQuotaExceeded is true once either axis reaches its limit.
func (q TenantQuota) IsQuotaExceeded() bool {
	return q.currentDocuments >= q.maxDocuments || q.currentStorageBytes >= q.maxStorageBytes
}

// CanAccept reports whether an upload of sizeBytes fits the remaining quota.
func (q TenantQuota) CanAccept(sizeBytes int64) bool {
	if q.isBlocked || q.IsQuotaExceeded() {
		return false
	}
	return q.currentStorageBytes+sizeBytes <= q.maxStorageBytes
}

func (q *TenantQuota) UpdateUsage(documents int, storageBytes int64) {
	q.currentDocuments = max(documents, 0)
	q.currentStorageBytes = max(storageBytes, 0)
	q.syncBlock()
}

func (q *TenantQuota) UpdateLimits(maxDocuments int, maxStorageBytes int64) error {
	if err := validateQuotaLimits(maxDocuments, maxStorageBytes); err != nil {
		return err
	}
	q.maxDocuments = maxDocuments
	q.maxStorageBytes = maxStorageBytes
	q.syncBlock()
	return nil
}

func (q *TenantQuota) Block(reason string) {
	q.isBlocked = true
	q.blockReason = strings.TrimSpace(reason)
	if q.blockReason == "" {
		q.blockReason = "blocked by operator"
	}
}

func (q *TenantQuota) Unblock() {
	q.isBlocked = false
	q.blockReason = ""
}

func (q *TenantQuota) syncBlock() {
	switch {
	case q.IsQuotaExceeded():
		if !q.isBlocked {
			q.isBlocked = true
			q.blockReason = quotaExceededReason
		}
	case q.isBlocked && q.blockReason == quotaExceededReason:
		q.Unblock()
	}
}

// TenantSettings holds per-tenant tunables.
type TenantSettings struct {
	retentionDays       int
	webhookSignatureKey string
	maxFileSizeBytes    int64
}

func NewTenantSettings(retentionDays int, webhookSignatureKey string, maxFileSizeBytes int64) (TenantSettings, error) {
	const op = "tenant settings"
	if retentionDays == 0 {
		retentionDays = DefaultRetentionDays
	}
	if retentionDays < MinRetentionDays || retentionDays > MaxRetentionDays {
		return TenantSettings{}, invalidInput(op, "retention days must be between %d and %d", MinRetentionDays, MaxRetentionDays)
	}
	key := strings.TrimSpace(webhookSignatureKey)
	if key != "" && (len(key) < MinSignatureKeyLength || len(key) > MaxSignatureKeyLength) {
		return TenantSettings{}, invalidInput(op, "webhook signature key must be between %d and %d characters", MinSignatureKeyLength, MaxSignatureKeyLength)
	}
	if maxFileSizeBytes == 0 {
		maxFileSizeBytes = MaxFileSizeBytes
	}
	if maxFileSizeBytes < 0 || maxFileSizeBytes > MaxFileSizeBytes {
		return TenantSettings{}, invalidInput(op, "max file size must be between 1 and %d bytes", MaxFileSizeBytes)
	}
	return TenantSettings{
		retentionDays:       retentionDays,
		webhookSignatureKey: key,
		maxFileSizeBytes:    maxFileSizeBytes,
	}, nil
}

func DefaultTenantSettings() TenantSettings {
	return TenantSettings{retentionDays: DefaultRetentionDays, maxFileSizeBytes: MaxFileSizeBytes}
}

func (s TenantSettings) RetentionDays() int { return s.retentionDays }
func (s TenantSettings) WebhookSignatureKey() string { return s.webhookSignatureKey }
func (s TenantSettings) MaxFileSizeBytes() int64 { return s.maxFileSizeBytes }

// RetentionCutoff returns the upload time before which documents expire.
func (s TenantSettings) RetentionCutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -s.retentionDays)
}

// SigningKey picks the tenant key, falling back to the process-wide secret.
func (s TenantSettings) SigningKey(fallback string) string {
	if s.webhookSignatureKey != "" {
		return s.webhookSignatureKey
	}
	return fallback
}

// Tenant groups the quota and settings of one tenant.
type Tenant struct {
	id        string
	name      string
	quota     TenantQuota
	settings  TenantSettings
	version   int64
	createdAt time.Time
	updatedAt time.Time
}

func NewTenant(id, name string, quota TenantQuota, settings TenantSettings) (*Tenant, error) {
	if strings.TrimSpace(id) == "" {
		return nil, invalidInput("create tenant", "tenant id is required")
	}
	if strings.TrimSpace(name) == "" {
		name = id
	}
	now := timeNow()
	return &Tenant{
		id:        id,
		name:      strings.TrimSpace(name),
		quota:     quota,
		settings:  settings,
		createdAt: now,
		updatedAt: now,
	}, nil
}

func (t *Tenant) ID() string { return t.id }
func (t *Tenant) Name() string { return t.name }
func (t *Tenant) Quota() TenantQuota { return t.quota }
func (t *Tenant) Settings() TenantSettings { return t.settings }
func (t *Tenant) Version() int64 { return t.version }
func (t *Tenant) CreatedAt() time.Time { return t.createdAt }
func (t *Tenant) UpdatedAt() time.Time { return t.updatedAt }

func (t *Tenant) SetVersion(version int64) {
	t.version = version
}

// CheckUpload fails with ErrQuotaExceeded when the tenant may not accept
// another document of the given size.
func (t *Tenant) CheckUpload(size FileSize) error {
	const op = "check upload"
	if size.Bytes() > t.settings.maxFileSizeBytes {
		return invalidInput(op, "file size %d exceeds tenant limit of %d bytes", size.Bytes(), t.settings.maxFileSizeBytes)
	}
	if t.quota.isBlocked {
		return WrapError(ErrQuotaExceeded, op, errorString("tenant "+t.id+" is blocked: "+t.quota.blockReason))
	}
	if !t.quota.CanAccept(size.Bytes()) {
		return WrapError(ErrQuotaExceeded, op, errorString("tenant "+t.id+" has no remaining quota"))
	}
	return nil
}

// RecordUpload adds one document of the given size to the usage counters.
func (t *Tenant) RecordUpload(size FileSize) {
	t.quota.UpdateUsage(t.quota.currentDocuments+1, t.quota.currentStorageBytes+size.Bytes())
	t.updatedAt = timeNow()
}

func (t *Tenant) UpdateUsage(documents int, storageBytes int64) {
	t.quota.UpdateUsage(documents, storageBytes)
	t.updatedAt = timeNow()
}

func (t *Tenant) UpdateLimits(maxDocuments int, maxStorageBytes int64) error {
	if err := t.quota.UpdateLimits(maxDocuments, maxStorageBytes); err != nil {
		return err
	}
	t.updatedAt = timeNow()
	return nil
}

func (t *Tenant) Block(reason string) {
	t.quota.Block(reason)
	t.updatedAt = timeNow()
}

func (t *Tenant) Unblock() {
	t.quota.Unblock()
	t.updatedAt = timeNow()
}

func (t *Tenant) UpdateSettings(settings TenantSettings) {
	t.settings = settings
	t.updatedAt = timeNow()
}

type TenantSnapshot struct {
	ID                  string    `json:"id" yaml:"id"`
	Name                string    `json:"name" yaml:"name"`
	MaxDocuments        int       `json:"max_documents" yaml:"max_documents"`
	MaxStorageBytes     int64     `json:"max_storage_bytes" yaml:"max_storage_bytes"`
	CurrentDocuments    int       `json:"current_documents" yaml:"-"`
	CurrentStorageBytes int64     `json:"current_storage_bytes" yaml:"-"`
	IsBlocked           bool      `json:"is_blocked" yaml:"-"`
	BlockReason         string    `json:"block_reason,omitempty" yaml:"-"`
	RetentionDays       int       `json:"retention_days" yaml:"retention_days"`
	WebhookSignatureKey string    `json:"-" yaml:"webhook_signature_key"`
	MaxFileSizeBytes    int64     `json:"max_file_size_bytes" yaml:"max_file_size_bytes"`
	Version             int64     `json:"version" yaml:"-"`
	CreatedAt           time.Time `json:"created_at" yaml:"-"`
	UpdatedAt           time.Time `json:"updated_at" yaml:"-"`
}

func (t *Tenant) Snapshot() TenantSnapshot {
	return TenantSnapshot{
		ID:                  t.id,
		Name:                t.name,
		MaxDocuments:        t.quota.maxDocuments,
		MaxStorageBytes:     t.quota.maxStorageBytes,
		CurrentDocuments:    t.quota.currentDocuments,
		CurrentStorageBytes: t.quota.currentStorageBytes,
		IsBlocked:           t.quota.isBlocked,
		BlockReason:         t.quota.blockReason,
		RetentionDays:       t.settings.retentionDays,
		WebhookSignatureKey: t.settings.webhookSignatureKey,
		MaxFileSizeBytes:    t.settings.maxFileSizeBytes,
		Version:             t.version,
		CreatedAt:           t.createdAt,
		UpdatedAt:           t.updatedAt,
	}
}

// RestoreTenant rebuilds a tenant. Zero limits fall back to defaults.
func RestoreTenant(s TenantSnapshot) (*Tenant, error) {
	if strings.TrimSpace(s.ID) == "" {
		return nil, invalidInput("restore tenant", "tenant id is required")
	}
	quota := DefaultTenantQuota()
	if s.MaxDocuments != 0 || s.MaxStorageBytes != 0 {
		var err error
		quota, err = NewTenantQuota(s.MaxDocuments, s.MaxStorageBytes)
		if err != nil {
			return nil, err
		}
	}
	quota.currentDocuments = s.CurrentDocuments
	quota.currentStorageBytes = s.CurrentStorageBytes
	quota.isBlocked = s.IsBlocked
	quota.blockReason = s.BlockReason

	settings, err := NewTenantSettings(s.RetentionDays, s.WebhookSignatureKey, s.MaxFileSizeBytes)
	if err != nil {
		return nil, err
	}
	name := s.Name
	if strings.TrimSpace(name) == "" {
		name = s.ID
	}
	return &Tenant{
		id:        s.ID,
		name:      name,
		quota:     quota,
		settings:  settings,
		version:   s.Version,
		createdAt: s.CreatedAt,
		updatedAt: s.UpdatedAt,
	}, nil
}
