package domain

import (
	"strconv"
	"strings"
	"time"
)

type DocumentStatus string

const (
	StatusPending     DocumentStatus = "pending"
	StatusClassifying DocumentStatus = "classifying"
	StatusClassified  DocumentStatus = "classified"
	StatusRouted      DocumentStatus = "routed"
	StatusFailed      DocumentStatus = "failed"
	StatusDeadLetter  DocumentStatus = "dead_letter"
	StatusExpired     DocumentStatus = "expired"
)

func ParseDocumentStatus(value string) (DocumentStatus, error) {
	switch status := DocumentStatus(strings.ToLower(strings.TrimSpace(value))); status {
	case StatusPending, StatusClassifying, StatusClassified, StatusRouted, StatusFailed, StatusDeadLetter, StatusExpired:
		return status, nil
	default:
		return "", invalidInput("document status", "unknown document status %q", value)
	}
}

// IsTerminal reports whether no further lifecycle transitions are allowed.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusRouted || s == StatusDeadLetter || s == StatusExpired
}

var timeNow = func() time.Time { return time.Now().UTC() }

// Document is the aggregate root for an uploaded file. All mutation goes
// through its methods, which guard the lifecycle state machine.
type Document struct {
	eventRecorder

	id              string
	tenantID        string
	fileName        FileName
	fileSize        FileSize
	mimeType        MimeType
	blob            BlobReference
	status          DocumentStatus
	tags            []Tag
	history         []ClassificationHistoryEntry
	lastError       ErrorMessage
	routedToQueueID string
	retryCount      int
	pageCount       int
	aiSuggestion    *AiSuggestion
	version         int64
	uploadedAt      time.Time
	updatedAt       time.Time
}

// RegisterUpload creates a Pending document for validated upload metadata.
func RegisterUpload(id, tenantID string, fileName FileName, fileSize FileSize, mimeType MimeType, blob BlobReference) (*Document, error) {
	const op = "register upload"
	if strings.TrimSpace(id) == "" {
		return nil, invalidInput(op, "document id is required")
	}
	if strings.TrimSpace(tenantID) == "" {
		return nil, invalidInput(op, "tenant id is required")
	}
	if fileName.IsZero() || mimeType.String() == "" || blob.Blob() == "" {
		return nil, invalidInput(op, "file name, mime type and blob reference are required")
	}

	now := timeNow()
	doc := &Document{
		id:         id,
		tenantID:   tenantID,
		fileName:   fileName,
		fileSize:   fileSize,
		mimeType:   mimeType,
		blob:       blob,
		status:     StatusPending,
		uploadedAt: now,
		updatedAt:  now,
	}
	doc.record(EventDocumentUploaded, tenantID, id, now,
		"file_name", fileName.String(),
		"size_bytes", strconv.FormatInt(fileSize.Bytes(), 10),
		"mime_type", mimeType.String(),
		"blob", blob.String(),
	)
	return doc, nil
}

func (d *Document) ID() string { return d.id }
func (d *Document) TenantID() string { return d.tenantID }
func (d *Document) FileName() FileName { return d.fileName }
func (d *Document) FileSize() FileSize { return d.fileSize }
func (d *Document) MimeType() MimeType { return d.mimeType }
func (d *Document) Blob() BlobReference { return d.blob }
func (d *Document) Status() DocumentStatus { return d.status }
func (d *Document) LastError() ErrorMessage { return d.lastError }
func (d *Document) RoutedToQueueID() string { return d.routedToQueueID }
func (d *Document) RetryCount() int { return d.retryCount }
func (d *Document) PageCount() int { return d.pageCount }
func (d *Document) AiSuggestion() *AiSuggestion { return d.aiSuggestion }
func (d *Document) Version() int64 { return d.version }
func (d *Document) UploadedAt() time.Time { return d.uploadedAt }
func (d *Document) UpdatedAt() time.Time { return d.updatedAt }
func (d *Document) Tags() []Tag { return append([]Tag(nil), d.tags...) }
func (d *Document) History() []ClassificationHistoryEntry {
	return append([]ClassificationHistoryEntry(nil), d.history...)
}

func (d *Document) TagNames() []string {
	out := make([]string, 0, len(d.tags))
	for _, tag := range d.tags {
		out = append(out, tag.Name().String())
	}
	return out
}

func (d *Document) HasTag(name TagName) bool {
	for _, tag := range d.tags {
		if tag.Name().EqualFold(name) {
			return true
		}
	}
	return false
}

// SetPageCount records the page count detected at ingest.
func (d *Document) SetPageCount(pages int) {
	if pages < 0 {
		pages = 0
	}
	d.pageCount = pages
}

// BeginClassification claims a Pending document for evaluation.
func (d *Document) BeginClassification() error {
	if d.status != StatusPending {
		return invalidTransition("begin classification", d.status, "pending")
	}
	d.status = StatusClassifying
	d.touch()
	return nil
}

// ApplyClassificationResult moves a Pending or Classifying document to
// Classified. Duplicate tag names collapse to the first occurrence.
func (d *Document) ApplyClassificationResult(tags []Tag, history []ClassificationHistoryEntry) error {
	const op = "apply classification result"
	if d.status != StatusPending && d.status != StatusClassifying {
		return invalidTransition(op, d.status, "pending")
	}
	if len(tags) == 0 {
		return invalidInput(op, "at least one tag must be applied during classification")
	}

	for _, tag := range tags {
		if d.HasTag(tag.Name()) {
			continue
		}
		d.tags = append(d.tags, tag)
	}
	d.history = append(d.history, history...)
	d.status = StatusClassified
	d.lastError = ErrorMessage{}
	d.touch()

	d.record(EventDocumentClassified, d.tenantID, d.id, d.updatedAt, "tags", strings.Join(d.TagNames(), ","))
	return nil
}

// RecordClassificationFailure marks the document Failed from any
// non-terminal state and counts the failure toward the retry budget.
func (d *Document) RecordClassificationFailure(message ErrorMessage) error {
	const op = "record classification failure"
	if message.IsZero() {
		return invalidInput(op, "error message is required")
	}
	if d.status.IsTerminal() {
		return invalidTransition(op, d.status, "a non-terminal status")
	}
	d.status = StatusFailed
	d.lastError = message
	d.retryCount++
	d.touch()

	d.record(EventDocumentClassificationFailed, d.tenantID, d.id, d.updatedAt,
		"error", message.String(),
		"retry_count", strconv.Itoa(d.retryCount),
	)
	return nil
}

// CanRetry reports whether another classification attempt is allowed.
func (d *Document) CanRetry(maxRetries int) bool {
	return d.retryCount < maxRetries && d.status == StatusFailed
}

// RetryClassification resets a Failed document back to Pending.
func (d *Document) RetryClassification() error {
	if d.status != StatusFailed {
		return invalidTransition("retry classification", d.status, "failed")
	}
	d.tags = nil
	d.history = nil
	d.lastError = ErrorMessage{}
	d.routedToQueueID = ""
	d.status = StatusPending
	d.touch()

	d.record(EventDocumentRetryInitiated, d.tenantID, d.id, d.updatedAt, "retry_count", strconv.Itoa(d.retryCount))
	return nil
}

func (d *Document) SendToDeadLetter() error {
	if d.status != StatusFailed {
		return invalidTransition("send to dead letter", d.status, "failed")
	}
	d.status = StatusDeadLetter
	d.touch()

	d.record(EventDocumentDeadLettered, d.tenantID, d.id, d.updatedAt, "retry_count", strconv.Itoa(d.retryCount))
	return nil
}

func (d *Document) MarkAsRouted(queueID string) error {
	const op = "mark as routed"
	if strings.TrimSpace(queueID) == "" {
		return invalidInput(op, "queue id is required")
	}
	if d.status != StatusClassified {
		return invalidTransition(op, d.status, "classified")
	}
	d.routedToQueueID = queueID
	d.status = StatusRouted
	d.touch()

	d.record(EventDocumentRouted, d.tenantID, d.id, d.updatedAt, "queue_id", queueID)
	return nil
}

// MarkAsExpired applies the tenant retention policy.
func (d *Document) MarkAsExpired() error {
	if d.status == StatusExpired {
		return invalidTransition("mark as expired", d.status, "a non-expired status")
	}
	d.status = StatusExpired
	d.touch()

	d.record(EventDocumentExpired, d.tenantID, d.id, d.updatedAt, "blob", d.blob.String())
	return nil
}

// AddManualTag is a no-op when a tag with the same name already exists.
func (d *Document) AddManualTag(name TagName) {
	if d.HasTag(name) {
		return
	}
	d.tags = append(d.tags, NewManualTag(name))
	d.touch()

	d.record(EventManualTagAdded, d.tenantID, d.id, d.updatedAt, "tag", name.String())
}

func (d *Document) RemoveManualTag(name TagName) error {
	for i, tag := range d.tags {
		if tag.Source() == TagSourceManual && tag.Name().EqualFold(name) {
			d.tags = append(d.tags[:i], d.tags[i+1:]...)
			d.touch()
			d.record(EventManualTagRemoved, d.tenantID, d.id, d.updatedAt, "tag", name.String())
			return nil
		}
	}
	return invalidInput("remove manual tag", "manual tag %q not found on document", name.String())
}

func (d *Document) StoreAiSuggestion(suggestion *AiSuggestion) error {
	const op = "store ai suggestion"
	if suggestion == nil {
		return invalidInput(op, "suggestion is required")
	}
	if d.status.IsTerminal() {
		return invalidTransition(op, d.status, "a non-terminal status")
	}
	d.aiSuggestion = suggestion
	d.touch()

	d.record(EventAiSuggestionGenerated, d.tenantID, d.id, d.updatedAt,
		"confidence", strconv.FormatFloat(suggestion.Confidence().Value(), 'f', 2, 64),
		"tags", strconv.Itoa(len(suggestion.Tags())),
	)
	return nil
}

// ApplyAiSuggestions adds stored suggested tags at or above minConfidence and
// returns how many were added.
func (d *Document) ApplyAiSuggestions(minConfidence ConfidenceScore) (int, error) {
	if d.aiSuggestion == nil {
		return 0, invalidTransition("apply ai suggestions", d.status, "a stored ai suggestion")
	}
	added := 0
	for _, suggested := range d.aiSuggestion.Tags() {
		if suggested.Confidence.Value() < minConfidence.Value() || d.HasTag(suggested.TagName) {
			continue
		}
		d.tags = append(d.tags, NewAiAppliedTag(suggested.TagName, suggested.Confidence))
		added++
	}
	if added > 0 {
		d.touch()
		d.record(EventAiSuggestionsApplied, d.tenantID, d.id, d.updatedAt, "added", strconv.Itoa(added))
	}
	return added, nil
}

func (d *Document) touch() {
	d.updatedAt = timeNow()
}

// DocumentSnapshot is the storage and transport form of a Document.
type DocumentSnapshot struct {
	ID              string                 `json:"id"`
	TenantID        string                 `json:"tenant_id"`
	FileName        string                 `json:"file_name"`
	SizeBytes       int64                  `json:"size_bytes"`
	MimeType        string                 `json:"mime_type"`
	BlobContainer   string                 `json:"blob_container"`
	BlobName        string                 `json:"blob_name"`
	Status          DocumentStatus         `json:"status"`
	Tags            []TagSnapshot          `json:"tags"`
	History         []HistoryEntrySnapshot `json:"classification_history"`
	LastError       string                 `json:"last_error,omitempty"`
	RoutedToQueueID string                 `json:"routed_to_queue_id,omitempty"`
	RetryCount      int                    `json:"retry_count"`
	PageCount       int                    `json:"page_count,omitempty"`
	AiSuggestion    *AiSuggestionSnapshot  `json:"ai_suggestion,omitempty"`
	Version         int64                  `json:"version"`
	UploadedAt      time.Time              `json:"uploaded_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

func (d *Document) Snapshot() DocumentSnapshot {
	s := DocumentSnapshot{
		ID:              d.id,
		TenantID:        d.tenantID,
		FileName:        d.fileName.String(),
		SizeBytes:       d.fileSize.Bytes(),
		MimeType:        d.mimeType.String(),
		BlobContainer:   d.blob.Container(),
		BlobName:        d.blob.Blob(),
		Status:          d.status,
		Tags:            make([]TagSnapshot, 0, len(d.tags)),
		History:         make([]HistoryEntrySnapshot, 0, len(d.history)),
		LastError:       d.lastError.String(),
		RoutedToQueueID: d.routedToQueueID,
		RetryCount:      d.retryCount,
		PageCount:       d.pageCount,
		Version:         d.version,
		UploadedAt:      d.uploadedAt,
		UpdatedAt:       d.updatedAt,
	}
	for _, tag := range d.tags {
		s.Tags = append(s.Tags, tag.Snapshot())
	}
	for _, entry := range d.history {
		s.History = append(s.History, entry.Snapshot())
	}
	if d.aiSuggestion != nil {
		suggestion := d.aiSuggestion.Snapshot()
		s.AiSuggestion = &suggestion
	}
	return s
}

// RestoreDocument rebuilds a Document from storage without recording events.
func RestoreDocument(s DocumentSnapshot) (*Document, error) {
	fileName, err := NewFileName(s.FileName)
	if err != nil {
		return nil, err
	}
	fileSize, err := NewFileSize(s.SizeBytes)
	if err != nil {
		return nil, err
	}
	mimeType, err := NewMimeType(s.MimeType)
	if err != nil {
		return nil, err
	}
	blob, err := NewBlobReference(s.BlobContainer, s.BlobName)
	if err != nil {
		return nil, err
	}
	status, err := ParseDocumentStatus(string(s.Status))
	if err != nil {
		return nil, err
	}

	doc := &Document{
		id:              s.ID,
		tenantID:        s.TenantID,
		fileName:        fileName,
		fileSize:        fileSize,
		mimeType:        mimeType,
		blob:            blob,
		status:          status,
		routedToQueueID: s.RoutedToQueueID,
		retryCount:      s.RetryCount,
		pageCount:       s.PageCount,
		version:         s.Version,
		uploadedAt:      s.UploadedAt,
		updatedAt:       s.UpdatedAt,
	}
	if strings.TrimSpace(s.LastError) != "" {
		doc.lastError = ErrorMessageFrom(errorString(s.LastError))
	}
	for _, raw := range s.Tags {
		tag, err := RestoreTag(raw)
		if err != nil {
			return nil, err
		}
		doc.tags = append(doc.tags, tag)
	}
	for _, raw := range s.History {
		entry, err := RestoreClassificationHistoryEntry(raw)
		if err != nil {
			return nil, err
		}
		doc.history = append(doc.history, entry)
	}
	if s.AiSuggestion != nil {
		suggestion, err := RestoreAiSuggestion(*s.AiSuggestion)
		if err != nil {
			return nil, err
		}
		doc.aiSuggestion = suggestion
	}
	return doc, nil
}

// SetVersion stores the concurrency token a repository assigned after a write.
func (d *Document) SetVersion(version int64) {
	d.version = version
}

type errorString string

func (e errorString) Error() string { return string(e) }
