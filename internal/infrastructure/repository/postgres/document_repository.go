package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
)

const documentColumns = `id, tenant_id, file_name, size_bytes, mime_type, blob_container, blob_name, status, tags,
	classification_history, last_error, routed_to_queue_id, retry_count, page_count, ai_suggestion, version,
	uploaded_at, updated_at`

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	s := doc.Snapshot()
	tags, history, suggestion, err := encodeDocumentJSON(s)
	if err != nil {
		return err
	}
	events := doc.PullEvents()

	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
`,
			s.ID, s.TenantID, s.FileName, s.SizeBytes, s.MimeType, s.BlobContainer, s.BlobName, string(s.Status),
			tags, history, nullString(s.LastError), nullString(s.RoutedToQueueID), s.RetryCount, s.PageCount,
			suggestion, int64(1), s.UploadedAt, s.UpdatedAt,
		)
		if err != nil {
			return mapError("insert document", err, domain.ErrDocumentNotFound)
		}
		return insertEvents(ctx, tx, events)
	})
	if err != nil {
		return err
	}
	doc.SetVersion(1)
	return nil
}

func (r *DocumentRepository) Update(ctx context.Context, doc *domain.Document) error {
	s := doc.Snapshot()
	tags, history, suggestion, err := encodeDocumentJSON(s)
	if err != nil {
		return err
	}
	events := doc.PullEvents()

	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		err := execExpectOne(ctx, tx, `
UPDATE documents
SET status = $4, tags = $5, classification_history = $6, last_error = $7, routed_to_queue_id = $8,
	retry_count = $9, page_count = $10, ai_suggestion = $11, updated_at = $12, version = version + 1
WHERE tenant_id = $1 AND id = $2 AND version = $3
`,
			s.TenantID, s.ID, s.Version, string(s.Status), tags, history, nullString(s.LastError),
			nullString(s.RoutedToQueueID), s.RetryCount, s.PageCount, suggestion, s.UpdatedAt,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return checkVersion(ctx, tx, "update document", "documents", s.TenantID, s.ID, s.Version, domain.ErrDocumentNotFound)
		}
		if err != nil {
			return mapError("update document", err, domain.ErrDocumentNotFound)
		}
		return insertEvents(ctx, tx, events)
	})
	if err != nil {
		return err
	}
	doc.SetVersion(s.Version + 1)
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE tenant_id = $1 AND id = $2
`, tenantID, id)

	doc, err := scanDocument(row)
	if err != nil {
		return nil, mapError("get document", err, domain.ErrDocumentNotFound)
	}
	return doc, nil
}

func (r *DocumentRepository) ListByStatus(ctx context.Context, tenantID string, status domain.DocumentStatus, limit int) ([]*domain.Document, error) {
	docs, err := queryMany(ctx, r.db, `
SELECT `+documentColumns+`
FROM documents
WHERE tenant_id = $1 AND status = $2
ORDER BY uploaded_at, id
LIMIT NULLIF($3, 0)
`, []any{tenantID, string(status), limit}, scanDocument)
	if err != nil {
		return nil, fmt.Errorf("list documents by status: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) ListExpired(ctx context.Context, tenantID string, uploadedBefore time.Time, limit int) ([]*domain.Document, error) {
	docs, err := queryMany(ctx, r.db, `
SELECT `+documentColumns+`
FROM documents
WHERE tenant_id = $1 AND status <> $2 AND uploaded_at < $3
ORDER BY uploaded_at, id
LIMIT NULLIF($4, 0)
`, []any{tenantID, string(domain.StatusExpired), uploadedBefore, limit}, scanDocument)
	if err != nil {
		return nil, fmt.Errorf("list expired documents: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) Search(ctx context.Context, tenantID string, filter domain.DocumentFilter, page domain.PageRequest) (domain.PageResult[*domain.Document], error) {
	page = page.Normalize()
	where, args := documentWhere(tenantID, filter)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE `+where, args...).Scan(&total); err != nil {
		return domain.PageResult[*domain.Document]{}, fmt.Errorf("count documents: %w", err)
	}

	args = append(args, page.PageSize, page.Offset())
	query := fmt.Sprintf(`
SELECT %s
FROM documents
WHERE %s
ORDER BY uploaded_at DESC, id
LIMIT $%d OFFSET $%d
`, documentColumns, where, len(args)-1, len(args))

	docs, err := queryMany(ctx, r.db, query, args, scanDocument)
	if err != nil {
		return domain.PageResult[*domain.Document]{}, fmt.Errorf("search documents: %w", err)
	}
	return domain.NewPageResult(docs, total, page), nil
}

func (r *DocumentRepository) Usage(ctx context.Context, tenantID string) (domain.TenantUsage, error) {
	usage := domain.TenantUsage{TenantID: tenantID}
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(size_bytes), 0)
FROM documents
WHERE tenant_id = $1 AND status <> $2
`, tenantID, string(domain.StatusExpired)).Scan(&usage.Documents, &usage.StorageBytes)
	if err != nil {
		return domain.TenantUsage{}, fmt.Errorf("measure tenant usage: %w", err)
	}
	return usage, nil
}

// documentWhere mirrors DocumentFilter.Matches in SQL.
func documentWhere(tenantID string, filter domain.DocumentFilter) (string, []any) {
	clauses := []string{"tenant_id = $1"}
	args := []any{tenantID}
	add := func(format string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(format, len(args)))
	}

	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.FileNameLike != "" {
		add(`file_name ILIKE '%%' || $%d || '%%'`, escapeLike(filter.FileNameLike))
	}
	if filter.UploadedAfter != nil {
		add("uploaded_at >= $%d", *filter.UploadedAfter)
	}
	if filter.UploadedBefore != nil {
		add("uploaded_at <= $%d", *filter.UploadedBefore)
	}
	for _, tag := range filter.Tags {
		add(`EXISTS (SELECT 1 FROM jsonb_array_elements(tags) AS t WHERE lower(t->>'name') = lower($%d))`, strings.TrimSpace(tag))
	}
	return strings.Join(clauses, " AND "), args
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}

func encodeDocumentJSON(s domain.DocumentSnapshot) (tags, history, suggestion []byte, err error) {
	if s.Tags == nil {
		s.Tags = []domain.TagSnapshot{}
	}
	if s.History == nil {
		s.History = []domain.HistoryEntrySnapshot{}
	}
	if tags, err = json.Marshal(s.Tags); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal tags: %w", err)
	}
	if history, err = json.Marshal(s.History); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal classification history: %w", err)
	}
	if s.AiSuggestion != nil {
		if suggestion, err = json.Marshal(s.AiSuggestion); err != nil {
			return nil, nil, nil, fmt.Errorf("marshal ai suggestion: %w", err)
		}
	}
	return tags, history, suggestion, nil
}

func scanDocument(row scanner) (*domain.Document, error) {
	var s domain.DocumentSnapshot
	var status string
	var tagsRaw, historyRaw, suggestionRaw []byte
	var lastError, routedTo sql.NullString

	err := row.Scan(
		&s.ID, &s.TenantID, &s.FileName, &s.SizeBytes, &s.MimeType, &s.BlobContainer, &s.BlobName, &status,
		&tagsRaw, &historyRaw, &lastError, &routedTo, &s.RetryCount, &s.PageCount, &suggestionRaw, &s.Version,
		&s.UploadedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Status = domain.DocumentStatus(status)
	s.LastError = lastError.String
	s.RoutedToQueueID = routedTo.String

	if err := json.Unmarshal(tagsRaw, &s.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal(historyRaw, &s.History); err != nil {
		return nil, fmt.Errorf("unmarshal classification history: %w", err)
	}
	if len(suggestionRaw) > 0 {
		var suggestion domain.AiSuggestionSnapshot
		if err := json.Unmarshal(suggestionRaw, &suggestion); err != nil {
			return nil, fmt.Errorf("unmarshal ai suggestion: %w", err)
		}
		s.AiSuggestion = &suggestion
	}
	return domain.RestoreDocument(s)
}
