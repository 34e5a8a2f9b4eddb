package httpadapter

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if limit := rt.cfg.MaxUploadBytes; limit > 0 {
		if r.ContentLength > limit {
			rt.recordUpload("rejected", 0)
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": fmt.Sprintf("upload exceeds %d bytes", limit)})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		rt.recordUpload("rejected", 0)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit)})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.svc.Ingest.Upload(r.Context(), ports.UploadInput{
		TenantID: tenantID,
		FileName: fileHeader.Filename,
		MimeType: partMimeType(fileHeader.Header.Get("Content-Type"), fileHeader.Filename),
		Body:     file,
	})
	rt.recordUpload(uploadOutcome(err), fileHeader.Size)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc.Snapshot())
}

func (rt *Router) recordUpload(outcome string, size int64) {
	if rt.metrics != nil {
		rt.metrics.RecordUpload(metricsService, outcome, size)
	}
}

// partMimeType trusts the part header unless it is missing or generic, in
// which case the file extension decides.
func partMimeType(header, fileName string) string {
	mediaType, _, err := mime.ParseMediaType(header)
	if err == nil && mediaType != "" && mediaType != "application/octet-stream" {
		return mediaType
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName))); byExt != "" {
		if mediaType, _, err := mime.ParseMediaType(byExt); err == nil {
			return mediaType
		}
	}
	return header
}

type searchParams struct {
	Status         *string
	Tags           *[]string
	FileName       *string
	UploadedAfter  *time.Time
	UploadedBefore *time.Time
	Page           *int
	PageSize       *int
}

func bindSearchParams(r *http.Request) (searchParams, error) {
	var params searchParams
	query := r.URL.Query()
	bindings := []struct {
		name string
		dest any
	}{
		{"status", &params.Status},
		{"tag", &params.Tags},
		{"file_name", &params.FileName},
		{"uploaded_after", &params.UploadedAfter},
		{"uploaded_before", &params.UploadedBefore},
		{"page", &params.Page},
		{"page_size", &params.PageSize},
	}
	for _, b := range bindings {
		if err := runtime.BindQueryParameter("form", true, false, b.name, query, b.dest); err != nil {
			return searchParams{}, domain.WrapError(domain.ErrInvalidInput, "bind query", fmt.Errorf("parameter %s: %w", b.name, err))
		}
	}
	return params, nil
}

func (p searchParams) filter() (domain.DocumentFilter, error) {
	var filter domain.DocumentFilter
	if p.Status != nil && strings.TrimSpace(*p.Status) != "" {
		status, err := domain.ParseDocumentStatus(*p.Status)
		if err != nil {
			return domain.DocumentFilter{}, err
		}
		filter.Status = status
	}
	if p.Tags != nil {
		filter.Tags = *p.Tags
	}
	if p.FileName != nil {
		filter.FileNameLike = strings.TrimSpace(*p.FileName)
	}
	filter.UploadedAfter = p.UploadedAfter
	filter.UploadedBefore = p.UploadedBefore
	return filter, nil
}

func (p searchParams) page() domain.PageRequest {
	var page domain.PageRequest
	if p.Page != nil {
		page.Page = *p.Page
	}
	if p.PageSize != nil {
		page.PageSize = *p.PageSize
	}
	return page.Normalize()
}

func (rt *Router) searchDocuments(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	params, err := bindSearchParams(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	filter, err := params.filter()
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	result, err := rt.svc.Documents.Search(r.Context(), tenantID, filter, params.page())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	snapshots := make([]domain.DocumentSnapshot, 0, len(result.Data))
	for _, doc := range result.Data {
		snapshots = append(snapshots, doc.Snapshot())
	}
	writeJSON(w, http.StatusOK, domain.PageResult[domain.DocumentSnapshot]{
		Data:       snapshots,
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	})
}

// documentAction resolves tenant and document id, runs fn and writes the
// resulting document.
func (rt *Router) documentAction(w http.ResponseWriter, r *http.Request, fn func(tenantID, documentID string) (*domain.Document, error)) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	documentID, err := pathID(r, "id")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	doc, err := fn(tenantID, documentID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc.Snapshot())
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	rt.documentAction(w, r, func(tenantID, documentID string) (*domain.Document, error) {
		return rt.svc.Documents.Get(r.Context(), tenantID, documentID)
	})
}

func (rt *Router) retryDocument(w http.ResponseWriter, r *http.Request) {
	rt.documentAction(w, r, func(tenantID, documentID string) (*domain.Document, error) {
		return rt.svc.Documents.Retry(r.Context(), tenantID, documentID)
	})
}

func (rt *Router) routeDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QueueID string `json:"queue_id"`
	}
	rt.documentAction(w, r, func(tenantID, documentID string) (*domain.Document, error) {
		if err := decodeJSON(w, r, &req); err != nil {
			return nil, err
		}
		return rt.svc.Router.RouteToQueue(r.Context(), tenantID, documentID, strings.TrimSpace(req.QueueID))
	})
}

func (rt *Router) addDocumentTag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tag string `json:"tag"`
	}
	rt.documentAction(w, r, func(tenantID, documentID string) (*domain.Document, error) {
		if err := decodeJSON(w, r, &req); err != nil {
			return nil, err
		}
		return rt.svc.Documents.AddTag(r.Context(), tenantID, documentID, req.Tag)
	})
}

func (rt *Router) removeDocumentTag(w http.ResponseWriter, r *http.Request) {
	rt.documentAction(w, r, func(tenantID, documentID string) (*domain.Document, error) {
		tag, err := pathID(r, "name")
		if err != nil {
			return nil, err
		}
		return rt.svc.Documents.RemoveTag(r.Context(), tenantID, documentID, tag)
	})
}

func (rt *Router) generateSuggestion(w http.ResponseWriter, r *http.Request) {
	rt.documentAction(w, r, func(tenantID, documentID string) (*domain.Document, error) {
		return rt.svc.Documents.GenerateSuggestion(r.Context(), tenantID, documentID)
	})
}

func (rt *Router) applySuggestion(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	documentID, err := pathID(r, "id")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	var req struct {
		MinConfidence *float64 `json:"min_confidence"`
	}
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	minConfidence := rt.cfg.AIMinConfidence
	if req.MinConfidence != nil {
		minConfidence = *req.MinConfidence
	}

	doc, applied, err := rt.svc.Documents.ApplySuggestion(r.Context(), tenantID, documentID, minConfidence)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document": doc.Snapshot(),
		"applied":  applied,
	})
}

func (rt *Router) listDocumentDeliveries(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	documentID, err := pathID(r, "id")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	deliveries, err := rt.svc.Documents.ListDeliveries(r.Context(), tenantID, documentID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": deliverySnapshots(deliveries)})
}

func (rt *Router) retryDelivery(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	deliveryID, err := pathID(r, "id")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	delivery, err := rt.svc.Deliveries.Requeue(r.Context(), tenantID, deliveryID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, delivery.Snapshot())
}

func deliverySnapshots(deliveries []*domain.WebhookDelivery) []domain.DeliverySnapshot {
	out := make([]domain.DeliverySnapshot, 0, len(deliveries))
	for _, d := range deliveries {
		out = append(out, d.Snapshot())
	}
	return out
}
