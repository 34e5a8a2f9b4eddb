package domain

import (
	"strings"
	"time"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// DocumentFilter narrows a document search. Zero fields do not filter.
type DocumentFilter struct {
	Status         DocumentStatus
	Tags           []string
	FileNameLike   string
	UploadedAfter  *time.Time
	UploadedBefore *time.Time
}

// Matches applies the filter in memory. Tag membership requires every
// listed tag, compared case-insensitively.
func (f DocumentFilter) Matches(doc *Document) bool {
	if f.Status != "" && doc.Status() != f.Status {
		return false
	}
	if f.FileNameLike != "" && !strings.Contains(strings.ToLower(doc.FileName().String()), strings.ToLower(f.FileNameLike)) {
		return false
	}
	if f.UploadedAfter != nil && doc.UploadedAt().Before(*f.UploadedAfter) {
		return false
	}
	if f.UploadedBefore != nil && doc.UploadedAt().After(*f.UploadedBefore) {
		return false
	}
	for _, raw := range f.Tags {
		name, err := NewTagName(raw)
		if err != nil || !doc.HasTag(name) {
			return false
		}
	}
	return true
}

// PageRequest is a 1-based page selector.
type PageRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Normalize clamps the request to valid values.
func (r PageRequest) Normalize() PageRequest {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 {
		r.PageSize = DefaultPageSize
	}
	if r.PageSize > MaxPageSize {
		r.PageSize = MaxPageSize
	}
	return r
}

func (r PageRequest) Offset() int {
	return (r.Page - 1) * r.PageSize
}

type PageResult[T any] struct {
	Data       []T `json:"data"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

func NewPageResult[T any](data []T, total int, req PageRequest) PageResult[T] {
	totalPages := total / req.PageSize
	if total%req.PageSize != 0 {
		totalPages++
	}
	if totalPages < 1 {
		totalPages = 1
	}
	if data == nil {
		data = []T{}
	}
	return PageResult[T]{
		Data:       data,
		Total:      total,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalPages: totalPages,
	}
}

// MapPage converts the items of a page while keeping its metadata.
func MapPage[T, U any](page PageResult[T], fn func(T) U) PageResult[U] {
	out := make([]U, 0, len(page.Data))
	for _, item := range page.Data {
		out = append(out, fn(item))
	}
	return PageResult[U]{
		Data:       out,
		Total:      page.Total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages,
	}
}

// TenantUsage is the measured storage footprint of one tenant.
type TenantUsage struct {
	TenantID     string `json:"tenant_id"`
	Documents    int    `json:"documents"`
	StorageBytes int64  `json:"storage_bytes"`
}
