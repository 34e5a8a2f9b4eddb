// Package pdftext pulls plain text and page counts out of uploaded PDFs.
// Image formats carry no extractable text.
package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/kirillkom/docflow/internal/core/domain"
)

const (
	defaultMaxBytes = 32 << 20
	defaultMaxRunes = 20000
)

type Extractor struct {
	maxBytes int64
	maxRunes int
	logger   *slog.Logger
}

func NewExtractor(maxRunes int, logger *slog.Logger) *Extractor {
	if maxRunes <= 0 {
		maxRunes = defaultMaxRunes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		maxBytes: defaultMaxBytes,
		maxRunes: maxRunes,
		logger:   logger.With("component", "pdftext"),
	}
}

// ExtractText never fails: unreadable input yields an empty string.
func (e *Extractor) ExtractText(ctx context.Context, mimeType domain.MimeType, body io.Reader) string {
	if !mimeType.IsPDF() || body == nil {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(body, e.maxBytes))
	if err != nil {
		e.logger.Warn("pdf_read_failed", "error", err)
		return ""
	}
	if ctx.Err() != nil {
		return ""
	}
	text, err := e.plainText(raw)
	if err != nil {
		e.logger.Warn("pdf_text_failed", "error", err)
		return ""
	}
	return text
}

func (e *Extractor) plainText(raw []byte) (text string, err error) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf strings.Builder
	if _, err := io.Copy(&buf, io.LimitReader(plain, int64(e.maxRunes)*utf8.UTFMax)); err != nil {
		return "", fmt.Errorf("copy pdf text: %w", err)
	}
	return truncateRunes(strings.Join(strings.Fields(buf.String()), " "), e.maxRunes), nil
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

// PageCounter counts PDF pages with relaxed validation.
type PageCounter struct{}

func NewPageCounter() PageCounter { return PageCounter{} }

func (PageCounter) CountPages(_ context.Context, mimeType domain.MimeType, body io.ReadSeeker) (int, error) {
	if !mimeType.IsPDF() {
		return 0, domain.WrapError(domain.ErrInvalidInput, "count pages", fmt.Errorf("%s is not paged", mimeType))
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	count, err := api.PageCount(body, conf)
	if err != nil {
		return 0, fmt.Errorf("count pdf pages: %w", err)
	}
	return count, nil
}
