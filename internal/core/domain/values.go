package domain

import (
	"math"
	"strings"
	"unicode"
)

const (
	MaxFileNameLength     = 255
	MaxFileSizeBytes      = 52428800
	MaxTagNameLength      = 50
	MaxErrorMessageLength = 1000
)

var allowedMimeTypes = []string{
	"application/pdf",
	"image/png",
	"image/jpeg",
	"image/jpg",
	"image/tiff",
	"image/tif",
}

// FileName is the display name of an uploaded document.
type FileName struct {
	value string
}

func NewFileName(value string) (FileName, error) {
	const op = "file name"
	if strings.TrimSpace(value) == "" {
		return FileName{}, invalidInput(op, "file name cannot be empty")
	}
	if len([]rune(value)) > MaxFileNameLength {
		return FileName{}, invalidInput(op, "file name cannot exceed %d characters", MaxFileNameLength)
	}
	if strings.ContainsFunc(value, isInvalidFileNameRune) {
		return FileName{}, invalidInput(op, "file name contains invalid characters")
	}
	for _, pattern := range []string{"..", "~", "$"} {
		if strings.Contains(value, pattern) {
			return FileName{}, invalidInput(op, "file name %q looks suspicious", value)
		}
	}
	return FileName{value: value}, nil
}

func isInvalidFileNameRune(r rune) bool {
	if r < 32 {
		return true
	}
	return strings.ContainsRune(`<>:"/\|?*`, r)
}

func (f FileName) String() string { return f.value }

func (f FileName) IsZero() bool { return f.value == "" }

// FileSize is a byte count bounded by MaxFileSizeBytes.
type FileSize struct {
	bytes int64
}

func NewFileSize(bytes int64) (FileSize, error) {
	if bytes < 0 {
		return FileSize{}, invalidInput("file size", "file size cannot be negative")
	}
	if bytes > MaxFileSizeBytes {
		return FileSize{}, invalidInput("file size", "file size cannot exceed %d bytes", MaxFileSizeBytes)
	}
	return FileSize{bytes: bytes}, nil
}

func (s FileSize) Bytes() int64 { return s.bytes }

func (s FileSize) Megabytes() float64 { return float64(s.bytes) / (1024 * 1024) }

// MimeType only admits the supported document formats.
type MimeType struct {
	value string
}

func NewMimeType(value string) (MimeType, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return MimeType{}, invalidInput("mime type", "mime type cannot be empty")
	}
	for _, allowed := range allowedMimeTypes {
		if strings.EqualFold(allowed, trimmed) {
			return MimeType{value: trimmed}, nil
		}
	}
	return MimeType{}, invalidInput("mime type", "mime type %q is not supported, supported: %s", value, strings.Join(allowedMimeTypes, ", "))
}

func SupportedMimeTypes() []string {
	out := make([]string, len(allowedMimeTypes))
	copy(out, allowedMimeTypes)
	return out
}

func (m MimeType) String() string { return m.value }

func (m MimeType) IsPDF() bool { return strings.EqualFold(m.value, "application/pdf") }

// TagName is a trimmed label made of letters, digits, '-' and '_'.
type TagName struct {
	value string
}

func NewTagName(value string) (TagName, error) {
	const op = "tag name"
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return TagName{}, invalidInput(op, "tag name cannot be empty")
	}
	if len([]rune(trimmed)) > MaxTagNameLength {
		return TagName{}, invalidInput(op, "tag name cannot exceed %d characters", MaxTagNameLength)
	}
	for _, r := range trimmed {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return TagName{}, invalidInput(op, "tag name %q may only contain letters, digits, hyphens and underscores", value)
		}
	}
	return TagName{value: trimmed}, nil
}

func MustTagName(value string) TagName {
	tag, err := NewTagName(value)
	if err != nil {
		panic(err)
	}
	return tag
}

func (t TagName) String() string { return t.value }

func (t TagName) EqualFold(other TagName) bool { return strings.EqualFold(t.value, other.value) }

// ConfidenceScore is a probability in [0, 1].
type ConfidenceScore struct {
	value float64
}

func NewConfidenceScore(value float64) (ConfidenceScore, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return ConfidenceScore{}, invalidInput("confidence score", "confidence score must be a finite number")
	}
	if value < 0 || value > 1 {
		return ConfidenceScore{}, invalidInput("confidence score", "confidence score must be between 0 and 1, got %v", value)
	}
	return ConfidenceScore{value: value}, nil
}

func PerfectConfidence() ConfidenceScore { return ConfidenceScore{value: 1} }

func NoConfidence() ConfidenceScore { return ConfidenceScore{value: 0} }

func (c ConfidenceScore) Value() float64 { return c.value }

// BlobReference locates document content in the blob store.
type BlobReference struct {
	container string
	blob      string
}

func NewBlobReference(container, blob string) (BlobReference, error) {
	if strings.TrimSpace(container) == "" {
		return BlobReference{}, invalidInput("blob reference", "container name cannot be empty")
	}
	if strings.TrimSpace(blob) == "" {
		return BlobReference{}, invalidInput("blob reference", "blob name cannot be empty")
	}
	return BlobReference{container: container, blob: blob}, nil
}

func (b BlobReference) Container() string { return b.container }

func (b BlobReference) Blob() string { return b.blob }

func (b BlobReference) String() string { return b.container + "/" + b.blob }

// ErrorMessage is a non-blank failure description.
type ErrorMessage struct {
	value string
}

func NewErrorMessage(value string) (ErrorMessage, error) {
	if strings.TrimSpace(value) == "" {
		return ErrorMessage{}, invalidInput("error message", "error message cannot be empty")
	}
	if len([]rune(value)) > MaxErrorMessageLength {
		return ErrorMessage{}, invalidInput("error message", "error message cannot exceed %d characters", MaxErrorMessageLength)
	}
	return ErrorMessage{value: value}, nil
}

// ErrorMessageFrom converts an arbitrary error into a storable message,
// truncating long chains instead of rejecting them.
func ErrorMessageFrom(err error) ErrorMessage {
	if err == nil {
		return ErrorMessage{value: "unknown error"}
	}
	text := strings.TrimSpace(err.Error())
	if text == "" {
		text = "unknown error"
	}
	runes := []rune(text)
	if len(runes) > MaxErrorMessageLength {
		text = string(runes[:MaxErrorMessageLength])
	}
	return ErrorMessage{value: text}
}

func (e ErrorMessage) String() string { return e.value }

func (e ErrorMessage) IsZero() bool { return e.value == "" }
