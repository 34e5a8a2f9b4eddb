package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestNewFileSizeBounds(t *testing.T) {
	for _, bytes := range []int64{0, 1, 900_000, MaxFileSizeBytes} {
		if _, err := NewFileSize(bytes); err != nil {
			t.Fatalf("NewFileSize(%d) error = %v", bytes, err)
		}
	}
	for _, bytes := range []int64{-1, MaxFileSizeBytes + 1} {
		_, err := NewFileSize(bytes)
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("NewFileSize(%d) error = %v, want ErrInvalidInput", bytes, err)
		}
	}
}

func TestNewFileNameRejectsSuspiciousNames(t *testing.T) {
	bad := []string{"", "   ", "../etc/passwd", "a/b.pdf", "report?.pdf", "~home.pdf", "$cost.pdf", "tab\tname.pdf", strings.Repeat("a", MaxFileNameLength+1)}
	for _, name := range bad {
		if _, err := NewFileName(name); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("NewFileName(%q) error = %v, want ErrInvalidInput", name, err)
		}
	}
	name, err := NewFileName("invoice-2024.pdf")
	if err != nil {
		t.Fatalf("NewFileName() error = %v", err)
	}
	if name.String() != "invoice-2024.pdf" {
		t.Fatalf("unexpected file name: %q", name.String())
	}
}

func TestNewMimeTypeWhitelist(t *testing.T) {
	for _, value := range []string{"application/pdf", "IMAGE/PNG", " image/tif "} {
		if _, err := NewMimeType(value); err != nil {
			t.Fatalf("NewMimeType(%q) error = %v", value, err)
		}
	}
	if _, err := NewMimeType("text/plain"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected text/plain to be rejected, got %v", err)
	}
	mime, _ := NewMimeType("Application/PDF")
	if !mime.IsPDF() {
		t.Fatalf("expected IsPDF for %q", mime.String())
	}
}

func TestNewTagName(t *testing.T) {
	tag, err := NewTagName("  Invoice_2024-Q1 ")
	if err != nil {
		t.Fatalf("NewTagName() error = %v", err)
	}
	if tag.String() != "Invoice_2024-Q1" {
		t.Fatalf("expected trimmed tag, got %q", tag.String())
	}
	for _, value := range []string{"", "has space", "semi;colon", strings.Repeat("x", MaxTagNameLength+1)} {
		if _, err := NewTagName(value); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("NewTagName(%q) error = %v, want ErrInvalidInput", value, err)
		}
	}
	if !MustTagName("invoice").EqualFold(MustTagName("INVOICE")) {
		t.Fatalf("expected case-insensitive tag equality")
	}
}

func TestNewTagNameLengthIgnoresSurroundingSpace(t *testing.T) {
	full := strings.Repeat("x", MaxTagNameLength)
	tag, err := NewTagName("  " + full + "\t")
	if err != nil {
		t.Fatalf("NewTagName() error = %v", err)
	}
	if tag.String() != full {
		t.Fatalf("expected %d-char tag, got %q", MaxTagNameLength, tag.String())
	}
	if _, err := NewTagName(" " + full + "x "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected over-long tag to fail, got %v", err)
	}
}

func TestNewConfidenceScore(t *testing.T) {
	for _, value := range []float64{0, 0.5, 1} {
		if _, err := NewConfidenceScore(value); err != nil {
			t.Fatalf("NewConfidenceScore(%v) error = %v", value, err)
		}
	}
	for _, value := range []float64{-0.01, 1.01} {
		if _, err := NewConfidenceScore(value); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("NewConfidenceScore(%v) error = %v, want ErrInvalidInput", value, err)
		}
	}
}

func TestErrorMessageFromTruncates(t *testing.T) {
	msg := ErrorMessageFrom(errors.New(strings.Repeat("e", MaxErrorMessageLength+50)))
	if got := len([]rune(msg.String())); got != MaxErrorMessageLength {
		t.Fatalf("expected truncated message of %d runes, got %d", MaxErrorMessageLength, got)
	}
	if ErrorMessageFrom(nil).String() != "unknown error" {
		t.Fatalf("expected fallback message for nil error")
	}
	if _, err := NewErrorMessage(" "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected blank message to be rejected, got %v", err)
	}
}

func TestFolderPathRejectsTraversal(t *testing.T) {
	for _, path := range []string{"", "/data/../etc", "~/docs", "/data/$HOME", "/a|b", "/a<b", "/a>b"} {
		if _, err := NewFolderPath(path); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("NewFolderPath(%q) error = %v, want ErrInvalidInput", path, err)
		}
	}
	path, err := NewFolderPath("/data/invoices/")
	if err != nil {
		t.Fatalf("NewFolderPath() error = %v", err)
	}
	if path.String() != "/data/invoices" {
		t.Fatalf("expected cleaned path, got %q", path.String())
	}
}

func TestWebhookConfigurationValidation(t *testing.T) {
	cases := []struct {
		url      string
		retries  int
		delaySec int
	}{
		{"ftp://example.com/hook", 3, 60},
		{"/relative/hook", 3, 60},
		{"https://example.com/hook", 11, 60},
		{"https://example.com/hook", 3, 0},
		{"https://example.com/hook", 3, 3601},
	}
	for _, tc := range cases {
		if _, err := NewWebhookConfiguration(tc.url, nil, tc.retries, tc.delaySec); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("NewWebhookConfiguration(%q, %d, %d) error = %v, want ErrInvalidInput", tc.url, tc.retries, tc.delaySec, err)
		}
	}

	headers := map[string]string{"Authorization": "Bearer x"}
	cfg, err := NewWebhookConfiguration("https://example.com/hook", headers, 3, 60)
	if err != nil {
		t.Fatalf("NewWebhookConfiguration() error = %v", err)
	}
	headers["Authorization"] = "mutated"
	if cfg.Headers()["Authorization"] != "Bearer x" {
		t.Fatalf("configuration headers must not alias the caller map")
	}
}

func TestWebhookSnapshotBuildDefaultsDelay(t *testing.T) {
	cfg, err := WebhookSnapshot{URL: "https://example.com/hook", MaxRetryAttempts: 2}.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if cfg.RetryDelay().Seconds() != DefaultWebhookRetryDelay {
		t.Fatalf("expected default delay, got %v", cfg.RetryDelay())
	}
}
