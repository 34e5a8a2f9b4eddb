package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/docflow/internal/config"
	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

func memoryConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		StoreDriver:       "memory",
		BlobDriver:        "localfs",
		StoragePath:       t.TempDir(),
		DocumentContainer: "documents",
		AIProvider:        "none",
		AIMinConfidence:   0.7,
	}
}

func TestNewWiresInMemoryPipeline(t *testing.T) {
	archive := t.TempDir()
	seedPath := filepath.Join(t.TempDir(), "seed.yaml")
	seedYAML := `
tenants:
  - id: acme
    name: Acme Corp
    queues:
      - name: Archive
        type: folder
        folder_path: ` + archive + `
    rules:
      - name: invoices
        priority: 10
        conditions:
          - type: FileNameRegex
            pattern: "^invoice"
        apply_tags: [Invoice]
        target_queue: archive
`
	if err := os.WriteFile(seedPath, []byte(seedYAML), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	cfg := memoryConfig(t)
	cfg.SeedFile = seedPath
	app, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	defer app.Close()

	if app.Bus != nil || app.Relay != nil {
		t.Fatalf("no bus expected without NATS_URL")
	}

	ctx := context.Background()
	if err := app.ApplySeed(ctx); err != nil {
		t.Fatalf("apply seed: %v", err)
	}

	doc, err := app.IngestUC.Upload(ctx, ports.UploadInput{
		TenantID: "acme",
		FileName: "invoice-42.pdf",
		MimeType: "application/pdf",
		Body:     strings.NewReader("not really a pdf"),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := app.ClassifyUC.ClassifyByID(ctx, "acme", doc.ID()); err != nil {
		t.Fatalf("classify: %v", err)
	}
	routed, err := app.RouteUC.RouteByID(ctx, "acme", doc.ID())
	if err != nil || !routed {
		t.Fatalf("route: routed=%v err=%v", routed, err)
	}

	got, err := app.DocumentUC.Get(ctx, "acme", doc.ID())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status() != domain.StatusRouted {
		t.Fatalf("expected routed document, got %s", got.Status())
	}
	entries, err := os.ReadDir(archive)
	if err != nil || len(entries) == 0 {
		t.Fatalf("expected a file in the archive folder, got %v %v", entries, err)
	}
}

func TestNewRejectsUnknownDrivers(t *testing.T) {
	cases := []func(*config.Config){
		func(c *config.Config) { c.StoreDriver = "mongo" },
		func(c *config.Config) { c.BlobDriver = "s3" },
		func(c *config.Config) { c.AIProvider = "gpt" },
		func(c *config.Config) { c.AIMinConfidence = 1.5 },
		func(c *config.Config) { c.AIProvider = "anthropic" },
	}
	for i, mutate := range cases {
		cfg := memoryConfig(t)
		mutate(&cfg)
		if app, err := New(context.Background(), cfg, nil); err == nil {
			app.Close()
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestSweepConfigOverrides(t *testing.T) {
	sc := sweepConfig(config.Config{SweepCleanupBatchSize: 7, RetryMaxAttempts: 9})
	if sc.CleanupBatchSize != 7 || sc.MaxRetries != 9 {
		t.Fatalf("overrides not applied: %+v", sc)
	}
	if sc.ClassifyBatchSize == 0 || sc.ReportContainer == "" {
		t.Fatalf("defaults lost: %+v", sc)
	}
}
