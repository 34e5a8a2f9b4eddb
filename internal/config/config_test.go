package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("AI_PROVIDER", "")
	t.Setenv("AI_MIN_CONFIDENCE", "")
	t.Setenv("OUTBOX_RELAY_INTERVAL", "")
	t.Setenv("NATS_SUBJECT_PREFIX", "")

	cfg := Load()
	if cfg.StoreDriver != "postgres" {
		t.Fatalf("expected default store driver postgres, got %q", cfg.StoreDriver)
	}
	if cfg.AIProvider != "none" {
		t.Fatalf("expected AI disabled by default, got %q", cfg.AIProvider)
	}
	if cfg.AIMinConfidence != 0.7 {
		t.Fatalf("expected default min confidence 0.7, got %v", cfg.AIMinConfidence)
	}
	if cfg.OutboxRelayInterval != time.Second {
		t.Fatalf("expected default relay interval 1s, got %v", cfg.OutboxRelayInterval)
	}
	if cfg.NATSSubjectPrefix != "docflow.events" {
		t.Fatalf("expected default subject prefix, got %q", cfg.NATSSubjectPrefix)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("AI_PROVIDER", "anthropic")
	t.Setenv("AI_MIN_CONFIDENCE", "0.85")
	t.Setenv("WEBHOOK_TIMEOUT", "3")
	t.Setenv("SWEEP_DISPATCH_GRACE", "90s")
	t.Setenv("API_VALIDATE_REQUESTS", "false")
	t.Setenv("SWEEP_TENANT_CONCURRENCY", "8")

	cfg := Load()
	if cfg.StoreDriver != "memory" || cfg.AIProvider != "anthropic" {
		t.Fatalf("unexpected drivers %q/%q", cfg.StoreDriver, cfg.AIProvider)
	}
	if cfg.AIMinConfidence != 0.85 {
		t.Fatalf("expected min confidence 0.85, got %v", cfg.AIMinConfidence)
	}
	if cfg.WebhookTimeout != 3*time.Second {
		t.Fatalf("plain seconds should parse, got %v", cfg.WebhookTimeout)
	}
	if cfg.SweepDispatchGrace != 90*time.Second {
		t.Fatalf("expected 90s grace, got %v", cfg.SweepDispatchGrace)
	}
	if cfg.APIValidateRequests {
		t.Fatalf("expected request validation disabled")
	}
	if cfg.SweepTenantConcurrency != 8 {
		t.Fatalf("expected concurrency 8, got %d", cfg.SweepTenantConcurrency)
	}
}

func TestLoadFallsBackOnGarbage(t *testing.T) {
	t.Setenv("OUTBOX_BATCH_SIZE", "lots")
	t.Setenv("WEBHOOK_RATE_LIMIT_RPS", "fast")
	t.Setenv("OUTBOX_RELAY_INTERVAL", "soon")

	cfg := Load()
	if cfg.OutboxBatchSize != 100 || cfg.WebhookRateLimitRPS != 5 || cfg.OutboxRelayInterval != time.Second {
		t.Fatalf("expected fallbacks, got %d/%v/%v", cfg.OutboxBatchSize, cfg.WebhookRateLimitRPS, cfg.OutboxRelayInterval)
	}
}
