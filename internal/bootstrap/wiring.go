package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/docflow/internal/config"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/infrastructure/llm/anthropic"
	"github.com/kirillkom/docflow/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/docflow/internal/infrastructure/repository/memory"
	"github.com/kirillkom/docflow/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
	"github.com/kirillkom/docflow/internal/infrastructure/storage/azureblob"
	"github.com/kirillkom/docflow/internal/infrastructure/storage/localfs"
)

type stores struct {
	docs       ports.DocumentRepository
	rules      ports.RuleRepository
	queues     ports.QueueRepository
	deliveries ports.DeliveryRepository
	tenants    ports.TenantRepository
	outbox     ports.OutboxStore
	lock       ports.SweepLock
	close      func()
}

func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (stores, error) {
	switch cfg.StoreDriver {
	case "memory":
		store := memory.NewStore()
		return stores{
			docs:       store.Documents(),
			rules:      store.Rules(),
			queues:     store.Queues(),
			deliveries: store.Deliveries(),
			tenants:    store.Tenants(),
			outbox:     store.Outbox(),
			lock:       store.SweepLock(),
			close:      func() {},
		}, nil
	case "postgres", "":
		if cfg.DBAutoMigrate {
			if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
				return stores{}, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return stores{}, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return stores{}, fmt.Errorf("ping postgres: %w", err)
		}
		return stores{
			docs:       postgres.NewDocumentRepository(db),
			rules:      postgres.NewRuleRepository(db),
			queues:     postgres.NewQueueRepository(db),
			deliveries: postgres.NewDeliveryRepository(db),
			tenants:    postgres.NewTenantRepository(db),
			outbox:     postgres.NewOutboxStore(db),
			lock:       postgres.NewSweepLock(db, logger),
			close:      func() { _ = db.Close() },
		}, nil
	default:
		return stores{}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func openBlobStore(cfg config.Config, logger *slog.Logger) (ports.BlobStore, error) {
	switch cfg.BlobDriver {
	case "localfs", "":
		storage, err := localfs.New(cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("init blob storage: %w", err)
		}
		return storage, nil
	case "azure":
		storage, err := azureblob.New(cfg.AzureStorageConnectionString, logger)
		if err != nil {
			return nil, fmt.Errorf("init blob storage: %w", err)
		}
		return storage, nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.BlobDriver)
	}
}

// newOracle returns a nil interface for the "none" provider so use cases
// see the oracle as disabled.
func newOracle(cfg config.Config, executor *resilience.Executor) (ports.ClassificationOracle, error) {
	switch cfg.AIProvider {
	case "none", "":
		return nil, nil
	case "ollama":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.AITimeout, executor)
		return ollama.NewSuggester(client), nil
	case "anthropic":
		suggester, err := anthropic.NewSuggester(anthropic.Options{
			APIKey:    cfg.AnthropicAPIKey,
			Model:     cfg.AnthropicModel,
			MaxTokens: int64(cfg.AnthropicMaxTokens),
			Timeout:   cfg.AITimeout,
			Executor:  executor,
		})
		if err != nil {
			return nil, fmt.Errorf("init anthropic oracle: %w", err)
		}
		return suggester, nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.AIProvider)
	}
}
