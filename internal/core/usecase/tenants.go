package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

type TenantUseCase struct {
	tenants ports.TenantRepository
	docs    ports.DocumentRepository
}

func NewTenantUseCase(tenants ports.TenantRepository, docs ports.DocumentRepository) *TenantUseCase {
	return &TenantUseCase{tenants: tenants, docs: docs}
}

// Usage returns the stored quota counters next to a fresh measurement.
func (uc *TenantUseCase) Usage(ctx context.Context, tenantID string) (*ports.TenantUsageView, error) {
	tenant, err := loadOrProvisionTenant(ctx, uc.tenants, tenantID)
	if err != nil {
		return nil, err
	}
	usage, err := uc.docs.Usage(ctx, tenant.ID())
	if err != nil {
		return nil, fmt.Errorf("measure tenant usage: %w", err)
	}
	return &ports.TenantUsageView{Tenant: tenant.Snapshot(), Measured: usage}, nil
}

// loadOrProvisionTenant returns the tenant, creating it with default quota
// and settings on first contact.
func loadOrProvisionTenant(ctx context.Context, tenants ports.TenantRepository, tenantID string) (*domain.Tenant, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "resolve tenant", errors.New("tenant id is required"))
	}
	tenant, err := tenants.GetByID(ctx, tenantID)
	if err == nil {
		return tenant, nil
	}
	if !domain.IsKind(err, domain.ErrTenantNotFound) {
		return nil, fmt.Errorf("load tenant: %w", err)
	}

	tenant, err = domain.NewTenant(tenantID, tenantID, domain.DefaultTenantQuota(), domain.DefaultTenantSettings())
	if err != nil {
		return nil, err
	}
	if err := tenants.Save(ctx, tenant); err != nil {
		if domain.IsKind(err, domain.ErrConcurrencyConflict) {
			return tenants.GetByID(ctx, tenantID)
		}
		return nil, fmt.Errorf("provision tenant: %w", err)
	}
	return tenant, nil
}

func componentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", component)
}
