package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/docflow/internal/core/domain"
)

const tenantColumns = `id, name, max_documents, max_storage_bytes, current_documents, current_storage_bytes, is_blocked,
	block_reason, retention_days, webhook_signature_key, max_file_size_bytes, version, created_at, updated_at`

type TenantRepository struct {
	db *sql.DB
}

func NewTenantRepository(db *sql.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	tenant, err := scanTenant(row)
	if err != nil {
		return nil, mapError("get tenant", err, domain.ErrTenantNotFound)
	}
	return tenant, nil
}

func (r *TenantRepository) List(ctx context.Context) ([]*domain.Tenant, error) {
	tenants, err := queryMany(ctx, r.db, `SELECT `+tenantColumns+` FROM tenants ORDER BY id`, nil, scanTenant)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}

// Save upserts. The conflict branch only fires when the stored version still
// equals the one the caller loaded.
func (r *TenantRepository) Save(ctx context.Context, tenant *domain.Tenant) error {
	s := tenant.Snapshot()
	err := execExpectOne(ctx, r.db, `
INSERT INTO tenants (`+tenantColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12::bigint + 1,$13,$14)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name, max_documents = EXCLUDED.max_documents, max_storage_bytes = EXCLUDED.max_storage_bytes,
	current_documents = EXCLUDED.current_documents, current_storage_bytes = EXCLUDED.current_storage_bytes,
	is_blocked = EXCLUDED.is_blocked, block_reason = EXCLUDED.block_reason, retention_days = EXCLUDED.retention_days,
	webhook_signature_key = EXCLUDED.webhook_signature_key, max_file_size_bytes = EXCLUDED.max_file_size_bytes,
	version = tenants.version + 1, updated_at = EXCLUDED.updated_at
WHERE tenants.version = $12
`,
		s.ID, s.Name, s.MaxDocuments, s.MaxStorageBytes, s.CurrentDocuments, s.CurrentStorageBytes, s.IsBlocked,
		nullString(s.BlockReason), s.RetentionDays, nullString(s.WebhookSignatureKey), s.MaxFileSizeBytes, s.Version,
		s.CreatedAt, s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WrapError(domain.ErrConcurrencyConflict, "save tenant", fmt.Errorf("%s: stale version %d", s.ID, s.Version))
	}
	if err != nil {
		return mapError("save tenant", err, domain.ErrTenantNotFound)
	}
	tenant.SetVersion(s.Version + 1)
	return nil
}

func scanTenant(row scanner) (*domain.Tenant, error) {
	var s domain.TenantSnapshot
	var blockReason, signingKey sql.NullString

	err := row.Scan(
		&s.ID, &s.Name, &s.MaxDocuments, &s.MaxStorageBytes, &s.CurrentDocuments, &s.CurrentStorageBytes,
		&s.IsBlocked, &blockReason, &s.RetentionDays, &signingKey, &s.MaxFileSizeBytes, &s.Version,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.BlockReason = blockReason.String
	s.WebhookSignatureKey = signingKey.String
	return domain.RestoreTenant(s)
}
