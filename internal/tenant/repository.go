package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryInterface defines the contract for tenant/legal-entity data access.
type RepositoryInterface interface {
	EnsureSchema(ctx context.Context) error
	CreateTenant(ctx context.Context, t *Tenant) error
	GetTenant(ctx context.Context, tenantID string) (*Tenant, error)
	CreateLegalEntity(ctx context.Context, le *LegalEntity) error
	GetLegalEntity(ctx context.Context, tenantID, legalEntityID string) (*LegalEntity, error)
	ListLegalEntities(ctx context.Context, tenantID string) ([]LegalEntity, error)
	ListActiveLegalEntities(ctx context.Context) ([]LegalEntity, error)
}

// Repository provides pgx-backed access to tenant and legal-entity rows.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new tenant repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the tenant and legal_entities tables if absent.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tenants (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS legal_entities (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL REFERENCES tenants(id),
			name TEXT NOT NULL,
			ein TEXT NOT NULL DEFAULT '',
			currency TEXT NOT NULL DEFAULT 'USD',
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_legal_entities_tenant ON legal_entities(tenant_id);
	`)
	if err != nil {
		return fmt.Errorf("ensure tenant schema: %w", err)
	}
	return nil
}

// CreateTenant inserts a new tenant.
func (r *Repository) CreateTenant(ctx context.Context, t *Tenant) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO tenants (id, name, is_active, created_at)
		VALUES ($1, $2, $3, $4)
	`, t.ID, t.Name, t.IsActive, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

// GetTenant retrieves a tenant by ID.
func (r *Repository) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	var t Tenant
	err := r.db.QueryRow(ctx, `
		SELECT id, name, is_active, created_at FROM tenants WHERE id = $1
	`, tenantID).Scan(&t.ID, &t.Name, &t.IsActive, &t.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("tenant not found: %s", tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

// CreateLegalEntity inserts a new legal entity under a tenant.
func (r *Repository) CreateLegalEntity(ctx context.Context, le *LegalEntity) error {
	if le.ID == "" {
		le.ID = uuid.New().String()
	}
	if le.CreatedAt.IsZero() {
		le.CreatedAt = time.Now()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO legal_entities (id, tenant_id, name, ein, currency, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, le.ID, le.TenantID, le.Name, le.EIN, le.Currency, le.IsActive, le.CreatedAt)
	if err != nil {
		return fmt.Errorf("create legal entity: %w", err)
	}
	return nil
}

// GetLegalEntity retrieves a legal entity scoped to its tenant.
func (r *Repository) GetLegalEntity(ctx context.Context, tenantID, legalEntityID string) (*LegalEntity, error) {
	var le LegalEntity
	err := r.db.QueryRow(ctx, `
		SELECT id, tenant_id, name, ein, currency, is_active, created_at
		FROM legal_entities WHERE tenant_id = $1 AND id = $2
	`, tenantID, legalEntityID).Scan(
		&le.ID, &le.TenantID, &le.Name, &le.EIN, &le.Currency, &le.IsActive, &le.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("legal entity not found: %s", legalEntityID)
	}
	if err != nil {
		return nil, fmt.Errorf("get legal entity: %w", err)
	}
	return &le, nil
}

// ListLegalEntities returns every legal entity belonging to a tenant.
func (r *Repository) ListLegalEntities(ctx context.Context, tenantID string) ([]LegalEntity, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, name, ein, currency, is_active, created_at
		FROM legal_entities WHERE tenant_id = $1 ORDER BY created_at
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list legal entities: %w", err)
	}
	defer rows.Close()

	var out []LegalEntity
	for rows.Next() {
		var le LegalEntity
		if err := rows.Scan(&le.ID, &le.TenantID, &le.Name, &le.EIN, &le.Currency, &le.IsActive, &le.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan legal entity: %w", err)
		}
		out = append(out, le)
	}
	return out, nil
}

// ListActiveLegalEntities returns every legal entity belonging to an active
// tenant, across all tenants — the scope scheduled jobs (reconciliation
// sweep, reservation expiry) iterate over.
func (r *Repository) ListActiveLegalEntities(ctx context.Context) ([]LegalEntity, error) {
	rows, err := r.db.Query(ctx, `
		SELECT le.id, le.tenant_id, le.name, le.ein, le.currency, le.is_active, le.created_at
		FROM legal_entities le
		JOIN tenants t ON t.id = le.tenant_id
		WHERE le.is_active = true AND t.is_active = true
		ORDER BY le.created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list active legal entities: %w", err)
	}
	defer rows.Close()

	var out []LegalEntity
	for rows.Next() {
		var le LegalEntity
		if err := rows.Scan(&le.ID, &le.TenantID, &le.Name, &le.EIN, &le.Currency, &le.IsActive, &le.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan legal entity: %w", err)
		}
		out = append(out, le)
	}
	return out, nil
}
