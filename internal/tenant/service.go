package tenant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Service provides tenant and legal-entity operations.
type Service struct {
	repo RepositoryInterface
}

// NewService creates a new tenant service backed by a pgx pool.
func NewService(db *pgxpool.Pool) *Service {
	return &Service{repo: NewRepository(db)}
}

// NewServiceWithRepository creates a tenant service over an arbitrary
// repository implementation, useful for swapping in the gorm variant.
func NewServiceWithRepository(repo RepositoryInterface) *Service {
	return &Service{repo: repo}
}

// CreateTenant creates a new tenant.
func (s *Service) CreateTenant(ctx context.Context, req *CreateTenantRequest) (*Tenant, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	t := &Tenant{ID: uuid.New().String(), Name: req.Name, IsActive: true}
	if err := s.repo.CreateTenant(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetTenant retrieves a tenant by ID.
func (s *Service) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	return s.repo.GetTenant(ctx, tenantID)
}

// CreateLegalEntity creates a new legal entity under a tenant.
func (s *Service) CreateLegalEntity(ctx context.Context, tenantID string, req *CreateLegalEntityRequest) (*LegalEntity, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if req.EIN == "" {
		return nil, fmt.Errorf("ein is required")
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}
	le := &LegalEntity{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		Name:     req.Name,
		EIN:      req.EIN,
		Currency: currency,
		IsActive: true,
	}
	if err := s.repo.CreateLegalEntity(ctx, le); err != nil {
		return nil, err
	}
	return le, nil
}

// GetLegalEntity retrieves a legal entity scoped to its tenant.
func (s *Service) GetLegalEntity(ctx context.Context, tenantID, legalEntityID string) (*LegalEntity, error) {
	return s.repo.GetLegalEntity(ctx, tenantID, legalEntityID)
}

// ListLegalEntities returns every legal entity belonging to a tenant.
func (s *Service) ListLegalEntities(ctx context.Context, tenantID string) ([]LegalEntity, error) {
	return s.repo.ListLegalEntities(ctx, tenantID)
}
