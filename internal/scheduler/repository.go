package scheduler

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/payroll-psp/internal/tenant"
)

// LegalEntityInfo is the minimal legal-entity identity a scheduled job
// iterates over.
type LegalEntityInfo struct {
	TenantID      string
	LegalEntityID string
}

// Repository defines the data access scheduled jobs need: every active
// legal entity to sweep.
type Repository interface {
	ListActiveLegalEntities(ctx context.Context) ([]LegalEntityInfo, error)
}

// PostgresRepository implements Repository over internal/tenant.
type PostgresRepository struct {
	tenants tenant.RepositoryInterface
}

// NewPostgresRepository creates a new PostgreSQL-backed repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{tenants: tenant.NewRepository(pool)}
}

// ListActiveLegalEntities returns every legal entity belonging to an active
// tenant, across all tenants.
func (r *PostgresRepository) ListActiveLegalEntities(ctx context.Context) ([]LegalEntityInfo, error) {
	les, err := r.tenants.ListActiveLegalEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active legal entities: %w", err)
	}

	out := make([]LegalEntityInfo, len(les))
	for i, le := range les {
		out[i] = LegalEntityInfo{TenantID: le.TenantID, LegalEntityID: le.ID}
	}
	return out, nil
}
