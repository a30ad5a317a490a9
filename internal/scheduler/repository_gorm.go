//go:build gorm

package scheduler

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// legalEntityModel mirrors legal_entities for the GORM-backed repository.
type legalEntityModel struct {
	ID       string `gorm:"column:id;primaryKey"`
	TenantID string `gorm:"column:tenant_id"`
	IsActive bool   `gorm:"column:is_active"`
}

func (legalEntityModel) TableName() string { return "legal_entities" }

// GORMRepository implements Repository using GORM.
type GORMRepository struct {
	db *gorm.DB
}

// NewGORMRepository creates a new GORM repository.
func NewGORMRepository(db *gorm.DB) *GORMRepository {
	return &GORMRepository{db: db}
}

// ListActiveLegalEntities returns every legal entity belonging to an active
// tenant, across all tenants.
func (r *GORMRepository) ListActiveLegalEntities(ctx context.Context) ([]LegalEntityInfo, error) {
	var rows []legalEntityModel
	err := r.db.WithContext(ctx).
		Joins("JOIN tenants ON tenants.id = legal_entities.tenant_id").
		Where("legal_entities.is_active = ? AND tenants.is_active = ?", true, true).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list active legal entities: %w", err)
	}

	out := make([]LegalEntityInfo, len(rows))
	for i, row := range rows {
		out[i] = LegalEntityInfo{TenantID: row.TenantID, LegalEntityID: row.ID}
	}
	return out, nil
}
