package ratecard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// RepositoryInterface defines the contract for pay-rate data access.
type RepositoryInterface interface {
	EnsureSchema(ctx context.Context) error
	CreateRate(ctx context.Context, r *PayRate) error
	RatesEffectiveOn(ctx context.Context, tenantID, employeeID string, asOf time.Time) ([]PayRate, error)
	// Version reports a monotonically increasing counter for an employee's
	// rate set, bumped by CreateRate — the resolver cache's invalidation key.
	Version(ctx context.Context, tenantID, employeeID string) (int64, error)
}

// Repository is the pgx-backed pay-rate store.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new rate-card repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the pay_rates table if absent.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS pay_rates (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			legal_entity_id UUID NOT NULL,
			employee_id UUID NOT NULL,
			hourly_rate NUMERIC(12,4) NOT NULL DEFAULT 0,
			salary_rate NUMERIC(12,4) NOT NULL DEFAULT 0,
			start_date DATE NOT NULL,
			end_date DATE,
			job TEXT NOT NULL DEFAULT '',
			project TEXT NOT NULL DEFAULT '',
			department TEXT NOT NULL DEFAULT '',
			worksite TEXT NOT NULL DEFAULT '',
			priority INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_pay_rates_employee ON pay_rates(tenant_id, employee_id, start_date);
	`)
	if err != nil {
		return fmt.Errorf("ensure ratecard schema: %w", err)
	}
	return nil
}

// CreateRate inserts a new pay rate.
func (r *Repository) CreateRate(ctx context.Context, pr *PayRate) error {
	if pr.ID == "" {
		pr.ID = uuid.New().String()
	}
	if pr.CreatedAt.IsZero() {
		pr.CreatedAt = time.Now()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO pay_rates (
			id, tenant_id, legal_entity_id, employee_id, hourly_rate, salary_rate,
			start_date, end_date, job, project, department, worksite, priority, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, pr.ID, pr.TenantID, pr.LegalEntityID, pr.EmployeeID, pr.HourlyRate, pr.SalaryRate,
		pr.StartDate, pr.EndDate, pr.Job, pr.Project, pr.Department, pr.Worksite, pr.Priority, pr.CreatedAt)
	if err != nil {
		return fmt.Errorf("create pay rate: %w", err)
	}
	return nil
}

// RatesEffectiveOn returns every rate for employeeID whose date range covers
// asOf.
func (r *Repository) RatesEffectiveOn(ctx context.Context, tenantID, employeeID string, asOf time.Time) ([]PayRate, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, legal_entity_id, employee_id, hourly_rate, salary_rate,
		       start_date, end_date, job, project, department, worksite, priority, created_at
		FROM pay_rates
		WHERE tenant_id = $1 AND employee_id = $2 AND start_date <= $3 AND (end_date IS NULL OR end_date >= $3)
	`, tenantID, employeeID, asOf)
	if err != nil {
		return nil, fmt.Errorf("query effective pay rates: %w", err)
	}
	defer rows.Close()

	var out []PayRate
	for rows.Next() {
		var pr PayRate
		var hourly, salary decimal.Decimal
		if err := rows.Scan(
			&pr.ID, &pr.TenantID, &pr.LegalEntityID, &pr.EmployeeID, &hourly, &salary,
			&pr.StartDate, &pr.EndDate, &pr.Job, &pr.Project, &pr.Department, &pr.Worksite,
			&pr.Priority, &pr.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan pay rate: %w", err)
		}
		pr.HourlyRate, pr.SalaryRate = hourly, salary
		out = append(out, pr)
	}
	return out, nil
}

// Version returns the employee's rate count as a cheap monotonic version
// number: every CreateRate increases it, which is all the resolver cache
// needs to detect staleness.
func (r *Repository) Version(ctx context.Context, tenantID, employeeID string) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM pay_rates WHERE tenant_id = $1 AND employee_id = $2
	`, tenantID, employeeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("compute rate version: %w", err)
	}
	return count, nil
}
