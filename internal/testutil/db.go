//go:build integration

// Package testutil provides test utilities for integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ledgerline/payroll-psp/internal/tenant"
)

// TestTenant is the tenant row created for an integration test, scoped by
// tenant_id rather than a dedicated schema.
type TestTenant struct {
	ID   string
	Name string
}

// TestLegalEntity is a legal entity created under a TestTenant.
type TestLegalEntity struct {
	ID       string
	TenantID string
	Name     string
	EIN      string
	Currency string
}

// SetupTestDB connects to the test database.
// If DATABASE_URL is set, it uses that database.
// Otherwise, it uses testcontainers to start a PostgreSQL container.
// Returns the pool.
func SetupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	// Use GetTestContainer which handles both DATABASE_URL and testcontainers
	return GetTestContainer(t)
}

// CreateTestTenant creates a tenant row for integration tests. Unlike the
// schema-per-tenant predecessor, this tenant shares every table with every
// other tenant in the database — isolation is by tenant_id column, so
// cleanup is a DELETE, never a DROP SCHEMA.
func CreateTestTenant(t *testing.T, pool *pgxpool.Pool) *TestTenant {
	t.Helper()
	ctx := context.Background()

	if err := tenant.NewRepository(pool).EnsureSchema(ctx); err != nil {
		t.Fatalf("failed to ensure tenant schema: %v", err)
	}

	name := fmt.Sprintf("Test Tenant %d", time.Now().UnixNano())
	tt := &tenant.Tenant{Name: name, IsActive: true}
	if err := tenant.NewRepository(pool).CreateTenant(ctx, tt); err != nil {
		t.Fatalf("failed to create test tenant: %v", err)
	}

	result := &TestTenant{ID: tt.ID, Name: tt.Name}

	t.Cleanup(func() {
		cleanupTestTenant(t, pool, result.ID)
	})

	return result
}

// CreateTestLegalEntity creates a legal entity under tenantID for
// integration tests exercising ledger, payroll, or funding-gate components.
func CreateTestLegalEntity(t *testing.T, pool *pgxpool.Pool, tenantID string) *TestLegalEntity {
	t.Helper()
	ctx := context.Background()

	le := &tenant.LegalEntity{
		TenantID: tenantID,
		Name:     fmt.Sprintf("Test Legal Entity %d", time.Now().UnixNano()),
		EIN:      "00-0000000",
		Currency: "USD",
		IsActive: true,
	}
	if err := tenant.NewRepository(pool).CreateLegalEntity(ctx, le); err != nil {
		t.Fatalf("failed to create test legal entity: %v", err)
	}

	return &TestLegalEntity{ID: le.ID, TenantID: le.TenantID, Name: le.Name, EIN: le.EIN, Currency: le.Currency}
}

// cleanupTestTenant deletes every row scoped to tenantID across the tables
// an integration test may have populated, then the tenant row itself.
// Tables that don't exist yet in a given test binary are tolerated: the
// failure is logged, not fatal, since not every test exercises every
// package's schema.
func cleanupTestTenant(t *testing.T, pool *pgxpool.Pool, tenantID string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tables := []string{
		"domain_events",
		"ledger_reservations",
		"ledger_entries",
		"ledger_accounts",
		"funding_gate_evaluations",
		"payment_attempts",
		"payment_instructions",
		"reconciliation_settlements",
		"reconciliation_bank_accounts",
		"payroll_line_items",
		"payroll_statements",
		"payroll_pay_run_employees",
		"payroll_pay_runs",
		"payroll_pay_periods",
		"payroll_adjustments",
		"payroll_time_entries",
		"payroll_garnishments",
		"payroll_deductions",
		"payroll_rates",
		"payroll_employments",
		"payroll_employees",
		"legal_entities",
	}
	for _, table := range tables {
		if _, err := pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE tenant_id = $1", table), tenantID); err != nil {
			t.Logf("cleanup: skipping %s (%v)", table, err)
		}
	}

	if _, err := pool.Exec(ctx, "DELETE FROM tenants WHERE id = $1", tenantID); err != nil {
		t.Logf("warning: failed to delete test tenant %s: %v", tenantID, err)
	}
}

// SetupGormDB creates a GORM database connection for testing.
// If DATABASE_URL is set, it uses that database.
// Otherwise, it uses testcontainers to start a PostgreSQL container.
// Returns the GORM DB instance.
func SetupGormDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Get database URL - either from environment or from testcontainer
	var dbURL string
	if envURL := os.Getenv("DATABASE_URL"); envURL != "" {
		dbURL = envURL
	} else {
		// Use testcontainer - get the pool first to ensure container is started
		pool := GetTestContainer(t)
		// Get the connection string from the container
		if containerInstance != nil {
			dbURL = containerInstance.ConnStr
		} else {
			// Fallback: construct from pool config
			config := pool.Config().ConnConfig
			dbURL = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
				config.User, config.Password, config.Host, config.Port, config.Database)
		}
	}

	db, err := gorm.Open(postgres.Open(dbURL), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to connect to database with GORM: %v", err)
	}

	// Verify connection
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get underlying sql.DB: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	t.Cleanup(func() {
		if err := sqlDB.Close(); err != nil {
			t.Logf("warning: failed to close GORM connection: %v", err)
		}
	})

	return db
}
