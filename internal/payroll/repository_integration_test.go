//go:build integration

package payroll

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/payroll-psp/internal/testutil"
)

func TestPostgresRepository_PayRunLifecycle_CAS(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	tt := testutil.CreateTestTenant(t, pool)
	le := testutil.CreateTestLegalEntity(t, pool, tt.ID)
	ctx := context.Background()

	repo := NewRepository(pool)
	require.NoError(t, repo.EnsureSchema(ctx))

	period := &PayPeriod{TenantID: tt.ID, LegalEntityID: le.ID, StartDate: time.Now().AddDate(0, 0, -14), EndDate: time.Now()}
	require.NoError(t, repo.CreatePayPeriod(ctx, period))

	run := &PayRun{TenantID: tt.ID, LegalEntityID: le.ID, PayPeriodID: period.ID}
	require.NoError(t, repo.CreatePayRun(ctx, run))
	require.Equal(t, StatusDraft, run.Status)

	ok, err := repo.UpdatePayRunStatusCAS(ctx, tt.ID, run.ID, StatusDraft, StatusPreview)
	require.NoError(t, err)
	require.True(t, ok)

	// A CAS against the old (now stale) status must lose the race.
	ok, err = repo.UpdatePayRunStatusCAS(ctx, tt.ID, run.ID, StatusDraft, StatusPreview)
	require.NoError(t, err)
	require.False(t, ok)

	loaded, err := repo.GetPayRun(ctx, tt.ID, run.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPreview, loaded.Status)
}

func TestPostgresRepository_ApproveReopenVoid(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	tt := testutil.CreateTestTenant(t, pool)
	le := testutil.CreateTestLegalEntity(t, pool, tt.ID)
	ctx := context.Background()

	repo := NewRepository(pool)
	require.NoError(t, repo.EnsureSchema(ctx))

	period := &PayPeriod{TenantID: tt.ID, LegalEntityID: le.ID, StartDate: time.Now().AddDate(0, 0, -14), EndDate: time.Now()}
	require.NoError(t, repo.CreatePayPeriod(ctx, period))
	run := &PayRun{TenantID: tt.ID, LegalEntityID: le.ID, PayPeriodID: period.ID}
	require.NoError(t, repo.CreatePayRun(ctx, run))

	_, err := repo.UpdatePayRunStatusCAS(ctx, tt.ID, run.ID, StatusDraft, StatusPreview)
	require.NoError(t, err)

	ok, err := repo.SetApproval(ctx, tt.ID, run.ID, "manager-1", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	loaded, err := repo.GetPayRun(ctx, tt.ID, run.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, loaded.Status)
	require.Equal(t, "manager-1", loaded.ApprovedBy)

	ok, err = repo.Reopen(ctx, tt.ID, run.ID)
	require.NoError(t, err)
	require.True(t, ok)

	loaded, err = repo.GetPayRun(ctx, tt.ID, run.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPreview, loaded.Status)
	require.Equal(t, 1, loaded.ReopenCount)
	require.Nil(t, loaded.ApprovedAt)

	// Void is only legal from committed/paid; from preview it must fail.
	ok, err = repo.SetVoided(ctx, tt.ID, run.ID, "test cancellation")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPostgresRepository_InsertStatement_IdempotentByPayRunEmployeeID(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	tt := testutil.CreateTestTenant(t, pool)
	le := testutil.CreateTestLegalEntity(t, pool, tt.ID)
	ctx := context.Background()

	repo := NewRepository(pool)
	require.NoError(t, repo.EnsureSchema(ctx))

	period := &PayPeriod{TenantID: tt.ID, LegalEntityID: le.ID, StartDate: time.Now().AddDate(0, 0, -14), EndDate: time.Now()}
	require.NoError(t, repo.CreatePayPeriod(ctx, period))
	run := &PayRun{TenantID: tt.ID, LegalEntityID: le.ID, PayPeriodID: period.ID}
	require.NoError(t, repo.CreatePayRun(ctx, run))

	employeeID := uuid.New().String()
	pre := &PayRunEmployee{PayRunID: run.ID, EmployeeID: employeeID, Status: InclusionIncluded}
	require.NoError(t, repo.UpsertPayRunEmployee(ctx, pre))

	stmt := &PayStatement{PayRunID: run.ID, PayRunEmployeeID: pre.ID, EmployeeID: employeeID, CalculationID: "calc-fixed-1", NetPay: d("100.00"), GrossPay: d("120.00")}
	require.NoError(t, repo.InsertStatement(ctx, tt.ID, stmt, nil))

	existing, err := repo.GetStatementByPayRunEmployeeID(ctx, tt.ID, pre.ID)
	require.NoError(t, err)
	require.NotNil(t, existing)
	require.Equal(t, stmt.ID, existing.ID)

	// Re-inserting against the same pay_run_employee_id is a silent no-op,
	// not a duplicate row or an error, even though the calculation_id here
	// happens to match — a mismatched calculation_id is rejected one layer
	// up, by Commit, before InsertStatement is ever called again.
	dup := &PayStatement{PayRunID: run.ID, PayRunEmployeeID: pre.ID, EmployeeID: employeeID, CalculationID: "calc-fixed-1", NetPay: d("999.00"), GrossPay: d("999.00")}
	require.NoError(t, repo.InsertStatement(ctx, tt.ID, dup, nil))

	reloaded, err := repo.GetStatementByPayRunEmployeeID(ctx, tt.ID, pre.ID)
	require.NoError(t, err)
	require.True(t, reloaded.NetPay.Equal(d("100.00")))
}

func TestPostgresRepository_WithAdvisoryLock_SerializesConcurrentCommits(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	tt := testutil.CreateTestTenant(t, pool)
	le := testutil.CreateTestLegalEntity(t, pool, tt.ID)
	ctx := context.Background()

	repo := NewRepository(pool)
	require.NoError(t, repo.EnsureSchema(ctx))

	period := &PayPeriod{TenantID: tt.ID, LegalEntityID: le.ID, StartDate: time.Now().AddDate(0, 0, -14), EndDate: time.Now()}
	require.NoError(t, repo.CreatePayPeriod(ctx, period))
	run := &PayRun{TenantID: tt.ID, LegalEntityID: le.ID, PayPeriodID: period.ID}
	require.NoError(t, repo.CreatePayRun(ctx, run))
	_, err := repo.UpdatePayRunStatusCAS(ctx, tt.ID, run.ID, StatusDraft, StatusPreview)
	require.NoError(t, err)
	_, err = repo.SetApproval(ctx, tt.ID, run.ID, "manager-1", time.Now())
	require.NoError(t, err)

	employeeID := uuid.New().String()
	require.NoError(t, repo.UpsertPayRunEmployee(ctx, &PayRunEmployee{PayRunID: run.ID, EmployeeID: employeeID, Status: InclusionIncluded}))

	results := []CalculationResult{
		{PayRunID: run.ID, EmployeeID: employeeID, CalculationID: "calc-concurrent-1", Net: d("50.00"), Gross: d("60.00")},
	}

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := Commit(ctx, repo, tt.ID, run.ID, results)
			done <- err
		}()
	}
	err1 := <-done
	err2 := <-done
	require.True(t, err1 == nil || err2 == nil)

	loaded, err := repo.GetPayRun(ctx, tt.ID, run.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCommitted, loaded.Status)
}
