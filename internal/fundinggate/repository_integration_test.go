//go:build integration

package fundinggate

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/payroll-psp/internal/ledger"
	"github.com/ledgerline/payroll-psp/internal/testutil"
)

func TestPostgresRepository_Evaluate_StrictInsufficientFunds(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	tt := testutil.CreateTestTenant(t, pool)
	le := testutil.CreateTestLegalEntity(t, pool, tt.ID)
	ctx := context.Background()

	ledgerSvc := ledger.NewService(pool, nil)
	require.NoError(t, ledgerSvc.EnsureSchema(ctx))

	clearing := &ledger.Account{TenantID: tt.ID, LegalEntityID: le.ID, AccountType: ledger.ClientFundingClearingAccountType, IsActive: true}
	funding := &ledger.Account{TenantID: tt.ID, LegalEntityID: le.ID, AccountType: "funding_source", IsActive: true}
	require.NoError(t, ledgerSvc.CreateAccount(ctx, clearing))
	require.NoError(t, ledgerSvc.CreateAccount(ctx, funding))

	_, err := ledgerSvc.PostEntry(ctx, ledger.Entry{
		TenantID: tt.ID, LegalEntityID: le.ID, IdempotencyKey: "fund-1",
		EntryType: "funding_received", DebitAccountID: funding.ID, CreditAccountID: clearing.ID,
		Amount: decimal.RequireFromString("500.00"),
	})
	require.NoError(t, err)

	svc := NewService(pool, ledgerSvc, nil)
	require.NoError(t, svc.EnsureSchema(ctx))

	eval, err := svc.Evaluate(ctx, tt.ID, le.ID, "run-1", NetPayOnly(),
		StatementTotals{NetPay: decimal.RequireFromString("750.00")}, "gate-1", true)
	require.NoError(t, err)
	require.Equal(t, OutcomeHardFail, eval.Outcome)
	require.True(t, decimal.RequireFromString("500.00").Equal(eval.Available))

	replay, err := svc.Evaluate(ctx, tt.ID, le.ID, "run-1", NetPayOnly(),
		StatementTotals{NetPay: decimal.RequireFromString("750.00")}, "gate-1", true)
	require.NoError(t, err)
	require.Equal(t, eval.ID, replay.ID)
}
