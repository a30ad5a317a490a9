//go:build integration

package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/payroll-psp/internal/testutil"
)

func TestPostgresRepository_PostEntry_IdempotentAcrossCalls(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	tt := testutil.CreateTestTenant(t, pool)
	le := testutil.CreateTestLegalEntity(t, pool, tt.ID)
	ctx := context.Background()

	repo := NewRepository(pool)
	require.NoError(t, repo.EnsureSchema(ctx))

	clearing := &Account{TenantID: tt.ID, LegalEntityID: le.ID, AccountType: "client_funding_clearing", IsActive: true}
	netPay := &Account{TenantID: tt.ID, LegalEntityID: le.ID, AccountType: "net_pay_payable", IsActive: true}
	require.NoError(t, repo.CreateAccount(ctx, clearing))
	require.NoError(t, repo.CreateAccount(ctx, netPay))

	entry := &Entry{
		TenantID: tt.ID, LegalEntityID: le.ID, IdempotencyKey: "post-1",
		EntryType: "funding_received", DebitAccountID: clearing.ID, CreditAccountID: netPay.ID,
		Amount: decimal.RequireFromString("100.00"),
	}

	first, created, err := repo.PostEntry(ctx, entry)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := repo.PostEntry(ctx, &Entry{
		TenantID: tt.ID, LegalEntityID: le.ID, IdempotencyKey: "post-1",
		EntryType: "funding_received", DebitAccountID: clearing.ID, CreditAccountID: netPay.ID,
		Amount: decimal.RequireFromString("999.00"),
	})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)
	require.True(t, first.Amount.Equal(second.Amount))

	bal, err := repo.Balance(ctx, tt.ID, netPay.ID)
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("100.00").Equal(bal.Available))
}

func TestPostgresRepository_Reservation_Lifecycle(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	tt := testutil.CreateTestTenant(t, pool)
	le := testutil.CreateTestLegalEntity(t, pool, tt.ID)
	ctx := context.Background()

	repo := NewRepository(pool)
	require.NoError(t, repo.EnsureSchema(ctx))

	acct := &Account{TenantID: tt.ID, LegalEntityID: le.ID, AccountType: "client_funding_clearing", IsActive: true}
	require.NoError(t, repo.CreateAccount(ctx, acct))

	res := &Reservation{
		TenantID: tt.ID, LegalEntityID: le.ID, AccountID: acct.ID,
		Amount: decimal.RequireFromString("40.00"), ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, repo.CreateReservation(ctx, res))

	bal, err := repo.Balance(ctx, tt.ID, acct.ID)
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("40.00").Equal(bal.Reserved))

	require.NoError(t, repo.ReleaseReservation(ctx, tt.ID, res.ID, "not needed"))

	bal, err = repo.Balance(ctx, tt.ID, acct.ID)
	require.NoError(t, err)
	require.True(t, decimal.Zero.Equal(bal.Reserved))
}
