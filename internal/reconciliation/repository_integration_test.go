//go:build integration

package reconciliation

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/payroll-psp/internal/railprovider"
	"github.com/ledgerline/payroll-psp/internal/testutil"
)

func TestPostgresRepository_GetOrCreateBankAccount_IsIdempotent(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	tt := testutil.CreateTestTenant(t, pool)
	le := testutil.CreateTestLegalEntity(t, pool, tt.ID)
	ctx := context.Background()

	repo := NewRepository(pool)
	require.NoError(t, repo.EnsureSchema(ctx))

	first, err := repo.GetOrCreateBankAccount(ctx, tt.ID, le.ID, "sandbox-ach")
	require.NoError(t, err)

	second, err := repo.GetOrCreateBankAccount(ctx, tt.ID, le.ID, "sandbox-ach")
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
}

func TestPostgresRepository_UpsertSettlement_InsertThenUpdateMerges(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	tt := testutil.CreateTestTenant(t, pool)
	le := testutil.CreateTestLegalEntity(t, pool, tt.ID)
	ctx := context.Background()

	repo := NewRepository(pool)
	require.NoError(t, repo.EnsureSchema(ctx))

	account, err := repo.GetOrCreateBankAccount(ctx, tt.ID, le.ID, "sandbox-ach")
	require.NoError(t, err)

	day := time.Now().Truncate(24 * time.Hour)
	created, err := repo.UpsertSettlement(ctx, &Settlement{
		BankAccountID:   account.ID,
		ExternalTraceID: "trace-1",
		EffectiveDate:   day,
		Status:          railprovider.StatusSubmitted,
		Amount:          decimal.RequireFromString("125.50"),
		Currency:        "USD",
		Direction:       railprovider.DirectionCredit,
		RawPayload:      map[string]any{"batch": "b1"},
	})
	require.NoError(t, err)
	require.True(t, created)

	later := day.Add(24 * time.Hour)
	created, err = repo.UpsertSettlement(ctx, &Settlement{
		BankAccountID:   account.ID,
		ExternalTraceID: "trace-1",
		EffectiveDate:   later,
		Status:          railprovider.StatusSettled,
		Amount:          decimal.RequireFromString("125.50"),
		Currency:        "USD",
		Direction:       railprovider.DirectionCredit,
		RawPayload:      map[string]any{"settled_batch": "b2"},
	})
	require.NoError(t, err)
	require.False(t, created, "a repeat external_trace_id must update, not insert")

	var status string
	var effective time.Time
	var raw []byte
	err = pool.QueryRow(ctx, `
		SELECT status, effective_date, raw_payload FROM reconciliation_settlements
		WHERE bank_account_id = $1 AND external_trace_id = $2
	`, account.ID, "trace-1").Scan(&status, &effective, &raw)
	require.NoError(t, err)
	require.Equal(t, string(railprovider.StatusSettled), status)
	require.True(t, effective.After(day))
	require.Contains(t, string(raw), "batch")
	require.Contains(t, string(raw), "settled_batch")
}
