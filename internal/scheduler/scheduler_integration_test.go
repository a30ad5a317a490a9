//go:build integration

package scheduler

import (
	"context"
	"testing"

	"github.com/ledgerline/payroll-psp/internal/testutil"
)

func TestPostgresRepository_ListActiveLegalEntities(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	repo := NewPostgresRepository(pool)
	ctx := context.Background()

	tt := testutil.CreateTestTenant(t, pool)
	le1 := testutil.CreateTestLegalEntity(t, pool, tt.ID)
	le2 := testutil.CreateTestLegalEntity(t, pool, tt.ID)

	entities, err := repo.ListActiveLegalEntities(ctx)
	if err != nil {
		t.Fatalf("ListActiveLegalEntities failed: %v", err)
	}

	found1, found2 := false, false
	for _, e := range entities {
		if e.LegalEntityID == le1.ID {
			found1 = true
		}
		if e.LegalEntityID == le2.ID {
			found2 = true
		}
	}
	if !found1 {
		t.Error("legal entity 1 not found in active legal entities list")
	}
	if !found2 {
		t.Error("legal entity 2 not found in active legal entities list")
	}
}

func TestPostgresRepository_ListActiveLegalEntities_ExcludesInactiveTenant(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	repo := NewPostgresRepository(pool)
	ctx := context.Background()

	tt := testutil.CreateTestTenant(t, pool)
	le := testutil.CreateTestLegalEntity(t, pool, tt.ID)

	if _, err := pool.Exec(ctx, "UPDATE tenants SET is_active = false WHERE id = $1", tt.ID); err != nil {
		t.Fatalf("failed to deactivate tenant: %v", err)
	}

	entities, err := repo.ListActiveLegalEntities(ctx)
	if err != nil {
		t.Fatalf("ListActiveLegalEntities failed: %v", err)
	}

	for _, e := range entities {
		if e.LegalEntityID == le.ID {
			t.Error("legal entity under an inactive tenant should not be in the active list")
		}
	}
}

func TestScheduler_WithRealRepository(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	repo := NewPostgresRepository(pool)
	config := DefaultConfig()

	s := NewSchedulerWithRepository(repo, &mockReconciliation{}, &mockLedger{}, config)

	if s.IsRunning() {
		t.Error("scheduler should not be running initially")
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !s.IsRunning() {
		t.Error("scheduler should be running after Start")
	}

	ctx := s.Stop()
	if ctx == nil {
		t.Error("Stop returned nil context")
	}
	if s.IsRunning() {
		t.Error("scheduler should not be running after Stop")
	}
}
