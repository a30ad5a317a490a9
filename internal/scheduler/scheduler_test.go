package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ledgerline/payroll-psp/internal/reconciliation"
)

// mockRepository implements Repository for testing.
type mockRepository struct {
	entities []LegalEntityInfo
	err      error
}

func (m *mockRepository) ListActiveLegalEntities(ctx context.Context) ([]LegalEntityInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.entities, nil
}

// mockReconciliation implements ReconciliationRunner for testing.
type mockReconciliation struct {
	results map[string]reconciliation.Result
	errs    map[string]error
	calls   []string
}

func (m *mockReconciliation) Run(ctx context.Context, tenantID, legalEntityID string, date time.Time) (reconciliation.Result, error) {
	m.calls = append(m.calls, legalEntityID)
	if err, ok := m.errs[legalEntityID]; ok && err != nil {
		return reconciliation.Result{}, err
	}
	return m.results[legalEntityID], nil
}

// mockLedger implements ReservationExpirer for testing.
type mockLedger struct {
	expired int64
	err     error
	calls   int
}

func (m *mockLedger) ExpireReservations(ctx context.Context) (int64, error) {
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	return m.expired, nil
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.ReconciliationSchedule != "0 */4 * * *" {
		t.Errorf("ReconciliationSchedule = %q, want %q", config.ReconciliationSchedule, "0 */4 * * *")
	}
	if config.ReservationExpirySchedule != "*/15 * * * *" {
		t.Errorf("ReservationExpirySchedule = %q, want %q", config.ReservationExpirySchedule, "*/15 * * * *")
	}
	if !config.Enabled {
		t.Error("Enabled should be true by default")
	}
}

func TestNewSchedulerWithRepository(t *testing.T) {
	config := DefaultConfig()
	s := NewSchedulerWithRepository(&mockRepository{}, &mockReconciliation{}, &mockLedger{}, config)

	if s == nil {
		t.Fatal("NewSchedulerWithRepository returned nil")
	}
	if s.cron == nil {
		t.Error("cron should not be nil")
	}
	if s.running {
		t.Error("scheduler should not be running initially")
	}
}

func TestScheduler_IsRunning_Initially(t *testing.T) {
	s := NewSchedulerWithRepository(&mockRepository{}, &mockReconciliation{}, &mockLedger{}, DefaultConfig())
	if s.IsRunning() {
		t.Error("scheduler should not be running initially")
	}
}

func TestScheduler_StartDisabled(t *testing.T) {
	config := Config{
		ReconciliationSchedule:    "0 */4 * * *",
		ReservationExpirySchedule: "*/15 * * * *",
		Enabled:                   false,
	}
	s := NewSchedulerWithRepository(&mockRepository{}, &mockReconciliation{}, &mockLedger{}, config)

	if err := s.Start(); err != nil {
		t.Errorf("Start() returned error for disabled scheduler: %v", err)
	}
	if s.IsRunning() {
		t.Error("scheduler should not be running when disabled")
	}
}

func TestScheduler_StartEnabled(t *testing.T) {
	s := NewSchedulerWithRepository(&mockRepository{}, &mockReconciliation{}, &mockLedger{}, DefaultConfig())

	if err := s.Start(); err != nil {
		t.Errorf("Start() returned error: %v", err)
	}
	if !s.IsRunning() {
		t.Error("scheduler should be running after Start()")
	}
	s.Stop()
}

func TestScheduler_StartTwice(t *testing.T) {
	s := NewSchedulerWithRepository(&mockRepository{}, &mockReconciliation{}, &mockLedger{}, DefaultConfig())

	if err := s.Start(); err != nil {
		t.Errorf("first Start() returned error: %v", err)
	}
	err := s.Start()
	if err == nil {
		t.Error("second Start() should return error")
	}
	if err.Error() != "scheduler is already running" {
		t.Errorf("unexpected error message: %v", err)
	}
	s.Stop()
}

func TestScheduler_Stop(t *testing.T) {
	s := NewSchedulerWithRepository(&mockRepository{}, &mockReconciliation{}, &mockLedger{}, DefaultConfig())

	if err := s.Start(); err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}
	ctx := s.Stop()
	if ctx == nil {
		t.Error("Stop() returned nil context")
	}
	if s.IsRunning() {
		t.Error("scheduler should not be running after Stop()")
	}
}

func TestScheduler_StopNotRunning(t *testing.T) {
	s := NewSchedulerWithRepository(&mockRepository{}, &mockReconciliation{}, &mockLedger{}, DefaultConfig())

	ctx := s.Stop()
	if ctx == nil {
		t.Error("Stop() returned nil context")
	}
	select {
	case <-ctx.Done():
	default:
		t.Error("context should be canceled when stopping non-running scheduler")
	}
}

func TestScheduler_InvalidScheduleFormat(t *testing.T) {
	config := Config{
		ReconciliationSchedule:    "invalid cron expression",
		ReservationExpirySchedule: "*/15 * * * *",
		Enabled:                   true,
	}
	s := NewSchedulerWithRepository(&mockRepository{}, &mockReconciliation{}, &mockLedger{}, config)

	if err := s.Start(); err == nil {
		t.Error("Start() should return error for invalid cron expression")
		s.Stop()
	}
}

func TestScheduler_RunNow_ReconciliationAndExpiry(t *testing.T) {
	entities := []LegalEntityInfo{
		{TenantID: "t1", LegalEntityID: "le1"},
		{TenantID: "t1", LegalEntityID: "le2"},
	}
	repo := &mockRepository{entities: entities}
	recon := &mockReconciliation{results: map[string]reconciliation.Result{
		"le1": {ProvidersSwept: 1, Pulled: 2, Matched: 2},
		"le2": {ProvidersSwept: 1, Pulled: 0},
	}}
	ledger := &mockLedger{expired: 3}

	s := NewSchedulerWithRepository(repo, recon, ledger, DefaultConfig())
	s.RunNow()

	if len(recon.calls) != 2 {
		t.Errorf("expected 2 reconciliation calls, got %d", len(recon.calls))
	}
	if ledger.calls != 1 {
		t.Errorf("expected 1 reservation expiry call, got %d", ledger.calls)
	}
}

func TestScheduler_RunNow_ReconciliationErrorDoesNotAbortExpiry(t *testing.T) {
	entities := []LegalEntityInfo{{TenantID: "t1", LegalEntityID: "le1"}}
	repo := &mockRepository{entities: entities}
	recon := &mockReconciliation{errs: map[string]error{"le1": errors.New("provider down")}}
	ledger := &mockLedger{expired: 1}

	s := NewSchedulerWithRepository(repo, recon, ledger, DefaultConfig())
	s.RunNow()

	if ledger.calls != 1 {
		t.Errorf("expected reservation expiry to still run, got %d calls", ledger.calls)
	}
}

func TestScheduler_RunNow_RepositoryError(t *testing.T) {
	repo := &mockRepository{err: errors.New("database error")}
	recon := &mockReconciliation{}
	ledger := &mockLedger{}

	s := NewSchedulerWithRepository(repo, recon, ledger, DefaultConfig())
	s.RunNow()

	if len(recon.calls) != 0 {
		t.Errorf("expected no reconciliation calls when repository errors, got %d", len(recon.calls))
	}
	if ledger.calls != 1 {
		t.Errorf("expected reservation expiry to still run, got %d calls", ledger.calls)
	}
}

func TestScheduler_ConcurrentAccess(t *testing.T) {
	s := NewSchedulerWithRepository(&mockRepository{}, &mockReconciliation{}, &mockLedger{}, DefaultConfig())

	if err := s.Start(); err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			_ = s.IsRunning()
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	s.Stop()
}

func TestScheduler_StopMultipleTimes(t *testing.T) {
	s := NewSchedulerWithRepository(&mockRepository{}, &mockReconciliation{}, &mockLedger{}, DefaultConfig())

	if err := s.Start(); err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}
	if ctx1 := s.Stop(); ctx1 == nil {
		t.Error("first Stop() returned nil context")
	}
	if ctx2 := s.Stop(); ctx2 == nil {
		t.Error("second Stop() returned nil context")
	}
}
