package payroll

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/payroll-psp/internal/events"
	"github.com/ledgerline/payroll-psp/internal/ratecard"
)

func newTestService() (*Service, *mockRepository) {
	repo := newMockRepository()
	return NewServiceWithRepository(repo, events.NewEmitter()), repo
}

func seedDraftRun(repo *mockRepository, payRunID, payPeriodID string) {
	repo.payRuns[payRunID] = &PayRun{ID: payRunID, TenantID: "t1", PayPeriodID: payPeriodID, Status: StatusDraft}
	repo.timeEntries[payPeriodID] = []TimeEntry{
		{ID: "te-1", EmployeeID: "emp-1", WorkDate: time.Now(), Hours: d("40")},
	}
	repo.rates["emp-1"] = []ratecard.PayRate{
		{ID: "rate-1", EmployeeID: "emp-1", HourlyRate: d("20.00"), StartDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
}

func TestService_PreviewRun_IncludesEmployeesWithResolvableRates(t *testing.T) {
	svc, repo := newTestService()
	seedDraftRun(repo, "run-1", "pp-1")

	results, err := svc.PreviewRun(context.Background(), "t1", "run-1", time.Now())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, InclusionIncluded, results[0].Status)
	assert.Equal(t, StatusPreview, repo.payRuns["run-1"].Status)
}

func TestService_PreviewRun_MarksUnresolvableEmployeesAsError(t *testing.T) {
	svc, repo := newTestService()
	seedDraftRun(repo, "run-1", "pp-1")
	repo.rates["emp-1"] = nil

	results, err := svc.PreviewRun(context.Background(), "t1", "run-1", time.Now())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, InclusionError, results[0].Status)
	assert.NotEmpty(t, results[0].ErrorMsg)
}

func TestService_PreviewRun_RepeatCallRecomputesWithoutStatusChurn(t *testing.T) {
	svc, repo := newTestService()
	seedDraftRun(repo, "run-1", "pp-1")

	_, err := svc.PreviewRun(context.Background(), "t1", "run-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusPreview, repo.payRuns["run-1"].Status)

	_, err = svc.PreviewRun(context.Background(), "t1", "run-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusPreview, repo.payRuns["run-1"].Status)
}

func TestService_ApproveRun_RequiresAtLeastOneIncludedEmployee(t *testing.T) {
	svc, repo := newTestService()
	repo.payRuns["run-1"] = &PayRun{ID: "run-1", TenantID: "t1", PayPeriodID: "pp-1", Status: StatusPreview}

	err := svc.ApproveRun(context.Background(), "t1", "run-1", "manager-1")
	require.Error(t, err)
}

func TestService_ApproveRun_RejectsWhenAnyEmployeeIsInError(t *testing.T) {
	svc, repo := newTestService()
	repo.payRuns["run-1"] = &PayRun{ID: "run-1", TenantID: "t1", PayPeriodID: "pp-1", Status: StatusPreview}
	repo.payRunEmps["run-1"] = []PayRunEmployee{
		{PayRunID: "run-1", EmployeeID: "emp-1", Status: InclusionIncluded},
		{PayRunID: "run-1", EmployeeID: "emp-2", Status: InclusionError},
	}

	err := svc.ApproveRun(context.Background(), "t1", "run-1", "manager-1")
	require.Error(t, err)
}

func TestService_ApproveRun_LocksInputsAndTransitions(t *testing.T) {
	svc, repo := newTestService()
	seedDraftRun(repo, "run-1", "pp-1")
	_, err := svc.PreviewRun(context.Background(), "t1", "run-1", time.Now())
	require.NoError(t, err)

	err = svc.ApproveRun(context.Background(), "t1", "run-1", "manager-1")
	require.NoError(t, err)

	assert.Equal(t, StatusApproved, repo.payRuns["run-1"].Status)
	assert.Equal(t, "manager-1", repo.payRuns["run-1"].ApprovedBy)
	assert.True(t, repo.lockedTime["te-1"])
}

func TestService_ReopenRun_UnlocksAndIncrementsReopenCount(t *testing.T) {
	svc, repo := newTestService()
	seedDraftRun(repo, "run-1", "pp-1")
	require.NoError(t, first(svc.PreviewRun(context.Background(), "t1", "run-1", time.Now())))
	require.NoError(t, svc.ApproveRun(context.Background(), "t1", "run-1", "manager-1"))

	err := svc.ReopenRun(context.Background(), "t1", "run-1", "found a data entry error")
	require.NoError(t, err)

	assert.Equal(t, StatusPreview, repo.payRuns["run-1"].Status)
	assert.Equal(t, 1, repo.payRuns["run-1"].ReopenCount)
	assert.Nil(t, repo.payRuns["run-1"].ApprovedAt)
	assert.False(t, repo.lockedTime["te-1"])
}

func TestService_VoidRun_RequiresNonEmptyReason(t *testing.T) {
	svc, repo := newTestService()
	repo.payRuns["run-1"] = &PayRun{ID: "run-1", TenantID: "t1", Status: StatusCommitted}

	err := svc.VoidRun(context.Background(), "t1", "run-1", "")
	require.Error(t, err)
}

func TestService_VoidRun_OnlyFromCommittedOrPaid(t *testing.T) {
	svc, repo := newTestService()
	repo.payRuns["run-1"] = &PayRun{ID: "run-1", TenantID: "t1", Status: StatusPreview}

	err := svc.VoidRun(context.Background(), "t1", "run-1", "duplicate run")
	require.Error(t, err)
}

func TestService_VoidRun_FromCommittedSucceeds(t *testing.T) {
	svc, repo := newTestService()
	repo.payRuns["run-1"] = &PayRun{ID: "run-1", TenantID: "t1", Status: StatusCommitted}

	err := svc.VoidRun(context.Background(), "t1", "run-1", "client requested cancellation")
	require.NoError(t, err)
	assert.Equal(t, StatusVoided, repo.payRuns["run-1"].Status)
	assert.Equal(t, "client requested cancellation", repo.payRuns["run-1"].VoidReason)
}

func TestService_CommitRun_EmitsPayRunCommitted(t *testing.T) {
	repo := newMockRepository()
	emitter := events.NewEmitter()
	var received events.Event
	emitter.OnType(events.TypePayRunCommitted, "test", func(ctx context.Context, evt events.Event) error {
		received = evt
		return nil
	})
	svc := NewServiceWithRepository(repo, emitter)
	approvedRun(repo, "run-1")
	seedPayRunEmployee(repo, "run-1", "emp-1")

	_, err := svc.CommitRun(context.Background(), "t1", "run-1", []CalculationResult{
		{PayRunID: "run-1", EmployeeID: "emp-1", CalculationID: "calc-1", Net: d("100.00"), Gross: d("120.00")},
	})
	require.NoError(t, err)
	assert.Equal(t, events.TypePayRunCommitted, received.Type)
}

func first(_ []PayRunEmployee, err error) error { return err }
