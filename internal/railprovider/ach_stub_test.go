package railprovider

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestACHStub_SubmitAutoSettles(t *testing.T) {
	stub := NewACHStub(true)
	ctx := context.Background()

	result, err := stub.Submit(ctx, InstructionPayload{
		InstructionID: "inst-1",
		Amount:        decimal.RequireFromString("100.00"),
		Currency:      "USD",
		Rail:          RailACHCredit,
		Direction:     DirectionCredit,
	})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.NotEmpty(t, result.TraceID)

	status, err := stub.GetStatus(ctx, result.ProviderRequestID)
	require.NoError(t, err)
	assert.Equal(t, StatusSettled, status.Status)
}

func TestACHStub_SubmitHoldsAtAcceptedWhenNotAutoSettle(t *testing.T) {
	stub := NewACHStub(false)
	ctx := context.Background()

	result, err := stub.Submit(ctx, InstructionPayload{InstructionID: "inst-2", Rail: RailACHCredit})
	require.NoError(t, err)

	status, err := stub.GetStatus(ctx, result.ProviderRequestID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, status.Status)
}

func TestACHStub_GetStatusUnknownForMissingRequest(t *testing.T) {
	stub := NewACHStub(true)
	status, err := stub.GetStatus(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, status.Status)
}

func TestACHStub_CancelBeforeSettlementSucceeds(t *testing.T) {
	stub := NewACHStub(false)
	ctx := context.Background()

	result, err := stub.Submit(ctx, InstructionPayload{InstructionID: "inst-3", Rail: RailACHCredit})
	require.NoError(t, err)

	cancel, err := stub.Cancel(ctx, result.ProviderRequestID)
	require.NoError(t, err)
	assert.True(t, cancel.Success)

	status, err := stub.GetStatus(ctx, result.ProviderRequestID)
	require.NoError(t, err)
	assert.Equal(t, StatusReversed, status.Status)
}

func TestACHStub_CancelAfterSettlementFails(t *testing.T) {
	stub := NewACHStub(true)
	ctx := context.Background()

	result, err := stub.Submit(ctx, InstructionPayload{InstructionID: "inst-4", Rail: RailACHCredit})
	require.NoError(t, err)

	cancel, err := stub.Cancel(ctx, result.ProviderRequestID)
	require.NoError(t, err)
	assert.False(t, cancel.Success)
	assert.False(t, cancel.CanRetry)
}

func TestACHStub_ReconcileFiltersBySettlementDate(t *testing.T) {
	stub := NewACHStub(false)
	ctx := context.Background()
	settlementDate := time.Now().AddDate(0, 0, 2)

	result, err := stub.Submit(ctx, InstructionPayload{
		InstructionID:  "inst-5",
		Amount:         decimal.RequireFromString("250.00"),
		Currency:       "USD",
		Rail:           RailACHCredit,
		SettlementDate: &settlementDate,
	})
	require.NoError(t, err)

	records, err := stub.Reconcile(ctx, settlementDate)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, result.TraceID, records[0].ExternalTraceID)

	none, err := stub.Reconcile(ctx, time.Now().AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestACHStub_SimulateReturnSetsReturnCode(t *testing.T) {
	stub := NewACHStub(true)
	ctx := context.Background()

	result, err := stub.Submit(ctx, InstructionPayload{InstructionID: "inst-6", Rail: RailACHCredit})
	require.NoError(t, err)

	stub.SimulateReturn(result.ProviderRequestID, "R01")

	status, err := stub.GetStatus(ctx, result.ProviderRequestID)
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, status.Status)
	assert.Equal(t, "R01", status.ReturnCode)
}

func TestACHStub_CapabilitiesDeclareACHOnly(t *testing.T) {
	stub := NewACHStub(true)
	caps := stub.Capabilities()
	assert.True(t, caps.ACHCredit)
	assert.True(t, caps.ACHDebit)
	assert.False(t, caps.Wire)
	assert.False(t, caps.FedNow)
}
