package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter_DispatchOrderAndIsolation(t *testing.T) {
	e := NewEmitter()
	var order []string

	e.OnAll("first", func(ctx context.Context, evt Event) error {
		order = append(order, "first")
		return errors.New("boom")
	})
	e.OnType(TypeFundingApproved, "second", func(ctx context.Context, evt Event) error {
		order = append(order, "second")
		return nil
	})
	e.OnCategory(CategoryFunding, "third", func(ctx context.Context, evt Event) error {
		order = append(order, "third")
		return nil
	})

	evt := New(TypeFundingApproved, "tenant-1", "corr-1", nil)
	errs := e.Emit(context.Background(), evt)

	require.Len(t, errs, 1)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestEmitter_NonMatchingHandlerNotCalled(t *testing.T) {
	e := NewEmitter()
	called := false
	e.OnType(TypePaymentSettled, "h", func(ctx context.Context, evt Event) error {
		called = true
		return nil
	})

	e.Emit(context.Background(), New(TypeFundingApproved, "t", "c", nil))
	assert.False(t, called)
}

func TestEmitter_BatchAtomicity(t *testing.T) {
	e := NewEmitter()
	var delivered []Type
	e.OnAll("collector", func(ctx context.Context, evt Event) error {
		delivered = append(delivered, evt.Type)
		return nil
	})

	// S7: raising before exit discards the whole batch.
	_, err := e.WithBatch(context.Background(), func(b *Batch) error {
		b.Add(New(TypeFundingApproved, "t", "c", nil))
		b.Add(New(TypePaymentInstructionCreated, "t", "c", nil))
		return errors.New("abort")
	})
	require.Error(t, err)
	assert.Empty(t, delivered)

	// Re-open and exit normally: both delivered, in order.
	handlerErrs, err := e.WithBatch(context.Background(), func(b *Batch) error {
		b.Add(New(TypeFundingApproved, "t", "c", nil))
		b.Add(New(TypePaymentInstructionCreated, "t", "c", nil))
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, handlerErrs)
	assert.Equal(t, []Type{TypeFundingApproved, TypePaymentInstructionCreated}, delivered)
}

func TestEmitter_EmitAllCollectsAcrossEvents(t *testing.T) {
	e := NewEmitter()
	e.OnAll("failer", func(ctx context.Context, evt Event) error {
		return errors.New("fail")
	})

	errs := e.EmitAll(context.Background(), []Event{
		New(TypeFundingApproved, "t", "c", nil),
		New(TypePaymentSettled, "t", "c", nil),
	})
	assert.Len(t, errs, 2)
}

func TestNew_DefaultsCategoryAndSchemaVersion(t *testing.T) {
	evt := New(TypeLedgerEntryPosted, "tenant-1", "corr-1", map[string]any{"amount": "10.00"})
	assert.Equal(t, CategoryLedger, evt.Category)
	assert.Equal(t, 1, evt.Metadata.SchemaVersion)
	assert.Equal(t, "tenant-1", evt.Metadata.TenantID)
}
