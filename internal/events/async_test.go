package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncEmitter_SyncHandlersRunInline(t *testing.T) {
	e := NewAsyncEmitter()
	var order []string
	var mu sync.Mutex

	e.OnAll("sync-handler", func(ctx context.Context, evt Event) error {
		mu.Lock()
		order = append(order, "sync")
		mu.Unlock()
		return nil
	})

	errs := e.Emit(context.Background(), New(TypeFundingApproved, "t", "c", nil))
	assert.Empty(t, errs)
	assert.Equal(t, []string{"sync"}, order)
}

func TestAsyncEmitter_AsyncHandlersRunConcurrentlyAndGather(t *testing.T) {
	e := NewAsyncEmitter()
	var count int32
	var mu sync.Mutex
	started := make(chan struct{}, 3)

	handler := func(ctx context.Context, evt Event) error {
		started <- struct{}{}
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}
	e.OnAllAsync("h1", handler)
	e.OnAllAsync("h2", handler)
	e.OnAllAsync("h3", handler)

	errs := e.Emit(context.Background(), New(TypeFundingApproved, "t", "c", nil))
	assert.Empty(t, errs)
	assert.Equal(t, int32(3), count)
	close(started)
}

func TestAsyncEmitter_FailingHandlerDoesNotBlockOthers(t *testing.T) {
	e := NewAsyncEmitter()
	var succeeded int32
	var mu sync.Mutex

	e.OnAllAsync("failer", func(ctx context.Context, evt Event) error {
		return assert.AnError
	})
	e.OnAllAsync("succeeder", func(ctx context.Context, evt Event) error {
		mu.Lock()
		succeeded++
		mu.Unlock()
		return nil
	})

	errs := e.Emit(context.Background(), New(TypeFundingApproved, "t", "c", nil))
	require.Len(t, errs, 1)
	assert.Equal(t, int32(1), succeeded)
}

func TestAsyncEmitter_BatchAtomicity(t *testing.T) {
	e := NewAsyncEmitter()
	var delivered int32
	var mu sync.Mutex
	e.OnAllAsync("counter", func(ctx context.Context, evt Event) error {
		mu.Lock()
		delivered++
		mu.Unlock()
		return nil
	})

	_, err := e.WithBatch(context.Background(), func(b *Batch) error {
		b.Add(New(TypeFundingApproved, "t", "c", nil))
		return assert.AnError
	})
	require.Error(t, err)
	assert.Equal(t, int32(0), delivered)

	_, err = e.WithBatch(context.Background(), func(b *Batch) error {
		b.Add(New(TypeFundingApproved, "t", "c", nil))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), delivered)
}
