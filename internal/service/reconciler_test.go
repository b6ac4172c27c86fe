package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReconciler_RunOnceCountsPendingAccesses(t *testing.T) {
	ctx := context.Background()
	store := newScriptedStore()
	appendAccess(t, store, carIn(1, "AA111AA"))
	appendAccess(t, store, carIn(1, "BB222BB"))
	appendAccess(t, store, carOut(2, "CC333CC"))

	r := NewReconciler(store, fastAggregator(store, 3), ReconcilerConfig{Grace: 30 * time.Second}, nil, zap.NewNop())

	// Still within the grace period.
	n, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	r.now = func() time.Time { return time.Now().Add(time.Minute) }
	n, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	agg, err := store.GetAggregate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, agg.BusySpaces)
	agg, err = store.GetAggregate(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, -1, agg.BusySpaces)

	n, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReconciler_LeavesFailuresForNextPass(t *testing.T) {
	ctx := context.Background()
	store := newScriptedStore()
	appendAccess(t, store, carIn(1, "AA111AA"))
	store.conflicts = 100

	r := NewReconciler(store, fastAggregator(store, 2), ReconcilerConfig{BatchSize: 10}, nil, zap.NewNop())
	r.now = func() time.Time { return time.Now().Add(time.Minute) }

	n, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	store.conflicts = 0
	n, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReconciler_RunStopsWithContext(t *testing.T) {
	store := newScriptedStore()
	r := NewReconciler(store, fastAggregator(store, 1), ReconcilerConfig{Interval: time.Millisecond}, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}
