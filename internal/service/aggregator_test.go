package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocpalps/parkmeter/internal/domain"
	"github.com/ocpalps/parkmeter/internal/repository"
)

func appendAccess(t *testing.T, s *scriptedStore, a domain.VehicleAccess) domain.VehicleAccess {
	t.Helper()
	_, err := s.Append(context.Background(), &a)
	require.NoError(t, err)
	return a
}

func TestStatusAggregator_ApplyIsIdempotent(t *testing.T) {
	store := newScriptedStore()
	agg := fastAggregator(store, 5)
	a := appendAccess(t, store, carIn(1, "AB123CD"))

	first, err := agg.Apply(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 1, first.BusySpaces)

	again, err := agg.Apply(context.Background(), a)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, 1, again.BusySpaces)
}

func TestStatusAggregator_RetriesConflicts(t *testing.T) {
	store := newScriptedStore()
	store.conflicts = 3
	agg := fastAggregator(store, 5)
	a := appendAccess(t, store, carIn(1, "AB123CD"))

	res, err := agg.Apply(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 1, res.BusySpaces)
	assert.Equal(t, int32(4), store.upsertCalls.Load())
}

func TestStatusAggregator_SurfacesExhaustedRetries(t *testing.T) {
	store := newScriptedStore()
	store.conflicts = 100
	agg := fastAggregator(store, 5)
	a := appendAccess(t, store, carIn(1, "AB123CD"))

	_, err := agg.Apply(context.Background(), a)
	require.ErrorIs(t, err, ErrAggregationConflict)
	assert.Equal(t, int32(5), store.upsertCalls.Load())
}

func TestStatusAggregator_DoesNotRetryOtherErrors(t *testing.T) {
	store := newScriptedStore()
	boom := errors.New("connection reset")
	store.upsertErr = boom
	agg := fastAggregator(store, 5)
	a := appendAccess(t, store, carIn(1, "AB123CD"))

	_, err := agg.Apply(context.Background(), a)
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrAggregationConflict)
	assert.Equal(t, int32(1), store.upsertCalls.Load())
}

func TestStatusAggregator_SkipsAggregateRecords(t *testing.T) {
	store := newScriptedStore()
	agg := fastAggregator(store, 5)

	res, err := agg.Apply(context.Background(), domain.VehicleAccess{ID: "_status_1", FacilityID: 1, Direction: domain.DirectionIn})
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Zero(t, store.upsertCalls.Load())
}

func TestStatusAggregator_OutBeforeInGoesNegative(t *testing.T) {
	store := newScriptedStore()
	agg := fastAggregator(store, 5)
	a := appendAccess(t, store, carOut(4, "AB123CD"))

	res, err := agg.Apply(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, -1, res.BusySpaces)
}

func TestStatusAggregator_RejectsAccessFromAnotherFacility(t *testing.T) {
	store := newScriptedStore()
	agg := fastAggregator(store, 5)
	a := appendAccess(t, store, carIn(1, "AB123CD"))

	moved := a
	moved.FacilityID = 2
	_, err := agg.Apply(context.Background(), moved)
	require.ErrorIs(t, err, repository.ErrAccessMismatch)
	assert.Equal(t, int32(1), store.upsertCalls.Load())
}
