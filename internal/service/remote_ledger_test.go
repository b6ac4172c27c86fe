package service_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ocpalps/parkmeter/internal/api"
	"github.com/ocpalps/parkmeter/internal/domain"
	"github.com/ocpalps/parkmeter/internal/repository"
	"github.com/ocpalps/parkmeter/internal/repository/memory"
	"github.com/ocpalps/parkmeter/internal/service"
)

// newLedgerServer serves the wire routes backed by an in-memory embedded ledger.
func newLedgerServer(t *testing.T, tokens *service.ServiceTokens) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()

	store := memory.NewAccessStore()
	inv := memory.NewInventory()
	inventory := service.NewInventoryService(inv.Facilities(), inv.Spaces())
	aggregator := service.NewStatusAggregator(store, service.DefaultAggregatorConfig(), nil, log)
	ledger := service.NewEmbeddedLedger(store, aggregator, service.EmbeddedLedgerOptions{Inventory: inventory}, log)
	require.NoError(t, ledger.Initialize(context.Background()))

	router := api.SetupRouter(api.RouterDeps{
		Ledger:       ledger,
		Inventory:    inventory,
		StatusSource: ledger,
		Tokens:       tokens,
		Log:          log,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func newRemote(t *testing.T, url string, tokens *service.ServiceTokens) *service.RemoteLedger {
	t.Helper()
	return service.NewRemoteLedger(url, service.RemoteLedgerOptions{Timeout: 2 * time.Second, Tokens: tokens}, zap.NewNop())
}

func TestRemoteLedger_RoundTrip(t *testing.T) {
	ctx := context.Background()
	srv := newLedgerServer(t, nil)
	remote := newRemote(t, srv.URL, nil)

	res := remote.RegisterAccess(ctx, domain.VehicleAccess{FacilityID: 1, VehicleID: "AB123CD", Direction: domain.DirectionIn})
	assert.ErrorIs(t, res.Err, service.ErrNotInitialized)

	require.NoError(t, remote.Initialize(ctx))
	assert.True(t, remote.IsInitialized())

	res = remote.RegisterAccess(ctx, domain.VehicleAccess{FacilityID: 1, VehicleID: "ab123cd", Direction: domain.DirectionIn})
	require.Equal(t, domain.ResultCompleted, res.State, res.Message)
	require.NotEmpty(t, res.ID)

	status, err := remote.GetParkingStatus(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, status.BusySpaces)

	last, err := remote.GetLastVehicleAccess(ctx, 1, "AB123CD")
	require.NoError(t, err)
	assert.Equal(t, res.ID, last.ID)
	assert.Equal(t, domain.DirectionIn, last.Direction)

	_, err = remote.GetLastVehicleAccess(ctx, 1, "ZZ999ZZ")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	status, err = remote.GetParkingStatus(ctx, 999)
	require.NoError(t, err)
	assert.Zero(t, status.BusySpaces)
	assert.Zero(t, status.TotalSpaces)
}

func TestRemoteLedger_ReusedIDIsAConflict(t *testing.T) {
	ctx := context.Background()
	remote := newRemote(t, newLedgerServer(t, nil).URL, nil)
	require.NoError(t, remote.Initialize(ctx))

	first := domain.VehicleAccess{ID: "gate-9-0001", FacilityID: 1, VehicleID: "AB123CD", Direction: domain.DirectionIn}
	require.Equal(t, domain.ResultCompleted, remote.RegisterAccess(ctx, first).State)

	reused := first
	reused.FacilityID = 2
	res := remote.RegisterAccess(ctx, reused)
	assert.Equal(t, domain.ResultError, res.State)
	assert.ErrorIs(t, res.Err, repository.ErrDuplicateEntry)

	status, err := remote.GetParkingStatus(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, status.BusySpaces)
}

func TestRemoteLedger_ValidatesBeforeSending(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	remote := newRemote(t, srv.URL, nil)
	require.NoError(t, remote.Initialize(context.Background()))

	res := remote.RegisterAccess(context.Background(), domain.VehicleAccess{FacilityID: 1, Direction: domain.DirectionIn})
	assert.ErrorIs(t, res.Err, domain.ErrInvalidAccess)
	assert.Equal(t, int32(1), hits.Load())
}

func TestRemoteLedger_ServiceTokens(t *testing.T) {
	ctx := context.Background()
	srv := newLedgerServer(t, service.NewServiceTokens("s3cret", time.Minute))

	wrong := newRemote(t, srv.URL, service.NewServiceTokens("other", time.Minute))
	require.NoError(t, wrong.Initialize(ctx))
	res := wrong.RegisterAccess(ctx, domain.VehicleAccess{FacilityID: 1, VehicleID: "AB123CD", Direction: domain.DirectionIn})
	assert.Equal(t, domain.ResultError, res.State)
	assert.ErrorIs(t, res.Err, service.ErrUnavailable)

	right := newRemote(t, srv.URL, service.NewServiceTokens("s3cret", time.Minute))
	require.NoError(t, right.Initialize(ctx))
	res = right.RegisterAccess(ctx, domain.VehicleAccess{FacilityID: 1, VehicleID: "AB123CD", Direction: domain.DirectionIn})
	assert.Equal(t, domain.ResultCompleted, res.State, res.Message)
}

func TestRemoteLedger_BreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			return
		}
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"state":"error","message":"access store unavailable"}`))
	}))
	defer srv.Close()

	remote := newRemote(t, srv.URL, nil)
	require.NoError(t, remote.Initialize(context.Background()))

	access := domain.VehicleAccess{FacilityID: 1, VehicleID: "AB123CD", Direction: domain.DirectionIn}
	for i := 0; i < 5; i++ {
		res := remote.RegisterAccess(context.Background(), access)
		require.ErrorIs(t, res.Err, service.ErrUnavailable)
		assert.Contains(t, res.Message, "access store unavailable")
	}

	res := remote.RegisterAccess(context.Background(), access)
	assert.ErrorIs(t, res.Err, service.ErrUnavailable)
	assert.ErrorIs(t, res.Err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(5), hits.Load())
}

func TestRemoteLedger_UnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	remote := newRemote(t, url, nil)
	err := remote.Initialize(context.Background())
	assert.ErrorIs(t, err, service.ErrUnavailable)
	assert.False(t, remote.IsInitialized())
}
