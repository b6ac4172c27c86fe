package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ocpalps/parkmeter/internal/metrics"
	"github.com/ocpalps/parkmeter/internal/repository/memory"
	"github.com/ocpalps/parkmeter/internal/service"
)

func newDeps(t *testing.T, initialize bool) RouterDeps {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()
	m := metrics.NewLedger()

	store := memory.NewAccessStore()
	inv := memory.NewInventory()
	inventory := service.NewInventoryService(inv.Facilities(), inv.Spaces())
	aggregator := service.NewStatusAggregator(store, service.DefaultAggregatorConfig(), m, log)
	ledger := service.NewEmbeddedLedger(store, aggregator, service.EmbeddedLedgerOptions{Inventory: inventory, Metrics: m}, log)
	if initialize {
		require.NoError(t, ledger.Initialize(context.Background()))
	}
	return RouterDeps{Ledger: ledger, Inventory: inventory, StatusSource: ledger, Metrics: m, Log: log}
}

func serve(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestSetupRouter_Health(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, serve(SetupRouter(newDeps(t, false)), http.MethodGet, "/healthz").Code)
	assert.Equal(t, http.StatusOK, serve(SetupRouter(newDeps(t, true)), http.MethodGet, "/healthz").Code)
}

func TestSetupRouter_MetricsReflectTraffic(t *testing.T) {
	r := SetupRouter(newDeps(t, true))

	require.Equal(t, http.StatusOK, serve(r, http.MethodPut, "/api/v1/parkings/1/in/AB123CD").Code)

	w := serve(r, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "parkmeter_")
}

func TestSetupRouter_WireRoutesNeedEmbeddedLedger(t *testing.T) {
	deps := newDeps(t, true)
	r := SetupRouter(deps)
	require.Equal(t, http.StatusOK, serve(r, http.MethodPut, "/api/v1/parkings/1/in/AB123CD").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/getparkingstatus/1").Code)

	deps.StatusSource = nil
	r = SetupRouter(deps)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/getparkingstatus/1").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/parkings").Code)
}

func TestSetupRouter_CORSPreflight(t *testing.T) {
	w := serve(SetupRouter(newDeps(t, true)), http.MethodOptions, "/api/v1/parkings")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
