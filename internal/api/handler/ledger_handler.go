package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ocpalps/parkmeter/internal/domain"
	"github.com/ocpalps/parkmeter/internal/logger"
	"github.com/ocpalps/parkmeter/internal/repository"
	"github.com/ocpalps/parkmeter/internal/service"
)

// StatusSource exposes raw aggregates; only the embedded ledger has them.
type StatusSource interface {
	GetStatusSnapshot(ctx context.Context, facilityID int) (*domain.StatusSnapshot, error)
}

// LedgerHandler serves the wire routes that remote ledgers call.
type LedgerHandler struct {
	ledger service.Ledger
	status StatusSource
}

func NewLedgerHandler(ledger service.Ledger, status StatusSource) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, status: status}
}

// POST /registeraccess
func (h *LedgerHandler) RegisterAccess(c *gin.Context) {
	var access domain.VehicleAccess
	if err := c.ShouldBindJSON(&access); err != nil {
		c.JSON(http.StatusBadRequest, domain.Failed(errors.New("empty or malformed access payload")))
		return
	}
	res := h.ledger.RegisterAccess(c.Request.Context(), access)
	if !res.Persisted() {
		logger.FromGin(c).Warn("registeraccess rejected")
		_ = c.Error(res.Err)
	}
	c.JSON(resultStatus(res), res)
}

// GET /getparkingstatus/:facilityId
func (h *LedgerHandler) GetParkingStatus(c *gin.Context) {
	facilityID, ok := intParam(c, "facilityId")
	if !ok {
		return
	}
	snapshot, err := h.status.GetStatusSnapshot(c.Request.Context(), facilityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no status for facility"})
			return
		}
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// GET /getlastvehicleaccess/:facilityId/:vehicleId
func (h *LedgerHandler) GetLastVehicleAccess(c *gin.Context) {
	facilityID, ok := intParam(c, "facilityId")
	if !ok {
		return
	}
	access, err := h.ledger.GetLastVehicleAccess(c.Request.Context(), facilityID, c.Param("vehicleId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, access)
}
