package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ocpalps/parkmeter/internal/domain"
	"github.com/ocpalps/parkmeter/internal/service"
)

type ParkingHandler struct {
	inventory *service.InventoryService
	ledger    service.Ledger
}

func NewParkingHandler(inventory *service.InventoryService, ledger service.Ledger) *ParkingHandler {
	return &ParkingHandler{inventory: inventory, ledger: ledger}
}

// POST /parkings
func (h *ParkingHandler) CreateFacility(c *gin.Context) {
	var dto domain.FacilityDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f, err := h.inventory.CreateFacility(c.Request.Context(), dto)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

// GET /parkings
func (h *ParkingHandler) GetAllFacilities(c *gin.Context) {
	facilities, err := h.inventory.GetAllFacilities(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, facilities)
}

// GET /parkings/:id
func (h *ParkingHandler) GetFacilityByID(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	f, err := h.inventory.GetFacilityByID(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// PUT /parkings/:id
func (h *ParkingHandler) UpdateFacility(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var dto domain.FacilityDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f, err := h.inventory.UpdateFacility(c.Request.Context(), id, dto)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// DELETE /parkings/:id
func (h *ParkingHandler) DeleteFacility(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	if err := h.inventory.DeleteFacility(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /parkings/:id/spaces
func (h *ParkingHandler) CreateSpace(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var dto domain.SpaceDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sp, err := h.inventory.CreateSpace(c.Request.Context(), id, dto)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sp)
}

// POST /parkings/:id/spaces/bulk/:number
func (h *ParkingHandler) CreateSpaces(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	n, ok := intParam(c, "number")
	if !ok {
		return
	}
	var dto domain.SpaceDTO
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&dto); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	spaces, err := h.inventory.CreateSpaces(c.Request.Context(), id, n, dto)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, spaces)
}

// GET /parkings/:id/spaces
func (h *ParkingHandler) GetSpaces(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	spaces, err := h.inventory.GetSpacesByFacilityID(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, spaces)
}

// DELETE /spaces/:id
func (h *ParkingHandler) DeleteSpace(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	if err := h.inventory.DeleteSpace(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /parkings/:id/status
func (h *ParkingHandler) GetStatus(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	if _, err := h.inventory.GetFacilityByID(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	status, err := h.ledger.GetParkingStatus(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// PUT /parkings/:id/in/:vehicleId
func (h *ParkingHandler) VehicleIn(c *gin.Context) {
	h.registerDirection(c, domain.DirectionIn)
}

// PUT /parkings/:id/out/:vehicleId
func (h *ParkingHandler) VehicleOut(c *gin.Context) {
	h.registerDirection(c, domain.DirectionOut)
}

func (h *ParkingHandler) registerDirection(c *gin.Context, direction domain.AccessDirection) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	access := domain.VehicleAccess{
		FacilityID: id,
		Direction:  direction,
		VehicleID:  c.Param("vehicleId"),
	}
	if v := c.Query("vehicleType"); v != "" {
		vt, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vehicleType"})
			return
		}
		access.VehicleType = domain.VehicleType(vt)
	}
	if v := c.Query("spaceId"); v != "" {
		sid, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid spaceId"})
			return
		}
		access.SpaceID = sid
	}

	res := h.ledger.RegisterAccess(c.Request.Context(), access)
	if !res.Persisted() {
		_ = c.Error(res.Err)
	}
	c.JSON(resultStatus(res), res)
}

// GET /parkings/:id/vehicles/:vehicleId/last-access
func (h *ParkingHandler) GetLastAccess(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	access, err := h.ledger.GetLastVehicleAccess(c.Request.Context(), id, c.Param("vehicleId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, access)
}
