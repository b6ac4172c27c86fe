package handler

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ocpalps/parkmeter/internal/domain"
	"github.com/ocpalps/parkmeter/internal/logger"
	"github.com/ocpalps/parkmeter/internal/service"
)

type PlateAccessRequest struct {
	ImageBase64 string                 `json:"imageBase64" binding:"required"`
	Direction   domain.AccessDirection `json:"direction" binding:"required"`
	VehicleType domain.VehicleType     `json:"vehicleType"`
	SpaceID     int                    `json:"spaceId"`
}

type PlateAccessResponse struct {
	Plate  string                   `json:"plate"`
	Result domain.PersistenceResult `json:"result"`
}

type PlateHandler struct {
	plates *service.PlateService
}

func NewPlateHandler(plates *service.PlateService) *PlateHandler {
	return &PlateHandler{plates: plates}
}

// POST /parkings/:id/plate-access
func (h *PlateHandler) RegisterFromImage(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var req PlateAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil || len(image) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image data"})
		return
	}
	logger.FromGin(c).Debug("plate image received", zap.Int("bytes", len(image)))

	access := domain.VehicleAccess{
		FacilityID:  id,
		Direction:   req.Direction,
		VehicleType: req.VehicleType,
		SpaceID:     req.SpaceID,
	}
	plate, res, err := h.plates.RegisterFromImage(c.Request.Context(), access, image)
	if err != nil {
		if errors.Is(err, service.ErrPlateNotRecognized) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		abortWithError(c, err)
		return
	}
	c.JSON(resultStatus(res), PlateAccessResponse{Plate: plate, Result: res})
}
