package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ocpalps/parkmeter/internal/api/handler"
	"github.com/ocpalps/parkmeter/internal/api/middleware"
	"github.com/ocpalps/parkmeter/internal/logger"
	"github.com/ocpalps/parkmeter/internal/metrics"
	"github.com/ocpalps/parkmeter/internal/service"
)

type RouterDeps struct {
	Ledger    service.Ledger
	Inventory *service.InventoryService
	// StatusSource is set only when the ledger is embedded; it enables the wire routes.
	StatusSource handler.StatusSource
	Plates       *service.PlateService
	WebSocket    *handler.WebSocketManager
	Tokens       *service.ServiceTokens
	Metrics      *metrics.Ledger
	Log          *zap.Logger
}

func SetupRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(logger.GinMiddleware(d.Log), logger.Recovery(d.Log))

	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) {
		if !d.Ledger.IsInitialized() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "initializing"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	if d.WebSocket != nil {
		wsHandler := handler.NewWebSocketHandler(d.WebSocket)
		r.GET("/ws", wsHandler.HandleWebSocket)
	}

	if d.StatusSource != nil {
		ledgerH := handler.NewLedgerHandler(d.Ledger, d.StatusSource)
		wire := r.Group("/", middleware.ServiceAuth(d.Tokens))
		{
			wire.POST("/registeraccess", ledgerH.RegisterAccess)
			wire.GET("/getparkingstatus/:facilityId", ledgerH.GetParkingStatus)
			wire.GET("/getlastvehicleaccess/:facilityId/:vehicleId", ledgerH.GetLastVehicleAccess)
		}
	}

	v1 := r.Group("/api/v1")
	{
		parkingH := handler.NewParkingHandler(d.Inventory, d.Ledger)
		parkings := v1.Group("/parkings")
		{
			parkings.POST("", parkingH.CreateFacility)
			parkings.GET("", parkingH.GetAllFacilities)
			parkings.GET("/:id", parkingH.GetFacilityByID)
			parkings.PUT("/:id", parkingH.UpdateFacility)
			parkings.DELETE("/:id", parkingH.DeleteFacility)

			parkings.POST("/:id/spaces", parkingH.CreateSpace)
			parkings.POST("/:id/spaces/bulk/:number", parkingH.CreateSpaces)
			parkings.GET("/:id/spaces", parkingH.GetSpaces)

			parkings.GET("/:id/status", parkingH.GetStatus)
			parkings.PUT("/:id/in/:vehicleId", parkingH.VehicleIn)
			parkings.PUT("/:id/out/:vehicleId", parkingH.VehicleOut)
			parkings.GET("/:id/vehicles/:vehicleId/last-access", parkingH.GetLastAccess)

			if d.Plates != nil {
				plateH := handler.NewPlateHandler(d.Plates)
				parkings.POST("/:id/plate-access", plateH.RegisterFromImage)
			}
		}
		v1.DELETE("/spaces/:id", parkingH.DeleteSpace)
	}

	return r
}
