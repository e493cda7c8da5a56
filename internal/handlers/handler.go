package handlers

import (
	"time"

	"minicorr/internal/logger"
	"minicorr/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Defaults fill in request fields the caller left out.
type Defaults struct {
	Host               string
	Port               int
	MonitoringInterval time.Duration
}

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
	defaults Defaults
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger, defaults Defaults) *Handler {
	return &Handler{services: services, log: log, defaults: defaults}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", h.health)

	h.registerAPIRoutes(router)

	// state stream on the same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		h.registerDeviceRoutes(api)
		h.registerMonitoringRoutes(api)
		h.registerLoggingRoutes(api)
		h.registerHistoryRoutes(api)
	}
}

func (h *Handler) registerDeviceRoutes(api *gin.RouterGroup) {
	device := api.Group("/device")
	{
		// Body example: {"host":"192.168.0.100","port":5100}
		device.POST("/connect", h.connect)
		device.POST("/disconnect", h.disconnect)
		device.GET("/state", h.getState)

		device.POST("/relay/on", h.relayOn)
		device.POST("/relay/off", h.relayOff)
		device.GET("/temperature", h.readTemperature)

		// Body example: {"mode":"manual"}
		device.POST("/fan/mode", h.setFanMode)
		device.POST("/fan/on", h.fanOn)
		device.POST("/fan/off", h.fanOff)

		// Body example: {"min":"20","max":"35"}
		device.POST("/thresholds", h.setThresholds)
		device.GET("/thresholds", h.readThresholds)

		device.POST("/network", h.setNetwork)
		// Body example: {"code":8,"args":["20","35"]}
		device.POST("/command", h.rawCommand)
	}
}

func (h *Handler) registerMonitoringRoutes(api *gin.RouterGroup) {
	mon := api.Group("/monitoring")
	{
		// Body example: {"interval":"20s"}
		mon.POST("/start", h.startMonitoring)
		mon.POST("/stop", h.stopMonitoring)
		mon.GET("", h.getMonitoring)
	}
}

func (h *Handler) registerLoggingRoutes(api *gin.RouterGroup) {
	lg := api.Group("/logging")
	{
		lg.POST("/start", h.startLogging)
		lg.POST("/stop", h.stopLogging)
	}
}

func (h *Handler) registerHistoryRoutes(api *gin.RouterGroup) {
	api.GET("/logs", h.getLogs)
	api.GET("/samples", h.getSamples)
}
