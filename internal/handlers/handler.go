package handlers

import (
	"time"

	"solar_dashboard/internal/logger"
	"solar_dashboard/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// ViewConfig tunes how the dashboard is presented.
type ViewConfig struct {
	CostPerKWh float64
	// Interval is the default websocket refresh period.
	Interval time.Duration
}

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	view     ViewConfig
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, view ViewConfig, log *logger.Logger) *Handler {
	if view.Interval <= 0 || view.Interval > maxInterval {
		view.Interval = defaultInterval
	}
	return &Handler{services: services, view: view, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.requestLogger)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health endpoint
	router.GET("/health", h.health)

	h.registerAPIRoutes(router)

	// Live dashboard stream (HTTP upgrade) on the same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.GET("/dashboard", h.getDashboard)
		h.registerPlugRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerPlugRoutes(api *gin.RouterGroup) {
	plugs := api.Group("/plugs")
	{
		// Body example: {"on":false}
		plugs.POST("/:name/toggle", h.togglePlug)
		plugs.POST("/:name/confirm", h.confirmPlug)
		plugs.POST("/:name/cancel", h.cancelPlug)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
	}
}
