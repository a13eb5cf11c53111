package handlers

import (
	"context"

	"device_sync/internal/logger"
	"device_sync/internal/models"
	"device_sync/internal/notify"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Engine is the device engine as seen by the HTTP layer.
type Engine interface {
	Snapshot() models.Snapshot
	Subscribe(fn func(models.Snapshot)) (unsubscribe func())
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	SendCommand(ctx context.Context, action string) error
	ExportData(format string, days int) (string, error)
	ToggleAutoRefresh() bool
	Refresh(ctx context.Context)
	ClearEvents()
}

// TokenParser validates bearer tokens. A disabled parser leaves the API open.
type TokenParser interface {
	Enabled() bool
	ParseToken(token string) (string, error)
}

// Notifications is the fan-out of user-facing notices streamed over /ws.
type Notifications interface {
	Subscribe() chan notify.Notification
	Unsubscribe(ch chan notify.Notification)
}

// Handler wires HTTP layer to the engine and logging.
type Handler struct {
	engine        Engine
	auth          TokenParser
	notifications Notifications
	log           *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(engine Engine, auth TokenParser, notifications Notifications, log *logger.Logger) *Handler {
	return &Handler{engine: engine, auth: auth, notifications: notifications, log: logger.OrNop(log)}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health endpoint
	router.GET("/health", h.health)

	// Versioned API endpoints (protected)
	h.registerAPIRoutes(router)

	// Snapshot and notification stream, same port
	router.GET("/ws", h.authMiddleware, h.wsConnect)

	return router
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.authMiddleware)
	{
		h.registerDeviceRoutes(api)
	}
}

func (h *Handler) registerDeviceRoutes(api *gin.RouterGroup) {
	device := api.Group("/device")
	{
		device.GET("/snapshot", h.getSnapshot)
		device.GET("/status", h.getStatus)
		device.GET("/stats", h.getStats)
		device.GET("/loading", h.getLoading)
		device.GET("/events", h.getEvents)
		device.DELETE("/events", h.clearEvents)

		device.POST("/connect", h.connect)
		device.POST("/disconnect", h.disconnect)
		device.POST("/control/:action", h.control)

		device.POST("/refresh", h.refresh)
		device.POST("/auto-refresh/toggle", h.toggleAutoRefresh)
		// Query example: ?format=csv&days=30
		device.GET("/export", h.export)
	}
}
