package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"device_sync/internal/service"
	"device_sync/internal/transport"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK           = "ok"
	statusConnected    = "connected"
	statusDisconnected = "disconnected"
	statusExecuted     = "executed"
	statusRefreshed    = "refreshed"
	statusCleared      = "cleared"

	errInvalidDays = "days must be a positive integer"
)

// Centralized error logging and response. The engine has already notified the
// user, so the log stays at info.
func (h *Handler) commandError(c *gin.Context, logKey string, err error, kv ...interface{}) {
	fields := append([]interface{}{"err", err}, kv...)
	h.log.Infow(logKey, fields...)
	c.JSON(httpStatusFor(err), gin.H{"error": err.Error(), "snapshot": h.engine.Snapshot()})
}

func httpStatusFor(err error) int {
	var (
		te *transport.TimeoutError
		he *transport.HTTPError
	)
	switch {
	case errors.Is(err, service.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidAction), errors.Is(err, service.ErrInvalidExport):
		return http.StatusBadRequest
	case errors.As(err, &te):
		return http.StatusGatewayTimeout
	case errors.As(err, &he) && he.Status == http.StatusNotFound:
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

// Respond with a status and the current snapshot.
func (h *Handler) respondWithSnapshot(c *gin.Context, status string, extra gin.H) {
	resp := gin.H{"status": status}
	for k, v := range extra {
		resp[k] = v
	}
	resp["snapshot"] = h.engine.Snapshot()
	c.JSON(http.StatusOK, resp)
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Full device snapshot
// @Tags         device
// @Produce      json
// @Success      200  {object}  models.Snapshot
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/device/snapshot [get]
// @Security     BearerAuth
func (h *Handler) getSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Snapshot())
}

// @Summary      Device status
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, connection"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/device/status [get]
// @Security     BearerAuth
func (h *Handler) getStatus(c *gin.Context) {
	snap := h.engine.Snapshot()
	c.JSON(http.StatusOK, gin.H{"status": snap.Status, "connection": snap.Connection})
}

// @Summary      Usage statistics
// @Tags         device
// @Produce      json
// @Success      200  {object}  models.StatsSnapshot
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/device/stats [get]
// @Security     BearerAuth
func (h *Handler) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Snapshot().Stats)
}

// @Summary      In-flight flags
// @Tags         device
// @Produce      json
// @Success      200  {object}  models.LoadingState
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/device/loading [get]
// @Security     BearerAuth
func (h *Handler) getLoading(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Snapshot().Loading)
}

// @Summary      Activity journal, newest first
// @Tags         events
// @Produce      json
// @Success      200  {array}   models.Event
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/device/events [get]
// @Security     BearerAuth
func (h *Handler) getEvents(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Snapshot().Events)
}

// @Summary      Clear the activity journal
// @Tags         events
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/device/events [delete]
// @Security     BearerAuth
func (h *Handler) clearEvents(c *gin.Context) {
	h.engine.ClearEvents()
	c.JSON(http.StatusOK, gin.H{"status": statusCleared})
}

// @Summary      Connect the device
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, snapshot"
// @Failure      401  {object}  map[string]string
// @Failure      502  {object}  map[string]interface{}
// @Failure      504  {object}  map[string]interface{}
// @Router       /api/v1/device/connect [post]
// @Security     BearerAuth
func (h *Handler) connect(c *gin.Context) {
	if err := h.engine.Connect(c.Request.Context()); err != nil {
		h.commandError(c, "device_connect_failed", err)
		return
	}
	h.respondWithSnapshot(c, statusConnected, gin.H{})
}

// @Summary      Disconnect the device
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, snapshot"
// @Failure      401  {object}  map[string]string
// @Failure      502  {object}  map[string]interface{}
// @Failure      504  {object}  map[string]interface{}
// @Router       /api/v1/device/disconnect [post]
// @Security     BearerAuth
func (h *Handler) disconnect(c *gin.Context) {
	if err := h.engine.Disconnect(c.Request.Context()); err != nil {
		h.commandError(c, "device_disconnect_failed", err)
		return
	}
	h.respondWithSnapshot(c, statusDisconnected, gin.H{})
}

// @Summary      Send a control action
// @Description  Rejected with 409 while the device is disconnected
// @Tags         device
// @Produce      json
// @Param        action  path      string  true  "Control action, e.g. toggle"
// @Success      200     {object}  map[string]interface{}  "status, action, snapshot"
// @Failure      400     {object}  map[string]interface{}
// @Failure      401     {object}  map[string]string
// @Failure      409     {object}  map[string]interface{}
// @Failure      502     {object}  map[string]interface{}
// @Router       /api/v1/device/control/{action} [post]
// @Security     BearerAuth
func (h *Handler) control(c *gin.Context) {
	action := c.Param("action")
	if err := h.engine.SendCommand(c.Request.Context(), action); err != nil {
		h.commandError(c, "device_control_failed", err, "action", action)
		return
	}
	h.respondWithSnapshot(c, statusExecuted, gin.H{"action": action})
}

// @Summary      Re-poll status and stats
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, snapshot"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/device/refresh [post]
// @Security     BearerAuth
func (h *Handler) refresh(c *gin.Context) {
	h.engine.Refresh(c.Request.Context())
	h.respondWithSnapshot(c, statusRefreshed, gin.H{})
}

// @Summary      Toggle auto-refresh
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "enabled, snapshot"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/device/auto-refresh/toggle [post]
// @Security     BearerAuth
func (h *Handler) toggleAutoRefresh(c *gin.Context) {
	enabled := h.engine.ToggleAutoRefresh()
	h.respondWithSnapshot(c, statusOK, gin.H{"enabled": enabled})
}

// @Summary      Export history
// @Description  Redirects to the backend download
// @Tags         device
// @Param        format  query  string  false  "csv or json"  default(csv)
// @Param        days    query  int     false  "history window"  default(30)
// @Success      302
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/device/export [get]
// @Security     BearerAuth
func (h *Handler) export(c *gin.Context) {
	days := 0
	if s := c.Query("days"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidDays})
			return
		}
		days = v
	}

	url, err := h.engine.ExportData(c.Query("format"), days)
	if err != nil {
		h.log.Infow("device_export_failed", "err", err)
		c.JSON(httpStatusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Redirect(http.StatusFound, url)
}
