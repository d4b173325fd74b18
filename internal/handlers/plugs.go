package handlers

import (
	"errors"
	"net/http"

	"solar_dashboard/internal/render"
	"solar_dashboard/internal/service"
	"solar_dashboard/internal/topic"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK        = "ok"
	statusCancelled = "cancelled"

	errUnknownPlug     = "unknown plug"
	errToggleFailed    = "failed to toggle plug"
	errInvalidBodyPref = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// plugError maps plug service errors onto HTTP responses.
func (h *Handler) plugError(c *gin.Context, name, logKey string, err error) {
	switch {
	case errors.Is(err, topic.ErrUnknownPlug):
		c.JSON(http.StatusNotFound, gin.H{"error": errUnknownPlug})
	case errors.Is(err, service.ErrPlugBusy),
		errors.Is(err, service.ErrPlugDisabled),
		errors.Is(err, service.ErrControlsDisabled),
		errors.Is(err, service.ErrNoPendingConfirmation):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, errToggleFailed, logKey, err, "plug", name)
	}
}

// Respond with a status and include the plug snapshot if available (best-effort).
func (h *Handler) respondWithStatusAndPlug(c *gin.Context, code int, status, name string) {
	resp := gin.H{"status": status}
	if p, err := h.services.Plug(name); err == nil {
		resp["plug"] = p
	}
	c.JSON(code, resp)
}

// Request DTO for a switch click.
type toggleRequest struct {
	On *bool `json:"on" binding:"required"`
}

// ToggleRequest is an exported model for Swagger docs of the toggle payload.
type ToggleRequest struct {
	// Desired switch position
	On bool `json:"on" example:"false"`
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

// @Summary      Get dashboard
// @Description  Rendered badges for every controller, plug and sensor plus the broker banner
// @Tags         dashboard
// @Produce      json
// @Success      200  {object}  render.View
// @Router       /api/v1/dashboard [get]
func (h *Handler) getDashboard(c *gin.Context) {
	c.JSON(http.StatusOK, render.Render(h.services.Snapshot(), h.view.CostPerKWh))
}

// @Summary      Toggle plug
// @Description  Plugs that need confirmation answer confirmation_required when switched off; everything else starts a reconciliation cycle.
// @Tags         plugs
// @Accept       json
// @Produce      json
// @Param        name  path   string         true  "Plug name"  example(HVAC)
// @Param        body  body   ToggleRequest  true  "Desired state"
// @Success      200   {object}  map[string]interface{}  "confirmation_required"
// @Success      202   {object}  map[string]interface{}  "started"
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/plugs/{name}/toggle [post]
func (h *Handler) togglePlug(c *gin.Context) {
	name := c.Param("name")
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}

	decision, err := h.services.RequestToggle(name, *req.On)
	if err != nil {
		h.plugError(c, name, "plug_toggle_failed", err)
		return
	}
	code := http.StatusAccepted
	if decision == service.DecisionConfirm {
		code = http.StatusOK
	}
	h.respondWithStatusAndPlug(c, code, string(decision), name)
}

// @Summary      Confirm toggle
// @Tags         plugs
// @Produce      json
// @Param        name  path  string  true  "Plug name"
// @Success      202   {object}  map[string]interface{}
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/plugs/{name}/confirm [post]
func (h *Handler) confirmPlug(c *gin.Context) {
	name := c.Param("name")
	if err := h.services.Confirm(name); err != nil {
		h.plugError(c, name, "plug_confirm_failed", err)
		return
	}
	h.respondWithStatusAndPlug(c, http.StatusAccepted, string(service.DecisionStarted), name)
}

// @Summary      Cancel toggle
// @Description  Reverts the switch and releases the plug; nothing is sent.
// @Tags         plugs
// @Produce      json
// @Param        name  path  string  true  "Plug name"
// @Success      200   {object}  map[string]interface{}
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/plugs/{name}/cancel [post]
func (h *Handler) cancelPlug(c *gin.Context) {
	name := c.Param("name")
	if err := h.services.Cancel(name); err != nil {
		h.plugError(c, name, "plug_cancel_failed", err)
		return
	}
	h.respondWithStatusAndPlug(c, http.StatusOK, statusCancelled, name)
}
