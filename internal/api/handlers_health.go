// handlers_health.go - Health check handler
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version   string
	startTime time.Time
}

// NewHealthHandler creates a new health handler instance
func NewHealthHandler(version string) HealthHandler {
	return &HealthHandlerImpl{
		version:   version,
		startTime: time.Now(),
	}
}

// HandleHealth returns service health and uptime
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": h.version,
		"uptime":  time.Since(h.startTime).String(),
	})
}
