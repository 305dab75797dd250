// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	db      AISStore
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, db AISStore) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		db:      db,
	}
}

// HandleHealth returns server health status. A database that cannot answer
// a stats query makes the service degraded.
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	body := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	}
	if h.db != nil {
		if _, err := h.db.Stats(c.Request().Context()); err != nil {
			body["status"] = "degraded"
			body["database"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, body)
		}
	}
	return c.JSON(http.StatusOK, body)
}
