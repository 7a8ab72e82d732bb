// handlers_health.go - Health check handlers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/plc-visualizer/uploader/internal/realtime"
)

const healthPingTimeout = 2 * time.Second

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	catalog Catalog
	hub     *realtime.Hub
}

// NewHealthHandler creates a health handler. catalog and hub may be nil.
func NewHealthHandler(version string, catalog Catalog, hub *realtime.Hub) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		catalog: catalog,
		hub:     hub,
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Catalog string `json:"catalog"`
	Events  string `json:"events"`
}

// HandleHealth reports the server version and the state of the catalog and the
// event stream. A catalog that stops answering turns the response into a 503.
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := healthResponse{
		Status:  "ok",
		Version: h.version,
		Catalog: "disabled",
		Events:  "disabled",
	}

	if h.catalog != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthPingTimeout)
		defer cancel()
		if err := h.catalog.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Catalog = "unavailable"
		} else {
			resp.Catalog = "ok"
		}
	}

	if h.hub != nil {
		resp.Events = "stopped"
		if h.hub.Running() {
			resp.Events = "running"
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, resp)
}
