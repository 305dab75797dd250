// handlers_gfw.go - Global Fishing Watch proxy handlers
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/maritimeviz/maritimeviz/internal/gfw"
)

const defaultEventsLimit = 10

// GFWHandlerImpl implements the GFWHandler interface. A nil client means no
// token was configured and every route answers 503.
type GFWHandlerImpl struct {
	client gfw.API
}

// NewGFWHandler creates a new GFW handler
func NewGFWHandler(client gfw.API) GFWHandler {
	return &GFWHandlerImpl{client: client}
}

// HandleSearchVessel searches vessels by MMSI, IMO, name or call sign
func (h *GFWHandlerImpl) HandleSearchVessel(c echo.Context) error {
	if h.client == nil {
		return errGFWDisabled()
	}
	query := c.QueryParam("query")
	if query == "" {
		return NewValidationError("query")
	}

	entries, err := h.client.SearchVessel(c.Request().Context(), query)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNilEntries(entries))
}

// HandleFishingEvents lists fishing events of one vessel in a date window
func (h *GFWHandlerImpl) HandleFishingEvents(c echo.Context) error {
	if h.client == nil {
		return errGFWDisabled()
	}
	vesselID := c.QueryParam("vesselId")
	if vesselID == "" {
		return NewValidationError("vesselId")
	}
	limit, offset := defaultEventsLimit, 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return NewValidationError("limit")
		}
		limit = n
	}
	if raw := c.QueryParam("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return NewValidationError("offset")
		}
		offset = n
	}

	entries, err := h.client.FishingEvents(c.Request().Context(), vesselID,
		c.QueryParam("start"), c.QueryParam("end"), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNilEntries(entries))
}

// HandleFishingStats returns global fishing effort statistics
func (h *GFWHandlerImpl) HandleFishingStats(c echo.Context) error {
	if h.client == nil {
		return errGFWDisabled()
	}
	stats, err := h.client.FishingStats(c.Request().Context(), c.QueryParam("start"), c.QueryParam("end"))
	if err != nil {
		return err
	}
	if stats == nil {
		stats = gfw.Stats{}
	}
	return c.JSON(http.StatusOK, stats)
}

func errGFWDisabled() *APIError {
	return NewServiceUnavailableError("Global Fishing Watch access is not configured")
}

func nonNilEntries(e []gfw.Entry) []gfw.Entry {
	if e == nil {
		return []gfw.Entry{}
	}
	return e
}
