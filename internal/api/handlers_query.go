// handlers_query.go - Position, vessel and map query handlers
package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/paulmach/orb"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/maritimeviz/maritimeviz/internal/geo"
	"github.com/maritimeviz/maritimeviz/internal/models"
	"github.com/maritimeviz/maritimeviz/internal/store"
)

const (
	dateLayout          = "2006-01-02"
	defaultVesselsLimit = 100
	maxMapZoom          = 18
)

// QueryHandlerImpl implements the QueryHandler interface
type QueryHandlerImpl struct {
	db AISStore
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(db AISStore) QueryHandler {
	return &QueryHandlerImpl{db: db}
}

// HandleSearchPositions returns matching position reports as JSON
func (h *QueryHandlerImpl) HandleSearchPositions(c echo.Context) error {
	params, err := searchParamsFromQuery(c)
	if err != nil {
		return err
	}

	positions, err := h.db.Search(c.Request().Context(), params)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, positionsResponse{
		Positions: nonNilPositions(positions),
		Count:     len(positions),
		Limit:     params.Limit,
		Offset:    params.Offset,
	})
}

// HandleSearchPositionsMsgpack returns the same page as HandleSearchPositions
// encoded as MessagePack
func (h *QueryHandlerImpl) HandleSearchPositionsMsgpack(c echo.Context) error {
	params, err := searchParamsFromQuery(c)
	if err != nil {
		return err
	}

	positions, err := h.db.Search(c.Request().Context(), params)
	if err != nil {
		return err
	}

	data, err := encodeMsgpack(positionsResponse{
		Positions: nonNilPositions(positions),
		Count:     len(positions),
		Limit:     params.Limit,
		Offset:    params.Offset,
	})
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleStats returns table counts and the covered time range
func (h *QueryHandlerImpl) HandleStats(c echo.Context) error {
	stats, err := h.db.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// HandleListVessels returns the busiest vessels
func (h *QueryHandlerImpl) HandleListVessels(c echo.Context) error {
	limit := defaultVesselsLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return NewValidationError("limit")
		}
		limit = n
	}

	vessels, err := h.db.Vessels(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	if vessels == nil {
		vessels = []models.VesselSummary{}
	}
	return c.JSON(http.StatusOK, vessels)
}

// HandleGetVessel returns the latest static report of a vessel
func (h *QueryHandlerImpl) HandleGetVessel(c echo.Context) error {
	mmsi, err := mmsiParam(c)
	if err != nil {
		return err
	}

	vessel, err := h.db.Vessel(c.Request().Context(), mmsi)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NewNotFoundError("vessel", c.Param("mmsi"))
		}
		return err
	}
	return c.JSON(http.StatusOK, vessel)
}

// HandleVesselTrack returns a vessel's track as a GeoJSON FeatureCollection
func (h *QueryHandlerImpl) HandleVesselTrack(c echo.Context) error {
	mmsi, start, end, err := trackParams(c)
	if err != nil {
		return err
	}

	positions, err := h.db.Track(c.Request().Context(), mmsi, start, end)
	if err != nil {
		return err
	}

	fc := geo.RouteFeatureCollection(positions)
	data, err := fc.MarshalJSON()
	if err != nil {
		return NewInternalError("failed to encode GeoJSON", err)
	}
	return c.Blob(http.StatusOK, "application/geo+json", data)
}

// HandleVesselMap renders a vessel's track as a Leaflet HTML page
func (h *QueryHandlerImpl) HandleVesselMap(c echo.Context) error {
	mmsi, start, end, err := trackParams(c)
	if err != nil {
		return err
	}
	zoom := 0
	if raw := c.QueryParam("zoom"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxMapZoom {
			return NewValidationError("zoom")
		}
		zoom = n
	}

	positions, err := h.db.Track(c.Request().Context(), mmsi, start, end)
	if err != nil {
		return err
	}

	m := geo.NewMap(orb.Point{0, 0}, zoom)
	m.Title = fmt.Sprintf("Track of MMSI %d", mmsi)
	if err := m.AddRoute(geo.RouteFeatureCollection(positions), fmt.Sprintf("MMSI %d", mmsi)); err != nil {
		if errors.Is(err, geo.ErrEmptyRoute) {
			return NewNotFoundError("track", c.Param("mmsi"))
		}
		return NewInternalError("failed to build map", err)
	}
	if err := m.FitToData(); err != nil {
		return NewNotFoundError("track", c.Param("mmsi"))
	}
	// FitToData picks its own zoom; an explicit one wins.
	if zoom > 0 {
		m.Zoom = zoom
	}

	var buf bytes.Buffer
	if err := m.Render(&buf); err != nil {
		return NewInternalError("failed to render map", err)
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

// searchParamsFromQuery reads mmsi (repeatable or comma separated), start,
// end, polygon, limit and offset.
func searchParamsFromQuery(c echo.Context) (store.SearchParams, error) {
	var params store.SearchParams

	for _, raw := range c.QueryParams()["mmsi"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			mmsi, err := strconv.ParseInt(part, 10, 64)
			if err != nil || mmsi <= 0 {
				return params, NewValidationError("mmsi")
			}
			params.MMSIs = append(params.MMSIs, mmsi)
		}
	}

	params.StartDate = c.QueryParam("start")
	params.EndDate = c.QueryParam("end")
	params.PolygonWKT = c.QueryParam("polygon")

	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return params, NewValidationError("limit")
		}
		params.Limit = n
	}
	if raw := c.QueryParam("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return params, NewValidationError("offset")
		}
		params.Offset = n
	}
	return params, nil
}

func mmsiParam(c echo.Context) (int64, error) {
	mmsi, err := strconv.ParseInt(c.Param("mmsi"), 10, 64)
	if err != nil || mmsi <= 0 {
		return 0, NewValidationError("mmsi")
	}
	return mmsi, nil
}

// trackParams reads the mmsi path parameter and the optional start and end
// dates. The end date is inclusive.
func trackParams(c echo.Context) (mmsi int64, start, end time.Time, err error) {
	mmsi, err = mmsiParam(c)
	if err != nil {
		return 0, start, end, err
	}
	if raw := c.QueryParam("start"); raw != "" {
		start, err = time.Parse(dateLayout, raw)
		if err != nil {
			return 0, start, end, NewValidationError("start")
		}
	}
	if raw := c.QueryParam("end"); raw != "" {
		end, err = time.Parse(dateLayout, raw)
		if err != nil {
			return 0, start, end, NewValidationError("end")
		}
		end = end.AddDate(0, 0, 1)
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return 0, start, end, NewBadRequestError("end date before start date", nil)
	}
	return mmsi, start, end, nil
}

// encodeMsgpack encodes v using the json struct tags so both formats share
// field names.
func encodeMsgpack(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func nonNilPositions(p []models.PositionReport) []models.PositionReport {
	if p == nil {
		return []models.PositionReport{}
	}
	return p
}

// Request/Response types

type positionsResponse struct {
	Positions []models.PositionReport `json:"positions"`
	Count     int                     `json:"count"`
	Limit     int                     `json:"limit"`
	Offset    int                     `json:"offset"`
}
