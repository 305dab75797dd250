// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/maritimeviz/maritimeviz/internal/ingest"
	"github.com/maritimeviz/maritimeviz/internal/models"
	"github.com/maritimeviz/maritimeviz/internal/store"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// FileHandler handles file upload operations
type FileHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleUploadChunk(c echo.Context) error
	HandleCompleteUpload(c echo.Context) error
	HandleGetRecentFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
	HandleRenameFile(c echo.Context) error
}

// IngestHandler handles ingest job operations
type IngestHandler interface {
	HandleStartIngest(c echo.Context) error
	HandleListJobs(c echo.Context) error
	HandleJobStatus(c echo.Context) error
	HandleJobStream(c echo.Context) error
}

// QueryHandler handles position and database queries
type QueryHandler interface {
	HandleSearchPositions(c echo.Context) error
	HandleSearchPositionsMsgpack(c echo.Context) error
	HandleStats(c echo.Context) error
	HandleListVessels(c echo.Context) error
	HandleGetVessel(c echo.Context) error
	HandleVesselTrack(c echo.Context) error
	HandleVesselMap(c echo.Context) error
}

// GFWHandler proxies the Global Fishing Watch API
type GFWHandler interface {
	HandleSearchVessel(c echo.Context) error
	HandleFishingEvents(c echo.Context) error
	HandleFishingStats(c echo.Context) error
}

// AISStore is the read side of the AIS database.
// This allows mocking in tests
type AISStore interface {
	Search(ctx context.Context, params store.SearchParams) ([]models.PositionReport, error)
	Track(ctx context.Context, mmsi int64, start, end time.Time) ([]models.PositionReport, error)
	Vessel(ctx context.Context, mmsi int64) (*models.StaticVoyage, error)
	Vessels(ctx context.Context, limit int) ([]models.VesselSummary, error)
	Stats(ctx context.Context) (*models.DatabaseStats, error)
}

// JobManager runs ingest jobs
type JobManager interface {
	Submit(fileID, fileName, path string) (ingest.Job, error)
	Get(id string) (ingest.Job, bool)
	List() []ingest.Job
}
