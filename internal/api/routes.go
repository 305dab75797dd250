// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/maritimeviz/maritimeviz/internal/config"
	"github.com/maritimeviz/maritimeviz/internal/gfw"
	"github.com/maritimeviz/maritimeviz/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Files             storage.Store
	DB                AISStore
	Jobs              JobManager
	GFW               gfw.API // nil when no token is configured
	Version           string
	AllowFileDeletion bool
	Logger            *zap.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health HealthHandler
	Files  FileHandler
	Ingest IngestHandler
	Query  QueryHandler
	GFW    GFWHandler

	allowFileDeletion bool
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:            NewHealthHandler(deps.Version, deps.DB),
		Files:             NewFileHandler(deps.Files, deps.AllowFileDeletion),
		Ingest:            NewIngestHandler(deps.Files, deps.Jobs, deps.Logger),
		Query:             NewQueryHandler(deps.DB),
		GFW:               NewGFWHandler(deps.GFW),
		allowFileDeletion: deps.AllowFileDeletion,
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check and metrics
	e.GET("/api/health", handlers.Health.HandleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// File upload routes
	files := e.Group("/api/files")
	files.POST("/upload", handlers.Files.HandleUploadFile)
	files.POST("/upload/chunk", handlers.Files.HandleUploadChunk)
	files.POST("/upload/complete", handlers.Files.HandleCompleteUpload)
	files.GET("/recent", handlers.Files.HandleGetRecentFiles)
	files.GET("/:id", handlers.Files.HandleGetFile)
	files.PUT("/:id", handlers.Files.HandleRenameFile)

	// Conditional delete based on config
	if handlers.allowFileDeletion {
		files.DELETE("/:id", handlers.Files.HandleDeleteFile)
	}

	// Ingest job routes
	ingest := e.Group("/api/ingest")
	ingest.POST("", handlers.Ingest.HandleStartIngest)
	ingest.GET("", handlers.Ingest.HandleListJobs)
	ingest.GET("/:jobId", handlers.Ingest.HandleJobStatus)
	ingest.GET("/:jobId/stream", handlers.Ingest.HandleJobStream)

	// Query routes
	e.GET("/api/positions", handlers.Query.HandleSearchPositions)
	e.GET("/api/positions/msgpack", handlers.Query.HandleSearchPositionsMsgpack)
	e.GET("/api/stats", handlers.Query.HandleStats)

	vessels := e.Group("/api/vessels")
	vessels.GET("", handlers.Query.HandleListVessels)
	vessels.GET("/:mmsi", handlers.Query.HandleGetVessel)
	vessels.GET("/:mmsi/track", handlers.Query.HandleVesselTrack)
	vessels.GET("/:mmsi/map", handlers.Query.HandleVesselMap)

	// Global Fishing Watch proxy
	gfwGroup := e.Group("/api/gfw")
	gfwGroup.GET("/vessels", handlers.GFW.HandleSearchVessel)
	gfwGroup.GET("/events", handlers.GFW.HandleFishingEvents)
	gfwGroup.GET("/stats", handlers.GFW.HandleFishingStats)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg *config.AppConfig, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Use custom error handler
	e.HTTPErrorHandler = NewErrorHandler(logger, false)

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Log.RequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/stream") ||
				path == "/api/health" ||
				path == "/metrics"
		},
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			logger.Info("request", fields...)
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("handler panicked",
				zap.String("path", c.Request().URL.Path),
				zap.Error(err),
				zap.ByteString("stack", stack))
			return err
		},
	}))

	if timeout := cfg.Server.RequestTimeout(); timeout > 0 {
		e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
			Timeout: timeout,
			Skipper: func(c echo.Context) bool {
				path := c.Request().URL.Path
				return strings.HasSuffix(path, "/stream") ||
					strings.Contains(path, "/upload") ||
					c.Request().Header.Get(echo.HeaderAccept) == "text/event-stream"
			},
			ErrorMessage: "Request timeout - query took too long",
		}))
	}

	// Body limit middleware
	if cfg.Server.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))
	}

	// CORS configuration
	if cfg.Server.EnableCORS {
		origins := splitOrigins(cfg.Server.AllowOrigins)
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}

	if cfg.Security.AuthSecret != "" {
		e.Use(JWTAuth(cfg.Security.AuthSecret, apiAuthSkipper))
	}
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return origins
}
