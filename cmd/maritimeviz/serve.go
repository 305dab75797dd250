package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/maritimeviz/maritimeviz/internal/api"
	"github.com/maritimeviz/maritimeviz/internal/ingest"
	"github.com/maritimeviz/maritimeviz/internal/models"
	"github.com/maritimeviz/maritimeviz/internal/observability"
	"github.com/maritimeviz/maritimeviz/internal/publish"
	"github.com/maritimeviz/maritimeviz/internal/storage"
	"github.com/maritimeviz/maritimeviz/internal/web"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Starts the HTTP server: file uploads, background ingest jobs, position
and vessel queries, GeoJSON tracks, Leaflet maps, the Global Fishing Watch
proxy and Prometheus metrics on /metrics.

When ingest.schedule is set, files dropped into ingest.inbox_directory are
ingested on that cron schedule.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	files, err := storage.NewLocalStore(cfg.Storage.UploadsDirectory, cfg.Security.AllowedExtensions(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	sink, closeSink, err := openSink()
	if err != nil {
		return err
	}
	defer closeSink()

	proc := ingest.NewProcessor(db, sink, processorConfig(), logger, metrics)
	jobs := ingest.NewManager(proc, ingest.ManagerOptions{
		MaxConcurrent: cfg.Ingest.MaxConcurrentJobs,
		Clock:         clockwork.NewRealClock(),
		Logger:        logger,
		Metrics:       metrics,
		OnFinish: func(job ingest.Job) {
			if job.FileID == "" {
				return
			}
			status := models.FileStatusIngested
			if job.Status == ingest.StatusError {
				status = models.FileStatusError
			}
			if err := files.SetStatus(job.FileID, status); err != nil {
				logger.Warn("failed to update file status", zap.String("file_id", job.FileID), zap.Error(err))
			}
		},
	})
	jobs.StartCleanup(cfg.Ingest.CleanupInterval(), cfg.Ingest.JobMaxAge())

	if cfg.Ingest.Schedule != "" {
		sched, err := ingest.NewScheduler(cfg.Ingest.InboxDirectory, cfg.Ingest.Schedule, jobs, logger)
		if err != nil {
			return err
		}
		sched.Start()
		defer func() { <-sched.Stop().Done() }()
	}

	gfwClient, err := newGFWClient(metrics, nil)
	if err != nil {
		return err
	}
	if gfwClient == nil {
		logger.Info("no GFW token configured; /api/gfw routes are disabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	api.SetupMiddleware(e, cfg, logger)
	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Files:             files,
		DB:                db,
		Jobs:              jobs,
		GFW:               gfwClient,
		Version:           Version,
		AllowFileDeletion: cfg.Security.AllowFileDeletion,
		Logger:            logger,
	}))
	if web.HasEmbeddedFiles() {
		if err := web.RegisterStaticRoutes(e); err != nil {
			logger.Warn("failed to register static routes", zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
		IdleTimeout:  cfg.Server.IdleTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.StartServer(srv)
	}()
	logger.Info("server started",
		zap.String("version", Version),
		zap.String("addr", cfg.GetServerAddr()),
		zap.String("config", configPath),
		zap.String("database", cfg.Storage.DatabasePath),
		zap.Bool("auth", cfg.Security.AuthSecret != ""),
		zap.Bool("kafka", sink != nil))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	if err := jobs.Close(shutdownCtx); err != nil {
		logger.Warn("ingest jobs did not stop in time", zap.Error(err))
	}
	return nil
}

// openSink returns the Kafka sink when enabled. The returned close function
// is always safe to call.
func openSink() (ingest.Sink, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	sink, err := publish.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.BatchSize, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Kafka sink: %w", err)
	}
	return sink, func() {
		if err := sink.Close(); err != nil {
			logger.Warn("closing Kafka sink", zap.Error(err))
		}
	}, nil
}

func processorConfig() ingest.Config {
	return ingest.Config{
		Workers:      cfg.Ingest.Workers,
		MinChunkSize: cfg.Ingest.MinChunkSize,
		AvgLineBytes: cfg.Ingest.AvgLineBytes,
		UseLineCount: cfg.Ingest.UseLineCount,
		BatchSize:    cfg.Ingest.BatchSize,
	}
}
