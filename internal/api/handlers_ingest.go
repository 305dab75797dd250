// handlers_ingest.go - Ingest job handlers
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/maritimeviz/maritimeviz/internal/ingest"
	"github.com/maritimeviz/maritimeviz/internal/models"
	"github.com/maritimeviz/maritimeviz/internal/storage"
)

const (
	streamInterval = 250 * time.Millisecond
	streamTimeout  = 30 * time.Minute
)

// IngestHandlerImpl implements the IngestHandler interface
type IngestHandlerImpl struct {
	files  storage.Store
	jobs   JobManager
	logger *zap.Logger

	interval time.Duration
	timeout  time.Duration
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(files storage.Store, jobs JobManager, logger *zap.Logger) IngestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestHandlerImpl{
		files:    files,
		jobs:     jobs,
		logger:   logger,
		interval: streamInterval,
		timeout:  streamTimeout,
	}
}

// HandleStartIngest submits one ingest job per requested file
func (h *IngestHandlerImpl) HandleStartIngest(c echo.Context) error {
	var req startIngestRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	ids := req.ids()
	if len(ids) == 0 {
		return NewValidationError("fileId")
	}

	// Resolve every file before submitting anything so a bad id does not
	// leave half the batch running.
	type target struct {
		info *models.FileInfo
		path string
	}
	targets := make([]target, 0, len(ids))
	for _, id := range ids {
		info, err := h.files.Get(id)
		if err != nil {
			return NewNotFoundError("file", id)
		}
		path, err := h.files.GetFilePath(id)
		if err != nil {
			return NewNotFoundError("file", id)
		}
		targets = append(targets, target{info: info, path: path})
	}

	// The status is set before Submit because a small file can finish, and
	// have its final status recorded, before Submit returns.
	jobs := make([]ingest.Job, 0, len(targets))
	for _, t := range targets {
		h.setFileStatus(t.info.ID, models.FileStatusIngesting)
		job, err := h.jobs.Submit(t.info.ID, t.info.Name, t.path)
		if err != nil {
			h.setFileStatus(t.info.ID, t.info.Status)
			if errors.Is(err, ingest.ErrManagerClosed) {
				return NewServiceUnavailableError("ingest manager is shutting down")
			}
			return NewInternalError("failed to start ingest", err)
		}
		jobs = append(jobs, job)
	}

	if len(jobs) == 1 && req.FileID != "" && len(req.FileIDs) == 0 {
		return c.JSON(http.StatusAccepted, jobs[0])
	}
	return c.JSON(http.StatusAccepted, jobs)
}

func (h *IngestHandlerImpl) setFileStatus(id, status string) {
	if err := h.files.SetStatus(id, status); err != nil {
		h.logger.Warn("failed to update file status",
			zap.String("file_id", id), zap.Error(err))
	}
}

// HandleListJobs returns all known jobs, newest first
func (h *IngestHandlerImpl) HandleListJobs(c echo.Context) error {
	return c.JSON(http.StatusOK, h.jobs.List())
}

// HandleJobStatus returns the current state of one job
func (h *IngestHandlerImpl) HandleJobStatus(c echo.Context) error {
	id := c.Param("jobId")
	if id == "" {
		return NewValidationError("jobId")
	}
	job, ok := h.jobs.Get(id)
	if !ok {
		return NewNotFoundError("job", id)
	}
	return c.JSON(http.StatusOK, job)
}

// HandleJobStream streams job progress via SSE until the job finishes
func (h *IngestHandlerImpl) HandleJobStream(c echo.Context) error {
	id := c.Param("jobId")
	if id == "" {
		return NewValidationError("jobId")
	}
	job, ok := h.jobs.Get(id)
	if !ok {
		return NewNotFoundError("job", id)
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")

	// The stream outlives the server write timeout.
	if err := http.NewResponseController(c.Response()).SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("cannot clear write deadline", zap.Error(err))
	}
	c.Response().WriteHeader(http.StatusOK)

	h.sendSSEData(c, job)
	if job.Done() {
		return nil
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	timeout := time.NewTimer(h.timeout)
	defer timeout.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			job, ok := h.jobs.Get(id)
			if !ok {
				h.sendSSEError(c, "job not found")
				return nil
			}
			h.sendSSEData(c, job)
			if job.Done() {
				return nil
			}

		case <-timeout.C:
			h.sendSSEError(c, "stream timeout")
			return nil
		}
	}
}

func (h *IngestHandlerImpl) sendSSEData(c echo.Context, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to encode SSE payload", zap.Error(err))
		return
	}
	fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData)
	c.Response().Flush()
}

func (h *IngestHandlerImpl) sendSSEError(c echo.Context, message string) {
	h.sendSSEData(c, map[string]string{"error": message})
}

// Request/Response types

type startIngestRequest struct {
	FileID  string   `json:"fileId"`
	FileIDs []string `json:"fileIds"`
}

func (r *startIngestRequest) ids() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	add(r.FileID)
	for _, id := range r.FileIDs {
		add(id)
	}
	return out
}
